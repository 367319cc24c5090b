package evals

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/instantcocoa/minos/pkg/httpapi"
)

// Handler exposes evals, questions, generation, and judging over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *EvalsService
}

// NewHandler creates a new evals handler.
func NewHandler(logger *slog.Logger, svc *EvalsService) *Handler {
	return &Handler{
		logger:  logger.With("component", "evals_handler"),
		service: svc,
	}
}

// Register registers the handler's routes.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/v1/evals", h.CreateEval).Methods("POST")
	r.HandleFunc("/v1/evals", h.ListEvals).Methods("GET")
	r.HandleFunc("/v1/evals/{id}", h.GetEval).Methods("GET")
	r.HandleFunc("/v1/evals/{id}", h.DeleteEval).Methods("DELETE")
	r.HandleFunc("/v1/evals/{id}/questions", h.AddQuestion).Methods("POST")
	r.HandleFunc("/v1/evals/{id}/questions/{qid}", h.UpdateQuestion).Methods("PUT")
	r.HandleFunc("/v1/evals/{id}/generate", h.GenerateQuestions).Methods("POST")
	r.HandleFunc("/v1/evals/{id}/judgments", h.StartJudging).Methods("POST")
	r.HandleFunc("/v1/evals/{id}/judgments", h.GetJudgments).Methods("GET")
}

type evalJSON struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	GenerationPrompt string         `json:"generation_prompt,omitempty"`
	GeneratorModelID string         `json:"generator_model_id,omitempty"`
	Difficulty       string         `json:"difficulty,omitempty"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
	Questions        []questionJSON `json:"questions,omitempty"`
}

type questionJSON struct {
	ID        string `json:"id"`
	EvalID    string `json:"eval_id"`
	Text      string `json:"text"`
	Version   int    `json:"version"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type judgmentJSON struct {
	ID               string   `json:"id"`
	QuestionID       string   `json:"question_id"`
	JudgeModelID     string   `json:"judge_model_id"`
	OverallScore     *float64 `json:"overall_score,omitempty"`
	ClarityScore     *float64 `json:"clarity_score,omitempty"`
	DifficultyScore  *float64 `json:"difficulty_score,omitempty"`
	RelevanceScore   *float64 `json:"relevance_score,omitempty"`
	OriginalityScore *float64 `json:"originality_score,omitempty"`
	Justification    string   `json:"justification,omitempty"`
	Error            string   `json:"error,omitempty"`
	CreatedAt        string   `json:"created_at"`
}

func evalToJSON(e *Eval) evalJSON {
	return evalJSON{
		ID:               e.ID,
		Name:             e.Name,
		Description:      e.Description,
		GenerationPrompt: e.GenerationPrompt,
		GeneratorModelID: e.GeneratorModelID,
		Difficulty:       e.Difficulty,
		CreatedAt:        e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        e.UpdatedAt.Format(time.RFC3339),
	}
}

func questionToJSON(q *Question) questionJSON {
	return questionJSON{
		ID:        q.ID,
		EvalID:    q.EvalID,
		Text:      q.Text,
		Version:   q.Version,
		CreatedAt: q.CreatedAt.Format(time.RFC3339),
		UpdatedAt: q.UpdatedAt.Format(time.RFC3339),
	}
}

func judgmentToJSON(j *Judgment) judgmentJSON {
	return judgmentJSON{
		ID:               j.ID,
		QuestionID:       j.QuestionID,
		JudgeModelID:     j.JudgeModelID,
		OverallScore:     j.OverallScore,
		ClarityScore:     j.ClarityScore,
		DifficultyScore:  j.DifficultyScore,
		RelevanceScore:   j.RelevanceScore,
		OriginalityScore: j.OriginalityScore,
		Justification:    j.Justification,
		Error:            j.Error,
		CreatedAt:        j.CreatedAt.Format(time.RFC3339),
	}
}

// CreateEval creates a new eval.
func (h *Handler) CreateEval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name             string `json:"name"`
		Description      string `json:"description"`
		GenerationPrompt string `json:"generation_prompt"`
		GeneratorModelID string `json:"generator_model_id"`
		Difficulty       string `json:"difficulty"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	eval, err := h.service.CreateEval(r.Context(), CreateEvalInput{
		Name:             req.Name,
		Description:      req.Description,
		GenerationPrompt: req.GenerationPrompt,
		GeneratorModelID: req.GeneratorModelID,
		Difficulty:       req.Difficulty,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create eval", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to create eval")
		return
	}

	httpapi.WriteJSON(w, http.StatusCreated, evalToJSON(eval))
}

// GetEval retrieves an eval together with its questions.
func (h *Handler) GetEval(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	eval, err := h.service.GetEval(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "eval not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to get eval", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to get eval")
		return
	}

	questions, err := h.service.GetQuestions(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list questions", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to list questions")
		return
	}

	out := evalToJSON(eval)
	out.Questions = make([]questionJSON, len(questions))
	for i, q := range questions {
		out.Questions[i] = questionToJSON(q)
	}
	httpapi.WriteJSON(w, http.StatusOK, out)
}

// ListEvals returns all evals.
func (h *Handler) ListEvals(w http.ResponseWriter, r *http.Request) {
	evals, err := h.service.ListEvals(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list evals", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to list evals")
		return
	}

	out := make([]evalJSON, len(evals))
	for i, e := range evals {
		out[i] = evalToJSON(e)
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"evals": out})
}

// DeleteEval removes an eval.
func (h *Handler) DeleteEval(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.service.DeleteEval(r.Context(), id); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to delete eval", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to delete eval")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddQuestion appends a question to an eval.
func (h *Handler) AddQuestion(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		Text string `json:"text"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "text is required")
		return
	}

	question, err := h.service.AddQuestion(r.Context(), AddQuestionInput{EvalID: id, Text: req.Text})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "eval not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to add question", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to add question")
		return
	}

	httpapi.WriteJSON(w, http.StatusCreated, questionToJSON(question))
}

// UpdateQuestion edits a question's text.
func (h *Handler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req struct {
		Text string `json:"text"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "text is required")
		return
	}

	question, err := h.service.UpdateQuestion(r.Context(), UpdateQuestionInput{
		EvalID:     vars["id"],
		QuestionID: vars["qid"],
		Text:       req.Text,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "question not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to update question", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to update question")
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, questionToJSON(question))
}

// GenerateQuestions invokes the eval's generator model and appends the
// parsed questions.
func (h *Handler) GenerateQuestions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		Count int `json:"count"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Count < 1 {
		httpapi.WriteError(w, http.StatusBadRequest, "count must be positive")
		return
	}

	questions, err := h.service.GenerateQuestions(r.Context(), id, req.Count)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "eval not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to generate questions", "error", err)
		httpapi.WriteError(w, http.StatusBadGateway, "question generation failed")
		return
	}

	out := make([]questionJSON, len(questions))
	for i, q := range questions {
		out[i] = questionToJSON(q)
	}
	httpapi.WriteJSON(w, http.StatusCreated, map[string]interface{}{"questions": out})
}

// StartJudging kicks off asynchronous question-quality judging.
func (h *Handler) StartJudging(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		JudgeModelIDs []string `json:"judge_model_ids"`
		JudgingPrompt string   `json:"judging_prompt"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.service.StartJudging(r.Context(), id, req.JudgeModelIDs, req.JudgingPrompt)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			httpapi.WriteError(w, http.StatusBadRequest, verr.Message)
			return
		}
		if errors.Is(err, ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "eval not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to start judging", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to start judging")
		return
	}

	httpapi.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// GetJudgments returns an eval's judgments grouped by question.
func (h *Handler) GetJudgments(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	grouped, err := h.service.GetJudgments(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "eval not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to get judgments", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to get judgments")
		return
	}

	out := make(map[string][]judgmentJSON, len(grouped))
	for qid, list := range grouped {
		items := make([]judgmentJSON, len(list))
		for i, j := range list {
			items[i] = judgmentToJSON(j)
		}
		out[qid] = items
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"judgments_by_question": out})
}
