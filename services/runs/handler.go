package runs

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/instantcocoa/minos/pkg/httpapi"
	"github.com/instantcocoa/minos/services/evals"
)

// Handler exposes run orchestration and scoring over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *RunsService
}

// NewHandler creates a new runs handler.
func NewHandler(logger *slog.Logger, svc *RunsService) *Handler {
	return &Handler{
		logger:  logger.With("component", "runs_handler"),
		service: svc,
	}
}

// Register registers the handler's routes.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/v1/runs", h.StartRun).Methods("POST")
	r.HandleFunc("/v1/runs", h.ListRuns).Methods("GET")
	r.HandleFunc("/v1/runs/{id}/status", h.GetRunStatus).Methods("GET")
	r.HandleFunc("/v1/runs/{id}/results", h.GetRunResults).Methods("GET")
	r.HandleFunc("/v1/runs/{id}/scores", h.StartLLMScoring).Methods("POST")
	r.HandleFunc("/v1/responses/{id}/score", h.SetManualScore).Methods("PUT")
}

type runJSON struct {
	ID             string `json:"id"`
	EvalID         string `json:"eval_id"`
	Status         string `json:"status"`
	TotalCells     int    `json:"total_cells"`
	TotalQuestions int    `json:"total_questions"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type progressJSON struct {
	Percentage          float64 `json:"percentage"`
	TotalQuestions      int     `json:"total_questions"`
	TotalResponses      int     `json:"total_responses"`
	SuccessfulResponses int     `json:"successful_responses"`
	FailedResponses     int     `json:"failed_responses"`
}

type responseJSON struct {
	ID              string      `json:"id"`
	EvalRunID       string      `json:"eval_run_id"`
	QuestionID      string      `json:"question_id"`
	ModelID         string      `json:"model_id"`
	ResponseText    string      `json:"response_text,omitempty"`
	Error           string      `json:"error,omitempty"`
	InputTokens     *int        `json:"input_tokens,omitempty"`
	OutputTokens    *int        `json:"output_tokens,omitempty"`
	Cost            *float64    `json:"cost,omitempty"`
	ExecutionTimeMs int64       `json:"execution_time_ms"`
	CreatedAt       string      `json:"created_at"`
	CurrentScore    *scoreJSON  `json:"current_score,omitempty"`
	Scores          []scoreJSON `json:"scores,omitempty"`
}

type scoreJSON struct {
	ID            string   `json:"id"`
	ResponseID    string   `json:"response_id"`
	ScoreValue    *float64 `json:"score_value,omitempty"`
	Justification string   `json:"justification,omitempty"`
	ScorerType    string   `json:"scorer_type"`
	ScorerLLMID   string   `json:"scorer_llm_id,omitempty"`
	Error         string   `json:"error,omitempty"`
	CreatedAt     string   `json:"created_at"`
}

func runToJSON(r *EvalRun) runJSON {
	return runJSON{
		ID:             r.ID,
		EvalID:         r.EvalID,
		Status:         string(r.Status),
		TotalCells:     r.TotalCells,
		TotalQuestions: r.TotalQuestions,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      r.UpdatedAt.Format(time.RFC3339),
	}
}

func scoreToJSON(s *Score) scoreJSON {
	return scoreJSON{
		ID:            s.ID,
		ResponseID:    s.ResponseID,
		ScoreValue:    s.ScoreValue,
		Justification: s.Justification,
		ScorerType:    string(s.ScorerType),
		ScorerLLMID:   s.ScorerLLMID,
		Error:         s.Error,
		CreatedAt:     s.CreatedAt.Format(time.RFC3339),
	}
}

// StartRun validates and starts a new eval run.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EvalID   string   `json:"eval_id"`
		ModelIDs []string `json:"model_ids"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := h.service.StartRun(r.Context(), StartRunInput{
		EvalID:   req.EvalID,
		ModelIDs: req.ModelIDs,
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			httpapi.WriteError(w, http.StatusBadRequest, verr.Message)
			return
		}
		if errors.Is(err, evals.ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "eval not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to start run", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	httpapi.WriteJSON(w, http.StatusCreated, runToJSON(run))
}

// ListRuns returns runs, optionally filtered by eval_id.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	evalID := r.URL.Query().Get("eval_id")

	runs, err := h.service.ListRuns(r.Context(), evalID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list runs", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	out := make([]runJSON, len(runs))
	for i, run := range runs {
		out[i] = runToJSON(run)
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"runs": out})
}

// GetRunStatus returns the run's pollable status and progress.
func (h *Handler) GetRunStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	view, err := h.service.GetRunStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, evals.ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to get run status", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to get run status")
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  view.RunID,
		"eval_id": view.EvalID,
		"status":  string(view.Status),
		"progress": progressJSON{
			Percentage:          view.Progress.Percentage,
			TotalQuestions:      view.Progress.TotalQuestions,
			TotalResponses:      view.Progress.TotalResponses,
			SuccessfulResponses: view.Progress.SuccessfulResponses,
			FailedResponses:     view.Progress.FailedResponses,
		},
	})
}

// GetRunResults returns the run's responses with scores.
func (h *Handler) GetRunResults(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	results, err := h.service.GetRunResults(r.Context(), id)
	if err != nil {
		if errors.Is(err, evals.ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to get run results", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to get run results")
		return
	}

	responses := make([]responseJSON, 0, len(results.Responses))
	for _, rr := range results.Responses {
		item := responseJSON{
			ID:              rr.Response.ID,
			EvalRunID:       rr.Response.EvalRunID,
			QuestionID:      rr.Response.QuestionID,
			ModelID:         rr.Response.ModelID,
			ResponseText:    rr.Response.ResponseText,
			Error:           rr.Response.Error,
			InputTokens:     rr.Response.InputTokens,
			OutputTokens:    rr.Response.OutputTokens,
			Cost:            rr.Response.Cost,
			ExecutionTimeMs: rr.Response.ExecutionTimeMs,
			CreatedAt:       rr.Response.CreatedAt.Format(time.RFC3339),
		}
		if rr.CurrentScore != nil {
			current := scoreToJSON(rr.CurrentScore)
			item.CurrentScore = &current
		}
		for _, sc := range rr.Scores {
			item.Scores = append(item.Scores, scoreToJSON(sc))
		}
		responses = append(responses, item)
	}

	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"run":       runToJSON(results.Run),
		"eval_id":   results.EvalID,
		"eval_name": results.EvalName,
		"responses": responses,
	})
}

// StartLLMScoring kicks off asynchronous judge scoring for a run.
func (h *Handler) StartLLMScoring(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		JudgeModelID string `json:"judge_model_id"`
		RubricPrompt string `json:"rubric_prompt"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.service.StartLLMScoring(r.Context(), id, req.JudgeModelID, req.RubricPrompt)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			httpapi.WriteError(w, http.StatusBadRequest, verr.Message)
			return
		}
		if errors.Is(err, evals.ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to start llm scoring", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to start llm scoring")
		return
	}

	httpapi.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// SetManualScore records a human score for a response.
func (h *Handler) SetManualScore(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		ScoreValue    *float64 `json:"score_value"`
		Justification string   `json:"justification"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ScoreValue == nil {
		httpapi.WriteError(w, http.StatusBadRequest, "score_value is required")
		return
	}

	score, err := h.service.SetManualScore(r.Context(), id, *req.ScoreValue, req.Justification)
	if err != nil {
		if errors.Is(err, evals.ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "response not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to set manual score", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to set manual score")
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, scoreToJSON(score))
}
