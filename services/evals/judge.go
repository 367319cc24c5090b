package evals

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/instantcocoa/minos/pkg/llm"
	"github.com/instantcocoa/minos/services/models"
)

const judgeMaxTokens = 1024

// ValidationError is returned when a judging request is rejected before
// any work is dispatched.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// judgeVerdict is the JSON shape judge models are prompted to return for a
// question. Missing criteria stay nil rather than defaulting to zero.
type judgeVerdict struct {
	OverallScore     *float64 `json:"overall_score"`
	ClarityScore     *float64 `json:"clarity_score"`
	DifficultyScore  *float64 `json:"difficulty_score"`
	RelevanceScore   *float64 `json:"relevance_score"`
	OriginalityScore *float64 `json:"originality_score"`
	Justification    string   `json:"justification"`
}

// StartJudging validates the request, then asynchronously fans out every
// (judge model, question) pair with bounded concurrency. Each pair persists
// exactly one Judgment; invocation or parse failures are recorded on the
// Judgment itself and never abort the batch.
func (s *EvalsService) StartJudging(ctx context.Context, evalID string, judgeModelIDs []string, judgingPrompt string) error {
	eval, err := s.store.GetEval(ctx, evalID)
	if err != nil {
		return fmt.Errorf("failed to get eval: %w", err)
	}
	if eval == nil {
		return fmt.Errorf("%w: eval %s", ErrNotFound, evalID)
	}

	questions, err := s.store.ListQuestions(ctx, evalID)
	if err != nil {
		return fmt.Errorf("failed to list questions: %w", err)
	}
	if len(questions) == 0 {
		return &ValidationError{Message: "eval has no questions"}
	}

	judgeIDs := dedupe(judgeModelIDs)
	if len(judgeIDs) == 0 {
		return &ValidationError{Message: "at least one judge model is required"}
	}

	judges := make([]*models.ResolvedModel, 0, len(judgeIDs))
	for _, id := range judgeIDs {
		judge, err := s.models.ResolveModel(ctx, id)
		if err != nil {
			return &ValidationError{Message: fmt.Sprintf("judge model %s: %v", id, err)}
		}
		judges = append(judges, judge)
	}

	go s.judgeAll(context.Background(), eval, judges, questions, judgingPrompt)

	return nil
}

// judgeAll runs the judges x questions fan-out. The concurrency bound is
// shared across all pairs, not per judge.
func (s *EvalsService) judgeAll(ctx context.Context, eval *Eval, judges []*models.ResolvedModel, questions []*Question, judgingPrompt string) {
	s.logger.InfoContext(ctx, "judging started",
		"eval_id", eval.ID,
		"judges", len(judges),
		"questions", len(questions))

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for _, judge := range judges {
		for _, question := range questions {
			wg.Add(1)
			sem <- struct{}{}
			go func(judge *models.ResolvedModel, question *Question) {
				defer wg.Done()
				defer func() { <-sem }()
				s.judgeQuestion(ctx, judge, question, judgingPrompt)
			}(judge, question)
		}
	}

	wg.Wait()

	s.logger.InfoContext(ctx, "judging finished", "eval_id", eval.ID)
}

func (s *EvalsService) judgeQuestion(ctx context.Context, judge *models.ResolvedModel, question *Question, judgingPrompt string) {
	judgment := &Judgment{
		ID:           uuid.New().String(),
		QuestionID:   question.ID,
		JudgeModelID: judge.ID,
		CreatedAt:    time.Now(),
	}

	result, err := s.llm.Invoke(ctx, llm.Invocation{
		Endpoint:  judge.Endpoint,
		APIKey:    judge.APIKey,
		Model:     judge.Name,
		Prompt:    buildJudgingPrompt(judgingPrompt, question.Text),
		MaxTokens: judgeMaxTokens,
		Timeout:   s.invokeTimeout,
	})
	if err != nil {
		judgment.Error = err.Error()
	} else {
		verdict, parseErr := parseJudgeVerdict(result.Text)
		if parseErr != nil {
			judgment.Error = parseErr.Error()
		} else {
			judgment.OverallScore = verdict.OverallScore
			judgment.ClarityScore = verdict.ClarityScore
			judgment.DifficultyScore = verdict.DifficultyScore
			judgment.RelevanceScore = verdict.RelevanceScore
			judgment.OriginalityScore = verdict.OriginalityScore
			judgment.Justification = verdict.Justification
		}
	}

	if err := s.store.CreateJudgment(ctx, judgment); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist judgment",
			"question_id", question.ID,
			"judge_model_id", judge.ID,
			"error", err)
	}
}

func buildJudgingPrompt(judgingPrompt, questionText string) string {
	return fmt.Sprintf(`%s

Question to assess:
%s

Respond with a JSON object with the numeric fields "overall_score", "clarity_score", "difficulty_score", "relevance_score", "originality_score" (each 1-10) and a string field "justification". Respond with the JSON object and nothing else.`, judgingPrompt, questionText)
}

// parseJudgeVerdict extracts the verdict JSON from judge output. A verdict
// with no scores at all counts as malformed.
func parseJudgeVerdict(raw string) (*judgeVerdict, error) {
	extracted := llm.ExtractJSON(raw)

	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(extracted), &verdict); err != nil {
		return nil, fmt.Errorf("malformed judge output: %w", err)
	}
	if verdict.OverallScore == nil && verdict.ClarityScore == nil &&
		verdict.DifficultyScore == nil && verdict.RelevanceScore == nil &&
		verdict.OriginalityScore == nil {
		return nil, fmt.Errorf("judge output contains no scores")
	}
	return &verdict, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
