package runs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/instantcocoa/minos/pkg/llm"
	"github.com/instantcocoa/minos/services/evals"
	"github.com/instantcocoa/minos/services/models"
)

const scoreMaxTokens = 1024

// scoreVerdict is the JSON shape judge models are prompted to return when
// scoring a response.
type scoreVerdict struct {
	Score         *float64 `json:"score"`
	Justification string   `json:"justification"`
}

// SetManualScore records a human score for a response. The manual lane
// holds at most one score per response and is updated in place, so setting
// the same value twice is idempotent. LLM scores are untouched.
func (s *RunsService) SetManualScore(ctx context.Context, responseID string, value float64, justification string) (*Score, error) {
	response, err := s.store.GetResponse(ctx, responseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}
	if response == nil {
		return nil, fmt.Errorf("%w: response %s", evals.ErrNotFound, responseID)
	}

	score := &Score{
		ID:            uuid.New().String(),
		ResponseID:    responseID,
		ScoreValue:    &value,
		Justification: justification,
		ScorerType:    ScorerTypeManual,
		CreatedAt:     time.Now(),
	}
	stored, err := s.store.UpsertManualScore(ctx, score)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert manual score: %w", err)
	}
	return stored, nil
}

// StartLLMScoring validates the request, then asynchronously scores every
// response in the run with the judge model. One Score row is attempted per
// response; malformed judge output is recorded as a failed attempt on that
// row and never aborts the batch.
func (s *RunsService) StartLLMScoring(ctx context.Context, runID, judgeModelID, rubricPrompt string) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	if judgeModelID == "" {
		return &ValidationError{Message: "judge model is required"}
	}
	judge, err := s.models.ResolveModel(ctx, judgeModelID)
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("judge model %s: %v", judgeModelID, err)}
	}

	responses, err := s.store.ListResponses(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to list responses: %w", err)
	}
	if len(responses) == 0 {
		return &ValidationError{Message: "run has no responses to score"}
	}

	questions, err := s.questionTexts(ctx, run.EvalID)
	if err != nil {
		return err
	}

	go s.scoreRun(context.Background(), run, judge, responses, questions, rubricPrompt)

	return nil
}

// questionTexts maps question ID to text so judge prompts can embed the
// original question alongside the response.
func (s *RunsService) questionTexts(ctx context.Context, evalID string) (map[string]string, error) {
	questions, err := s.evals.GetQuestions(ctx, evalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	texts := make(map[string]string, len(questions))
	for _, q := range questions {
		texts[q.ID] = q.Text
	}
	return texts, nil
}

// scoreRun fans the judge out over the run's responses with the same
// bounded pool as run dispatch.
func (s *RunsService) scoreRun(ctx context.Context, run *EvalRun, judge *models.ResolvedModel, responses []*Response, questions map[string]string, rubricPrompt string) {
	ctx, span := s.tracer.Start(ctx, "runs.score", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.String("judge.model_id", judge.ID),
		attribute.Int("responses", len(responses)),
	))
	defer span.End()

	s.logger.InfoContext(ctx, "llm scoring started",
		"run_id", run.ID,
		"judge_model_id", judge.ID,
		"responses", len(responses))

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for _, response := range responses {
		wg.Add(1)
		sem <- struct{}{}
		go func(response *Response) {
			defer wg.Done()
			defer func() { <-sem }()
			s.scoreResponse(ctx, judge, response, questions[response.QuestionID], rubricPrompt)
		}(response)
	}

	wg.Wait()

	s.logger.InfoContext(ctx, "llm scoring finished", "run_id", run.ID)
}

func (s *RunsService) scoreResponse(ctx context.Context, judge *models.ResolvedModel, response *Response, questionText, rubricPrompt string) {
	score := &Score{
		ID:          uuid.New().String(),
		ResponseID:  response.ID,
		ScorerType:  ScorerTypeLLM,
		ScorerLLMID: judge.ID,
		CreatedAt:   time.Now(),
	}

	if !response.Succeeded() {
		score.Error = "response has no completion to score"
	} else {
		result, err := s.llm.Invoke(ctx, llm.Invocation{
			Endpoint:  judge.Endpoint,
			APIKey:    judge.APIKey,
			Model:     judge.Name,
			Prompt:    buildScoringPrompt(rubricPrompt, questionText, response.ResponseText),
			MaxTokens: scoreMaxTokens,
			Timeout:   s.invokeTimeout,
		})
		if err != nil {
			score.Error = err.Error()
		} else {
			verdict, parseErr := parseScoreVerdict(result.Text)
			if parseErr != nil {
				score.Error = parseErr.Error()
			} else {
				score.ScoreValue = verdict.Score
				score.Justification = verdict.Justification
			}
		}
	}

	if err := s.store.CreateScore(ctx, score); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist score",
			"response_id", response.ID,
			"judge_model_id", judge.ID,
			"error", err)
	}
}

func buildScoringPrompt(rubricPrompt, questionText, responseText string) string {
	return fmt.Sprintf(`%s

Question:
%s

Response to score:
%s

Respond with a JSON object with a numeric field "score" and a string field "justification". Respond with the JSON object and nothing else.`, rubricPrompt, questionText, responseText)
}

// parseScoreVerdict extracts the verdict JSON from judge output. A missing
// score field counts as malformed.
func parseScoreVerdict(raw string) (*scoreVerdict, error) {
	extracted := llm.ExtractJSON(raw)

	var verdict scoreVerdict
	if err := json.Unmarshal([]byte(extracted), &verdict); err != nil {
		return nil, fmt.Errorf("malformed judge output: %w", err)
	}
	if verdict.Score == nil {
		return nil, fmt.Errorf("judge output has no score")
	}
	return &verdict, nil
}
