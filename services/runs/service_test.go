package runs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/instantcocoa/minos/pkg/llm"
	"github.com/instantcocoa/minos/pkg/testutil"
	"github.com/instantcocoa/minos/services/evals"
	"github.com/instantcocoa/minos/services/models"
)

type testEnv struct {
	service *RunsService
	store   *MemoryStore
	models  *models.ModelsService
	evals   *evals.EvalsService
	mock    *testutil.MockHTTPClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	secrets := models.StaticSecretSource{"test-key": "sk-test"}
	modelsSvc := models.NewModelsService(models.NewMemoryStore(), secrets)

	mock := testutil.NewMockHTTPClient()
	client := llm.NewClientWithHTTP(mock)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	evalsSvc := evals.NewEvalsService(evals.NewMemoryStore(), modelsSvc, client, logger, 4, time.Second)

	store := NewMemoryStore()
	svc := NewRunsService(store, evalsSvc, modelsSvc, client, nil, logger, 4, time.Second)

	return &testEnv{service: svc, store: store, models: modelsSvc, evals: evalsSvc, mock: mock}
}

func (e *testEnv) createModel(t *testing.T, name string, inputCost, outputCost *float64) *models.ModelConfig {
	t.Helper()
	model, err := e.models.CreateModel(context.Background(), models.CreateModelInput{
		Name:            name,
		Endpoint:        "https://api.example.com/v1",
		APIKeyRef:       "test-key",
		InputTokenCost:  inputCost,
		OutputTokenCost: outputCost,
	})
	if err != nil {
		t.Fatalf("CreateModel failed: %v", err)
	}
	return model
}

func (e *testEnv) createEvalWithQuestions(t *testing.T, questionTexts ...string) *evals.Eval {
	t.Helper()
	ctx := context.Background()

	eval, err := e.evals.CreateEval(ctx, evals.CreateEvalInput{Name: "test-eval"})
	if err != nil {
		t.Fatalf("CreateEval failed: %v", err)
	}
	for _, text := range questionTexts {
		if _, err := e.evals.AddQuestion(ctx, evals.AddQuestionInput{EvalID: eval.ID, Text: text}); err != nil {
			t.Fatalf("AddQuestion failed: %v", err)
		}
	}
	return eval
}

func floatPtr(v float64) *float64 { return &v }

func waitForTerminal(t *testing.T, store Store, runID string) *EvalRun {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		run, err := store.GetRun(context.Background(), runID)
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if run != nil && (run.Status == RunStatusCompleted || run.Status == RunStatusFailed) {
			return run
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for run %s to terminate", runID)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStartRunFullMatrix(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	modelA := env.createModel(t, "model-a", floatPtr(0.00001), floatPtr(0.00003))
	modelB := env.createModel(t, "model-b", floatPtr(0.00002), floatPtr(0.00006))
	eval := env.createEvalWithQuestions(t, "q1", "q2", "q3")

	env.mock.SetDefaultResponse(testutil.MockCompletionResponse("the answer", 100, 50))

	run, err := env.service.StartRun(ctx, StartRunInput{
		EvalID:   eval.ID,
		ModelIDs: []string{modelA.ID, modelB.ID},
	})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if run.Status != RunStatusPending {
		t.Errorf("expected PENDING at creation, got %s", run.Status)
	}
	if run.TotalCells != 6 {
		t.Errorf("expected 6 total cells, got %d", run.TotalCells)
	}
	if run.TotalQuestions != 3 {
		t.Errorf("expected 3 total questions, got %d", run.TotalQuestions)
	}

	final := waitForTerminal(t, env.store, run.ID)
	if final.Status != RunStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", final.Status)
	}

	responses, err := env.store.ListResponses(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListResponses failed: %v", err)
	}
	if len(responses) != 6 {
		t.Fatalf("expected 6 responses, got %d", len(responses))
	}

	// Exactly one response per (question, model) pair.
	seen := make(map[string]bool)
	for _, r := range responses {
		key := r.QuestionID + "/" + r.ModelID
		if seen[key] {
			t.Errorf("duplicate response for cell %s", key)
		}
		seen[key] = true

		if r.Error != "" {
			t.Errorf("unexpected response error: %s", r.Error)
		}
		if r.ResponseText != "the answer" {
			t.Errorf("unexpected response text: %q", r.ResponseText)
		}
		if r.InputTokens == nil || *r.InputTokens != 100 {
			t.Errorf("unexpected input tokens: %v", r.InputTokens)
		}
		if r.Cost == nil {
			t.Error("expected cost to be computed")
		}
	}
}

func TestStartRunOneCellFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	modelA := env.createModel(t, "model-a", floatPtr(0.00001), floatPtr(0.00003))
	modelB := env.createModel(t, "model-b", floatPtr(0.00002), floatPtr(0.00006))
	eval := env.createEvalWithQuestions(t, "q1", "q2", "q3")

	// One cell times out; the other five succeed.
	env.mock.AddResponse(testutil.MockErrorResponse(504, "upstream timeout"))
	env.mock.SetDefaultResponse(testutil.MockCompletionResponse("the answer", 100, 50))

	run, err := env.service.StartRun(ctx, StartRunInput{
		EvalID:   eval.ID,
		ModelIDs: []string{modelA.ID, modelB.ID},
	})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	final := waitForTerminal(t, env.store, run.ID)
	if final.Status != RunStatusCompleted {
		t.Errorf("per-cell failure must not fail the run, got %s", final.Status)
	}

	responses, _ := env.store.ListResponses(ctx, run.ID)
	if len(responses) != 6 {
		t.Fatalf("expected 6 responses, got %d", len(responses))
	}

	failed := 0
	for _, r := range responses {
		if r.Error != "" {
			failed++
			if r.ResponseText != "" {
				t.Error("hard-failed cell should have no response text")
			}
			if r.Cost != nil {
				t.Error("hard-failed cell should have no cost")
			}
			if !strings.Contains(r.Error, "timeout") {
				t.Errorf("expected timeout classification, got %q", r.Error)
			}
		}
	}
	if failed != 1 {
		t.Errorf("expected exactly 1 failed cell, got %d", failed)
	}
}

func TestStartRunMissingPricing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// No input token cost configured.
	model := env.createModel(t, "unpriced-model", nil, floatPtr(0.00003))
	eval := env.createEvalWithQuestions(t, "q1", "q2")

	env.mock.SetDefaultResponse(testutil.MockCompletionResponse("the answer", 100, 50))

	run, err := env.service.StartRun(ctx, StartRunInput{
		EvalID:   eval.ID,
		ModelIDs: []string{model.ID},
	})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	waitForTerminal(t, env.store, run.ID)

	responses, _ := env.store.ListResponses(ctx, run.ID)
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
	for _, r := range responses {
		if r.ResponseText != "the answer" {
			t.Errorf("completion should survive pricing failure, got %q", r.ResponseText)
		}
		if r.Cost != nil {
			t.Error("expected nil cost for unpriced model")
		}
		if !strings.Contains(r.Error, "pricing unavailable") {
			t.Errorf("expected pricing-unavailable marker, got %q", r.Error)
		}
		if !r.Succeeded() {
			t.Error("priced-out cell still counts as succeeded")
		}
	}
}

func TestStartRunEmptyModels(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	eval := env.createEvalWithQuestions(t, "q1")

	_, err := env.service.StartRun(ctx, StartRunInput{EvalID: eval.ID})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	runs, _ := env.store.ListRuns(ctx, eval.ID)
	if len(runs) != 0 {
		t.Errorf("rejected request must not create a run, found %d", len(runs))
	}
}

func TestStartRunNoQuestions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	model := env.createModel(t, "model-a", nil, nil)
	eval := env.createEvalWithQuestions(t)

	_, err := env.service.StartRun(ctx, StartRunInput{EvalID: eval.ID, ModelIDs: []string{model.ID}})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestStartRunUnknownModel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	eval := env.createEvalWithQuestions(t, "q1")

	_, err := env.service.StartRun(ctx, StartRunInput{EvalID: eval.ID, ModelIDs: []string{"no-such-model"}})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	runs, _ := env.store.ListRuns(ctx, eval.ID)
	if len(runs) != 0 {
		t.Errorf("rejected request must not create a run, found %d", len(runs))
	}
}

func TestStartRunEvalNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.StartRun(context.Background(), StartRunInput{EvalID: "missing", ModelIDs: []string{"m"}})
	if !errors.Is(err, evals.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStartRunDeduplicatesModels(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	model := env.createModel(t, "model-a", floatPtr(1e-5), floatPtr(3e-5))
	eval := env.createEvalWithQuestions(t, "q1", "q2")

	env.mock.SetDefaultResponse(testutil.MockCompletionResponse("the answer", 10, 5))

	run, err := env.service.StartRun(ctx, StartRunInput{
		EvalID:   eval.ID,
		ModelIDs: []string{model.ID, model.ID, ""},
	})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if run.TotalCells != 2 {
		t.Errorf("expected 2 cells after dedup, got %d", run.TotalCells)
	}

	waitForTerminal(t, env.store, run.ID)
	responses, _ := env.store.ListResponses(ctx, run.ID)
	if len(responses) != 2 {
		t.Errorf("expected 2 responses, got %d", len(responses))
	}
}

func TestRerunCreatesIndependentRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	model := env.createModel(t, "model-a", floatPtr(1e-5), floatPtr(3e-5))
	eval := env.createEvalWithQuestions(t, "q1")

	env.mock.SetDefaultResponse(testutil.MockCompletionResponse("the answer", 10, 5))

	first, err := env.service.StartRun(ctx, StartRunInput{EvalID: eval.ID, ModelIDs: []string{model.ID}})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	waitForTerminal(t, env.store, first.ID)

	second, err := env.service.StartRun(ctx, StartRunInput{EvalID: eval.ID, ModelIDs: []string{model.ID}})
	if err != nil {
		t.Fatalf("second StartRun failed: %v", err)
	}
	if second.ID == first.ID {
		t.Error("re-running must create a new run")
	}
	waitForTerminal(t, env.store, second.ID)

	firstResponses, _ := env.store.ListResponses(ctx, first.ID)
	secondResponses, _ := env.store.ListResponses(ctx, second.ID)
	if len(firstResponses) != 1 || len(secondResponses) != 1 {
		t.Errorf("expected 1 response per run, got %d and %d", len(firstResponses), len(secondResponses))
	}
}

func TestGetRunStatusProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	model := env.createModel(t, "model-a", floatPtr(1e-5), floatPtr(3e-5))
	eval := env.createEvalWithQuestions(t, "q1", "q2")

	env.mock.AddResponse(testutil.MockErrorResponse(429, "rate limited"))
	env.mock.SetDefaultResponse(testutil.MockCompletionResponse("the answer", 10, 5))

	run, err := env.service.StartRun(ctx, StartRunInput{EvalID: eval.ID, ModelIDs: []string{model.ID}})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	waitForTerminal(t, env.store, run.ID)

	view, err := env.service.GetRunStatus(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRunStatus failed: %v", err)
	}
	if view.Status != RunStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", view.Status)
	}
	if view.Progress.Percentage != 100 {
		t.Errorf("expected 100%% progress, got %v", view.Progress.Percentage)
	}
	if view.Progress.TotalResponses != 2 {
		t.Errorf("expected 2 total responses, got %d", view.Progress.TotalResponses)
	}
	if view.Progress.SuccessfulResponses != 1 || view.Progress.FailedResponses != 1 {
		t.Errorf("expected 1 success and 1 failure, got %d and %d",
			view.Progress.SuccessfulResponses, view.Progress.FailedResponses)
	}
	if view.Progress.TotalQuestions != 2 {
		t.Errorf("expected 2 total questions, got %d", view.Progress.TotalQuestions)
	}
}

func TestGetRunStatusNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.GetRunStatus(context.Background(), "missing")
	if !errors.Is(err, evals.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetRunResults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	model := env.createModel(t, "model-a", floatPtr(1e-5), floatPtr(3e-5))
	eval := env.createEvalWithQuestions(t, "q1")

	env.mock.SetDefaultResponse(testutil.MockCompletionResponse("the answer", 10, 5))

	run, err := env.service.StartRun(ctx, StartRunInput{EvalID: eval.ID, ModelIDs: []string{model.ID}})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	waitForTerminal(t, env.store, run.ID)

	results, err := env.service.GetRunResults(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRunResults failed: %v", err)
	}
	if results.EvalName != "test-eval" {
		t.Errorf("unexpected eval name: %q", results.EvalName)
	}
	if len(results.Responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(results.Responses))
	}
	if results.Responses[0].CurrentScore != nil {
		t.Error("expected no current score before scoring")
	}
}

func TestStartRunReturnedRunIsStable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	model := env.createModel(t, "model-a", floatPtr(1e-5), floatPtr(3e-5))
	eval := env.createEvalWithQuestions(t, "q1")

	env.mock.SetDefaultResponse(testutil.MockCompletionResponse("the answer", 10, 5))

	run, err := env.service.StartRun(ctx, StartRunInput{EvalID: eval.ID, ModelIDs: []string{model.ID}})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	final := waitForTerminal(t, env.store, run.ID)
	if final.Status != RunStatusCompleted {
		t.Fatalf("expected COMPLETED in store, got %s", final.Status)
	}

	// Background execution must not write through the run handed back to
	// the caller; the handler serializes it after dispatch.
	if run.Status != RunStatusPending {
		t.Errorf("returned run mutated to %s, want PENDING", run.Status)
	}
}

// failingResponseStore drops every response write.
type failingResponseStore struct {
	*MemoryStore
}

func (s *failingResponseStore) CreateResponse(ctx context.Context, response *Response) error {
	return errors.New("disk full")
}

func TestStartRunStorageFaultFailsRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	model := env.createModel(t, "model-a", floatPtr(1e-5), floatPtr(3e-5))
	eval := env.createEvalWithQuestions(t, "q1", "q2")

	env.mock.SetDefaultResponse(testutil.MockCompletionResponse("the answer", 10, 5))

	failStore := &failingResponseStore{MemoryStore: NewMemoryStore()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewRunsService(failStore, env.evals, env.models, llm.NewClientWithHTTP(env.mock), nil, logger, 4, time.Second)

	run, err := svc.StartRun(ctx, StartRunInput{EvalID: eval.ID, ModelIDs: []string{model.ID}})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	final := waitForTerminal(t, failStore, run.ID)
	if final.Status != RunStatusFailed {
		t.Errorf("run with no persisted results must be FAILED, got %s", final.Status)
	}

	responses, _ := failStore.ListResponses(ctx, run.ID)
	if len(responses) != 0 {
		t.Errorf("expected 0 persisted responses, got %d", len(responses))
	}
}

func TestStartRunEmptyCompletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	model := env.createModel(t, "model-a", floatPtr(1e-5), floatPtr(3e-5))
	eval := env.createEvalWithQuestions(t, "q1")

	// The model legitimately returns an empty completion.
	env.mock.SetDefaultResponse(testutil.MockCompletionResponse("", 10, 0))

	run, err := env.service.StartRun(ctx, StartRunInput{EvalID: eval.ID, ModelIDs: []string{model.ID}})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	waitForTerminal(t, env.store, run.ID)

	responses, _ := env.store.ListResponses(ctx, run.ID)
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	r := responses[0]
	if r.Error != "" {
		t.Errorf("unexpected response error: %s", r.Error)
	}
	if !r.Succeeded() {
		t.Error("empty completion must still count as succeeded")
	}

	view, err := env.service.GetRunStatus(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRunStatus failed: %v", err)
	}
	if view.Progress.SuccessfulResponses != 1 || view.Progress.FailedResponses != 0 {
		t.Errorf("expected 1 success and 0 failures, got %d and %d",
			view.Progress.SuccessfulResponses, view.Progress.FailedResponses)
	}
}

func TestCurrentScorePreference(t *testing.T) {
	value3, value5 := 3.0, 5.0
	older := &Score{ID: "a", ScorerType: ScorerTypeLLM, ScoreValue: &value3, CreatedAt: time.Now().Add(-time.Hour)}
	newer := &Score{ID: "b", ScorerType: ScorerTypeLLM, ScoreValue: &value5, CreatedAt: time.Now()}
	failed := &Score{ID: "c", ScorerType: ScorerTypeLLM, Error: "malformed", CreatedAt: time.Now().Add(time.Hour)}
	manual := &Score{ID: "d", ScorerType: ScorerTypeManual, ScoreValue: &value3, CreatedAt: time.Now().Add(-2 * time.Hour)}

	if got := currentScore([]*Score{older, newer, failed}); got != newer {
		t.Errorf("expected most recent successful llm score, got %+v", got)
	}
	if got := currentScore([]*Score{older, newer, manual}); got != manual {
		t.Errorf("manual score must win, got %+v", got)
	}
	if got := currentScore(nil); got != nil {
		t.Errorf("expected nil for no scores, got %+v", got)
	}
}
