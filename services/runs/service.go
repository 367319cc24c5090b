package runs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/instantcocoa/minos/pkg/cache"
	"github.com/instantcocoa/minos/pkg/llm"
	"github.com/instantcocoa/minos/services/evals"
	"github.com/instantcocoa/minos/services/models"
)

const responseMaxTokens = 4096

// Status cache TTLs. Running status changes constantly, so it is cached
// only briefly; terminal status never changes again.
const (
	statusCacheRunningTTL  = 2 * time.Second
	statusCacheTerminalTTL = time.Hour
)

// EvalSource provides the eval metadata and question set a run executes
// against. Implemented by the evals service.
type EvalSource interface {
	GetEval(ctx context.Context, id string) (*evals.Eval, error)
	GetQuestions(ctx context.Context, evalID string) ([]*evals.Question, error)
}

// ModelResolver resolves model IDs to invocable endpoints. Implemented by
// the models service.
type ModelResolver interface {
	ResolveModel(ctx context.Context, id string) (*models.ResolvedModel, error)
}

// Invoker performs a single LLM completion call. Implemented by llm.Client.
type Invoker interface {
	Invoke(ctx context.Context, inv llm.Invocation) (*llm.Result, error)
}

// RunsService orchestrates eval runs and scoring.
type RunsService struct {
	store         Store
	evals         EvalSource
	models        ModelResolver
	llm           Invoker
	cache         *cache.Client // optional, nil disables status caching
	logger        *slog.Logger
	tracer        trace.Tracer
	concurrency   int
	invokeTimeout time.Duration
}

// NewRunsService creates a new runs service. Concurrency bounds every
// fan-out (dispatch and batch scoring); invokeTimeout caps each LLM call.
// The cache client may be nil.
func NewRunsService(store Store, evalSource EvalSource, resolver ModelResolver, invoker Invoker, cacheClient *cache.Client, logger *slog.Logger, concurrency int, invokeTimeout time.Duration) *RunsService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &RunsService{
		store:         store,
		evals:         evalSource,
		models:        resolver,
		llm:           invoker,
		cache:         cacheClient,
		logger:        logger.With("component", "runs_service"),
		tracer:        otel.Tracer("minos/runs"),
		concurrency:   concurrency,
		invokeTimeout: invokeTimeout,
	}
}

// cell is one (question, model) unit of work.
type cell struct {
	question *evals.Question
	model    *models.ResolvedModel
}

// StartRun validates the request, persists a PENDING run, and dispatches
// the question x model cross product asynchronously. Validation failures
// reject the request before any run record exists.
func (s *RunsService) StartRun(ctx context.Context, input StartRunInput) (*EvalRun, error) {
	eval, err := s.evals.GetEval(ctx, input.EvalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get eval: %w", err)
	}

	questions, err := s.evals.GetQuestions(ctx, input.EvalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, &ValidationError{Message: "eval has no questions"}
	}

	modelIDs := dedupe(input.ModelIDs)
	if len(modelIDs) == 0 {
		return nil, &ValidationError{Message: "at least one target model is required"}
	}

	targets := make([]*models.ResolvedModel, 0, len(modelIDs))
	for _, id := range modelIDs {
		target, err := s.models.ResolveModel(ctx, id)
		if err != nil {
			return nil, &ValidationError{Message: fmt.Sprintf("target model %s: %v", id, err)}
		}
		targets = append(targets, target)
	}

	now := time.Now()
	run := &EvalRun{
		ID:             uuid.New().String(),
		EvalID:         eval.ID,
		Status:         RunStatusPending,
		TotalCells:     len(questions) * len(targets),
		TotalQuestions: len(questions),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	// The background execution mutates run status; hand it a private copy
	// so the run returned to the caller stays stable.
	dispatched := *run
	go s.executeRun(context.Background(), &dispatched, questions, targets)

	return run, nil
}

// executeRun drives a run from PENDING to a terminal status. Every cell
// terminates in exactly one persisted Response; per-cell failures never
// abort the run. Only a total inability to persist results marks the run
// FAILED.
func (s *RunsService) executeRun(ctx context.Context, run *EvalRun, questions []*evals.Question, targets []*models.ResolvedModel) {
	ctx, span := s.tracer.Start(ctx, "runs.execute", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.String("eval.id", run.EvalID),
		attribute.Int("run.total_cells", run.TotalCells),
	))
	defer span.End()

	s.logger.InfoContext(ctx, "run started",
		"run_id", run.ID,
		"eval_id", run.EvalID,
		"questions", len(questions),
		"models", len(targets),
		"concurrency", s.concurrency)

	s.setRunStatus(ctx, run, RunStatusRunning)

	cells := make([]cell, 0, run.TotalCells)
	for _, q := range questions {
		for _, m := range targets {
			cells = append(cells, cell{question: q, model: m})
		}
	}

	var (
		mu           sync.Mutex
		persisted    int
		storageFault int
	)

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for _, c := range cells {
		wg.Add(1)
		sem <- struct{}{}
		go func(c cell) {
			defer wg.Done()
			defer func() { <-sem }()

			response := s.runCell(ctx, run, c)
			if err := s.store.CreateResponse(ctx, response); err != nil {
				s.logger.ErrorContext(ctx, "failed to persist response",
					"run_id", run.ID,
					"question_id", c.question.ID,
					"model_id", c.model.ID,
					"error", err)
				mu.Lock()
				storageFault++
				mu.Unlock()
				return
			}
			mu.Lock()
			persisted++
			mu.Unlock()
		}(c)
	}

	wg.Wait()

	// Every cell failing individually is still a completed run; only the
	// inability to record any outcome at all is an orchestration fault.
	terminal := RunStatusCompleted
	if persisted == 0 && storageFault > 0 {
		terminal = RunStatusFailed
	}
	s.setRunStatus(ctx, run, terminal)

	s.logger.InfoContext(ctx, "run finished",
		"run_id", run.ID,
		"status", string(terminal),
		"persisted", persisted,
		"storage_faults", storageFault)
}

// runCell invokes one (question, model) pair and builds its Response.
// Invocation errors become data on the row. A successful completion whose
// cost cannot be computed keeps its text and records the pricing failure.
func (s *RunsService) runCell(ctx context.Context, run *EvalRun, c cell) *Response {
	response := &Response{
		ID:         uuid.New().String(),
		EvalRunID:  run.ID,
		QuestionID: c.question.ID,
		ModelID:    c.model.ID,
		CreatedAt:  time.Now(),
	}

	result, err := s.llm.Invoke(ctx, llm.Invocation{
		Endpoint:  c.model.Endpoint,
		APIKey:    c.model.APIKey,
		Model:     c.model.Name,
		Prompt:    c.question.Text,
		MaxTokens: responseMaxTokens,
		Timeout:   s.invokeTimeout,
	})
	if err != nil {
		response.Error = err.Error()
		var invErr *llm.InvocationError
		if errors.As(err, &invErr) {
			response.ExecutionTimeMs = invErr.Duration.Milliseconds()
		}
		return response
	}

	response.ResponseText = result.Text
	response.InputTokens = &result.InputTokens
	response.OutputTokens = &result.OutputTokens
	response.ExecutionTimeMs = result.Duration.Milliseconds()

	cost, err := models.Cost(response.InputTokens, response.OutputTokens, c.model.InputTokenCost, c.model.OutputTokenCost)
	if err != nil {
		response.Error = fmt.Sprintf("pricing unavailable for model %s", c.model.ID)
	} else {
		response.Cost = cost
	}

	return response
}

func (s *RunsService) setRunStatus(ctx context.Context, run *EvalRun, status RunStatus) {
	run.Status = status
	run.UpdatedAt = time.Now()
	if err := s.store.UpdateRun(ctx, run); err != nil {
		s.logger.ErrorContext(ctx, "failed to update run status",
			"run_id", run.ID,
			"status", string(status),
			"error", err)
	}
}

// GetRun retrieves a run by ID.
func (s *RunsService) GetRun(ctx context.Context, id string) (*EvalRun, error) {
	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("%w: run %s", evals.ErrNotFound, id)
	}
	return run, nil
}

// ListRuns returns runs for an eval, or all runs when evalID is empty.
func (s *RunsService) ListRuns(ctx context.Context, evalID string) ([]*EvalRun, error) {
	runs, err := s.store.ListRuns(ctx, evalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetRunStatus returns the run's pollable status. Results pass through the
// cache so tight polling loops stay cheap; progress is computed from
// persisted responses against the cell count captured at run creation.
func (s *RunsService) GetRunStatus(ctx context.Context, runID string) (*RunStatusView, error) {
	cacheKey := "run_status:" + runID
	if s.cache != nil {
		var cached RunStatusView
		if err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && cached.RunID != "" {
			return &cached, nil
		}
	}

	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	responses, err := s.store.ListResponses(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}

	view := &RunStatusView{
		RunID:    run.ID,
		EvalID:   run.EvalID,
		Status:   run.Status,
		Progress: computeProgress(run, responses),
	}

	if s.cache != nil {
		ttl := statusCacheRunningTTL
		if run.Status == RunStatusCompleted || run.Status == RunStatusFailed {
			ttl = statusCacheTerminalTTL
		}
		if err := s.cache.Set(ctx, cacheKey, view, ttl); err != nil {
			s.logger.WarnContext(ctx, "failed to cache run status", "run_id", runID, "error", err)
		}
	}

	return view, nil
}

func computeProgress(run *EvalRun, responses []*Response) Progress {
	progress := Progress{
		TotalQuestions: run.TotalQuestions,
		TotalResponses: len(responses),
	}
	for _, r := range responses {
		if r.Succeeded() {
			progress.SuccessfulResponses++
		} else {
			progress.FailedResponses++
		}
	}
	if run.TotalCells > 0 {
		progress.Percentage = float64(len(responses)) / float64(run.TotalCells) * 100
	}
	return progress
}

// GetRunResults returns the run's responses with their scores. For each
// response the manual score is authoritative when present, otherwise the
// most recent llm score.
func (s *RunsService) GetRunResults(ctx context.Context, runID string) (*RunResults, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	eval, err := s.evals.GetEval(ctx, run.EvalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get eval: %w", err)
	}

	responses, err := s.store.ListResponses(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}

	scores, err := s.store.ListScoresByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}

	scoresByResponse := make(map[string][]*Score)
	for _, sc := range scores {
		scoresByResponse[sc.ResponseID] = append(scoresByResponse[sc.ResponseID], sc)
	}

	results := &RunResults{
		Run:       run,
		EvalID:    eval.ID,
		EvalName:  eval.Name,
		Responses: make([]*ResponseResult, 0, len(responses)),
	}
	for _, r := range responses {
		attached := scoresByResponse[r.ID]
		results.Responses = append(results.Responses, &ResponseResult{
			Response:     r,
			CurrentScore: currentScore(attached),
			Scores:       attached,
		})
	}

	return results, nil
}

// currentScore picks the authoritative score: manual wins, otherwise the
// most recent successful llm score.
func currentScore(scores []*Score) *Score {
	var latestLLM *Score
	for _, sc := range scores {
		if sc.ScorerType == ScorerTypeManual {
			return sc
		}
		if sc.Error != "" {
			continue
		}
		if latestLLM == nil || sc.CreatedAt.After(latestLLM.CreatedAt) {
			latestLLM = sc
		}
	}
	return latestLLM
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
