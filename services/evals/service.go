package evals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/instantcocoa/minos/pkg/llm"
	"github.com/instantcocoa/minos/services/models"
)

// ErrNotFound is returned when an eval or question does not exist.
var ErrNotFound = errors.New("not found")

// ModelResolver resolves model IDs to invocable endpoints. Implemented by
// the models service.
type ModelResolver interface {
	ResolveModel(ctx context.Context, id string) (*models.ResolvedModel, error)
}

// Invoker performs a single LLM completion call. Implemented by llm.Client.
type Invoker interface {
	Invoke(ctx context.Context, inv llm.Invocation) (*llm.Result, error)
}

// EvalsService handles eval and question business logic, LLM question
// generation, and question-quality judging.
type EvalsService struct {
	store         Store
	models        ModelResolver
	llm           Invoker
	logger        *slog.Logger
	concurrency   int
	invokeTimeout time.Duration
}

// NewEvalsService creates a new evals service. Concurrency bounds the
// judging fan-out; invokeTimeout caps each judge or generator call.
func NewEvalsService(store Store, resolver ModelResolver, invoker Invoker, logger *slog.Logger, concurrency int, invokeTimeout time.Duration) *EvalsService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &EvalsService{
		store:         store,
		models:        resolver,
		llm:           invoker,
		logger:        logger.With("component", "evals_service"),
		concurrency:   concurrency,
		invokeTimeout: invokeTimeout,
	}
}

// CreateEval creates a new eval.
func (s *EvalsService) CreateEval(ctx context.Context, input CreateEvalInput) (*Eval, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("eval name is required")
	}

	now := time.Now()
	eval := &Eval{
		ID:               uuid.New().String(),
		Name:             input.Name,
		Description:      input.Description,
		GenerationPrompt: input.GenerationPrompt,
		GeneratorModelID: input.GeneratorModelID,
		Difficulty:       input.Difficulty,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.store.CreateEval(ctx, eval); err != nil {
		return nil, fmt.Errorf("failed to create eval: %w", err)
	}

	return eval, nil
}

// GetEval retrieves an eval by ID.
func (s *EvalsService) GetEval(ctx context.Context, id string) (*Eval, error) {
	eval, err := s.store.GetEval(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get eval: %w", err)
	}
	if eval == nil {
		return nil, fmt.Errorf("%w: eval %s", ErrNotFound, id)
	}
	return eval, nil
}

// ListEvals returns all evals.
func (s *EvalsService) ListEvals(ctx context.Context) ([]*Eval, error) {
	evals, err := s.store.ListEvals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list evals: %w", err)
	}
	return evals, nil
}

// DeleteEval removes an eval and its questions.
func (s *EvalsService) DeleteEval(ctx context.Context, id string) error {
	if err := s.store.DeleteEval(ctx, id); err != nil {
		return fmt.Errorf("failed to delete eval: %w", err)
	}
	return nil
}

// AddQuestion appends a question to an eval.
func (s *EvalsService) AddQuestion(ctx context.Context, input AddQuestionInput) (*Question, error) {
	if input.Text == "" {
		return nil, fmt.Errorf("question text is required")
	}

	eval, err := s.store.GetEval(ctx, input.EvalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get eval: %w", err)
	}
	if eval == nil {
		return nil, fmt.Errorf("%w: eval %s", ErrNotFound, input.EvalID)
	}

	now := time.Now()
	question := &Question{
		ID:        uuid.New().String(),
		EvalID:    input.EvalID,
		Text:      input.Text,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateQuestion(ctx, question); err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	return question, nil
}

// UpdateQuestion edits a question's text and bumps its version.
func (s *EvalsService) UpdateQuestion(ctx context.Context, input UpdateQuestionInput) (*Question, error) {
	if input.Text == "" {
		return nil, fmt.Errorf("question text is required")
	}

	question, err := s.store.GetQuestion(ctx, input.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	if question == nil || question.EvalID != input.EvalID {
		return nil, fmt.Errorf("%w: question %s", ErrNotFound, input.QuestionID)
	}

	question.Text = input.Text
	question.Version++
	question.UpdatedAt = time.Now()

	if err := s.store.UpdateQuestion(ctx, question); err != nil {
		return nil, fmt.Errorf("failed to update question: %w", err)
	}

	return question, nil
}

// GetQuestions returns an eval's questions in creation order.
func (s *EvalsService) GetQuestions(ctx context.Context, evalID string) ([]*Question, error) {
	eval, err := s.store.GetEval(ctx, evalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get eval: %w", err)
	}
	if eval == nil {
		return nil, fmt.Errorf("%w: eval %s", ErrNotFound, evalID)
	}

	questions, err := s.store.ListQuestions(ctx, evalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return questions, nil
}

// JudgmentsByQuestion groups an eval's judgments by question ID.
type JudgmentsByQuestion map[string][]*Judgment

// GetJudgments returns all judgments for an eval grouped by question.
func (s *EvalsService) GetJudgments(ctx context.Context, evalID string) (JudgmentsByQuestion, error) {
	eval, err := s.store.GetEval(ctx, evalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get eval: %w", err)
	}
	if eval == nil {
		return nil, fmt.Errorf("%w: eval %s", ErrNotFound, evalID)
	}

	judgments, err := s.store.ListJudgments(ctx, evalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list judgments: %w", err)
	}

	grouped := make(JudgmentsByQuestion)
	for _, j := range judgments {
		grouped[j.QuestionID] = append(grouped[j.QuestionID], j)
	}
	return grouped, nil
}
