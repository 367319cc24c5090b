package evals

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store defines the interface for eval storage.
type Store interface {
	// CreateEval creates a new eval.
	CreateEval(ctx context.Context, eval *Eval) error

	// GetEval retrieves an eval by ID. Returns nil if not found.
	GetEval(ctx context.Context, id string) (*Eval, error)

	// UpdateEval updates an eval.
	UpdateEval(ctx context.Context, eval *Eval) error

	// DeleteEval removes an eval and its questions.
	DeleteEval(ctx context.Context, id string) error

	// ListEvals returns all evals ordered by creation time.
	ListEvals(ctx context.Context) ([]*Eval, error)

	// CreateQuestion adds a question to an eval.
	CreateQuestion(ctx context.Context, question *Question) error

	// GetQuestion retrieves a question by ID. Returns nil if not found.
	GetQuestion(ctx context.Context, id string) (*Question, error)

	// UpdateQuestion updates a question.
	UpdateQuestion(ctx context.Context, question *Question) error

	// ListQuestions returns an eval's questions ordered by creation time.
	ListQuestions(ctx context.Context, evalID string) ([]*Question, error)

	// CreateJudgment persists a judgment.
	CreateJudgment(ctx context.Context, judgment *Judgment) error

	// ListJudgments returns all judgments for an eval's questions ordered
	// by creation time.
	ListJudgments(ctx context.Context, evalID string) ([]*Judgment, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu        sync.RWMutex
	evals     map[string]*Eval
	questions map[string]*Question
	judgments map[string]*Judgment
}

// NewMemoryStore creates a new in-memory eval store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		evals:     make(map[string]*Eval),
		questions: make(map[string]*Question),
		judgments: make(map[string]*Judgment),
	}
}

// CreateEval creates a new eval.
func (s *MemoryStore) CreateEval(ctx context.Context, eval *Eval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.evals[eval.ID]; exists {
		return fmt.Errorf("eval already exists: %s", eval.ID)
	}

	copy := *eval
	s.evals[eval.ID] = &copy
	return nil
}

// GetEval retrieves an eval by ID.
func (s *MemoryStore) GetEval(ctx context.Context, id string) (*Eval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eval, ok := s.evals[id]
	if !ok {
		return nil, nil
	}

	copy := *eval
	return &copy, nil
}

// UpdateEval updates an eval.
func (s *MemoryStore) UpdateEval(ctx context.Context, eval *Eval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.evals[eval.ID]; !exists {
		return fmt.Errorf("eval not found: %s", eval.ID)
	}

	copy := *eval
	s.evals[eval.ID] = &copy
	return nil
}

// DeleteEval removes an eval and its questions.
func (s *MemoryStore) DeleteEval(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.evals[id]; !exists {
		return fmt.Errorf("eval not found: %s", id)
	}

	delete(s.evals, id)
	for qid, q := range s.questions {
		if q.EvalID == id {
			delete(s.questions, qid)
		}
	}
	return nil
}

// ListEvals returns all evals ordered by creation time.
func (s *MemoryStore) ListEvals(ctx context.Context) ([]*Eval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evals := make([]*Eval, 0, len(s.evals))
	for _, e := range s.evals {
		copy := *e
		evals = append(evals, &copy)
	}

	sort.Slice(evals, func(i, j int) bool {
		return evals[i].CreatedAt.Before(evals[j].CreatedAt)
	})

	return evals, nil
}

// CreateQuestion adds a question to an eval.
func (s *MemoryStore) CreateQuestion(ctx context.Context, question *Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.questions[question.ID]; exists {
		return fmt.Errorf("question already exists: %s", question.ID)
	}

	copy := *question
	s.questions[question.ID] = &copy
	return nil
}

// GetQuestion retrieves a question by ID.
func (s *MemoryStore) GetQuestion(ctx context.Context, id string) (*Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	question, ok := s.questions[id]
	if !ok {
		return nil, nil
	}

	copy := *question
	return &copy, nil
}

// UpdateQuestion updates a question.
func (s *MemoryStore) UpdateQuestion(ctx context.Context, question *Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.questions[question.ID]; !exists {
		return fmt.Errorf("question not found: %s", question.ID)
	}

	copy := *question
	s.questions[question.ID] = &copy
	return nil
}

// ListQuestions returns an eval's questions ordered by creation time.
func (s *MemoryStore) ListQuestions(ctx context.Context, evalID string) ([]*Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var questions []*Question
	for _, q := range s.questions {
		if q.EvalID == evalID {
			copy := *q
			questions = append(questions, &copy)
		}
	}

	sort.Slice(questions, func(i, j int) bool {
		if questions[i].CreatedAt.Equal(questions[j].CreatedAt) {
			return questions[i].ID < questions[j].ID
		}
		return questions[i].CreatedAt.Before(questions[j].CreatedAt)
	})

	return questions, nil
}

// CreateJudgment persists a judgment.
func (s *MemoryStore) CreateJudgment(ctx context.Context, judgment *Judgment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.judgments[judgment.ID]; exists {
		return fmt.Errorf("judgment already exists: %s", judgment.ID)
	}

	copy := *judgment
	s.judgments[judgment.ID] = &copy
	return nil
}

// ListJudgments returns all judgments for an eval's questions.
func (s *MemoryStore) ListJudgments(ctx context.Context, evalID string) ([]*Judgment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	questionIDs := make(map[string]bool)
	for _, q := range s.questions {
		if q.EvalID == evalID {
			questionIDs[q.ID] = true
		}
	}

	var judgments []*Judgment
	for _, j := range s.judgments {
		if questionIDs[j.QuestionID] {
			copy := *j
			judgments = append(judgments, &copy)
		}
	}

	sort.Slice(judgments, func(i, j int) bool {
		if judgments[i].CreatedAt.Equal(judgments[j].CreatedAt) {
			return judgments[i].ID < judgments[j].ID
		}
		return judgments[i].CreatedAt.Before(judgments[j].CreatedAt)
	})

	return judgments, nil
}
