package runs

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store defines the interface for run, response, and score storage.
type Store interface {
	// CreateRun persists a new run.
	CreateRun(ctx context.Context, run *EvalRun) error

	// GetRun retrieves a run by ID. Returns nil if not found.
	GetRun(ctx context.Context, id string) (*EvalRun, error)

	// UpdateRun updates a run's mutable fields.
	UpdateRun(ctx context.Context, run *EvalRun) error

	// ListRuns returns runs for an eval ordered by creation time, or all
	// runs when evalID is empty.
	ListRuns(ctx context.Context, evalID string) ([]*EvalRun, error)

	// CreateResponse persists a cell outcome.
	CreateResponse(ctx context.Context, response *Response) error

	// GetResponse retrieves a response by ID. Returns nil if not found.
	GetResponse(ctx context.Context, id string) (*Response, error)

	// ListResponses returns a run's responses ordered by creation time.
	ListResponses(ctx context.Context, runID string) ([]*Response, error)

	// CreateScore persists a score.
	CreateScore(ctx context.Context, score *Score) error

	// UpsertManualScore writes the single manual-lane score for a response
	// atomically, inserting the row or updating it in place. Returns the
	// stored score.
	UpsertManualScore(ctx context.Context, score *Score) (*Score, error)

	// GetManualScore returns the manual score for a response, or nil if
	// none exists.
	GetManualScore(ctx context.Context, responseID string) (*Score, error)

	// ListScoresByRunID returns all scores attached to a run's responses
	// ordered by creation time.
	ListScoresByRunID(ctx context.Context, runID string) ([]*Score, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu        sync.RWMutex
	runs      map[string]*EvalRun
	responses map[string]*Response
	scores    map[string]*Score
}

// NewMemoryStore creates a new in-memory run store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:      make(map[string]*EvalRun),
		responses: make(map[string]*Response),
		scores:    make(map[string]*Score),
	}
}

// CreateRun persists a new run.
func (s *MemoryStore) CreateRun(ctx context.Context, run *EvalRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run already exists: %s", run.ID)
	}

	copy := *run
	s.runs[run.ID] = &copy
	return nil
}

// GetRun retrieves a run by ID.
func (s *MemoryStore) GetRun(ctx context.Context, id string) (*EvalRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, nil
	}

	copy := *run
	return &copy, nil
}

// UpdateRun updates a run.
func (s *MemoryStore) UpdateRun(ctx context.Context, run *EvalRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		return fmt.Errorf("run not found: %s", run.ID)
	}

	copy := *run
	s.runs[run.ID] = &copy
	return nil
}

// ListRuns returns runs ordered by creation time.
func (s *MemoryStore) ListRuns(ctx context.Context, evalID string) ([]*EvalRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*EvalRun
	for _, r := range s.runs {
		if evalID != "" && r.EvalID != evalID {
			continue
		}
		copy := *r
		runs = append(runs, &copy)
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})

	return runs, nil
}

// CreateResponse persists a cell outcome.
func (s *MemoryStore) CreateResponse(ctx context.Context, response *Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.responses[response.ID]; exists {
		return fmt.Errorf("response already exists: %s", response.ID)
	}

	copy := *response
	s.responses[response.ID] = &copy
	return nil
}

// GetResponse retrieves a response by ID.
func (s *MemoryStore) GetResponse(ctx context.Context, id string) (*Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	response, ok := s.responses[id]
	if !ok {
		return nil, nil
	}

	copy := *response
	return &copy, nil
}

// ListResponses returns a run's responses ordered by creation time.
func (s *MemoryStore) ListResponses(ctx context.Context, runID string) ([]*Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var responses []*Response
	for _, r := range s.responses {
		if r.EvalRunID == runID {
			copy := *r
			responses = append(responses, &copy)
		}
	}

	sort.Slice(responses, func(i, j int) bool {
		if responses[i].CreatedAt.Equal(responses[j].CreatedAt) {
			return responses[i].ID < responses[j].ID
		}
		return responses[i].CreatedAt.Before(responses[j].CreatedAt)
	})

	return responses, nil
}

// CreateScore persists a score.
func (s *MemoryStore) CreateScore(ctx context.Context, score *Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.scores[score.ID]; exists {
		return fmt.Errorf("score already exists: %s", score.ID)
	}

	copy := *score
	s.scores[score.ID] = &copy
	return nil
}

// UpsertManualScore writes the manual-lane score for a response under a
// single lock acquisition so concurrent writers cannot both insert.
func (s *MemoryStore) UpsertManualScore(ctx context.Context, score *Score) (*Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.scores {
		if existing.ResponseID == score.ResponseID && existing.ScorerType == ScorerTypeManual {
			existing.ScoreValue = score.ScoreValue
			existing.Justification = score.Justification
			copy := *existing
			return &copy, nil
		}
	}

	copy := *score
	s.scores[score.ID] = &copy
	stored := *score
	return &stored, nil
}

// GetManualScore returns the manual score for a response, or nil.
func (s *MemoryStore) GetManualScore(ctx context.Context, responseID string) (*Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sc := range s.scores {
		if sc.ResponseID == responseID && sc.ScorerType == ScorerTypeManual {
			copy := *sc
			return &copy, nil
		}
	}
	return nil, nil
}

// ListScoresByRunID returns all scores attached to a run's responses.
func (s *MemoryStore) ListScoresByRunID(ctx context.Context, runID string) ([]*Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	responseIDs := make(map[string]bool)
	for _, r := range s.responses {
		if r.EvalRunID == runID {
			responseIDs[r.ID] = true
		}
	}

	var scores []*Score
	for _, sc := range s.scores {
		if responseIDs[sc.ResponseID] {
			copy := *sc
			scores = append(scores, &copy)
		}
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].CreatedAt.Equal(scores[j].CreatedAt) {
			return scores[i].ID < scores[j].ID
		}
		return scores[i].CreatedAt.Before(scores[j].CreatedAt)
	})

	return scores, nil
}
