package models

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store defines the interface for model registry storage.
type Store interface {
	// CreateModel registers a new model configuration.
	CreateModel(ctx context.Context, model *ModelConfig) error

	// GetModel retrieves a model configuration by ID. Returns nil if not
	// found.
	GetModel(ctx context.Context, id string) (*ModelConfig, error)

	// UpdateModel updates a model configuration.
	UpdateModel(ctx context.Context, model *ModelConfig) error

	// DeleteModel removes a model configuration.
	DeleteModel(ctx context.Context, id string) error

	// ListModels returns all model configurations ordered by name.
	ListModels(ctx context.Context) ([]*ModelConfig, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu     sync.RWMutex
	models map[string]*ModelConfig
}

// NewMemoryStore creates a new in-memory model store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		models: make(map[string]*ModelConfig),
	}
}

// CreateModel registers a new model configuration.
func (s *MemoryStore) CreateModel(ctx context.Context, model *ModelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.models[model.ID]; exists {
		return fmt.Errorf("model already exists: %s", model.ID)
	}

	copy := *model
	s.models[model.ID] = &copy
	return nil
}

// GetModel retrieves a model configuration by ID.
func (s *MemoryStore) GetModel(ctx context.Context, id string) (*ModelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	model, ok := s.models[id]
	if !ok {
		return nil, nil
	}

	copy := *model
	return &copy, nil
}

// UpdateModel updates a model configuration.
func (s *MemoryStore) UpdateModel(ctx context.Context, model *ModelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.models[model.ID]; !exists {
		return fmt.Errorf("model not found: %s", model.ID)
	}

	copy := *model
	s.models[model.ID] = &copy
	return nil
}

// DeleteModel removes a model configuration.
func (s *MemoryStore) DeleteModel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.models[id]; !exists {
		return fmt.Errorf("model not found: %s", id)
	}

	delete(s.models, id)
	return nil
}

// ListModels returns all model configurations ordered by name.
func (s *MemoryStore) ListModels(ctx context.Context) ([]*ModelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	models := make([]*ModelConfig, 0, len(s.models))
	for _, m := range s.models {
		copy := *m
		models = append(models, &copy)
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].Name < models[j].Name
	})

	return models, nil
}
