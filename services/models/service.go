package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a model does not exist.
var ErrNotFound = errors.New("model not found")

// SecretSource resolves credential references to API keys. It is passed in
// at construction so the core never reaches into the environment on its own.
type SecretSource interface {
	Secret(ref string) (string, error)
}

// StaticSecretSource resolves secrets from a fixed map.
type StaticSecretSource map[string]string

// Secret returns the secret for ref, or an error if it is not present.
func (s StaticSecretSource) Secret(ref string) (string, error) {
	key, ok := s[ref]
	if !ok {
		return "", fmt.Errorf("secret not found: %s", ref)
	}
	return key, nil
}

// ModelsService handles model registry business logic.
type ModelsService struct {
	store   Store
	secrets SecretSource
}

// NewModelsService creates a new models service.
func NewModelsService(store Store, secrets SecretSource) *ModelsService {
	return &ModelsService{
		store:   store,
		secrets: secrets,
	}
}

// CreateModel registers a new model configuration.
func (s *ModelsService) CreateModel(ctx context.Context, input CreateModelInput) (*ModelConfig, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if input.Endpoint == "" {
		return nil, fmt.Errorf("model endpoint is required")
	}

	now := time.Now()
	model := &ModelConfig{
		ID:              uuid.New().String(),
		Name:            input.Name,
		Endpoint:        input.Endpoint,
		APIKeyRef:       input.APIKeyRef,
		InputTokenCost:  input.InputTokenCost,
		OutputTokenCost: input.OutputTokenCost,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.CreateModel(ctx, model); err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	return model, nil
}

// GetModel retrieves a model configuration by ID.
func (s *ModelsService) GetModel(ctx context.Context, id string) (*ModelConfig, error) {
	model, err := s.store.GetModel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	if model == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return model, nil
}

// UpdateModel updates a model configuration.
func (s *ModelsService) UpdateModel(ctx context.Context, input UpdateModelInput) (*ModelConfig, error) {
	existing, err := s.store.GetModel(ctx, input.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, input.ID)
	}

	existing.Name = input.Name
	existing.Endpoint = input.Endpoint
	existing.APIKeyRef = input.APIKeyRef
	existing.InputTokenCost = input.InputTokenCost
	existing.OutputTokenCost = input.OutputTokenCost
	existing.UpdatedAt = time.Now()

	if err := s.store.UpdateModel(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update model: %w", err)
	}

	return existing, nil
}

// DeleteModel removes a model configuration.
func (s *ModelsService) DeleteModel(ctx context.Context, id string) error {
	if err := s.store.DeleteModel(ctx, id); err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	return nil
}

// ListModels returns all model configurations.
func (s *ModelsService) ListModels(ctx context.Context) ([]*ModelConfig, error) {
	models, err := s.store.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return models, nil
}

// ResolveModel resolves a model ID to an invocable endpoint with its API
// key and pricing. Credentials are resolved through the SecretSource at
// call time so key rotation does not require re-registering models.
func (s *ModelsService) ResolveModel(ctx context.Context, id string) (*ResolvedModel, error) {
	model, err := s.store.GetModel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	if model == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	apiKey := ""
	if model.APIKeyRef != "" {
		apiKey, err = s.secrets.Secret(model.APIKeyRef)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve credentials for model %s: %w", id, err)
		}
	}

	return &ResolvedModel{
		ID:              model.ID,
		Name:            model.Name,
		Endpoint:        model.Endpoint,
		APIKey:          apiKey,
		InputTokenCost:  model.InputTokenCost,
		OutputTokenCost: model.OutputTokenCost,
	}, nil
}
