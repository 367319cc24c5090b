package models

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/instantcocoa/minos/pkg/database"
)

// PostgresStore is a PostgreSQL implementation of Store.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new PostgreSQL model store.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateModel registers a new model configuration.
func (s *PostgresStore) CreateModel(ctx context.Context, model *ModelConfig) error {
	query := `
		INSERT INTO models (id, name, endpoint, api_key_ref, input_token_cost, output_token_cost, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		model.ID, model.Name, model.Endpoint, model.APIKeyRef,
		model.InputTokenCost, model.OutputTokenCost,
		model.CreatedAt, model.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert model: %w", err)
	}
	return nil
}

// GetModel retrieves a model configuration by ID.
func (s *PostgresStore) GetModel(ctx context.Context, id string) (*ModelConfig, error) {
	query := `
		SELECT id, name, endpoint, api_key_ref, input_token_cost, output_token_cost, created_at, updated_at
		FROM models
		WHERE id = $1
	`
	model, err := scanModel(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query model: %w", err)
	}
	return model, nil
}

// UpdateModel updates a model configuration.
func (s *PostgresStore) UpdateModel(ctx context.Context, model *ModelConfig) error {
	query := `
		UPDATE models
		SET name = $2, endpoint = $3, api_key_ref = $4, input_token_cost = $5, output_token_cost = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		model.ID, model.Name, model.Endpoint, model.APIKeyRef,
		model.InputTokenCost, model.OutputTokenCost, model.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update model: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("model not found: %s", model.ID)
	}
	return nil
}

// DeleteModel removes a model configuration.
func (s *PostgresStore) DeleteModel(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("model not found: %s", id)
	}
	return nil
}

// ListModels returns all model configurations ordered by name.
func (s *PostgresStore) ListModels(ctx context.Context) ([]*ModelConfig, error) {
	query := `
		SELECT id, name, endpoint, api_key_ref, input_token_cost, output_token_cost, created_at, updated_at
		FROM models
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}
	defer rows.Close()

	var models []*ModelConfig
	for rows.Next() {
		model, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		models = append(models, model)
	}

	return models, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanModel(row rowScanner) (*ModelConfig, error) {
	var model ModelConfig
	err := row.Scan(
		&model.ID, &model.Name, &model.Endpoint, &model.APIKeyRef,
		&model.InputTokenCost, &model.OutputTokenCost,
		&model.CreatedAt, &model.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &model, nil
}
