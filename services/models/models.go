// Package models provides the model registry: LLM endpoint configurations
// with credential references and token pricing.
package models

import (
	"time"
)

// ModelConfig represents a configured LLM endpoint. Prices are USD per
// token; a nil price means pricing is not configured for that direction,
// which surfaces as a pricing-unavailable condition at run time rather
// than a silent zero cost.
type ModelConfig struct {
	ID        string
	Name      string
	Endpoint  string
	APIKeyRef string

	InputTokenCost  *float64
	OutputTokenCost *float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResolvedModel is a ModelConfig with its credential reference resolved to
// an actual API key, ready to be handed to the invocation client.
type ResolvedModel struct {
	ID       string
	Name     string
	Endpoint string
	APIKey   string

	InputTokenCost  *float64
	OutputTokenCost *float64
}

// CreateModelInput contains input for registering a model.
type CreateModelInput struct {
	Name            string
	Endpoint        string
	APIKeyRef       string
	InputTokenCost  *float64
	OutputTokenCost *float64
}

// UpdateModelInput contains input for updating a model configuration.
// Responses keep their computed cost, so a price change here never
// rewrites history.
type UpdateModelInput struct {
	ID              string
	Name            string
	Endpoint        string
	APIKeyRef       string
	InputTokenCost  *float64
	OutputTokenCost *float64
}
