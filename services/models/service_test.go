package models

import (
	"context"
	"errors"
	"testing"
)

func newTestService() *ModelsService {
	secrets := StaticSecretSource{
		"openai-key": "sk-test-123",
	}
	return NewModelsService(NewMemoryStore(), secrets)
}

func TestCreateModel(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	model, err := svc.CreateModel(ctx, CreateModelInput{
		Name:            "gpt-test",
		Endpoint:        "https://api.example.com/v1",
		APIKeyRef:       "openai-key",
		InputTokenCost:  floatPtr(0.00001),
		OutputTokenCost: floatPtr(0.00003),
	})
	if err != nil {
		t.Fatalf("CreateModel failed: %v", err)
	}
	if model.ID == "" {
		t.Error("expected generated ID")
	}
	if model.CreatedAt.IsZero() || model.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}

	got, err := svc.GetModel(ctx, model.ID)
	if err != nil {
		t.Fatalf("GetModel failed: %v", err)
	}
	if got.Name != "gpt-test" {
		t.Errorf("expected name gpt-test, got %s", got.Name)
	}
}

func TestCreateModelValidation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateModel(ctx, CreateModelInput{Endpoint: "e"}); err == nil {
		t.Error("expected error for missing name")
	}
	if _, err := svc.CreateModel(ctx, CreateModelInput{Name: "n"}); err == nil {
		t.Error("expected error for missing endpoint")
	}
}

func TestGetModelNotFound(t *testing.T) {
	svc := newTestService()

	_, err := svc.GetModel(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateModel(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	model, err := svc.CreateModel(ctx, CreateModelInput{Name: "old", Endpoint: "e1"})
	if err != nil {
		t.Fatalf("CreateModel failed: %v", err)
	}

	updated, err := svc.UpdateModel(ctx, UpdateModelInput{
		ID:       model.ID,
		Name:     "new",
		Endpoint: "e2",
	})
	if err != nil {
		t.Fatalf("UpdateModel failed: %v", err)
	}
	if updated.Name != "new" || updated.Endpoint != "e2" {
		t.Errorf("unexpected update result: %+v", updated)
	}
	if !updated.UpdatedAt.After(model.CreatedAt) && !updated.UpdatedAt.Equal(model.CreatedAt) {
		t.Error("expected UpdatedAt to advance")
	}
}

func TestUpdateModelNotFound(t *testing.T) {
	svc := newTestService()

	_, err := svc.UpdateModel(context.Background(), UpdateModelInput{ID: "missing", Name: "n", Endpoint: "e"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveModel(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	model, err := svc.CreateModel(ctx, CreateModelInput{
		Name:            "gpt-test",
		Endpoint:        "https://api.example.com/v1",
		APIKeyRef:       "openai-key",
		InputTokenCost:  floatPtr(0.00001),
		OutputTokenCost: floatPtr(0.00003),
	})
	if err != nil {
		t.Fatalf("CreateModel failed: %v", err)
	}

	resolved, err := svc.ResolveModel(ctx, model.ID)
	if err != nil {
		t.Fatalf("ResolveModel failed: %v", err)
	}
	if resolved.APIKey != "sk-test-123" {
		t.Errorf("expected resolved key, got %q", resolved.APIKey)
	}
	if resolved.Endpoint != model.Endpoint {
		t.Errorf("expected endpoint %s, got %s", model.Endpoint, resolved.Endpoint)
	}
	if resolved.InputTokenCost == nil || *resolved.InputTokenCost != 0.00001 {
		t.Error("expected pricing to carry through")
	}
}

func TestResolveModelNoKeyRef(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	model, err := svc.CreateModel(ctx, CreateModelInput{Name: "local", Endpoint: "http://localhost:8080"})
	if err != nil {
		t.Fatalf("CreateModel failed: %v", err)
	}

	resolved, err := svc.ResolveModel(ctx, model.ID)
	if err != nil {
		t.Fatalf("ResolveModel failed: %v", err)
	}
	if resolved.APIKey != "" {
		t.Errorf("expected empty key, got %q", resolved.APIKey)
	}
}

func TestResolveModelMissingSecret(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	model, err := svc.CreateModel(ctx, CreateModelInput{
		Name:      "gpt-test",
		Endpoint:  "e",
		APIKeyRef: "unknown-ref",
	})
	if err != nil {
		t.Fatalf("CreateModel failed: %v", err)
	}

	if _, err := svc.ResolveModel(ctx, model.ID); err == nil {
		t.Error("expected error for unresolvable secret")
	}
}

func TestDeleteModel(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	model, err := svc.CreateModel(ctx, CreateModelInput{Name: "n", Endpoint: "e"})
	if err != nil {
		t.Fatalf("CreateModel failed: %v", err)
	}

	if err := svc.DeleteModel(ctx, model.ID); err != nil {
		t.Fatalf("DeleteModel failed: %v", err)
	}

	_, err = svc.GetModel(ctx, model.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
