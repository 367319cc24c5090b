package models

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/instantcocoa/minos/pkg/httpapi"
)

// Handler exposes the model registry over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *ModelsService
}

// NewHandler creates a new models handler.
func NewHandler(logger *slog.Logger, svc *ModelsService) *Handler {
	return &Handler{
		logger:  logger.With("component", "models_handler"),
		service: svc,
	}
}

// Register registers the handler's routes.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/v1/models", h.CreateModel).Methods("POST")
	r.HandleFunc("/v1/models", h.ListModels).Methods("GET")
	r.HandleFunc("/v1/models/{id}", h.GetModel).Methods("GET")
	r.HandleFunc("/v1/models/{id}", h.UpdateModel).Methods("PUT")
	r.HandleFunc("/v1/models/{id}", h.DeleteModel).Methods("DELETE")
}

// modelJSON is the wire representation of a ModelConfig. The resolved API
// key never appears here; only the reference does.
type modelJSON struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Endpoint        string   `json:"endpoint"`
	APIKeyRef       string   `json:"api_key_ref,omitempty"`
	InputTokenCost  *float64 `json:"input_token_cost,omitempty"`
	OutputTokenCost *float64 `json:"output_token_cost,omitempty"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

func modelToJSON(m *ModelConfig) modelJSON {
	return modelJSON{
		ID:              m.ID,
		Name:            m.Name,
		Endpoint:        m.Endpoint,
		APIKeyRef:       m.APIKeyRef,
		InputTokenCost:  m.InputTokenCost,
		OutputTokenCost: m.OutputTokenCost,
		CreatedAt:       m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       m.UpdatedAt.Format(time.RFC3339),
	}
}

type modelRequest struct {
	Name            string   `json:"name"`
	Endpoint        string   `json:"endpoint"`
	APIKeyRef       string   `json:"api_key_ref"`
	InputTokenCost  *float64 `json:"input_token_cost"`
	OutputTokenCost *float64 `json:"output_token_cost"`
}

// CreateModel registers a new model configuration.
func (h *Handler) CreateModel(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" || req.Endpoint == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "name and endpoint are required")
		return
	}

	model, err := h.service.CreateModel(r.Context(), CreateModelInput{
		Name:            req.Name,
		Endpoint:        req.Endpoint,
		APIKeyRef:       req.APIKeyRef,
		InputTokenCost:  req.InputTokenCost,
		OutputTokenCost: req.OutputTokenCost,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create model", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to create model")
		return
	}

	httpapi.WriteJSON(w, http.StatusCreated, modelToJSON(model))
}

// GetModel retrieves a model configuration.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	model, err := h.service.GetModel(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "model not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to get model", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to get model")
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, modelToJSON(model))
}

// ListModels returns all model configurations.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.service.ListModels(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list models", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to list models")
		return
	}

	out := make([]modelJSON, len(models))
	for i, m := range models {
		out[i] = modelToJSON(m)
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"models": out})
}

// UpdateModel updates a model configuration.
func (h *Handler) UpdateModel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req modelRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	model, err := h.service.UpdateModel(r.Context(), UpdateModelInput{
		ID:              id,
		Name:            req.Name,
		Endpoint:        req.Endpoint,
		APIKeyRef:       req.APIKeyRef,
		InputTokenCost:  req.InputTokenCost,
		OutputTokenCost: req.OutputTokenCost,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "model not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to update model", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to update model")
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, modelToJSON(model))
}

// DeleteModel removes a model configuration.
func (h *Handler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.service.DeleteModel(r.Context(), id); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to delete model", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to delete model")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
