// Package handlers provides HTTP handlers for settings management.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/settings"
)

// Handler provides HTTP handlers for settings endpoints.
type Handler struct {
	repo *settings.Repository
	base domain.AllocationSettings
	log  zerolog.Logger
}

// NewHandler creates a new settings handler. base is the allocation the
// service started with; updates are validated on top of it.
func NewHandler(repo *settings.Repository, base domain.AllocationSettings, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		base: base,
		log:  log.With().Str("handler", "settings").Logger(),
	}
}

// RegisterRoutes mounts the settings routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/settings", func(r chi.Router) {
		r.Get("/", h.HandleGetAll)
		r.Put("/{key}", h.HandleUpdate)
	})
}

// HandleGetAll handles GET /api/settings
func (h *Handler) HandleGetAll(w http.ResponseWriter, r *http.Request) {
	all, err := h.repo.GetAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get all settings")
		http.Error(w, "Failed to get settings", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, all)
}

// HandleUpdate handles PUT /api/settings/{key}
// Allocation keys are validated as a whole; the change applies on next start.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		http.Error(w, "Key is required", http.StatusBadRequest)
		return
	}

	var update settings.SettingUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	value, err := update.String()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	all, err := h.repo.GetAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load settings")
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}
	all[key] = value

	candidate, err := settings.AllocationFrom(h.base, all)
	if err == nil {
		err = candidate.Validate()
	}
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.repo.Set(key, value, nil); err != nil {
		h.log.Error().
			Err(err).
			Str("key", key).
			Msg("Failed to update setting")
		http.Error(w, "Failed to update setting", http.StatusInternalServerError)
		return
	}

	h.log.Info().Str("key", key).Str("value", value).Msg("Setting updated, effective on next start")
	writeJSON(w, http.StatusOK, map[string]string{key: value})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
