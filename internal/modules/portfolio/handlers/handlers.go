// Package handlers provides HTTP handlers for portfolio management.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	service *portfolio.Service
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service *portfolio.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/", h.HandleGetPortfolio)
		r.Put("/{code}", h.HandleUpdateEntry)
		r.Get("/{code}/history", h.HandleGetHistory)
	})
}

// HandleGetPortfolio lists the entries of ?target= (domestic by default).
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	target, err := targetParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.service.Entries(target)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list portfolio")
		h.writeError(w, http.StatusInternalServerError, "Failed to list portfolio")
		return
	}
	if entries == nil {
		entries = []domain.PortfolioEntry{}
	}

	h.writeJSON(w, http.StatusOK, entries)
}

// HandleUpdateEntry handles PUT /api/portfolio/{code}
func (h *Handler) HandleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var update portfolio.EntryUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if update.Weight == nil && update.Use == nil {
		h.writeError(w, http.StatusBadRequest, "weight or use_yn is required")
		return
	}

	found, err := h.service.UpdateEntry(code, update)
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Str("code", code).Msg("Failed to update portfolio entry")
		h.writeError(w, http.StatusInternalServerError, "Failed to update portfolio entry")
		return
	}
	if !found {
		h.writeError(w, http.StatusNotFound, "Portfolio entry not found")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "product_code": code})
}

// HandleGetHistory handles GET /api/portfolio/{code}/history
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	history, err := h.service.History(code)
	if err != nil {
		h.log.Error().Err(err).Str("code", code).Msg("Failed to get history")
		h.writeError(w, http.StatusInternalServerError, "Failed to get history")
		return
	}
	if history == nil {
		history = []portfolio.HistoryRow{}
	}

	h.writeJSON(w, http.StatusOK, history)
}

func targetParam(r *http.Request) (domain.Target, error) {
	raw := r.URL.Query().Get("target")
	if raw == "" {
		return domain.TargetDomestic, nil
	}
	return domain.ParseTarget(raw)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
