// Package handlers provides HTTP handlers for currency operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/modules/currency"
)

// Handler handles currency HTTP requests
type Handler struct {
	service *currency.Service
	broker  currency.BrokerRateSource
	log     zerolog.Logger
}

// NewHandler creates a new currency handler. broker may be nil.
func NewHandler(service *currency.Service, broker currency.BrokerRateSource, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		broker:  broker,
		log:     log.With().Str("handler", "currency").Logger(),
	}
}

// RegisterRoutes registers all currency routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/currency", func(r chi.Router) {
		r.Get("/rate", h.HandleGetRate)
	})
}

// HandleGetRate handles GET /api/currency/rate
func (h *Handler) HandleGetRate(w http.ResponseWriter, r *http.Request) {
	quote := h.service.Rate(r.Context(), h.broker)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data": quote,
		"metadata": map[string]interface{}{
			"pair":      "USD/KRW",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}
