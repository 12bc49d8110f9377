// Package handlers provides HTTP handlers for rebalancing reports.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/reports"
	"github.com/aristath/rebalancer/internal/modules/trading"
)

// Archiver uploads a report's exports and returns the stored key.
type Archiver interface {
	Archive(ctx context.Context, report *reports.Report) (string, error)
}

// Handler handles report HTTP requests
type Handler struct {
	service  *reports.Service
	archiver Archiver
	log      zerolog.Logger
}

// NewHandler creates a new report handler. archiver may be nil.
func NewHandler(service *reports.Service, archiver Archiver, log zerolog.Logger) *Handler {
	return &Handler{
		service:  service,
		archiver: archiver,
		log:      log.With().Str("handler", "reports").Logger(),
	}
}

// RegisterRoutes registers all report routes. Every {name} route takes an
// optional ?created_time= and otherwise uses the latest report of that name.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rebalance", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)

		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Get("/prices", h.HandleGetPrices)
			r.Post("/prices", h.HandleRefreshPrices)
			r.Get("/plan", h.HandleGetPlan)
			r.Post("/plan", h.HandleMakePlan)
			r.Post("/execute", h.HandleExecute)
			r.Get("/orders", h.HandleOrderStatus)
			r.Post("/wait", h.HandleWait)
			r.Post("/cancel", h.HandleCancelAll)
			r.Post("/orders/{orderID}/cancel", h.HandleCancelOrder)
			r.Get("/export/{kind}", h.HandleExport)
			r.Post("/archive", h.HandleArchive)
		})
	})
}

// HandleList handles GET /api/rebalance
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List()
	if err != nil {
		h.fail(w, err, "Failed to list reports")
		return
	}
	if list == nil {
		list = []reports.Report{}
	}
	h.writeJSON(w, http.StatusOK, list)
}

// HandleCreate handles POST /api/rebalance
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req reports.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	report, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.fail(w, err, "Failed to create report")
		return
	}
	h.writeJSON(w, http.StatusCreated, report)
}

// HandleGet handles GET /api/rebalance/{name}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	name, createdTime := reportParams(r)
	report, err := h.service.Get(name, createdTime)
	if err != nil {
		h.fail(w, err, "Failed to get report")
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleRefreshPrices handles POST /api/rebalance/{name}/prices
func (h *Handler) HandleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	name, createdTime := reportParams(r)
	updated, err := h.service.RefreshPrices(r.Context(), name, createdTime)
	if err != nil {
		h.fail(w, err, "Failed to refresh prices")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "refreshed", "products": updated})
}

// HandleGetPrices handles GET /api/rebalance/{name}/prices
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	name, createdTime := reportParams(r)
	prices, err := h.service.Prices(name, createdTime)
	if err != nil {
		h.fail(w, err, "Failed to get prices")
		return
	}
	h.writeJSON(w, http.StatusOK, prices)
}

// HandleMakePlan handles POST /api/rebalance/{name}/plan
func (h *Handler) HandleMakePlan(w http.ResponseWriter, r *http.Request) {
	var req reports.PlanRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	name, createdTime := reportParams(r)
	view, err := h.service.MakePlan(r.Context(), name, createdTime, req)
	if err != nil {
		h.fail(w, err, "Failed to make plan")
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// HandleGetPlan handles GET /api/rebalance/{name}/plan
func (h *Handler) HandleGetPlan(w http.ResponseWriter, r *http.Request) {
	name, createdTime := reportParams(r)
	view, err := h.service.Plan(name, createdTime)
	if err != nil {
		h.fail(w, err, "Failed to get plan")
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// HandleExecute handles POST /api/rebalance/{name}/execute
func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req reports.ExecuteRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	name, createdTime := reportParams(r)
	orders, err := h.service.Execute(r.Context(), name, createdTime, req)
	if orders == nil {
		orders = []trading.SubmittedOrder{}
	}
	if err != nil {
		status, message := h.statusFor(err, "Failed to execute plan")
		h.writeJSON(w, status, map[string]interface{}{"error": message, "orders": orders})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

// HandleOrderStatus handles GET /api/rebalance/{name}/orders
func (h *Handler) HandleOrderStatus(w http.ResponseWriter, r *http.Request) {
	name, createdTime := reportParams(r)
	statuses, err := h.service.OrderStatus(r.Context(), name, createdTime)
	if err != nil {
		h.fail(w, err, "Failed to get order status")
		return
	}
	h.writeJSON(w, http.StatusOK, statusBody(statuses))
}

// HandleWait handles POST /api/rebalance/{name}/wait
func (h *Handler) HandleWait(w http.ResponseWriter, r *http.Request) {
	var req reports.WaitRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	name, createdTime := reportParams(r)
	statuses, err := h.service.Wait(r.Context(), name, createdTime, req)
	if err != nil {
		var timeout *domain.TimeoutError
		if errors.As(err, &timeout) {
			body := statusBody(timeout.Statuses)
			body["error"] = timeout.Error()
			h.writeJSON(w, http.StatusGatewayTimeout, body)
			return
		}
		h.fail(w, err, "Failed to wait for orders")
		return
	}
	if req.Async {
		h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "waiting"})
		return
	}
	h.writeJSON(w, http.StatusOK, statusBody(statuses))
}

// HandleCancelAll handles POST /api/rebalance/{name}/cancel
func (h *Handler) HandleCancelAll(w http.ResponseWriter, r *http.Request) {
	name, createdTime := reportParams(r)
	results, err := h.service.CancelAll(r.Context(), name, createdTime)
	if err != nil {
		h.fail(w, err, "Failed to cancel orders")
		return
	}
	if results == nil {
		results = []domain.CancelResult{}
	}
	h.writeJSON(w, http.StatusOK, results)
}

// HandleCancelOrder handles POST /api/rebalance/{name}/orders/{orderID}/cancel
func (h *Handler) HandleCancelOrder(w http.ResponseWriter, r *http.Request) {
	name, createdTime := reportParams(r)
	orderID := chi.URLParam(r, "orderID")
	if err := h.service.CancelOrder(r.Context(), name, createdTime, orderID); err != nil {
		h.fail(w, err, "Failed to cancel order")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "order_num": orderID})
}

// HandleExport handles GET /api/rebalance/{name}/export/{kind}
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	name, createdTime := reportParams(r)
	kind := chi.URLParam(r, "kind")

	var buf bytes.Buffer
	if err := h.service.ExportCSV(name, createdTime, kind, &buf); err != nil {
		h.fail(w, err, "Failed to export report")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", kind+".csv"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.log.Error().Err(err).Msg("Failed to write export")
	}
}

// HandleArchive handles POST /api/rebalance/{name}/archive
func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Archiving is disabled")
		return
	}

	name, createdTime := reportParams(r)
	report, err := h.service.Get(name, createdTime)
	if err != nil {
		h.fail(w, err, "Failed to archive report")
		return
	}

	key, err := h.archiver.Archive(r.Context(), report)
	if err != nil {
		h.fail(w, err, "Failed to archive report")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "archived", "key": key})
}

func reportParams(r *http.Request) (name, createdTime string) {
	return chi.URLParam(r, "name"), r.URL.Query().Get("created_time")
}

func statusBody(statuses []domain.OrderStatus) map[string]interface{} {
	type statusView struct {
		domain.OrderStatus
		State string `json:"state"`
	}
	views := make([]statusView, 0, len(statuses))
	unresolved := 0
	for _, s := range statuses {
		views = append(views, statusView{OrderStatus: s, State: s.State()})
		if !s.Resolved() {
			unresolved++
		}
	}
	return map[string]interface{}{"orders": views, "unresolved": unresolved}
}

// statusFor maps service errors to HTTP statuses. Unexpected errors get a
// generic message; the others carry their own.
func (h *Handler) statusFor(err error, fallback string) (int, string) {
	switch {
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrNotImplemented):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrReportNotFound), errors.Is(err, reports.ErrPlanNotFound), errors.Is(err, reports.ErrOrderNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrReportBusy), errors.Is(err, reports.ErrReportExists),
		errors.Is(err, reports.ErrInvalidStatus), errors.Is(err, reports.ErrStatusRegression):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout, err.Error()
	case errors.Is(err, domain.ErrExternal):
		h.log.Warn().Err(err).Msg(fallback)
		return http.StatusBadGateway, err.Error()
	}
	h.log.Error().Err(err).Msg(fallback)
	return http.StatusInternalServerError, fallback
}

func (h *Handler) fail(w http.ResponseWriter, err error, fallback string) {
	status, message := h.statusFor(err, fallback)
	h.writeError(w, status, message)
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
