package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
	testutil "github.com/aristath/rebalancer/internal/testing"
)

func setupRouter(t *testing.T) chi.Router {
	t.Helper()
	log := testutil.NopLogger()
	configDB := testutil.NewMemoryDB(t, database.NameConfig)
	historyDB := testutil.NewMemoryDB(t, database.NameHistory)

	testutil.SeedProduct(t, configDB, "005930", "Samsung Electronics", domain.MarketKRX, 71000, 1, true)
	testutil.SeedProduct(t, configDB, "SPY", "SPDR S&P 500", domain.MarketNYSE, 450, 1, true)

	svc := portfolio.NewService(
		portfolio.NewProductRepository(configDB, log),
		portfolio.NewEntryRepository(configDB, log),
		portfolio.NewHistoryRepository(historyDB, log),
		nil,
		log,
	)

	r := chi.NewRouter()
	NewHandler(svc, log).RegisterRoutes(r)
	return r
}

func TestHandleGetPortfolio(t *testing.T) {
	r := setupRouter(t)

	testCases := []struct {
		query  string
		status int
		code   string
	}{
		{"", http.StatusOK, "005930"},
		{"?target=overseas", http.StatusOK, "SPY"},
		{"?target=mars", http.StatusBadRequest, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portfolio/"+tc.query, nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.code == "" {
				return
			}

			var entries []domain.PortfolioEntry
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
			require.Len(t, entries, 1)
			assert.Equal(t, tc.code, entries[0].Code)
		})
	}
}

func TestHandleUpdateEntry(t *testing.T) {
	testCases := []struct {
		name   string
		code   string
		body   string
		status int
	}{
		{"update weight", "005930", `{"weight": 3}`, http.StatusOK},
		{"exclude", "SPY", `{"use_yn": false}`, http.StatusOK},
		{"empty update", "005930", `{}`, http.StatusBadRequest},
		{"negative weight", "005930", `{"weight": -2}`, http.StatusBadRequest},
		{"unknown code", "NOPE", `{"weight": 1}`, http.StatusNotFound},
		{"bad json", "005930", `weight`, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := setupRouter(t)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/portfolio/"+tc.code, strings.NewReader(tc.body)))
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestHandleGetHistory_Empty(t *testing.T) {
	r := setupRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portfolio/005930/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
