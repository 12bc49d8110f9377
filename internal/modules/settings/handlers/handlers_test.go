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
	"github.com/aristath/rebalancer/internal/modules/settings"
	testutil "github.com/aristath/rebalancer/internal/testing"
)

func setupRouter(t *testing.T) (chi.Router, *settings.Repository) {
	t.Helper()
	log := testutil.NopLogger()
	repo := settings.NewRepository(testutil.NewMemoryDB(t, database.NameConfig), log)
	_, err := repo.Seed()
	require.NoError(t, err)

	r := chi.NewRouter()
	NewHandler(repo, domain.DefaultAllocationSettings(), log).RegisterRoutes(r)
	return r, repo
}

func TestHandleGetAll(t *testing.T) {
	r, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "0.19", body[settings.KeyAmountDomestic])
}

func TestHandleUpdate(t *testing.T) {
	testCases := []struct {
		name   string
		key    string
		body   string
		status int
		stored string
	}{
		{"valid fraction", settings.KeyAmountDomestic, `{"value": 0.3}`, http.StatusOK, "0.3"},
		{"string value", settings.KeyAmountOverseas, `{"value": "0.4"}`, http.StatusOK, "0.4"},
		{"fractions exceed one", settings.KeyAmountDomestic, `{"value": 0.8}`, http.StatusBadRequest, "0.19"},
		{"usable out of range", settings.KeyAmountAvailable, `{"value": 1.5}`, http.StatusBadRequest, "0.9"},
		{"not a number", settings.KeyAmountOverseas, `{"value": "x"}`, http.StatusBadRequest, "0.27"},
		{"bad body", settings.KeyAccountTest, `{`, http.StatusBadRequest, "true"},
		{"non allocation key", settings.KeyAccountTest, `{"value": false}`, http.StatusOK, "false"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, repo := setupRouter(t)

			req := httptest.NewRequest(http.MethodPut, "/settings/"+tc.key, strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			v, err := repo.Get(tc.key)
			require.NoError(t, err)
			require.NotNil(t, v)
			assert.Equal(t, tc.stored, *v)
		})
	}
}
