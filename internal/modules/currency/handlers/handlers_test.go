package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/modules/currency"
	testutil "github.com/aristath/rebalancer/internal/testing"
)

func TestHandleGetRate(t *testing.T) {
	broker := testutil.NewMockBroker()
	broker.Rate = 1305.25

	log := testutil.NopLogger()
	h := NewHandler(currency.NewService(nil, 1186.50, log), broker, log)
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/currency/rate", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data     currency.Quote         `json:"data"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, currency.Quote{Rate: 1305.25, Source: currency.SourceBroker}, body.Data)
	assert.Equal(t, "USD/KRW", body.Metadata["pair"])
}
