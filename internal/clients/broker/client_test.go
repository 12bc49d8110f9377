package broker

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/aristath/rebalancer/internal/testing"
)

func TestSign(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(`{"a":1}1700000000`))
	want := hex.EncodeToString(mac.Sum(nil))

	got := sign("secret", `{"a":1}1700000000`)
	assert.Equal(t, want, got)
	assert.Len(t, got, 64)
	assert.NotEqual(t, got, sign("other", `{"a":1}1700000000`))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short"))
	long := truncate(strings.Repeat("a", 800))
	assert.Len(t, long, maxLoggedBody+3)
	assert.True(t, strings.HasSuffix(long, "..."))
}

func TestClient_SerialRequests(t *testing.T) {
	fake, srv := newFakeGateway(t)
	fake.delay = 20 * time.Millisecond
	fake.responses["PING"] = `{"result": {"ok": true}}`
	gw := newTestGateway(t, srv.URL, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out map[string]bool
			assert.NoError(t, gw.client.call(context.Background(), "PING", nil, &out))
			assert.True(t, out["ok"])
		}()
	}
	wg.Wait()

	assert.Len(t, fake.requestsFor("PING"), 5)
	assert.Equal(t, int32(1), fake.maxFlight.Load(), "never more than one request in flight")
}

func TestClient_RateLimit(t *testing.T) {
	fake, srv := newFakeGateway(t)
	fake.responses["PING"] = `{"result": {}}`
	client := NewClient(Config{BaseURL: srv.URL, AppKey: "k", AppSecret: testSecret, RateLimit: 100 * time.Millisecond}, testutil.NopLogger())
	defer client.Close()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, client.call(context.Background(), "PING", nil, nil))
	}
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestClient_Closed(t *testing.T) {
	_, srv := newFakeGateway(t)
	client := NewClient(Config{BaseURL: srv.URL, AppKey: "k", AppSecret: testSecret, RateLimit: -1}, testutil.NopLogger())
	client.Close()
	client.Close()

	err := client.call(context.Background(), "PING", nil, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClient_MissingCredentials(t *testing.T) {
	_, srv := newFakeGateway(t)
	client := NewClient(Config{BaseURL: srv.URL, RateLimit: -1}, testutil.NopLogger())
	defer client.Close()

	err := client.call(context.Background(), "PING", nil, nil)
	assert.ErrorContains(t, err, "app key and secret are required")
}

func TestClient_CancelledContext(t *testing.T) {
	_, srv := newFakeGateway(t)
	client := NewClient(Config{BaseURL: srv.URL, AppKey: "k", AppSecret: testSecret, RateLimit: -1}, testutil.NopLogger())
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, client.call(ctx, "PING", nil, nil), context.Canceled)
}
