// Package broker is the HTTP gateway client for the domestic brokerage.
// All requests of one Client go through a single worker, so an account
// session never has more than one request in flight.
package broker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultRateLimit = 1500 * time.Millisecond
	requestQueueSize = 100
	maxLoggedBody    = 500
)

// ErrClosed is returned for requests made after Close.
var ErrClosed = errors.New("broker client is closed")

// Config identifies the gateway and the account session.
type Config struct {
	BaseURL   string
	AppKey    string
	AppSecret string
	Account   string
	Password  string
	Test      bool
	RateLimit time.Duration
	Timeout   time.Duration
}

type requestJob struct {
	ctx      context.Context
	service  string
	params   map[string]interface{}
	resultCh chan requestResult
}

type requestResult struct {
	data json.RawMessage
	err  error
}

// Client is a rate-limited, signed JSON client for one account session.
type Client struct {
	cfg          Config
	httpClient   *http.Client
	log          zerolog.Logger
	requestQueue chan requestJob
	stopChan     chan struct{}
	workerDone   chan struct{}
	once         sync.Once
	now          func() time.Time
}

// NewClient creates a client and starts its worker.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.RateLimit < 0 {
		cfg.RateLimit = 0
	} else if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		log:          log.With().Str("client", "broker").Bool("test", cfg.Test).Logger(),
		requestQueue: make(chan requestJob, requestQueueSize),
		stopChan:     make(chan struct{}),
		workerDone:   make(chan struct{}),
		now:          time.Now,
	}

	go c.worker()

	return c
}

// call queues a request and decodes the "result" member of the response into out.
func (c *Client) call(ctx context.Context, service string, params map[string]interface{}, out interface{}) error {
	resultCh := make(chan requestResult, 1)
	job := requestJob{ctx: ctx, service: service, params: params, resultCh: resultCh}

	select {
	case <-c.stopChan:
		return ErrClosed
	default:
	}

	select {
	case c.requestQueue <- job:
	case <-c.stopChan:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("request queue is full")
	}

	var result requestResult
	select {
	case result = <-resultCh:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.workerDone:
		select {
		case result = <-resultCh:
		default:
			return ErrClosed
		}
	}
	if result.err != nil {
		return result.err
	}
	if out == nil || len(result.data) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.data, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", service, err)
	}
	return nil
}

// worker processes requests from the queue sequentially with rate limiting
func (c *Client) worker() {
	defer close(c.workerDone)

	var lastRequestTime time.Time
	firstRequest := true

	processJob := func(job requestJob) {
		if err := job.ctx.Err(); err != nil {
			job.resultCh <- requestResult{err: err}
			return
		}
		if !firstRequest {
			if elapsed := time.Since(lastRequestTime); elapsed < c.cfg.RateLimit {
				time.Sleep(c.cfg.RateLimit - elapsed)
			}
		}
		firstRequest = false

		data, err := c.do(job.ctx, job.service, job.params)
		lastRequestTime = time.Now()
		job.resultCh <- requestResult{data: data, err: err}
	}

	for {
		select {
		case <-c.stopChan:
			// Drain remaining jobs before exiting
			for {
				select {
				case job := <-c.requestQueue:
					processJob(job)
				default:
					return
				}
			}
		case job := <-c.requestQueue:
			processJob(job)
		}
	}
}

// Close stops the worker after the queued requests have been served.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.stopChan)
		<-c.workerDone
	})
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (c *Client) do(ctx context.Context, service string, params map[string]interface{}) (json.RawMessage, error) {
	if c.cfg.AppKey == "" || c.cfg.AppSecret == "" {
		return nil, fmt.Errorf("app key and secret are required")
	}

	body := map[string]interface{}{
		"account":  c.cfg.Account,
		"password": c.cfg.Password,
		"test":     c.cfg.Test,
	}
	if len(params) > 0 {
		body["params"] = params
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", service, err)
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	requestURL := fmt.Sprintf("%s/api/%s", c.cfg.BaseURL, service)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-App-Key", c.cfg.AppKey)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", sign(c.cfg.AppSecret, string(payload)+timestamp))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", service, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", service, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.Error().
			Int("status_code", resp.StatusCode).
			Str("service", service).
			Str("response_body", truncate(string(raw))).
			Msg("Gateway returned non-200 status")
		return nil, fmt.Errorf("%s returned status %d", service, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Error().
			Err(err).
			Str("service", service).
			Str("response_body", truncate(string(raw))).
			Msg("Failed to parse gateway response")
		return nil, fmt.Errorf("failed to parse %s response: %w", service, err)
	}
	if env.Error != "" {
		return nil, fmt.Errorf("%s: %s", service, env.Error)
	}

	c.log.Debug().Str("service", service).Int("bytes", len(raw)).Msg("Gateway request completed")
	return env.Result, nil
}

// sign returns the hex HMAC-SHA256 of message keyed by secret.
func sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func truncate(s string) string {
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody] + "..."
	}
	return s
}
