// Package exchangerate fetches currency exchange rates from a public
// latest-rates endpoint, cached in client_data.db.
package exchangerate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/clientdata"
)

// DefaultBaseURL serves {"rates": {...}} keyed by currency for GET /{base}.
const DefaultBaseURL = "https://api.exchangerate-api.com/v4/latest"

// Client for exchangerate-api.com compatible endpoints
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new exchange rate client.
// cacheRepo is optional; if nil, caching is disabled.
func NewClient(baseURL string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("client", "exchangerate").Logger(),
		cacheRepo: cacheRepo,
	}
}

type cachedRate struct {
	Rate      float64 `msgpack:"rate"`
	FetchedAt int64   `msgpack:"fetched_at"`
}

// GetRate returns how many units of toCurrency one fromCurrency buys.
// When the endpoint fails, a stale cached rate is returned if one exists.
func (c *Client) GetRate(fromCurrency, toCurrency string) (float64, error) {
	fromCurrency = strings.ToUpper(fromCurrency)
	toCurrency = strings.ToUpper(toCurrency)
	if fromCurrency == toCurrency {
		return 1.0, nil
	}

	cacheKey := fromCurrency + ":" + toCurrency

	if c.cacheRepo != nil {
		var cached cachedRate
		if ok, err := c.cacheRepo.GetIfFresh(clientdata.TableFXRates, cacheKey, &cached); err == nil && ok {
			c.log.Debug().Str("pair", cacheKey).Float64("rate", cached.Rate).Msg("Cache hit")
			return cached.Rate, nil
		}
	}

	rate, err := c.fetch(fromCurrency, toCurrency)
	if err != nil {
		if stale, ok := c.getStaleFromCache(cacheKey); ok {
			c.log.Warn().Err(err).Str("pair", cacheKey).Float64("rate", stale).Msg("API failed, using stale cached rate")
			return stale, nil
		}
		return 0, err
	}

	if c.cacheRepo != nil {
		cached := cachedRate{Rate: rate, FetchedAt: time.Now().Unix()}
		if err := c.cacheRepo.Store(clientdata.TableFXRates, cacheKey, cached, clientdata.TTLExchangeRate); err != nil {
			c.log.Warn().Err(err).Str("pair", cacheKey).Msg("Failed to cache exchange rate")
		}
	}

	c.log.Info().Str("from", fromCurrency).Str("to", toCurrency).Float64("rate", rate).Msg("Fetched rate")
	return rate, nil
}

func (c *Client) fetch(fromCurrency, toCurrency string) (float64, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, fromCurrency)
	c.log.Debug().Str("url", url).Msg("Fetching rates")

	resp, err := c.client.Get(url)
	if err != nil {
		return 0, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}

	rate, exists := result.Rates[toCurrency]
	if !exists || rate <= 0 {
		return 0, fmt.Errorf("rate not found for %s->%s", fromCurrency, toCurrency)
	}
	return rate, nil
}

// getStaleFromCache retrieves a cached rate even if expired.
func (c *Client) getStaleFromCache(cacheKey string) (float64, bool) {
	if c.cacheRepo == nil {
		return 0, false
	}

	var cached cachedRate
	ok, err := c.cacheRepo.Get(clientdata.TableFXRates, cacheKey, &cached)
	if err != nil || !ok {
		return 0, false
	}
	return cached.Rate, true
}
