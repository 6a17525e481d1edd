// Package provider is the REST client for the upstream market data provider.
// Paths and payloads follow the financialmodelingprep v3 API.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"market_data_hub/services/apperrors"

	"golang.org/x/time/rate"
	"resty.dev/v3"
)

const (
	defaultRetryCount       = 3
	defaultRetryWaitTime    = 1 * time.Second
	defaultRetryMaxWaitTime = 10 * time.Second
	defaultTimeout          = 30 * time.Second
)

// Config configures the provider client.
type Config struct {
	BaseURL string
	APIKey  string
	// RatePerSecond caps outbound requests; zero means unlimited.
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
	RetryCount    int
	RetryWait     time.Duration
	RetryMaxWait  time.Duration
	// Location is the exchange timezone intraday timestamps are reported in.
	Location *time.Location
}

// Client fetches quotes, fundamentals, disclosures and price history.
type Client struct {
	http    *resty.Client
	apiKey  string
	limiter *rate.Limiter
	loc     *time.Location
}

// NewClient creates a client with retries on network errors, 408, 429 and 5xx.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaultRetryWaitTime
	}
	if cfg.RetryMaxWait <= 0 {
		cfg.RetryMaxWait = defaultRetryMaxWaitTime
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		AddRetryConditions(retryCondition).
		AddRetryHooks(retryHook)

	return &Client{
		http:    client,
		apiKey:  cfg.APIKey,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		loc:     cfg.Location,
	}
}

// DefaultConfig returns the client defaults for baseURL.
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL:       baseURL,
		APIKey:        apiKey,
		RatePerSecond: 5,
		Burst:         5,
		Timeout:       defaultTimeout,
		RetryCount:    defaultRetryCount,
		RetryWait:     defaultRetryWaitTime,
		RetryMaxWait:  defaultRetryMaxWaitTime,
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	switch code := r.StatusCode(); {
	case code >= 500, code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	}
	return false
}

func retryHook(r *resty.Response, err error) {
	if r == nil || r.Request == nil {
		log.Printf("Warning: retrying provider request: %v", err)
		return
	}
	if err != nil {
		log.Printf("Warning: retrying %s (attempt %d): %v", r.Request.URL, r.Request.Attempt, err)
		return
	}
	log.Printf("Warning: retrying %s (attempt %d): status %d", r.Request.URL, r.Request.Attempt, r.StatusCode())
}

// get issues one rate-limited GET and decodes a successful body into result.
func (c *Client) get(ctx context.Context, op, path string, pathParams, query map[string]string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.OriginUnavailable(op, err)
	}

	req := c.http.R().
		SetContext(ctx).
		SetResult(result)
	if c.apiKey != "" {
		req.SetQueryParam("apikey", c.apiKey)
	}
	if len(pathParams) > 0 {
		req.SetPathParams(pathParams)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Get(path)
	return classify(op, resp, err)
}

// classify maps a transport outcome onto the service error kinds: 404 is
// NotFound, 429 and 5xx are OriginUnavailable, any other 4xx is InvalidInput.
func classify(op string, resp *resty.Response, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return apperrors.OriginUnavailable(op, err)
	}

	code := resp.StatusCode()
	switch {
	case resp.IsSuccess():
		return nil
	case code == http.StatusNotFound:
		return apperrors.NotFound(op)
	case code == http.StatusTooManyRequests || code >= 500:
		return apperrors.OriginUnavailable(op, fmt.Errorf("status %d", code))
	case code >= 400:
		return apperrors.InvalidInput("%s: upstream rejected request (status %d)", op, code)
	default:
		return apperrors.OriginUnavailable(op, fmt.Errorf("unexpected status %d", code))
	}
}
