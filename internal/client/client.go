package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/geoweather-gateway/internal/apperr"
	"github.com/kjstillabower/geoweather-gateway/internal/observability"
)

// Upstream names, used as metric labels and breaker names.
const (
	UpstreamGeocoding = "geocoding"
	UpstreamForecast  = "forecast"
)

// Default Open-Meteo endpoints.
const (
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
)

// Options configures an OpenMeteoClient. Zero values fall back to defaults.
type Options struct {
	GeocodingURL string
	ForecastURL  string
	Timeout      time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// BreakerFailures consecutive retryable failures open an upstream's breaker
	// for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// OpenMeteoClient talks to the Open-Meteo geocoding and forecast APIs.
type OpenMeteoClient struct {
	geocodingURL *url.URL
	forecastURL  *url.URL
	timeout      time.Duration
	client       *http.Client
	logger       *zap.Logger

	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration

	breakers map[string]*gobreaker.CircuitBreaker
}

// New returns a client for the given options.
func New(opts Options) (*OpenMeteoClient, error) {
	if opts.GeocodingURL == "" {
		opts.GeocodingURL = DefaultGeocodingURL
	}
	if opts.ForecastURL == "" {
		opts.ForecastURL = DefaultForecastURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 100 * time.Millisecond
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 2 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	geoURL, err := parseBaseURL(opts.GeocodingURL)
	if err != nil {
		return nil, fmt.Errorf("geocoding url: %w", err)
	}
	fcURL, err := parseBaseURL(opts.ForecastURL)
	if err != nil {
		return nil, fmt.Errorf("forecast url: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	c := &OpenMeteoClient{
		geocodingURL:   geoURL,
		forecastURL:    fcURL,
		timeout:        opts.Timeout,
		client:         httpClient,
		logger:         opts.Logger,
		retryAttempts:  opts.RetryAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		retryMaxDelay:  opts.RetryMaxDelay,
		breakers:       make(map[string]*gobreaker.CircuitBreaker, 2),
	}
	for _, upstream := range []string{UpstreamGeocoding, UpstreamForecast} {
		c.breakers[upstream] = newBreaker(upstream, opts.BreakerFailures, opts.BreakerTimeout, opts.Logger)
	}
	return c, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

func newBreaker(upstream string, failures uint32, timeout time.Duration, logger *zap.Logger) *gobreaker.CircuitBreaker {
	observability.CircuitBreakerState.WithLabelValues(upstream).Set(0)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        upstream,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			observability.CircuitBreakerTransitionsTotal.WithLabelValues(name, from.String(), to.String()).Inc()
			logger.Warn("circuit breaker state change",
				zap.String("upstream", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// BreakerState reports the current breaker state for upstream.
func (c *OpenMeteoClient) BreakerState(upstream string) gobreaker.State {
	if cb, ok := c.breakers[upstream]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}

// attemptResult carries a non-retryable upstream error through the breaker
// without counting it as a failure.
type attemptResult struct {
	body []byte
	err  error
}

// getJSON issues GET base?params and decodes the body into out, retrying
// retryable failures with exponential backoff.
func (c *OpenMeteoClient) getJSON(ctx context.Context, upstream, code string, base *url.URL, params url.Values, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.UpstreamRetriesTotal.WithLabelValues(upstream).Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := c.attempt(ctx, upstream, code, base, params)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				perr := &apperr.APIError{Code: code, Message: "parse response", Err: err}
				c.recordError(upstream, perr)
				return perr
			}
			return nil
		}

		lastErr = err
		if ctx.Err() != nil {
			c.recordError(upstream, err)
			return err
		}
		if !isRetryable(err) {
			c.recordError(upstream, err)
			return err
		}
	}

	c.recordError(upstream, lastErr)
	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenMeteoClient) attempt(ctx context.Context, upstream, code string, base *url.URL, params url.Values) ([]byte, error) {
	cb := c.breakers[upstream]
	res, err := cb.Execute(func() (interface{}, error) {
		body, callErr := c.callAPI(ctx, upstream, code, base, params)
		// Caller cancellation and 4xx answers say nothing about upstream health.
		if callErr != nil && (!isRetryable(callErr) || ctx.Err() != nil) {
			return attemptResult{err: callErr}, nil
		}
		return attemptResult{body: body}, callErr
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &apperr.APIError{Code: code, Message: "circuit open", Err: err}
	}
	if err != nil {
		return nil, err
	}
	r := res.(attemptResult)
	if r.err != nil {
		return nil, r.err
	}
	return r.body, nil
}

func (c *OpenMeteoClient) callAPI(ctx context.Context, upstream, code string, base *url.URL, params url.Values) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := *base
	u.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &apperr.APIError{Code: code, Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(upstream, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(upstream, "error").Observe(time.Since(start).Seconds())
		return nil, &apperr.APIError{Code: code, Message: "request failed", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(upstream, status).Inc()
	observability.UpstreamDuration.WithLabelValues(upstream, status).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &apperr.APIError{
			Code:      code,
			Message:   fmt.Sprintf("HTTP %d", resp.StatusCode),
			Status:    resp.StatusCode,
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.APIError{Code: code, Message: "read response body", Retryable: true, Err: err}
	}
	return body, nil
}

func (c *OpenMeteoClient) recordError(upstream string, err error) {
	category := CategorizeError(err)
	observability.UpstreamErrorsTotal.WithLabelValues(upstream, string(category)).Inc()
	c.logger.Debug("upstream call failed",
		zap.String("upstream", upstream),
		zap.String("category", string(category)),
		zap.Error(err))
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := apperr.AsAPIError(err); ok {
		return apiErr.Retryable
	}
	return false
}

// RetryBudget is the longest a call can take: every attempt running to its
// timeout, with the largest jittered backoff between attempts.
func RetryBudget(attempts int, timeout, maxDelay time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	backoff := time.Duration(float64(maxDelay) * 1.1)
	return time.Duration(attempts)*timeout + time.Duration(attempts-1)*backoff
}

// CallBudget is RetryBudget for this client's settings.
func (c *OpenMeteoClient) CallBudget() time.Duration {
	return RetryBudget(c.retryAttempts, c.timeout, c.retryMaxDelay)
}

func (c *OpenMeteoClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
