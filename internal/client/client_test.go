package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/geoweather-gateway/internal/apperr"
	"github.com/kjstillabower/geoweather-gateway/internal/observability"
)

const forecastBody = `{
	"latitude": 35.68, "longitude": 139.69, "timezone": "Asia/Tokyo",
	"current_weather": {"temperature": 18.4, "windspeed": 7.2, "winddirection": 210, "weathercode": 1, "is_day": 1, "time": "2025-04-01T12:00"},
	"daily": {
		"time": ["2025-04-01", "2025-04-02"],
		"weathercode": [1, null],
		"temperature_2m_max": [20.1, 19.0],
		"temperature_2m_min": [11.2, null],
		"precipitation_probability_max": [10, 80]
	},
	"hourly": {
		"time": ["2025-04-01T00:00", "2025-04-01T01:00"],
		"temperature_2m": [12.0, null],
		"relative_humidity_2m": [70, 72],
		"weathercode": [0, 1],
		"precipitation_probability": [0, 5],
		"pressure_msl": [1012.3, 1012.1]
	}
}`

func newTestClient(t *testing.T, url string, attempts int) *OpenMeteoClient {
	t.Helper()
	c, err := New(Options{
		GeocodingURL:   url,
		ForecastURL:    url,
		Timeout:        2 * time.Second,
		RetryAttempts:  attempts,
		RetryBaseDelay: 10 * time.Millisecond,
		RetryMaxDelay:  100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_InvalidURL(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"bad geocoding scheme", Options{GeocodingURL: "ftp://example.com"}},
		{"missing forecast host", Options{ForecastURL: "https://"}},
		{"unparseable", Options{GeocodingURL: "://invalid"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.opts)
			if err == nil {
				t.Fatal("New() expected error, got nil")
			}
			if c != nil {
				t.Error("New() expected nil client on error")
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.geocodingURL.String() != DefaultGeocodingURL {
		t.Errorf("geocodingURL = %s", c.geocodingURL)
	}
	if c.forecastURL.String() != DefaultForecastURL {
		t.Errorf("forecastURL = %s", c.forecastURL)
	}
	if c.retryAttempts != 3 {
		t.Errorf("retryAttempts = %d, want 3", c.retryAttempts)
	}
	if got := c.BreakerState(UpstreamGeocoding); got != gobreaker.StateClosed {
		t.Errorf("BreakerState() = %v, want closed", got)
	}
}

func TestGeocodeSearch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("name") != "渋谷" || q.Get("count") != "5" || q.Get("language") != "ja" || q.Get("format") != "json" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"name":"渋谷区","latitude":35.664,"longitude":139.698,"country":"日本","country_code":"JP","admin1":"東京都","timezone":"Asia/Tokyo"},
			{"name":"渋谷","latitude":35.658,"longitude":139.701}
		]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 1)
	got, err := c.GeocodeSearch(context.Background(), "渋谷", 5, "ja")
	if err != nil {
		t.Fatalf("GeocodeSearch() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "渋谷区" || got[0].Admin1 != "東京都" || got[0].CountryCode != "JP" || got[0].Timezone != "Asia/Tokyo" {
		t.Errorf("first candidate = %+v", got[0])
	}
	if got[1].Country != "" || got[1].Latitude != 35.658 {
		t.Errorf("second candidate = %+v", got[1])
	}
}

func TestGeocodeSearch_NoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"generationtime_ms":0.5}`))
	}))
	defer server.Close()

	got, err := newTestClient(t, server.URL, 1).GeocodeSearch(context.Background(), "zzzz", 5, "en")
	if err != nil {
		t.Fatalf("GeocodeSearch() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("GeocodeSearch() = %v, want empty non-nil slice", got)
	}
}

func TestGeocodeSearch_ErrorHandling(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		retryable    bool
		wantAttempts int32
	}{
		{"400 bad request", http.StatusBadRequest, false, 1},
		{"404 not found", http.StatusNotFound, false, 1},
		{"429 rate limited", http.StatusTooManyRequests, true, 3},
		{"500 server error", http.StatusInternalServerError, true, 3},
		{"502 bad gateway", http.StatusBadGateway, true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL, 3).GeocodeSearch(context.Background(), "x", 5, "ja")
			if err == nil {
				t.Fatal("GeocodeSearch() expected error, got nil")
			}
			apiErr, ok := apperr.AsAPIError(err)
			if !ok {
				t.Fatalf("error %v is not an APIError", err)
			}
			if apiErr.Code != apperr.CodeGeocode {
				t.Errorf("Code = %q, want %q", apiErr.Code, apperr.CodeGeocode)
			}
			if apiErr.Status != tt.statusCode {
				t.Errorf("Status = %d, want %d", apiErr.Status, tt.statusCode)
			}
			if apiErr.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", apiErr.Retryable, tt.retryable)
			}
			if got := atomic.LoadInt32(&attempts); got != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tt.wantAttempts)
			}
			if tt.retryable && !strings.Contains(err.Error(), "exhausted retries") {
				t.Errorf("error = %v, want 'exhausted retries'", err)
			}
		})
	}
}

func TestGeocodeSearch_ErrorMessageCarriesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 1).GeocodeSearch(context.Background(), "x", 5, "ja")
	if err == nil || err.Error() != "GEO_ERR: HTTP 400" {
		t.Errorf("error = %v, want GEO_ERR: HTTP 400", err)
	}
}

func TestForecast_RetryLogic(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(forecastBody))
	}))
	defer server.Close()

	got, err := newTestClient(t, server.URL, 3).Forecast(context.Background(), ForecastParams{
		Latitude: 35.68, Longitude: 139.69, Timezone: "Asia/Tokyo", Days: 2, Hourly: true,
	})
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if got.CurrentWeather == nil || got.CurrentWeather.Temperature != 18.4 {
		t.Errorf("CurrentWeather = %+v", got.CurrentWeather)
	}
	if len(got.Daily.Time) != 2 || got.Daily.Weathercode[1] != nil || *got.Daily.Weathercode[0] != 1 {
		t.Errorf("Daily = %+v", got.Daily)
	}
	if got.Daily.Temperature2mMin[1] != nil {
		t.Error("null temperature should decode to nil")
	}
	if len(got.Hourly.PressureMsl) != 2 || *got.Hourly.PressureMsl[0] != 1012.3 {
		t.Errorf("Hourly.PressureMsl = %v", got.Hourly.PressureMsl)
	}
}

func TestForecast_QueryParameters(t *testing.T) {
	tests := []struct {
		name       string
		hourly     bool
		wantHourly string
	}{
		{"hourly enabled", true, "temperature_2m,relative_humidity_2m,weathercode,precipitation_probability,pressure_msl"},
		{"hourly disabled", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				want := map[string]string{
					"latitude":        "35.6895",
					"longitude":       "139.69171",
					"timezone":        "Asia/Tokyo",
					"current_weather": "true",
					"forecast_days":   "3",
					"daily":           "weathercode,temperature_2m_max,temperature_2m_min,precipitation_probability_max",
					"hourly":          tt.wantHourly,
				}
				for k, v := range want {
					if got := q.Get(k); got != v {
						t.Errorf("param %s = %q, want %q", k, got, v)
					}
				}
				_, _ = w.Write([]byte(`{}`))
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL, 1).Forecast(context.Background(), ForecastParams{
				Latitude: 35.6895, Longitude: 139.69171, Timezone: "Asia/Tokyo", Days: 3, Hourly: tt.hourly,
			})
			if err != nil {
				t.Fatalf("Forecast() error = %v", err)
			}
		})
	}
}

func TestForecast_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 3).Forecast(context.Background(), ForecastParams{Days: 1})
	if err == nil {
		t.Fatal("Forecast() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "parse response") {
		t.Errorf("Forecast() error = %v, want 'parse response'", err)
	}
	if apiErr, ok := apperr.AsAPIError(err); !ok || apiErr.Code != apperr.CodeForecast {
		t.Errorf("error = %v, want FORECAST_ERR APIError", err)
	}
}

func TestForecast_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, server.URL, 3).Forecast(ctx, ForecastParams{Days: 1})
	if err == nil {
		t.Fatal("Forecast() expected error, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Forecast() error = %v, want context.Canceled", err)
	}
}

func TestForecast_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	c, err := New(Options{ForecastURL: server.URL, Timeout: 50 * time.Millisecond, RetryAttempts: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = c.Forecast(context.Background(), ForecastParams{Days: 1})
	if err == nil {
		t.Fatal("Forecast() expected error, got nil")
	}
	if got := CategorizeError(err); got != ErrorCategoryTimeout {
		t.Errorf("CategorizeError() = %v, want timeout (err %v)", got, err)
	}
}

func TestCorrelationIDForwarded(t *testing.T) {
	var captured string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Get("X-Correlation-ID")
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	ctx := observability.WithCorrelationID(context.Background(), "test-correlation-id-123")
	if _, err := newTestClient(t, server.URL, 1).GeocodeSearch(ctx, "x", 1, "ja"); err != nil {
		t.Fatalf("GeocodeSearch() error = %v", err)
	}
	if captured != "test-correlation-id-123" {
		t.Errorf("X-Correlation-ID header = %q, want %q", captured, "test-correlation-id-123")
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, err := New(Options{
		GeocodingURL:    server.URL,
		ForecastURL:     server.URL,
		RetryAttempts:   1,
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, _ = c.GeocodeSearch(ctx, "x", 1, "ja")
	}
	if got := c.BreakerState(UpstreamGeocoding); got != gobreaker.StateOpen {
		t.Fatalf("BreakerState() = %v, want open", got)
	}

	_, err = c.GeocodeSearch(ctx, "x", 1, "ja")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error = %v, want ErrOpenState", err)
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Errorf("open breaker let a request through: attempts = %d", attempts)
	}
	if got := c.BreakerState(UpstreamForecast); got != gobreaker.StateClosed {
		t.Errorf("forecast breaker = %v, want closed", got)
	}
}

func TestCircuitBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c, err := New(Options{GeocodingURL: server.URL, RetryAttempts: 1, BreakerFailures: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		_, _ = c.GeocodeSearch(context.Background(), "x", 1, "ja")
	}
	if got := c.BreakerState(UpstreamGeocoding); got != gobreaker.StateClosed {
		t.Errorf("BreakerState() = %v, want closed", got)
	}
}

func TestCalculateBackoff(t *testing.T) {
	client := &OpenMeteoClient{
		retryBaseDelay: 100 * time.Millisecond,
		retryMaxDelay:  2 * time.Second,
	}

	tests := []struct {
		name    string
		attempt int
		wantMin time.Duration
		wantMax time.Duration
	}{
		{"first retry", 1, 100 * time.Millisecond, 110 * time.Millisecond},
		{"second retry", 2, 200 * time.Millisecond, 220 * time.Millisecond},
		{"third retry", 3, 400 * time.Millisecond, 440 * time.Millisecond},
		{"capped", 10, 2 * time.Second, 2200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := client.calculateBackoff(tt.attempt)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("calculateBackoff(%d) = %v, want in [%v, %v]", tt.attempt, got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestRetryBudget(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		timeout  time.Duration
		maxDelay time.Duration
		want     time.Duration
	}{
		{"single attempt", 1, 10 * time.Second, 2 * time.Second, 10 * time.Second},
		{"three attempts", 3, 10 * time.Second, 2 * time.Second, 34400 * time.Millisecond},
		{"zero attempts counts as one", 0, time.Second, time.Second, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RetryBudget(tt.attempts, tt.timeout, tt.maxDelay); got != tt.want {
				t.Errorf("RetryBudget() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCallBudget_CoversEveryBackoff(t *testing.T) {
	c, err := New(Options{Timeout: time.Second, RetryAttempts: 3, RetryMaxDelay: 500 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var backoffs time.Duration
	for attempt := 1; attempt < 3; attempt++ {
		backoffs += c.calculateBackoff(attempt)
	}
	if worst := 3*time.Second + backoffs; c.CallBudget() < worst {
		t.Errorf("CallBudget() = %v, below worst-case %v", c.CallBudget(), worst)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable api error", &apperr.APIError{Status: 503, Retryable: true}, true},
		{"wrapped retryable", errors.Join(errors.New("ctx"), &apperr.APIError{Retryable: true}), true},
		{"client error", &apperr.APIError{Status: 400}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatusLabel(t *testing.T) {
	tests := map[int]string{
		200: "success",
		204: "success",
		400: "client_error",
		429: "rate_limited",
		500: "server_error",
		100: "error",
	}
	for code, want := range tests {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
