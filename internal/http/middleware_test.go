package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/geoweather-gateway/internal/models"
	"github.com/kjstillabower/geoweather-gateway/internal/observability"
	"github.com/kjstillabower/geoweather-gateway/internal/traffic"
)

func TestMiddleware_CorrelationIDGenerated(t *testing.T) {
	var seen string
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		seen = observability.CorrelationID(r.Context())
	})

	w := serve(router, http.MethodGet, "/x")

	got := w.Header().Get(CorrelationIDHeader)
	if got == "" {
		t.Fatal("X-Correlation-ID header missing")
	}
	if seen != got {
		t.Errorf("context correlation ID = %q, header = %q", seen, got)
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.New(core)))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		observability.LoggerFrom(r.Context(), nil).Info("handled")
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(CorrelationIDHeader, "client-provided-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get(CorrelationIDHeader); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
	entries := logs.FilterMessage("handled").All()
	if len(entries) != 1 || entries[0].ContextMap()["correlation_id"] != "client-provided-id" {
		t.Errorf("request logger entries = %v", entries)
	}
}

func TestMiddleware_MetricsTracksInFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	})

	done := make(chan struct{})
	go func() {
		serve(router, http.MethodGet, "/slow")
		close(done)
	}()

	<-entered
	if got := InFlightCount(); got != 1 {
		t.Errorf("InFlightCount() during request = %d, want 1", got)
	}
	close(release)
	<-done
	if got := InFlightCount(); got != 0 {
		t.Errorf("InFlightCount() after request = %d, want 0", got)
	}
}

func TestMiddleware_MetricsRecordsNonOK(t *testing.T) {
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	w := serve(router, http.MethodGet, "/fail")
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}

	metrics := serve(observability.MetricsHandler(), http.MethodGet, "/metrics").Body.String()
	if !strings.Contains(metrics, `httpRequestsTotal{method="GET",route="/fail",statusCode="5xx"}`) {
		t.Error("5xx request not recorded under its route template")
	}
}

func TestMiddleware_GetRouteFallback(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/api/geocode", "/api/geocode"},
		{"/api/mcp/session/abc", "/api/mcp"},
		{"/random/path", "other"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if got := getRoute(req); got != tt.want {
			t.Errorf("getRoute(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestTimeoutMiddleware_CancelsContextAfterTimeout(t *testing.T) {
	var ctxErr error
	handler := TimeoutMiddleware(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		ctxErr = r.Context().Err()
	}))

	serve(handler, http.MethodGet, "/api/geocode")

	if ctxErr != context.DeadlineExceeded {
		t.Errorf("ctx.Err() = %v, want DeadlineExceeded", ctxErr)
	}
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	resetState(t)
	limiter := rate.NewLimiter(rate.Limit(1), 2)
	router := newTestRouter(NewHandler(Deps{Resolver: &mockResolver{candidates: []models.GeoCandidate{}}}, nil, nil), RouterConfig{Limiter: limiter})

	var codes []int
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(router, http.MethodGet, "/api/geocode?place=Tokyo").Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("first two requests = %v, want 200", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", codes[2])
	}
	if got := traffic.DenialCount(time.Minute); got != 1 {
		t.Errorf("DenialCount = %d, want 1", got)
	}
}

func TestRateLimitMiddleware_PreflightNotLimited(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	router := newTestRouter(NewHandler(Deps{Resolver: &mockResolver{}}, nil, nil), RouterConfig{Limiter: limiter})

	for i := 0; i < 3; i++ {
		if w := serve(router, http.MethodOptions, "/api/geocode"); w.Code != http.StatusNoContent {
			t.Fatalf("preflight %d status = %d, want 204", i, w.Code)
		}
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	called := false
	handler := RateLimitMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	serve(handler, http.MethodGet, "/api/geocode")

	if !called {
		t.Error("next handler not called")
	}
}

func TestRouter_MCPMount(t *testing.T) {
	var gotPath string
	mcp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	})
	router := newTestRouter(NewHandler(Deps{}, nil, nil), RouterConfig{MCP: mcp, RequestTimeout: time.Millisecond})

	req := httptest.NewRequest(http.MethodPost, "/api/mcp", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted || gotPath != "/api/mcp" {
		t.Errorf("status = %d path = %q", w.Code, gotPath)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("REST CORS headers leaked onto the MCP mount")
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := newTestRouter(NewHandler(Deps{}, nil, nil), RouterConfig{})

	w := serve(router, http.MethodGet, "/metrics")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("runtime metrics missing from /metrics")
	}
}
