package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/geoweather-gateway/internal/apperr"
	"github.com/kjstillabower/geoweather-gateway/internal/cache"
	"github.com/kjstillabower/geoweather-gateway/internal/client"
	"github.com/kjstillabower/geoweather-gateway/internal/forecast"
	"github.com/kjstillabower/geoweather-gateway/internal/geocode"
	"github.com/kjstillabower/geoweather-gateway/internal/lifecycle"
	"github.com/kjstillabower/geoweather-gateway/internal/models"
	"github.com/kjstillabower/geoweather-gateway/internal/observability"
	"github.com/kjstillabower/geoweather-gateway/internal/traffic"
)

// Error codes written in the "error" field of JSON error bodies.
const (
	CodeInvalidQuery        = "invalid_query"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeRateLimited         = "rate_limited"
	CodeTimeout             = "timeout"
)

// PlaceResolver resolves place names to candidates.
type PlaceResolver interface {
	Resolve(ctx context.Context, place string, count int) ([]models.GeoCandidate, error)
}

// ForecastGetter serves forecasts.
type ForecastGetter interface {
	Get(ctx context.Context, req forecast.Request) (models.ForecastResult, error)
}

// BreakerReporter exposes per-upstream circuit breaker state.
type BreakerReporter interface {
	BreakerState(upstream string) gobreaker.State
}

// ReadinessChecker reports whether a lazily built dependency is ready.
type ReadinessChecker interface {
	Ready() bool
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	Version          string
}

// Deps are the collaborators a Handler serves from. Breakers, Gazetteer and
// Caches are optional.
type Deps struct {
	Resolver  PlaceResolver
	Forecasts ForecastGetter
	Breakers  BreakerReporter
	Gazetteer ReadinessChecker
	Caches    *cache.Group
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	deps             Deps
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(deps Deps, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{deps: deps, healthConfig: healthConfig, logger: logger}
}

// GetGeocode handles GET /api/geocode?place=&count=. count defaults to
// geocode.MaxCount.
func (h *Handler) GetGeocode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	place := strings.TrimSpace(q.Get("place"))

	count := geocode.MaxCount
	if raw := q.Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeInvalid(w, r, apperr.Validation("count", "must be an integer"))
			return
		}
		count = n
	}

	candidates, err := h.deps.Resolver.Resolve(r.Context(), place, count)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, models.GeocodingResult{
		Kind:       models.KindGeocode,
		Query:      place,
		Candidates: candidates,
	})
}

// Preflight handles OPTIONS on the public API routes. CORS headers are set by
// CORSMiddleware.
func (h *Handler) Preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// GetForecast handles GET /api/forecast?latitude=&longitude=&days=&timezone=&label=.
// days defaults to 3.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("latitude"), 64)
	if err != nil {
		writeInvalid(w, r, apperr.Validation("latitude", "must be a number"))
		return
	}
	lon, err := strconv.ParseFloat(q.Get("longitude"), 64)
	if err != nil {
		writeInvalid(w, r, apperr.Validation("longitude", "must be a number"))
		return
	}
	days := 3
	if raw := q.Get("days"); raw != "" {
		if days, err = strconv.Atoi(raw); err != nil {
			writeInvalid(w, r, apperr.Validation("days", "must be an integer"))
			return
		}
	}

	result, err := h.deps.Forecasts.Get(r.Context(), forecast.Request{
		Latitude:  lat,
		Longitude: lon,
		Days:      days,
		Timezone:  q.Get("timezone"),
		Label:     q.Get("label"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, result)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if b := h.deps.Breakers; b != nil {
		checks[client.UpstreamGeocoding] = b.BreakerState(client.UpstreamGeocoding).String()
		checks[client.UpstreamForecast] = b.BreakerState(client.UpstreamForecast).String()
	}
	if g := h.deps.Gazetteer; g != nil {
		if g.Ready() {
			checks["gazetteer"] = "ready"
		} else {
			checks["gazetteer"] = "not_loaded"
		}
	}

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "geoweather-gateway",
		"version":   h.version(),
		"checks":    checks,
		"uptime":    lifecycle.Uptime().Truncate(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.deps.Caches != nil {
		resp["caches"] = h.deps.Caches.Stats()
	}
	writeJSON(w, result.statusCode, resp)
}

func (h *Handler) version() string {
	if h.healthConfig != nil && h.healthConfig.Version != "" {
		return h.healthConfig.Version
	}
	return "dev"
}

// computeHealthStatus evaluates, in order: shutting-down, an open upstream
// breaker, the upstream error rate. The first condition met wins.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if b := h.deps.Breakers; b != nil {
		for _, upstream := range []string{client.UpstreamGeocoding, client.UpstreamForecast} {
			if b.BreakerState(upstream) == gobreaker.StateOpen {
				return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open_" + upstream}
			}
		}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errs) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// DeleteCache handles DELETE /api/cache (testing mode only). It clears every
// cache, drops the gazetteer index when one is resettable, and resets the
// traffic windows.
func (h *Handler) DeleteCache(w http.ResponseWriter, r *http.Request) {
	if h.deps.Caches != nil {
		h.deps.Caches.ClearAll()
	}
	if g, ok := h.deps.Gazetteer.(interface{ Reset() }); ok {
		g.Reset()
	}
	traffic.Reset()
	observability.LoggerFrom(r.Context(), h.logger).Warn("caches cleared")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": "caches cleared",
	})
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": code, "message": ..., "requestId": ...}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":     code,
		"message":   message,
		"requestId": observability.CorrelationID(r.Context()),
	})
}

func writeInvalid(w http.ResponseWriter, r *http.Request, ve *apperr.ValidationError) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error": CodeInvalidQuery,
		"details": map[string]string{
			"field":   ve.Field,
			"message": ve.Message,
		},
		"requestId": observability.CorrelationID(r.Context()),
	})
}

// writeServiceError maps a resolver or forecast error to a response:
// validation failures are 400, deadline expiry 504 and everything else 502.
// Only the latter two count toward the degraded error rate.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		writeInvalid(w, r, ve)
		return
	}

	traffic.RecordError()
	logger := observability.LoggerFrom(r.Context(), h.logger)
	logger.Warn("upstream error",
		zap.String("category", string(client.CategorizeError(err))),
		zap.Error(err))

	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, r, http.StatusGatewayTimeout, CodeTimeout, "request timed out")
		return
	}
	writeError(w, r, http.StatusBadGateway, CodeUpstreamUnavailable, "unable to reach the weather service")
}
