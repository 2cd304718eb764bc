package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/geoweather-gateway/internal/observability"
)

// RouterConfig selects the optional parts of the route table.
type RouterConfig struct {
	RequestTimeout time.Duration
	Limiter        *rate.Limiter // nil disables rate limiting
	MCP            http.Handler  // nil leaves /api/mcp unmounted
	TestingMode    bool
}

// NewRouter builds the gateway's route table.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *mux.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()

	rest := api.NewRoute().Subrouter()
	rest.Use(CORSMiddleware)
	rest.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		rest.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	rest.HandleFunc("/geocode", h.GetGeocode).Methods(http.MethodGet)
	rest.HandleFunc("/forecast", h.GetForecast).Methods(http.MethodGet)
	rest.HandleFunc("/geocode", h.Preflight).Methods(http.MethodOptions)
	rest.HandleFunc("/forecast", h.Preflight).Methods(http.MethodOptions)

	if cfg.MCP != nil {
		api.PathPrefix("/mcp").Handler(RateLimitMiddleware(cfg.Limiter)(cfg.MCP))
	}

	if cfg.TestingMode {
		logger.Warn("testing mode enabled; DELETE /api/cache exposed")
		api.HandleFunc("/cache", h.DeleteCache).Methods(http.MethodDelete)
	}
	return router
}
