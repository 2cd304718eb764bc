//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/geoweather-gateway/internal/cache"
	"github.com/kjstillabower/geoweather-gateway/internal/client"
	"github.com/kjstillabower/geoweather-gateway/internal/forecast"
	"github.com/kjstillabower/geoweather-gateway/internal/gazetteer"
	"github.com/kjstillabower/geoweather-gateway/internal/geocode"
	"github.com/kjstillabower/geoweather-gateway/internal/models"
	"github.com/kjstillabower/geoweather-gateway/internal/observability"
)

// IntegrationTestConfig holds configuration for live-upstream tests.
type IntegrationTestConfig struct {
	GeocodingURL  string
	ForecastURL   string
	GazetteerPath string // empty runs without the local gazetteer
}

// GetIntegrationConfig loads live test configuration from the environment.
// Skips the test unless GEOWEATHER_LIVE_TESTS is set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	if os.Getenv("GEOWEATHER_LIVE_TESTS") == "" {
		t.Skip("GEOWEATHER_LIVE_TESTS not set, skipping integration test")
	}
	cfg := IntegrationTestConfig{
		GeocodingURL:  os.Getenv("GEOWEATHER_UPSTREAM_GEOCODING_URL"),
		ForecastURL:   os.Getenv("GEOWEATHER_UPSTREAM_FORECAST_URL"),
		GazetteerPath: os.Getenv("GEOWEATHER_GAZETTEER_PATH"),
	}
	if cfg.GeocodingURL == "" {
		cfg.GeocodingURL = client.DefaultGeocodingURL
	}
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = client.DefaultForecastURL
	}
	return cfg
}

// Stack is the service graph main wires, built against live upstreams.
type Stack struct {
	Client    *client.OpenMeteoClient
	Gazetteer *gazetteer.Loader // nil without GazetteerPath
	Resolver  *geocode.Resolver
	Forecasts *forecast.Service
	Caches    *cache.Group
}

// SetupIntegrationStack builds a Stack with fresh caches.
func SetupIntegrationStack(t *testing.T, cfg IntegrationTestConfig) *Stack {
	t.Helper()
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	t.Cleanup(func() { _ = logger.Sync() })

	c, err := client.New(client.Options{
		GeocodingURL: cfg.GeocodingURL,
		ForecastURL:  cfg.ForecastURL,
		Timeout:      10 * time.Second,
		Logger:       logger,
	})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	geoCache := cache.New[[]models.GeoCandidate]("geocode", 100, time.Hour)
	fcCache := cache.New[models.ForecastResult]("forecast", 100, 10*time.Minute)

	s := &Stack{Client: c, Caches: cache.NewGroup(geoCache, fcCache)}

	var local geocode.LocalSearcher
	var labeler forecast.Labeler
	if cfg.GazetteerPath != "" {
		s.Gazetteer = gazetteer.NewLoader(cfg.GazetteerPath, logger.Named("gazetteer"))
		local, labeler = s.Gazetteer, s.Gazetteer
	}
	s.Resolver = geocode.NewResolver(local, c, geoCache, geocode.Config{}, logger.With(zap.String("component", "resolver")))
	s.Forecasts = forecast.NewService(c, fcCache, labeler, forecast.Config{Hourly: true}, logger.With(zap.String("component", "forecast")))
	return s
}
