package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/geoweather-gateway/internal/cache"
	"github.com/kjstillabower/geoweather-gateway/internal/client"
	"github.com/kjstillabower/geoweather-gateway/internal/config"
	"github.com/kjstillabower/geoweather-gateway/internal/forecast"
	"github.com/kjstillabower/geoweather-gateway/internal/gazetteer"
	"github.com/kjstillabower/geoweather-gateway/internal/geocode"
	httphandler "github.com/kjstillabower/geoweather-gateway/internal/http"
	"github.com/kjstillabower/geoweather-gateway/internal/lifecycle"
	"github.com/kjstillabower/geoweather-gateway/internal/models"
	"github.com/kjstillabower/geoweather-gateway/internal/observability"
	"github.com/kjstillabower/geoweather-gateway/internal/tools"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// warmCount is the candidate count warmed per place; it matches the MCP
// geocode_place default so warmed entries are the ones tools hit.
const warmCount = 5

func main() {
	lifecycle.MarkStarted(time.Now())

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	omClient, err := client.New(client.Options{
		GeocodingURL:    cfg.GeocodingURL,
		ForecastURL:     cfg.ForecastURL,
		Timeout:         cfg.UpstreamTimeout,
		RetryAttempts:   cfg.RetryAttempts,
		RetryBaseDelay:  cfg.RetryBaseDelay,
		RetryMaxDelay:   cfg.RetryMaxDelay,
		BreakerFailures: uint32(cfg.BreakerFailures),
		BreakerTimeout:  cfg.BreakerTimeout,
		Logger:          logger.Named("client"),
	})
	if err != nil {
		logger.Fatal("open-meteo client", zap.Error(err))
	}

	loader := gazetteer.NewLoader(cfg.GazetteerPath, logger.Named("gazetteer"), gazetteer.WithCountryName(cfg.GazetteerCountryName))
	if cfg.GazetteerPreload {
		go func() {
			if _, err := loader.Index(context.Background()); err != nil {
				logger.Warn("gazetteer preload failed; remote geocoding only until the dataset is readable", zap.Error(err))
			}
		}()
	}

	geoCache := cache.New[[]models.GeoCandidate]("geocode", cfg.GeocodeCacheSize, cfg.GeocodeCacheTTL)
	fcCache := cache.New[models.ForecastResult]("forecast", cfg.ForecastCacheSize, cfg.ForecastCacheTTL)
	for _, c := range []interface {
		Name() string
		Stats() cache.Stats
	}{geoCache, fcCache} {
		observability.RegisterCacheStats(c.Name(), func() (uint64, uint64, int) {
			s := c.Stats()
			return s.Hits, s.Misses, s.Size
		})
	}
	caches := cache.NewGroup(geoCache, fcCache)
	janitor := cache.NewJanitor(caches, cfg.CacheCleanupInterval, logger.Named("janitor"))
	if err := janitor.Start(); err != nil {
		logger.Fatal("cache janitor", zap.Error(err))
	}

	resolver := geocode.NewResolver(loader, omClient, geoCache, geocode.Config{
		PrimaryLanguage:   cfg.PrimaryLanguage,
		SecondaryLanguage: cfg.SecondaryLanguage,
	}, logger.With(zap.String("component", "resolver")))
	forecasts := forecast.NewService(omClient, fcCache, loader, forecast.Config{
		Hourly:          cfg.ForecastHourly,
		CoalesceTimeout: omClient.CallBudget(),
	}, logger.With(zap.String("component", "forecast")))

	warmCtx, stopWarming := context.WithCancel(context.Background())
	defer stopWarming()
	if len(cfg.WarmPlaces) > 0 {
		warmer := cache.NewWarmer(resolver, warmCount, logger.Named("warmer"))
		go func() {
			startCtx, cancel := context.WithTimeout(warmCtx, 30*time.Second)
			if err := warmer.Warm(startCtx, cfg.WarmPlaces); err != nil {
				logger.Warn("cache warming failed", zap.Error(err))
			}
			cancel()
			if cfg.WarmInterval > 0 {
				if err := warmer.WarmPeriodic(warmCtx, cfg.WarmPlaces, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}
		}()
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	observability.RegisterRateLimitGauges(cfg.DegradedWindow)

	handler := httphandler.NewHandler(httphandler.Deps{
		Resolver:  resolver,
		Forecasts: forecasts,
		Breakers:  omClient,
		Gazetteer: loader,
		Caches:    caches,
	}, &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		Version:          version,
	}, logger)

	mcpServer := tools.NewServer(resolver, forecasts, version, logger.Named("mcp"))
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
		MCP:            tools.Handler(mcpServer),
		TestingMode:    cfg.TestingMode,
	}, logger)
	if cfg.TestingMode {
		logger.Warn("Testing mode enabled; DELETE /api/cache exposed")
	}

	// No WriteTimeout: MCP streamable HTTP holds GET streams open.
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", ":"+cfg.ServerPort),
			zap.String("version", version),
			zap.String("gazetteer", cfg.GazetteerPath),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	stopWarming()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	janitor.Stop()
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
