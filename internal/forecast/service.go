package forecast

import (
	"context"
	"fmt"
	"strings"
	"time"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"go.uber.org/zap"

	"github.com/kjstillabower/geoweather-gateway/internal/cache"
	"github.com/kjstillabower/geoweather-gateway/internal/client"
	"github.com/kjstillabower/geoweather-gateway/internal/models"
	"github.com/kjstillabower/geoweather-gateway/internal/observability"
	"github.com/kjstillabower/geoweather-gateway/internal/validation"
)

// Day bounds accepted by Get.
const (
	MinDays = 1
	MaxDays = 7
)

// DefaultGeohashPrecision gives cells of roughly 150m.
const DefaultGeohashPrecision = 7

// Request selects a forecast. An empty Timezone means Asia/Tokyo; an empty
// Label is filled from the nearest gazetteer place when one is known.
type Request struct {
	Latitude  float64
	Longitude float64
	Days      int
	Timezone  string
	Label     string
}

// Labeler names the place nearest a point.
type Labeler interface {
	NearestLabel(lat, lon float64) (string, bool)
}

// Config tunes a Service.
type Config struct {
	Hourly           bool
	CoalesceTimeout  time.Duration
	GeohashPrecision int
}

// Service serves forecasts cache-aside, coalescing concurrent misses for the
// same key into one upstream call.
type Service struct {
	fetcher   client.Forecaster
	cache     *cache.TTLCache[models.ForecastResult]
	labeler   Labeler
	cfg       Config
	coalescer *requestCoalescer[models.ForecastResult]
	stampede  *stampedeTracker
	logger    *zap.Logger
}

// NewService wires a Service. labeler may be nil.
func NewService(fetcher client.Forecaster, c *cache.TTLCache[models.ForecastResult], labeler Labeler, cfg Config, logger *zap.Logger) *Service {
	if cfg.CoalesceTimeout <= 0 {
		cfg.CoalesceTimeout = 15 * time.Second
	}
	if cfg.GeohashPrecision <= 0 {
		cfg.GeohashPrecision = DefaultGeohashPrecision
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		fetcher:   fetcher,
		cache:     c,
		labeler:   labeler,
		cfg:       cfg,
		coalescer: newRequestCoalescer[models.ForecastResult](cfg.CoalesceTimeout),
		stampede:  newStampedeTracker(),
		logger:    logger,
	}
}

// Get returns the forecast for req. Coordinates must be finite and in range,
// Days within [MinDays, MaxDays]; violations are validation errors. Upstream
// failures are returned as-is and never cached.
func (s *Service) Get(ctx context.Context, req Request) (models.ForecastResult, error) {
	if err := validation.ValidateCoordinates(req.Latitude, req.Longitude); err != nil {
		return models.ForecastResult{}, err
	}
	if err := validation.ValidateRange("days", req.Days, MinDays, MaxDays); err != nil {
		return models.ForecastResult{}, err
	}
	tz, err := validation.NormalizeTimezone(req.Timezone)
	if err != nil {
		return models.ForecastResult{}, err
	}

	observability.ForecastRequestsTotal.Inc()
	logger := observability.LoggerFrom(ctx, s.logger)
	start := time.Now()
	key := cache.ForecastKey(req.Latitude, req.Longitude, req.Days, tz)

	if cached, ok := s.cache.Get(key); ok {
		logger.Debug("forecast served", zap.String("key", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return s.withLabel(cached, req), nil
	}

	if n := s.stampede.RecordMiss(key); n > 1 {
		observability.CacheStampedeDetectedTotal.Inc()
		logger.Debug("concurrent forecast misses", zap.String("key", key), zap.Int("concurrent", n))
	}
	defer s.stampede.Done(key)

	// The shared fetch outlives any single caller's cancellation.
	fetchCtx := context.WithoutCancel(ctx)
	result, joined, err := s.coalescer.GetOrDo(ctx, key, func() (models.ForecastResult, error) {
		return s.fetch(fetchCtx, key, req.Latitude, req.Longitude, req.Days, tz)
	})
	if joined {
		observability.RequestCoalescingHitsTotal.Inc()
	}
	if err != nil {
		return models.ForecastResult{}, fmt.Errorf("forecast %s: %w", key, err)
	}

	logger.Debug("forecast served", zap.String("key", key), zap.Bool("cached", false), zap.Bool("coalesced", joined), zap.Duration("duration", time.Since(start)))
	return s.withLabel(result, req), nil
}

func (s *Service) fetch(ctx context.Context, key string, lat, lon float64, days int, tz string) (models.ForecastResult, error) {
	raw, err := s.fetcher.Forecast(ctx, client.ForecastParams{
		Latitude:  lat,
		Longitude: lon,
		Timezone:  tz,
		Days:      days,
		Hourly:    s.cfg.Hourly,
	})
	if err != nil {
		return models.ForecastResult{}, err
	}

	result := models.ForecastResult{
		Kind: models.KindForecast,
		Location: models.Location{
			Latitude:  lat,
			Longitude: lon,
			Timezone:  tz,
			Geohash:   geohash.EncodeWithPrecision(lat, lon, s.cfg.GeohashPrecision),
		},
		Current: Current(raw),
		Daily:   Normalize(raw, s.cfg.Hourly),
		Source:  models.SourceOpenMeteo,
	}
	s.cache.Set(key, result)
	return result, nil
}

// withLabel returns a copy of r carrying the caller's label or, failing that,
// the nearest known place name.
func (s *Service) withLabel(r models.ForecastResult, req Request) models.ForecastResult {
	label := strings.TrimSpace(req.Label)
	if label == "" && s.labeler != nil {
		if nearest, ok := s.labeler.NearestLabel(req.Latitude, req.Longitude); ok {
			label = nearest
		}
	}
	r.Location.Label = label
	return r
}
