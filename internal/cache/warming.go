package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/geoweather-gateway/internal/models"
	"github.com/kjstillabower/geoweather-gateway/internal/observability"
)

// PlaceResolver is implemented by the candidate resolver. Declared here so the
// warmer does not import the geocode package.
type PlaceResolver interface {
	Resolve(ctx context.Context, place string, count int) ([]models.GeoCandidate, error)
}

// Warmer prefetches candidate lists for frequently requested places so the
// first real lookup is served from cache.
type Warmer struct {
	resolver PlaceResolver
	count    int
	logger   *zap.Logger
}

// NewWarmer returns a Warmer that resolves each place with the given count.
func NewWarmer(resolver PlaceResolver, count int, logger *zap.Logger) *Warmer {
	return &Warmer{resolver: resolver, count: count, logger: logger}
}

// Warm resolves every place concurrently. Failures are collected and returned
// together; successful places stay cached either way.
func (w *Warmer) Warm(ctx context.Context, places []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("places", len(places)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(places))
	for _, place := range places {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.resolver.Resolve(ctx, place, w.count); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", place, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("places", len(places)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then repeats at interval until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, places []string, interval time.Duration) error {
	if err := w.Warm(ctx, places); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, places); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
