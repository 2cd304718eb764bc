// Package geocode resolves free-text place names to candidate coordinates.
//
// Resolution walks a fixed chain and stops at the first tier that answers:
// the geocode cache, the local gazetteer, the remote geocoder in the primary
// language, then the remote geocoder in the secondary language. The last
// tier's answer is cached even when it is empty.
package geocode

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/geoweather-gateway/internal/cache"
	"github.com/kjstillabower/geoweather-gateway/internal/client"
	"github.com/kjstillabower/geoweather-gateway/internal/models"
	"github.com/kjstillabower/geoweather-gateway/internal/observability"
	"github.com/kjstillabower/geoweather-gateway/internal/validation"
)

// Count bounds accepted by Resolve.
const (
	MinCount = 1
	MaxCount = 20
)

// Tier labels for the resolutions metric.
const (
	TierCache           = "cache"
	TierLocal           = "local"
	TierRemotePrimary   = "remote_primary"
	TierRemoteSecondary = "remote_secondary"
)

// LocalSearcher answers place queries from a local dataset.
type LocalSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.GeoCandidate, error)
}

// Config selects the remote geocoder languages.
type Config struct {
	PrimaryLanguage   string
	SecondaryLanguage string
}

// Resolver implements the resolution chain. Local may be nil.
type Resolver struct {
	local  LocalSearcher
	remote client.Geocoder
	cache  *cache.TTLCache[[]models.GeoCandidate]
	cfg    Config
	logger *zap.Logger
}

// NewResolver wires a Resolver. Empty languages default to "ja" and "en".
func NewResolver(local LocalSearcher, remote client.Geocoder, c *cache.TTLCache[[]models.GeoCandidate], cfg Config, logger *zap.Logger) *Resolver {
	if cfg.PrimaryLanguage == "" {
		cfg.PrimaryLanguage = "ja"
	}
	if cfg.SecondaryLanguage == "" {
		cfg.SecondaryLanguage = "en"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{local: local, remote: remote, cache: c, cfg: cfg, logger: logger}
}

// Resolve returns up to count candidates for place. place is trimmed first;
// an empty place or a count outside [MinCount, MaxCount] is a validation
// error. Local gazetteer failures are logged and skipped; remote failures are
// returned.
func (r *Resolver) Resolve(ctx context.Context, place string, count int) ([]models.GeoCandidate, error) {
	place, err := validation.ValidatePlace(place)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateRange("count", count, MinCount, MaxCount); err != nil {
		return nil, err
	}

	logger := observability.LoggerFrom(ctx, r.logger)
	key := cache.GeocodeKey(place, count)
	if cached, ok := r.cache.Get(key); ok {
		r.record(TierCache, cached)
		return cached, nil
	}

	if r.local != nil {
		start := time.Now()
		found, err := r.local.Search(ctx, place, count)
		if err != nil {
			logger.Warn("local gazetteer search failed",
				zap.String("place", place),
				zap.Error(err))
		} else if len(found) > 0 {
			out := Dedupe(found)
			r.cache.Set(key, out)
			r.record(TierLocal, out)
			logger.Debug("resolved from gazetteer",
				zap.String("place", place),
				zap.Int("candidates", len(out)),
				zap.Duration("duration", time.Since(start)))
			return out, nil
		}
	}

	found, err := r.remote.GeocodeSearch(ctx, place, count, r.cfg.PrimaryLanguage)
	if err != nil {
		return nil, fmt.Errorf("geocode %q (%s): %w", place, r.cfg.PrimaryLanguage, err)
	}
	if len(found) > 0 {
		out := Dedupe(found)
		r.cache.Set(key, out)
		r.record(TierRemotePrimary, out)
		return out, nil
	}

	found, err = r.remote.GeocodeSearch(ctx, place, count, r.cfg.SecondaryLanguage)
	if err != nil {
		return nil, fmt.Errorf("geocode %q (%s): %w", place, r.cfg.SecondaryLanguage, err)
	}
	out := Dedupe(found)
	r.cache.Set(key, out)
	r.record(TierRemoteSecondary, out)
	if len(out) == 0 {
		logger.Info("no candidates for place", zap.String("place", place))
	}
	return out, nil
}

func (r *Resolver) record(tier string, out []models.GeoCandidate) {
	observability.GeocodeResolutionsTotal.WithLabelValues(tier).Inc()
	observability.GeocodeCandidatesReturned.Observe(float64(len(out)))
}

// Dedupe drops candidates whose coordinates match an earlier one at six
// decimal places, keeping first occurrences in order. Candidates with
// non-finite coordinates are always kept. The result is never nil.
func Dedupe(in []models.GeoCandidate) []models.GeoCandidate {
	out := make([]models.GeoCandidate, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range in {
		if !finite(c.Latitude) || !finite(c.Longitude) {
			out = append(out, c)
			continue
		}
		key := fmt.Sprintf("%.6f,%.6f", c.Latitude, c.Longitude)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
