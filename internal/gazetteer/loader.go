package gazetteer

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/geoweather-gateway/internal/apperr"
	"github.com/kjstillabower/geoweather-gateway/internal/models"
	"github.com/kjstillabower/geoweather-gateway/internal/observability"
)

// Loader owns the process's gazetteer index. The dataset is read on first use;
// at most one build runs at a time and concurrent callers wait for it. A failed
// build is not remembered, so the next call tries again.
type Loader struct {
	path   string
	opts   []Option
	logger *zap.Logger

	group singleflight.Group

	mu    sync.RWMutex
	index *Index
}

// NewLoader returns a Loader for the dataset at path.
func NewLoader(path string, logger *zap.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{path: path, opts: opts, logger: logger}
}

// Index returns the built index, building it if needed. A caller whose ctx ends
// while a build is running stops waiting; the build itself continues for the
// others.
func (l *Loader) Index(ctx context.Context) (*Index, error) {
	if ix := l.cached(); ix != nil {
		return ix, nil
	}
	ch := l.group.DoChan("index", func() (interface{}, error) {
		if ix := l.cached(); ix != nil {
			return ix, nil
		}
		ix, err := l.build()
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.index = ix
		l.mu.Unlock()
		return ix, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Index), nil
	}
}

// Search resolves query against the index. An empty query returns no
// candidates without touching the dataset.
func (l *Loader) Search(ctx context.Context, query string, limit int) ([]models.GeoCandidate, error) {
	if NormalizeQuery(query) == "" {
		return nil, nil
	}
	ix, err := l.Index(ctx)
	if err != nil {
		return nil, err
	}
	return ix.Search(query, limit), nil
}

// NearestLabel labels the point from the index if it is already built. It
// never triggers a build.
func (l *Loader) NearestLabel(lat, lon float64) (string, bool) {
	ix := l.cached()
	if ix == nil {
		return "", false
	}
	return ix.NearestLabel(lat, lon)
}

// Ready reports whether an index has been built.
func (l *Loader) Ready() bool {
	return l.cached() != nil
}

// Reset drops the built index so the next call rebuilds it. For tests and
// dataset reloads.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.index = nil
}

func (l *Loader) cached() *Index {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.index
}

func (l *Loader) build() (*Index, error) {
	start := time.Now()
	f, err := os.Open(l.path)
	if err != nil {
		return nil, l.buildFailed(start, err)
	}
	defer f.Close()

	ix, err := Parse(f, l.opts...)
	if err != nil {
		return nil, l.buildFailed(start, err)
	}
	duration := time.Since(start)
	observability.GazetteerBuildsTotal.WithLabelValues("success").Inc()
	observability.GazetteerBuildDuration.Observe(duration.Seconds())
	observability.GazetteerRows.Set(float64(ix.Len()))
	l.logger.Info("gazetteer index built",
		zap.String("path", l.path),
		zap.Int("rows", ix.Len()),
		zap.Int("admin1", len(ix.admin1Names)),
		zap.Duration("duration", duration))
	return ix, nil
}

func (l *Loader) buildFailed(start time.Time, err error) error {
	observability.GazetteerBuildsTotal.WithLabelValues("error").Inc()
	observability.GazetteerBuildDuration.Observe(time.Since(start).Seconds())
	l.logger.Warn("gazetteer index build failed", zap.String("path", l.path), zap.Error(err))
	return &apperr.IndexBuildError{Path: l.path, Err: err}
}
