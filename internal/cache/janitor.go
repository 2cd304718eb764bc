package cache

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/geoweather-gateway/internal/observability"
)

// Managed is the type-independent surface of a TTLCache.
type Managed interface {
	Name() string
	Cleanup() int
	Clear()
	Stats() Stats
	HitRate() float64
}

// Group addresses several caches as one for sweeping, clearing and reporting.
type Group struct {
	members []Managed
}

// NewGroup returns a Group over the given caches.
func NewGroup(members ...Managed) *Group {
	return &Group{members: members}
}

// Cleanup sweeps expired entries from every member and returns the total removed.
func (g *Group) Cleanup() int {
	removed := 0
	for _, m := range g.members {
		n := m.Cleanup()
		if n > 0 {
			observability.CacheCleanupRemovedTotal.WithLabelValues(m.Name()).Add(float64(n))
		}
		removed += n
	}
	return removed
}

// ClearAll drops every entry in every member.
func (g *Group) ClearAll() {
	for _, m := range g.members {
		m.Clear()
	}
}

// Stats reports each member's counters by name.
func (g *Group) Stats() map[string]Stats {
	out := make(map[string]Stats, len(g.members))
	for _, m := range g.members {
		out[m.Name()] = m.Stats()
	}
	return out
}

// Janitor periodically sweeps expired entries from a Group.
type Janitor struct {
	group     *Group
	interval  time.Duration
	scheduler *gocron.Scheduler
	logger    *zap.Logger
}

// NewJanitor returns a Janitor that sweeps group every interval once started.
func NewJanitor(group *Group, interval time.Duration, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		group:     group,
		interval:  interval,
		scheduler: gocron.NewScheduler(time.UTC),
		logger:    logger,
	}
}

// Start schedules the sweep and starts the scheduler in the background.
func (j *Janitor) Start() error {
	if j.interval <= 0 {
		return fmt.Errorf("cache janitor: interval must be positive, got %s", j.interval)
	}
	if _, err := j.scheduler.Every(j.interval).Do(j.sweep); err != nil {
		return fmt.Errorf("cache janitor: schedule: %w", err)
	}
	j.scheduler.StartAsync()
	j.logger.Info("cache janitor started", zap.Duration("interval", j.interval))
	return nil
}

// Stop cancels future sweeps.
func (j *Janitor) Stop() {
	j.scheduler.Stop()
}

func (j *Janitor) sweep() {
	removed := j.group.Cleanup()
	j.logger.Debug("cache sweep complete", zap.Int("removed", removed))
}
