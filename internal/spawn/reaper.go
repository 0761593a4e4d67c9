package spawn

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dimaspandu/pokecat-hunt/internal/creature"
	"github.com/dimaspandu/pokecat-hunt/internal/telemetry"
	"github.com/dimaspandu/pokecat-hunt/logging"
	spawnlog "github.com/dimaspandu/pokecat-hunt/logging/spawn"
)

// LockReleaser returns locks that have been held for at least ttl to the
// wild state and reports the committed transitions.
type LockReleaser interface {
	ReleaseStale(ctx context.Context, now time.Time, ttl time.Duration) []creature.Transition
}

type ReaperConfig struct {
	Interval time.Duration
	// LockTTL releases unconfirmed locks older than this. Zero disables.
	LockTTL time.Duration
}

func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{Interval: 5 * time.Second, LockTTL: 60 * time.Second}
}

// Sweep is the outcome of one reaper pass.
type Sweep struct {
	Cycle    uint64
	Expired  []creature.Entity
	Released []creature.Transition
}

// Changed reports whether the wild set differs after the sweep.
func (s Sweep) Changed() bool {
	return len(s.Expired) > 0 || len(s.Released) > 0
}

type ReaperDeps struct {
	Registry  *creature.Registry
	Locks     LockReleaser
	Now       func() time.Time
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	// Notify runs after a sweep that changed the wild set.
	Notify func(Sweep)
}

// Reaper removes expired wild creatures and, when configured, releases
// stale locks.
type Reaper struct {
	cfg       ReaperConfig
	registry  *creature.Registry
	locks     LockReleaser
	now       func() time.Time
	publisher logging.Publisher
	logger    telemetry.Logger
	metrics   telemetry.Metrics
	notify    func(Sweep)
	cycle     atomic.Uint64
}

func NewReaper(cfg ReaperConfig, deps ReaperDeps) (*Reaper, error) {
	if deps.Registry == nil {
		return nil, errors.New("reaper requires a registry")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("reaper interval must be positive, got %s", cfg.Interval)
	}
	r := &Reaper{
		cfg:       cfg,
		registry:  deps.Registry,
		locks:     deps.Locks,
		now:       deps.Now,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		notify:    deps.Notify,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.publisher == nil {
		r.publisher = logging.NopPublisher()
	}
	if r.logger == nil {
		r.logger = telemetry.Discard()
	}
	if r.metrics == nil {
		r.metrics = telemetry.WrapMetrics(nil)
	}
	return r, nil
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx, r.now())
		}
	}
}

// Sweep removes every wild creature with ExpiresAt <= now. Locked and
// caught creatures are left alone; stale locks go through the releaser.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) Sweep {
	sweep := Sweep{Cycle: r.cycle.Add(1)}
	sweep.Expired = r.registry.RemoveExpired(now)
	for _, entity := range sweep.Expired {
		spawnlog.Expired(ctx, r.publisher, sweep.Cycle, spawnlog.ExpiredPayload{EntityID: entity.ID, Name: entity.Name})
	}
	if n := len(sweep.Expired); n > 0 {
		r.metrics.Add(telemetry.MetricExpired, uint64(n))
		r.logger.Printf("reaper removed %d expired creatures", n)
	}

	if r.locks != nil && r.cfg.LockTTL > 0 {
		sweep.Released = r.locks.ReleaseStale(ctx, now, r.cfg.LockTTL)
		if n := len(sweep.Released); n > 0 {
			r.logger.Printf("reaper released %d stale locks", n)
		}
	}

	r.metrics.Store(telemetry.MetricWild, uint64(r.registry.CountWild()))
	if sweep.Changed() && r.notify != nil {
		r.notify(sweep)
	}
	return sweep
}
