package spawn

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/dimaspandu/pokecat-hunt/internal/catalog"
	"github.com/dimaspandu/pokecat-hunt/internal/creature"
	"github.com/dimaspandu/pokecat-hunt/internal/session"
	"github.com/dimaspandu/pokecat-hunt/internal/telemetry"
	"github.com/dimaspandu/pokecat-hunt/logging"
	spawnlog "github.com/dimaspandu/pokecat-hunt/logging/spawn"
)

// PositionSource lists sessions whose position is known.
type PositionSource interface {
	Positions() []session.Located
}

// Config tunes the spawn cadence and placement.
type Config struct {
	Interval     time.Duration
	Lifetime     time.Duration
	RadiusMeters float64
	Rarity       RarityTable
	// MaxWild caps simultaneously wild creatures. Zero means unlimited.
	MaxWild int
}

func DefaultConfig() Config {
	return Config{
		Interval:     3 * time.Second,
		Lifetime:     30 * time.Second,
		RadiusMeters: 1000,
		Rarity:       DefaultRarityTable(),
	}
}

// SpawnerDeps wires the spawner to the rest of the engine. Registry,
// Positions and Catalog are required.
type SpawnerDeps struct {
	Registry  *creature.Registry
	Positions PositionSource
	Catalog   *catalog.Store
	IDs       *creature.IDGenerator
	Rand      *rand.Rand
	Now       func() time.Time
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	// Notify runs after a cycle that inserted at least one creature.
	Notify func(spawned []creature.Entity)
}

// Spawner places creatures near every located session on a fixed interval.
type Spawner struct {
	cfg       Config
	registry  *creature.Registry
	positions PositionSource
	catalog   *catalog.Store
	ids       *creature.IDGenerator
	rng       *lockedRand
	now       func() time.Time
	publisher logging.Publisher
	logger    telemetry.Logger
	metrics   telemetry.Metrics
	notify    func([]creature.Entity)
	cycle     atomic.Uint64
}

func NewSpawner(cfg Config, deps SpawnerDeps) (*Spawner, error) {
	if deps.Registry == nil || deps.Positions == nil || deps.Catalog == nil {
		return nil, errors.New("spawner requires a registry, a position source and a catalog")
	}
	if cfg.Interval <= 0 || cfg.Lifetime <= 0 {
		return nil, fmt.Errorf("spawner interval and lifetime must be positive, got %s/%s", cfg.Interval, cfg.Lifetime)
	}
	if err := cfg.Rarity.Validate(); err != nil {
		return nil, err
	}
	s := &Spawner{
		cfg:       cfg,
		registry:  deps.Registry,
		positions: deps.Positions,
		catalog:   deps.Catalog,
		ids:       deps.IDs,
		rng:       newLockedRand(deps.Rand),
		now:       deps.Now,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		notify:    deps.Notify,
	}
	if s.ids == nil {
		s.ids = creature.NewIDGenerator(nil, nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.publisher == nil {
		s.publisher = logging.NopPublisher()
	}
	if s.logger == nil {
		s.logger = telemetry.Discard()
	}
	if s.metrics == nil {
		s.metrics = telemetry.WrapMetrics(nil)
	}
	return s, nil
}

// Run spawns on every tick until ctx is cancelled.
func (s *Spawner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SpawnCycle(ctx, s.now()); err != nil {
				s.logger.Printf("spawn cycle skipped: %v", err)
			}
		}
	}
}

// SpawnCycle runs one spawn pass at now and returns the inserted creatures.
// An empty catalog skips the cycle with catalog.ErrCatalogEmpty.
func (s *Spawner) SpawnCycle(ctx context.Context, now time.Time) ([]creature.Entity, error) {
	cycle := s.cycle.Add(1)
	located := s.positions.Positions()
	if len(located) == 0 {
		return nil, nil
	}

	cat := s.catalog.Current()
	if cat.Len() == 0 {
		s.metrics.Add(telemetry.MetricSpawnSkipped, 1)
		spawnlog.CycleSkipped(ctx, s.publisher, cycle, spawnlog.CycleSkippedPayload{Reason: catalog.ErrCatalogEmpty.Error()})
		return nil, fmt.Errorf("spawn cycle %d: %w", cycle, catalog.ErrCatalogEmpty)
	}

	wild := 0
	if s.cfg.MaxWild > 0 {
		wild = s.registry.CountWild()
	}

	var spawned []creature.Entity
	for _, loc := range located {
		if s.cfg.MaxWild > 0 && wild >= s.cfg.MaxWild {
			break
		}
		entity, err := s.draw(cat, loc.Position, now)
		if err != nil {
			return spawned, fmt.Errorf("spawn cycle %d: %w", cycle, err)
		}
		if err := s.registry.Insert(entity); err != nil {
			s.logger.Printf("spawn cycle %d: %v", cycle, err)
			continue
		}
		wild++
		spawned = append(spawned, entity)
		spawnlog.Spawned(ctx, s.publisher, cycle, spawnlog.SpawnedPayload{
			EntityID:   entity.ID,
			TemplateID: entity.TemplateID,
			Rarity:     string(entity.Rarity),
			Lat:        entity.Position.Lat,
			Lng:        entity.Position.Lng,
			NearOf:     loc.ID,
		})
	}

	if len(spawned) == 0 {
		return nil, nil
	}
	s.metrics.Add(telemetry.MetricSpawned, uint64(len(spawned)))
	if s.notify != nil {
		s.notify(spawned)
	}
	return spawned, nil
}

func (s *Spawner) draw(cat *catalog.Catalog, origin creature.Position, now time.Time) (creature.Entity, error) {
	var (
		template catalog.Template
		pos      creature.Position
		rarity   creature.Rarity
		err      error
	)
	s.rng.with(func(rng *rand.Rand) {
		template, err = cat.Pick(rng)
		if err != nil {
			return
		}
		pos = RandomLocationNear(rng, origin, s.cfg.RadiusMeters)
		rarity = s.cfg.Rarity.Draw(rng.Float64())
	})
	if err != nil {
		return creature.Entity{}, err
	}
	return creature.Entity{
		ID:         s.ids.Next(),
		TemplateID: template.ID,
		Name:       template.Name,
		IconURL:    template.IconURL,
		Position:   pos,
		Rarity:     rarity,
		SpawnedAt:  now,
		ExpiresAt:  now.Add(s.cfg.Lifetime),
	}, nil
}

// Cycle reports how many spawn cycles have run.
func (s *Spawner) Cycle() uint64 {
	return s.cycle.Load()
}
