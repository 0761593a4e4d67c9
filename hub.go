package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sasha-s/go-deadlock"
	"golang.org/x/time/rate"

	"github.com/dimaspandu/pokecat-hunt/internal/broadcast"
	"github.com/dimaspandu/pokecat-hunt/internal/capture"
	"github.com/dimaspandu/pokecat-hunt/internal/catalog"
	"github.com/dimaspandu/pokecat-hunt/internal/creature"
	"github.com/dimaspandu/pokecat-hunt/internal/journal"
	"github.com/dimaspandu/pokecat-hunt/internal/net/proto"
	"github.com/dimaspandu/pokecat-hunt/internal/session"
	"github.com/dimaspandu/pokecat-hunt/internal/spawn"
	"github.com/dimaspandu/pokecat-hunt/internal/telemetry"
	"github.com/dimaspandu/pokecat-hunt/logging"
	capturelog "github.com/dimaspandu/pokecat-hunt/logging/capture"
	"github.com/dimaspandu/pokecat-hunt/logging/lifecycle"
)

var (
	ErrUnknownSession     = errors.New("unknown session")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// HubConfig wires the engine's tunables and collaborators.
type HubConfig struct {
	Spawn  spawn.Config
	Reaper spawn.ReaperConfig

	// LockRate and LockBurst bound lock and confirm requests per session.
	// A non-positive rate disables limiting.
	LockRate  float64
	LockBurst int

	JournalCapacity int
	JournalMaxAge   time.Duration

	Catalog catalog.Source
	// Seed makes spawn placement reproducible when set.
	Seed string

	Logger  telemetry.Logger
	Metrics *logging.Metrics
	Now     func() time.Time
}

// DefaultHubConfig returns the configuration used when no overrides are
// supplied.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Spawn:           spawn.DefaultConfig(),
		Reaper:          spawn.DefaultReaperConfig(),
		LockRate:        defaultLockRate,
		LockBurst:       defaultLockBurst,
		JournalCapacity: defaultJournalCapacity,
		JournalMaxAge:   defaultJournalMaxAge,
		Catalog:         catalog.EmbeddedSource{},
	}
}

// Hub owns every engine component and is the single place where committed
// transitions turn into outbound messages.
type Hub struct {
	now       func() time.Time
	logger    telemetry.Logger
	publisher logging.Publisher
	counters  *logging.Metrics
	metrics   telemetry.Metrics
	telemetry *telemetryCounters
	// routerStats is set when the publisher reports its own counters.
	routerStats func() logging.RouterStats

	sessions    *session.Tracker
	creatures   *creature.Registry
	coordinator *capture.Coordinator
	channel     *broadcast.Channel
	catalog     *catalog.Store
	journal     *journal.Journal
	spawner     *spawn.Spawner
	reaper      *spawn.Reaper

	lockRate  rate.Limit
	lockBurst int
	limitMu   deadlock.Mutex
	limiters  map[string]*rate.Limiter
}

// NewHub assembles a hub. The publisher receives structured gameplay
// events; nil discards them. A publisher with a Stats method, such as
// *logging.Router, has its counters reported in Diagnostics.
func NewHub(cfg HubConfig, publisher logging.Publisher) (*Hub, error) {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}
	counters := cfg.Metrics
	if counters == nil {
		counters = &logging.Metrics{}
	}
	metrics := telemetry.WrapMetrics(counters)

	h := &Hub{
		now:       now,
		logger:    logger,
		publisher: publisher,
		counters:  counters,
		metrics:   metrics,
		telemetry: newTelemetryCounters(),
		sessions:  session.NewTracker(now),
		creatures: creature.NewRegistry(),
		catalog:   catalog.NewStore(cfg.Catalog, now),
		journal:   journal.New(cfg.JournalCapacity, cfg.JournalMaxAge, now),
		lockRate:  rate.Inf,
		lockBurst: cfg.LockBurst,
		limiters:  make(map[string]*rate.Limiter),
	}
	if reporter, ok := publisher.(interface{ Stats() logging.RouterStats }); ok {
		h.routerStats = reporter.Stats
	}
	if cfg.LockRate > 0 {
		h.lockRate = rate.Limit(cfg.LockRate)
		if h.lockBurst <= 0 {
			h.lockBurst = 1
		}
	}
	h.journal.AttachTelemetry(h.telemetry)
	h.coordinator = capture.NewCoordinator(h.creatures,
		capture.WithClock(now),
		capture.WithPublisher(publisher),
		capture.WithMetrics(metrics),
	)
	h.channel = broadcast.NewChannel(broadcast.Config{Now: now, Logger: logger, Metrics: metrics})

	rng := spawnRand(cfg.Seed)
	spawner, err := spawn.NewSpawner(cfg.Spawn, spawn.SpawnerDeps{
		Registry:  h.creatures,
		Positions: h.sessions,
		Catalog:   h.catalog,
		Rand:      rng,
		Now:       now,
		Publisher: publisher,
		Logger:    logger,
		Metrics:   metrics,
		Notify:    func([]creature.Entity) { h.BroadcastWildSnapshot() },
	})
	if err != nil {
		return nil, fmt.Errorf("build spawner: %w", err)
	}
	h.spawner = spawner

	reaper, err := spawn.NewReaper(cfg.Reaper, spawn.ReaperDeps{
		Registry:  h.creatures,
		Locks:     h.coordinator,
		Now:       now,
		Publisher: publisher,
		Logger:    logger,
		Metrics:   metrics,
		Notify:    h.afterSweep,
	})
	if err != nil {
		return nil, fmt.Errorf("build reaper: %w", err)
	}
	h.reaper = reaper
	return h, nil
}

func spawnRand(seed string) *rand.Rand {
	if seed == "" {
		return nil
	}
	return spawn.NewDeterministicRNG(seed, "spawn")
}

// Run loads the catalog if needed and drives the spawner and reaper until
// ctx is cancelled, then closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	if h.catalog.Current().Len() == 0 {
		if _, err := h.ReloadCatalog(ctx); err != nil {
			h.logger.Printf("initial catalog load failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.spawner.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		h.reaper.Run(ctx)
	}()
	wg.Wait()
	h.channel.Close()
}

// Connect registers a session, subscribes its connection and sends the
// welcome frame followed by the current wild snapshot.
func (h *Hub) Connect(ctx context.Context, id, name string, conn broadcast.Conn, codec proto.Codec) session.Session {
	if codec == nil {
		codec = proto.JSON{}
	}
	sess := h.sessions.OnConnect(id, name)
	h.limitMu.Lock()
	h.limiters[id] = rate.NewLimiter(h.lockRate, h.lockBurst)
	h.limitMu.Unlock()

	h.channel.Subscribe(id, conn, codec)
	h.unicast(id, proto.NewWelcome(id, sess.Name, h.now()))
	h.unicast(id, proto.NewWildSnapshot(h.creatures.ListWild(), h.now()))

	h.metrics.Store(telemetry.MetricSessions, uint64(h.sessions.Len()))
	lifecycle.SessionConnected(ctx, h.publisher, logging.SessionRef(id), lifecycle.SessionConnectedPayload{Name: sess.Name, Codec: codec.Name()})
	return sess
}

// Disconnect forgets a session and releases every lock it still holds.
// Calling it for an unknown session is a no-op.
func (h *Hub) Disconnect(ctx context.Context, id, reason string) {
	h.channel.Unsubscribe(id)
	sess, ok := h.sessions.Get(id)
	if !ok {
		return
	}

	events := h.coordinator.ReleaseHeldBy(ctx, creature.Holder{SessionID: id, Name: sess.Name}, capture.CauseDisconnect)
	h.dispatch(id, events)

	h.sessions.OnDisconnect(id)
	h.limitMu.Lock()
	delete(h.limiters, id)
	h.limitMu.Unlock()

	h.metrics.Store(telemetry.MetricSessions, uint64(h.sessions.Len()))
	lifecycle.SessionDisconnected(ctx, h.publisher, logging.SessionRef(id), lifecycle.SessionDisconnectedPayload{
		Name:          sess.Name,
		Reason:        reason,
		LocksReleased: len(events),
	})
}

// ReportLocation records where a session is. Later spawn cycles place
// creatures around it.
func (h *Hub) ReportLocation(id string, lat, lng float64) error {
	if !validCoordinates(lat, lng) {
		return fmt.Errorf("report location (%v, %v): %w", lat, lng, ErrInvalidCoordinates)
	}
	if !h.sessions.OnLocationReport(id, creature.Position{Lat: lat, Lng: lng}) {
		return fmt.Errorf("report location %s: %w", id, ErrUnknownSession)
	}
	return nil
}

func validCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Lock handles a lock-request from session id. The requester receives a
// lock-response; on success everyone else receives a lock-notice.
func (h *Hub) Lock(ctx context.Context, id, entityID string) capture.Result {
	if !h.allow(id) {
		result := h.rateLimited(ctx, id, entityID)
		h.unicast(id, proto.NewLockResponse(entityID, false, nil, result.Reason))
		return result
	}
	result, events := h.coordinator.Lock(ctx, h.holder(id), entityID)
	h.unicast(id, proto.NewLockResponse(entityID, result.Success, result.Entity, result.Reason))
	h.dispatch(id, events)
	return result
}

// Confirm handles a confirm-request. Success catches the creature and
// sends a caught-notice to everyone else; failure returns it to the wild.
func (h *Hub) Confirm(ctx context.Context, id, entityID string, outcome capture.Outcome) capture.Result {
	if !h.allow(id) {
		result := h.rateLimited(ctx, id, entityID)
		h.unicast(id, proto.NewConfirmResponse(entityID, false, nil, result.Reason))
		return result
	}
	result, events := h.coordinator.Confirm(ctx, h.holder(id), entityID, outcome)
	h.unicast(id, proto.NewConfirmResponse(entityID, result.Success, result.Entity, result.Reason))
	h.dispatch(id, events)
	return result
}

// EntityDetail answers a get-entity request.
func (h *Hub) EntityDetail(id, entityID string) (creature.Entity, error) {
	entity, err := h.creatures.Get(entityID)
	if err != nil {
		h.unicast(id, proto.NewEntityDetail(nil, creature.Reason(err)))
		return creature.Entity{}, err
	}
	h.unicast(id, proto.NewEntityDetail(&entity, ""))
	return entity, nil
}

// SendError replies to a malformed or unsupported frame.
func (h *Hub) SendError(id, reason string) {
	h.unicast(id, proto.NewError(reason))
}

func (h *Hub) holder(id string) creature.Holder {
	return creature.Holder{SessionID: id, Name: h.sessions.Name(id)}
}

func (h *Hub) allow(id string) bool {
	h.limitMu.Lock()
	limiter, ok := h.limiters[id]
	h.limitMu.Unlock()
	if !ok {
		return true
	}
	return limiter.AllowN(h.now(), 1)
}

func (h *Hub) rateLimited(ctx context.Context, id, entityID string) capture.Result {
	h.metrics.Add(telemetry.MetricRateLimited, 1)
	capturelog.RateLimited(ctx, h.publisher, logging.SessionRef(id), capturelog.AttemptPayload{EntityID: entityID, Reason: capture.ReasonRateLimited})
	return capture.Result{EntityID: entityID, Reason: capture.ReasonRateLimited}
}

// dispatch journals committed transitions and fans out the resulting
// notices. It runs after the registry has released its lock.
func (h *Hub) dispatch(actorID string, events []capture.Event) {
	if len(events) == 0 {
		return
	}
	snapshot := false
	for _, event := range events {
		tr := event.Transition
		cause := event.Cause
		if cause == "" {
			cause = string(event.Kind)
		}
		h.record(tr, cause)

		switch event.Kind {
		case capture.EventLocked:
			n := h.channel.Broadcast(proto.NewLockNotice(tr.Entity.ID, tr.Actor.Name), actorID)
			h.telemetry.RecordNotice(n)
		case capture.EventCaught:
			catcher := tr.Actor.Name
			if tr.Entity.CaughtBy != nil {
				catcher = tr.Entity.CaughtBy.Name
			}
			n := h.channel.Broadcast(proto.NewCaughtNotice(tr.Entity.ID, catcher), actorID)
			h.telemetry.RecordNotice(n)
		case capture.EventEscaped, capture.EventReleased:
			snapshot = true
		}
	}
	if snapshot {
		h.BroadcastWildSnapshot()
		return
	}
	h.resyncStale()
}

func (h *Hub) record(tr creature.Transition, cause string) {
	res := h.journal.Record(tr, cause)
	h.telemetry.RecordJournal(res.Size, res.OldestSequence, res.NewestSequence)
}

func (h *Hub) afterSweep(sweep spawn.Sweep) {
	for _, tr := range sweep.Released {
		h.record(tr, capture.CauseTimeout)
	}
	h.BroadcastWildSnapshot()
}

// BroadcastWildSnapshot sends the current wild set to every subscriber and
// clears their resync flags.
func (h *Hub) BroadcastWildSnapshot() int {
	wild := h.creatures.ListWild()
	n := h.channel.BroadcastSnapshot(proto.NewWildSnapshot(wild, h.now()))
	h.telemetry.RecordSnapshot(len(wild), n)
	return n
}

func (h *Hub) resyncStale() {
	n := h.channel.Resync(proto.NewWildSnapshot(h.creatures.ListWild(), h.now()))
	h.telemetry.RecordResync(n)
}

func (h *Hub) unicast(id string, msg any) {
	if err := h.channel.Unicast(id, msg); err != nil && !errors.Is(err, broadcast.ErrUnknownSubscriber) {
		h.logger.Printf("unicast to %s failed: %v", id, err)
	}
}

// SpawnCycle runs one spawn pass immediately.
func (h *Hub) SpawnCycle(ctx context.Context) ([]creature.Entity, error) {
	return h.spawner.SpawnCycle(ctx, h.now())
}

// Sweep runs one reaper pass immediately.
func (h *Hub) Sweep(ctx context.Context) spawn.Sweep {
	return h.reaper.Sweep(ctx, h.now())
}

// SimulateRace runs a lock race between synthetic sessions on one wild
// creature and publishes the resulting notices like any other capture.
func (h *Hub) SimulateRace(ctx context.Context, entityID string, contenders int) (capture.RaceReport, error) {
	report, events, err := h.coordinator.SimulateRace(ctx, entityID, contenders)
	h.dispatch("", events)
	return report, err
}

// ReloadCatalog fetches the catalog from its source. Concurrent reloads
// share one fetch.
func (h *Hub) ReloadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	cat, shared, err := h.catalog.Load(ctx)
	payload := lifecycle.CatalogReloadedPayload{Source: h.catalog.SourceName(), Shared: shared}
	if err != nil {
		payload.Error = err.Error()
		lifecycle.CatalogReloaded(ctx, h.publisher, payload)
		return nil, err
	}
	payload.Templates = cat.Len()
	if !shared {
		h.metrics.Add(telemetry.MetricCatalogReloads, 1)
	}
	lifecycle.CatalogReloaded(ctx, h.publisher, payload)
	h.logger.Printf("catalog loaded from %s: %d templates", cat.Source(), cat.Len())
	return cat, nil
}

// Catalog returns the active catalog.
func (h *Hub) Catalog() *catalog.Catalog {
	return h.catalog.Current()
}

// Entity returns a copy of one creature in any status.
func (h *Hub) Entity(id string) (creature.Entity, error) {
	return h.creatures.Get(id)
}

// Entities returns every creature, including locked and caught ones.
func (h *Hub) Entities() []creature.Entity {
	return h.creatures.List()
}

// WildEntities returns the creatures currently available to lock.
func (h *Hub) WildEntities() []creature.Entity {
	return h.creatures.ListWild()
}

// History returns the journaled transitions of one creature. Creatures the
// journal never saw and the registry does not know are reported missing.
func (h *Hub) History(id string) ([]journal.Entry, error) {
	entries := h.journal.History(id)
	if len(entries) > 0 {
		return entries, nil
	}
	if _, err := h.creatures.Get(id); err != nil {
		return nil, err
	}
	return []journal.Entry{}, nil
}

// Session returns one connected session.
func (h *Hub) Session(id string) (session.Session, bool) {
	return h.sessions.Get(id)
}
