// Package capture mediates the two-step lock and confirm exchange through
// which sessions catch creatures.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dimaspandu/pokecat-hunt/internal/creature"
	"github.com/dimaspandu/pokecat-hunt/internal/telemetry"
	"github.com/dimaspandu/pokecat-hunt/logging"
	capturelog "github.com/dimaspandu/pokecat-hunt/logging/capture"
)

// Outcome is the client's report of the catch mini-game.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

func ParseOutcome(value string) (Outcome, bool) {
	switch Outcome(value) {
	case OutcomeSuccess, OutcomeFailure:
		return Outcome(value), true
	default:
		return "", false
	}
}

// Wire reasons that do not correspond to a registry error.
const (
	ReasonEscaped     = "escaped"
	ReasonRateLimited = "RateLimited"
)

// Release causes.
const (
	CauseDisconnect = "disconnect"
	CauseTimeout    = "timeout"
	CauseAbandoned  = "abandoned"
)

// EventKind classifies a committed change that subscribers must hear about.
type EventKind string

const (
	EventLocked   EventKind = "locked"
	EventCaught   EventKind = "caught"
	EventEscaped  EventKind = "escaped"
	EventReleased EventKind = "released"
)

// Event describes one committed transition. The caller publishes events
// after the coordinator returns, never while the registry is locked.
type Event struct {
	Kind       EventKind
	Transition creature.Transition
	Cause      string
}

// Result is the reply owed to the requesting session.
type Result struct {
	EntityID string
	Success  bool
	Entity   *creature.Entity
	Reason   string
	Err      error
}

func failure(id string, err error) Result {
	return Result{EntityID: id, Reason: creature.Reason(err), Err: err}
}

type Coordinator struct {
	registry  *creature.Registry
	now       func() time.Time
	publisher logging.Publisher
	metrics   telemetry.Metrics
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func WithPublisher(pub logging.Publisher) Option {
	return func(c *Coordinator) {
		if pub != nil {
			c.publisher = pub
		}
	}
}

func WithMetrics(metrics telemetry.Metrics) Option {
	return func(c *Coordinator) {
		if metrics != nil {
			c.metrics = metrics
		}
	}
}

func NewCoordinator(registry *creature.Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry:  registry,
		now:       time.Now,
		publisher: logging.NopPublisher(),
		metrics:   telemetry.WrapMetrics(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lock grants actor exclusive claim over a wild creature. Of any number of
// concurrent calls for the same id exactly one succeeds.
func (c *Coordinator) Lock(ctx context.Context, actor creature.Holder, id string) (Result, []Event) {
	tr, err := c.registry.Transition(id, creature.StatusWild, creature.StatusLocked, actor, c.now())
	payload := capturelog.AttemptPayload{EntityID: id}
	if err != nil {
		c.metrics.Add(telemetry.MetricLocksRejected, 1)
		result := failure(id, err)
		payload.Reason = result.Reason
		capturelog.LockRejected(ctx, c.publisher, logging.SessionRef(actor.SessionID), payload)
		return result, nil
	}
	c.metrics.Add(telemetry.MetricLocksGranted, 1)
	payload.Name = tr.Entity.Name
	capturelog.LockGranted(ctx, c.publisher, logging.SessionRef(actor.SessionID), payload)

	entity := tr.Entity
	return Result{EntityID: id, Success: true, Entity: &entity}, []Event{{Kind: EventLocked, Transition: tr}}
}

// Confirm settles a lock held by actor. Success catches the creature;
// failure releases it back to the wild. Confirms from anyone but the
// current holder, or for a creature that is not locked, change nothing and
// report LockHolderMismatch.
func (c *Coordinator) Confirm(ctx context.Context, actor creature.Holder, id string, outcome Outcome) (Result, []Event) {
	next := creature.StatusCaught
	if outcome != OutcomeSuccess {
		next = creature.StatusWild
	}

	tr, err := c.registry.Transition(id, creature.StatusLocked, next, actor, c.now())
	if err != nil {
		if errors.Is(err, creature.ErrNotAvailable) {
			err = fmt.Errorf("confirm %s: %w (%v)", id, creature.ErrLockHolderMismatch, err)
		}
		result := failure(id, err)
		capturelog.ConfirmRejected(ctx, c.publisher, logging.SessionRef(actor.SessionID), capturelog.AttemptPayload{EntityID: id, Reason: result.Reason})
		return result, nil
	}

	entity := tr.Entity
	payload := capturelog.AttemptPayload{EntityID: id, Name: entity.Name}
	if next == creature.StatusCaught {
		c.metrics.Add(telemetry.MetricCaught, 1)
		capturelog.Caught(ctx, c.publisher, logging.SessionRef(actor.SessionID), payload)
		return Result{EntityID: id, Success: true, Entity: &entity}, []Event{{Kind: EventCaught, Transition: tr}}
	}

	c.metrics.Add(telemetry.MetricEscaped, 1)
	payload.Reason = ReasonEscaped
	capturelog.Escaped(ctx, c.publisher, logging.SessionRef(actor.SessionID), payload)
	return Result{EntityID: id, Entity: &entity, Reason: ReasonEscaped}, []Event{{Kind: EventEscaped, Transition: tr}}
}

// Release returns a lock held by actor to the wild state. Releasing a
// creature that is no longer locked by actor is a no-op failure.
func (c *Coordinator) Release(ctx context.Context, actor creature.Holder, id, cause string) (Result, []Event) {
	tr, err := c.registry.Transition(id, creature.StatusLocked, creature.StatusWild, actor, c.now())
	if err != nil {
		return failure(id, err), nil
	}
	c.metrics.Add(telemetry.MetricLocksReleased, 1)
	capturelog.LockReleased(ctx, c.publisher, logging.SessionRef(actor.SessionID), capturelog.AttemptPayload{EntityID: id, Name: tr.Entity.Name, Reason: cause})
	entity := tr.Entity
	return Result{EntityID: id, Success: true, Entity: &entity}, []Event{{Kind: EventReleased, Transition: tr, Cause: cause}}
}

// ReleaseHeldBy releases every lock actor holds, as when its session ends.
func (c *Coordinator) ReleaseHeldBy(ctx context.Context, actor creature.Holder, cause string) []Event {
	var events []Event
	for _, entity := range c.registry.LocksHeldBy(actor.SessionID) {
		if _, evs := c.Release(ctx, actor, entity.ID, cause); len(evs) > 0 {
			events = append(events, evs...)
		}
	}
	return events
}

// ReleaseStale releases locks held for at least ttl. The age check and the
// release happen in one registry critical section.
func (c *Coordinator) ReleaseStale(ctx context.Context, now time.Time, ttl time.Duration) []creature.Transition {
	released := c.registry.ReleaseStale(now, ttl)
	for _, tr := range released {
		c.metrics.Add(telemetry.MetricLocksReleased, 1)
		capturelog.LockReleased(ctx, c.publisher, logging.SessionRef(tr.Actor.SessionID), capturelog.AttemptPayload{EntityID: tr.Entity.ID, Name: tr.Entity.Name, Reason: CauseTimeout})
	}
	return released
}
