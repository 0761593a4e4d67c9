package spawn

import (
	"context"

	"github.com/dimaspandu/pokecat-hunt/logging"
)

const (
	// EventSpawned is emitted for every creature placed near a session.
	EventSpawned logging.EventType = "spawn.spawned"
	// EventExpired is emitted when the reaper removes an expired creature.
	EventExpired logging.EventType = "spawn.expired"
	// EventCycleSkipped is emitted when a spawn cycle could not run.
	EventCycleSkipped logging.EventType = "spawn.cycle_skipped"
)

// SpawnedPayload describes a freshly spawned creature.
type SpawnedPayload struct {
	EntityID   string  `json:"entityId"`
	TemplateID string  `json:"templateId"`
	Rarity     string  `json:"rarity"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	NearOf     string  `json:"near"`
}

// ExpiredPayload identifies a removed creature.
type ExpiredPayload struct {
	EntityID string `json:"entityId"`
	Name     string `json:"name"`
}

// CycleSkippedPayload records why a spawn cycle produced nothing.
type CycleSkippedPayload struct {
	Reason string `json:"reason"`
}

func Spawned(ctx context.Context, pub logging.Publisher, cycle uint64, payload SpawnedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSpawned,
		Cycle:    cycle,
		Actor:    logging.WorldRef(),
		Targets:  []logging.EntityRef{logging.CreatureRef(payload.EntityID), logging.SessionRef(payload.NearOf)},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryGameplay,
		Payload:  payload,
	})
}

func Expired(ctx context.Context, pub logging.Publisher, cycle uint64, payload ExpiredPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventExpired,
		Cycle:    cycle,
		Actor:    logging.WorldRef(),
		Targets:  []logging.EntityRef{logging.CreatureRef(payload.EntityID)},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryGameplay,
		Payload:  payload,
	})
}

func CycleSkipped(ctx context.Context, pub logging.Publisher, cycle uint64, payload CycleSkippedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCycleSkipped,
		Cycle:    cycle,
		Actor:    logging.WorldRef(),
		Severity: logging.SeverityWarn,
		Category: logging.CategorySystem,
		Payload:  payload,
	})
}
