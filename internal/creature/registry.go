package creature

import (
	"fmt"
	"sort"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// Registry is the authoritative set of active entities. Every method runs
// as a single critical section and only copies leave the registry.
type Registry struct {
	mu       deadlock.Mutex
	entities map[string]*Entity
	// commits numbers transitions in the order they were applied.
	commits uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*Entity)}
}

// Insert adds a freshly spawned entity in the wild state.
func (r *Registry) Insert(entity Entity) error {
	if entity.ID == "" {
		return fmt.Errorf("insert: missing id")
	}
	entity.Status = StatusWild
	entity.LockHolder = nil
	entity.LockedAt = time.Time{}
	entity.CaughtBy = nil

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entities[entity.ID]; exists {
		return fmt.Errorf("insert %s: %w", entity.ID, ErrDuplicateID)
	}
	r.entities[entity.ID] = &entity
	return nil
}

// Get returns a copy of the entity.
func (r *Registry) Get(id string) (Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entity, ok := r.entities[id]
	if !ok {
		return Entity{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return entity.clone(), nil
}

// ListWild returns copies of every wild entity ordered by spawn time.
func (r *Registry) ListWild() []Entity {
	return r.list(func(e *Entity) bool { return e.Status == StatusWild })
}

// List returns copies of every entity, including locked and caught ones.
func (r *Registry) List() []Entity {
	return r.list(nil)
}

func (r *Registry) list(keep func(*Entity) bool) []Entity {
	r.mu.Lock()
	out := make([]Entity, 0, len(r.entities))
	for _, entity := range r.entities {
		if keep != nil && !keep(entity) {
			continue
		}
		out = append(out, entity.clone())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SpawnedAt.Equal(out[j].SpawnedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SpawnedAt.Before(out[j].SpawnedAt)
	})
	return out
}

// Transition is the only mutator of Status besides the ReleaseStale sweep,
// and both apply changes through the same path. It compares the current status
// with expected and, when leaving the locked state, the recorded holder with
// actor; the write happens only if both still match. Failed transitions
// leave the entity untouched.
func (r *Registry) Transition(id string, expected, next Status, actor Holder, now time.Time) (Transition, error) {
	if !allowed(expected, next) {
		return Transition{}, fmt.Errorf("transition %s %s->%s: %w", id, expected, next, ErrInvalidTransition)
	}
	if actor.SessionID == "" {
		return Transition{}, fmt.Errorf("transition %s: %w", id, ErrLockHolderMismatch)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[id]
	if !ok {
		return Transition{}, fmt.Errorf("transition %s: %w", id, ErrNotFound)
	}
	if entity.Status != expected {
		return Transition{}, fmt.Errorf("transition %s: status %s, want %s: %w", id, entity.Status, expected, ErrNotAvailable)
	}
	if expected == StatusLocked && !entity.HeldBy(actor.SessionID) {
		return Transition{}, fmt.Errorf("transition %s: %w", id, ErrLockHolderMismatch)
	}

	return r.applyLocked(entity, next, actor, now), nil
}

func (r *Registry) applyLocked(entity *Entity, next Status, actor Holder, now time.Time) Transition {
	from := entity.Status
	switch next {
	case StatusLocked:
		holder := actor
		entity.LockHolder = &holder
		entity.LockedAt = now
	case StatusCaught:
		catcher := *entity.LockHolder
		entity.CaughtBy = &catcher
		entity.LockHolder = nil
		entity.LockedAt = time.Time{}
	case StatusWild:
		entity.LockHolder = nil
		entity.LockedAt = time.Time{}
	}
	entity.Status = next
	r.commits++

	return Transition{Entity: entity.clone(), From: from, To: next, Actor: actor, At: now, Commit: r.commits}
}

func allowed(from, to Status) bool {
	switch from {
	case StatusWild:
		return to == StatusLocked
	case StatusLocked:
		return to == StatusCaught || to == StatusWild
	default:
		return false
	}
}

// Remove deletes one wild entity whose lifetime has elapsed. The Reaper
// sweeps with RemoveExpired, which applies the same rule to every entity
// in one critical section.
func (r *Registry) Remove(id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[id]
	if !ok {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	if !r.removeLocked(entity, now) {
		return fmt.Errorf("remove %s: status %s: %w", id, entity.Status, ErrNotAvailable)
	}
	return nil
}

// RemoveExpired deletes every wild entity with ExpiresAt <= now and returns
// the removed entities. Locked and caught entities are never inspected.
func (r *Registry) RemoveExpired(now time.Time) []Entity {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []Entity
	for _, entity := range r.entities {
		if r.removeLocked(entity, now) {
			removed = append(removed, entity.clone())
		}
	}
	return removed
}

func (r *Registry) removeLocked(entity *Entity, now time.Time) bool {
	if !entity.Expired(now) {
		return false
	}
	delete(r.entities, entity.ID)
	return true
}

// LocksHeldBy returns the entities currently locked by sessionID.
func (r *Registry) LocksHeldBy(sessionID string) []Entity {
	return r.list(func(e *Entity) bool { return e.HeldBy(sessionID) })
}

// ReleaseStale returns every lock held for at least ttl to the wild state
// in one critical section, so a lock re-acquired after the cutoff is never
// released by an older scan. The transitions carry the former holder as
// actor. A non-positive ttl releases nothing.
func (r *Registry) ReleaseStale(now time.Time, ttl time.Duration) []Transition {
	if ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []*Entity
	for _, entity := range r.entities {
		if entity.Status == StatusLocked && entity.LockHolder != nil && !now.Before(entity.LockedAt.Add(ttl)) {
			stale = append(stale, entity)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		if stale[i].LockedAt.Equal(stale[j].LockedAt) {
			return stale[i].ID < stale[j].ID
		}
		return stale[i].LockedAt.Before(stale[j].LockedAt)
	})

	released := make([]Transition, 0, len(stale))
	for _, entity := range stale {
		released = append(released, r.applyLocked(entity, StatusWild, *entity.LockHolder, now))
	}
	return released
}

// Len reports the number of entities in any status.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entities)
}

// CountWild reports how many entities are currently wild.
func (r *Registry) CountWild() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, entity := range r.entities {
		if entity.Status == StatusWild {
			count++
		}
	}
	return count
}

// Counts reports the number of entities per status.
func (r *Registry) Counts() map[Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[Status]int{StatusWild: 0, StatusLocked: 0, StatusCaught: 0}
	for _, entity := range r.entities {
		counts[entity.Status]++
	}
	return counts
}
