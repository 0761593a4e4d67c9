package creature

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestEntity(id string, spawned time.Time, lifetime time.Duration) Entity {
	return Entity{
		ID:         id,
		TemplateID: "tabby",
		Name:       "Tabby",
		Position:   Position{Lat: -6.2, Lng: 106.8},
		Rarity:     RarityCommon,
		SpawnedAt:  spawned,
		ExpiresAt:  spawned.Add(lifetime),
	}
}

func TestRegistryInsertForcesWild(t *testing.T) {
	reg := NewRegistry()
	now := time.Unix(1_700_000_000, 0)
	entity := newTestEntity("e1", now, 30*time.Second)
	entity.Status = StatusCaught
	entity.LockHolder = &Holder{SessionID: "a"}

	if err := reg.Insert(entity); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	got, err := reg.Get("e1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != StatusWild || got.LockHolder != nil {
		t.Fatalf("expected fresh wild entity, got %+v", got)
	}
	if err := reg.Insert(entity); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	reg := NewRegistry()
	now := time.Unix(1_700_000_000, 0)
	reg.Insert(newTestEntity("e1", now, time.Minute))
	if _, err := reg.Transition("e1", StatusWild, StatusLocked, Holder{SessionID: "a"}, now); err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	got, _ := reg.Get("e1")
	got.LockHolder.SessionID = "mallory"
	got.Status = StatusWild

	again, _ := reg.Get("e1")
	if again.Status != StatusLocked || again.LockHolder.SessionID != "a" {
		t.Fatalf("registry state leaked through copy: %+v", again)
	}
}

func TestRegistryTransitionStateMachine(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	alice := Holder{SessionID: "alice", Name: "Alice"}
	bob := Holder{SessionID: "bob", Name: "Bob"}

	t.Run("lock then catch", func(t *testing.T) {
		reg := NewRegistry()
		reg.Insert(newTestEntity("e1", now, time.Minute))

		tr, err := reg.Transition("e1", StatusWild, StatusLocked, alice, now)
		if err != nil {
			t.Fatalf("lock failed: %v", err)
		}
		if tr.From != StatusWild || tr.To != StatusLocked || !tr.Entity.HeldBy("alice") {
			t.Fatalf("unexpected transition record %+v", tr)
		}

		if _, err := reg.Transition("e1", StatusLocked, StatusCaught, bob, now); !errors.Is(err, ErrLockHolderMismatch) {
			t.Fatalf("expected holder mismatch for bob, got %v", err)
		}

		tr, err = reg.Transition("e1", StatusLocked, StatusCaught, alice, now)
		if err != nil {
			t.Fatalf("catch failed: %v", err)
		}
		if tr.Entity.CaughtBy == nil || tr.Entity.CaughtBy.Name != "Alice" || tr.Entity.LockHolder != nil {
			t.Fatalf("unexpected caught entity %+v", tr.Entity)
		}
	})

	t.Run("caught is terminal", func(t *testing.T) {
		reg := NewRegistry()
		reg.Insert(newTestEntity("e1", now, time.Minute))
		reg.Transition("e1", StatusWild, StatusLocked, alice, now)
		reg.Transition("e1", StatusLocked, StatusCaught, alice, now)

		if _, err := reg.Transition("e1", StatusCaught, StatusWild, alice, now); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected invalid transition, got %v", err)
		}
		if _, err := reg.Transition("e1", StatusWild, StatusLocked, bob, now); !errors.Is(err, ErrNotAvailable) {
			t.Fatalf("expected not available, got %v", err)
		}
	})

	t.Run("wild cannot skip locked", func(t *testing.T) {
		reg := NewRegistry()
		reg.Insert(newTestEntity("e1", now, time.Minute))
		if _, err := reg.Transition("e1", StatusWild, StatusCaught, alice, now); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected invalid transition, got %v", err)
		}
		got, _ := reg.Get("e1")
		if got.Status != StatusWild {
			t.Fatalf("failed transition mutated entity: %+v", got)
		}
	})

	t.Run("release is idempotent", func(t *testing.T) {
		reg := NewRegistry()
		reg.Insert(newTestEntity("e1", now, time.Minute))
		reg.Transition("e1", StatusWild, StatusLocked, alice, now)

		if _, err := reg.Transition("e1", StatusLocked, StatusWild, alice, now); err != nil {
			t.Fatalf("release failed: %v", err)
		}
		if _, err := reg.Transition("e1", StatusLocked, StatusWild, alice, now); !errors.Is(err, ErrNotAvailable) {
			t.Fatalf("expected second release to fail as not locked, got %v", err)
		}
		got, _ := reg.Get("e1")
		if got.Status != StatusWild || got.LockHolder != nil {
			t.Fatalf("expected wild entity after release, got %+v", got)
		}
	})
}

func TestRegistryConcurrentLockHasSingleWinner(t *testing.T) {
	const contenders = 64
	now := time.Unix(1_700_000_000, 0)

	for round := 0; round < 20; round++ {
		reg := NewRegistry()
		reg.Insert(newTestEntity("e1", now, time.Minute))

		var (
			wg        sync.WaitGroup
			start     = make(chan struct{})
			mu        sync.Mutex
			winners   []string
			rejected  int
			unexpects []error
		)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				holder := Holder{SessionID: string(rune('A' + id%26)) + string(rune('0'+id/26))}
				<-start
				_, err := reg.Transition("e1", StatusWild, StatusLocked, holder, now)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					winners = append(winners, holder.SessionID)
				case errors.Is(err, ErrNotAvailable):
					rejected++
				default:
					unexpects = append(unexpects, err)
				}
			}(i)
		}
		close(start)
		wg.Wait()

		if len(unexpects) > 0 {
			t.Fatalf("unexpected errors: %v", unexpects)
		}
		if len(winners) != 1 || rejected != contenders-1 {
			t.Fatalf("round %d: expected exactly one winner, got winners=%v rejected=%d", round, winners, rejected)
		}
		got, _ := reg.Get("e1")
		if !got.HeldBy(winners[0]) {
			t.Fatalf("round %d: lock holder %+v does not match winner %s", round, got.LockHolder, winners[0])
		}
	}
}

func TestRegistryRemoveExpiredOnlyTouchesWild(t *testing.T) {
	reg := NewRegistry()
	spawned := time.Unix(1_700_000_000, 0)
	for _, id := range []string{"wild", "locked", "caught", "fresh"} {
		lifetime := 30 * time.Second
		if id == "fresh" {
			lifetime = time.Hour
		}
		reg.Insert(newTestEntity(id, spawned, lifetime))
	}
	holder := Holder{SessionID: "a"}
	reg.Transition("locked", StatusWild, StatusLocked, holder, spawned)
	reg.Transition("caught", StatusWild, StatusLocked, holder, spawned)
	reg.Transition("caught", StatusLocked, StatusCaught, holder, spawned)

	sweep := spawned.Add(31 * time.Second)
	removed := reg.RemoveExpired(sweep)
	if len(removed) != 1 || removed[0].ID != "wild" {
		t.Fatalf("expected only the expired wild entity removed, got %+v", removed)
	}

	for _, id := range []string{"locked", "caught", "fresh"} {
		if _, err := reg.Get(id); err != nil {
			t.Fatalf("expected %s to survive the sweep: %v", id, err)
		}
	}
	for _, entity := range reg.ListWild() {
		if entity.ID == "wild" {
			t.Fatalf("expired entity still listed as wild")
		}
	}
}

func TestRegistryExpiryBoundaryIsInclusive(t *testing.T) {
	reg := NewRegistry()
	spawned := time.Unix(1_700_000_000, 0)
	reg.Insert(newTestEntity("e1", spawned, 30*time.Second))

	if err := reg.Remove("e1", spawned.Add(29*time.Second)); !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("expected early removal to be rejected, got %v", err)
	}
	if err := reg.Remove("e1", spawned.Add(30*time.Second)); err != nil {
		t.Fatalf("expected removal at expiry, got %v", err)
	}
	if err := reg.Remove("e1", spawned.Add(31*time.Second)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after removal, got %v", err)
	}
}

func TestRegistryLockQueries(t *testing.T) {
	reg := NewRegistry()
	now := time.Unix(1_700_000_000, 0)
	reg.Insert(newTestEntity("e1", now, time.Hour))
	reg.Insert(newTestEntity("e2", now.Add(time.Second), time.Hour))
	reg.Insert(newTestEntity("e3", now.Add(2*time.Second), time.Hour))

	reg.Transition("e1", StatusWild, StatusLocked, Holder{SessionID: "a"}, now)
	reg.Transition("e2", StatusWild, StatusLocked, Holder{SessionID: "a"}, now.Add(50*time.Second))
	reg.Transition("e3", StatusWild, StatusLocked, Holder{SessionID: "b"}, now)

	held := reg.LocksHeldBy("a")
	if len(held) != 2 || held[0].ID != "e1" || held[1].ID != "e2" {
		t.Fatalf("unexpected locks for a: %+v", held)
	}

	counts := reg.Counts()
	if counts[StatusLocked] != 3 || counts[StatusWild] != 0 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestRegistryReleaseStaleUsesLockAge(t *testing.T) {
	reg := NewRegistry()
	now := time.Unix(1_700_000_000, 0)
	reg.Insert(newTestEntity("e1", now, time.Hour))
	reg.Insert(newTestEntity("e2", now, time.Hour))
	reg.Insert(newTestEntity("e3", now, time.Hour))

	reg.Transition("e1", StatusWild, StatusLocked, Holder{SessionID: "a"}, now)
	reg.Transition("e2", StatusWild, StatusLocked, Holder{SessionID: "a"}, now.Add(50*time.Second))
	reg.Transition("e3", StatusWild, StatusLocked, Holder{SessionID: "b", Name: "Bob"}, now)

	if got := reg.ReleaseStale(now.Add(time.Hour), 0); got != nil {
		t.Fatalf("expected disabled ttl to release nothing, got %+v", got)
	}

	released := reg.ReleaseStale(now.Add(60*time.Second), time.Minute)
	if len(released) != 2 || released[0].Entity.ID != "e1" || released[1].Entity.ID != "e3" {
		t.Fatalf("unexpected stale releases: %+v", released)
	}
	if tr := released[1]; tr.From != StatusLocked || tr.To != StatusWild || tr.Actor.Name != "Bob" || tr.Entity.LockHolder != nil {
		t.Fatalf("unexpected release transition %+v", tr)
	}
	if got, _ := reg.Get("e2"); !got.HeldBy("a") {
		t.Fatalf("fresh lock must survive: %+v", got)
	}
}

func TestRegistryReleaseStaleSkipsRelockedEntity(t *testing.T) {
	reg := NewRegistry()
	now := time.Unix(1_700_000_000, 0)
	holder := Holder{SessionID: "a"}
	reg.Insert(newTestEntity("e1", now, time.Hour))

	reg.Transition("e1", StatusWild, StatusLocked, holder, now)
	reg.Transition("e1", StatusLocked, StatusWild, holder, now.Add(59*time.Second))
	reg.Transition("e1", StatusWild, StatusLocked, holder, now.Add(59*time.Second))

	if released := reg.ReleaseStale(now.Add(60*time.Second), time.Minute); len(released) != 0 {
		t.Fatalf("re-acquired lock released by age of the previous one: %+v", released)
	}
	if got, _ := reg.Get("e1"); !got.HeldBy("a") {
		t.Fatalf("expected lock kept, got %+v", got)
	}
}

func TestRegistryCommitOrderFollowsApplication(t *testing.T) {
	reg := NewRegistry()
	now := time.Unix(1_700_000_000, 0)
	reg.Insert(newTestEntity("e1", now, time.Hour))
	reg.Insert(newTestEntity("e2", now, time.Hour))
	holder := Holder{SessionID: "a"}

	first, _ := reg.Transition("e1", StatusWild, StatusLocked, holder, now)
	if _, err := reg.Transition("e1", StatusWild, StatusLocked, holder, now); err == nil {
		t.Fatalf("expected second lock to fail")
	}
	second, _ := reg.Transition("e2", StatusWild, StatusLocked, holder, now)
	third := reg.ReleaseStale(now.Add(time.Minute), time.Second)

	if first.Commit == 0 || second.Commit != first.Commit+1 {
		t.Fatalf("failed transitions must not consume commits: %d then %d", first.Commit, second.Commit)
	}
	if len(third) != 2 || third[0].Commit <= second.Commit || third[1].Commit != third[0].Commit+1 {
		t.Fatalf("unexpected sweep commits %+v", third)
	}
}
