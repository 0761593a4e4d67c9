package journal

import (
	"errors"
	"testing"
	"time"

	"github.com/dimaspandu/pokecat-hunt/internal/creature"
)

type dropRecorder struct {
	reasons []string
}

func (d *dropRecorder) RecordJournalDrop(reason string) {
	d.reasons = append(d.reasons, reason)
}

func transition(id string, from, to creature.Status) creature.Transition {
	return creature.Transition{
		Entity: creature.Entity{ID: id},
		From:   from,
		To:     to,
		Actor:  creature.Holder{SessionID: "s1", Name: "Alice"},
	}
}

func TestJournalEvictsByCount(t *testing.T) {
	j := New(2, 0, nil)
	drops := &dropRecorder{}
	j.AttachTelemetry(drops)

	j.Record(transition("a", creature.StatusWild, creature.StatusLocked), "")
	j.Record(transition("b", creature.StatusWild, creature.StatusLocked), "")
	result := j.Record(transition("c", creature.StatusWild, creature.StatusLocked), "")

	if result.Size != 2 || result.OldestSequence != 2 || result.NewestSequence != 3 {
		t.Fatalf("unexpected record result %+v", result)
	}
	if len(result.Evicted) != 1 || result.Evicted[0].Sequence != 1 || result.Evicted[0].Reason != "count" {
		t.Fatalf("unexpected evictions %+v", result.Evicted)
	}
	if len(drops.reasons) != 1 || drops.reasons[0] != "count" {
		t.Fatalf("unexpected telemetry %+v", drops.reasons)
	}
}

func TestJournalEvictsByAge(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	j := New(10, time.Minute, func() time.Time { return now })

	j.Record(transition("a", creature.StatusWild, creature.StatusLocked), "")
	now = now.Add(30 * time.Second)
	j.Record(transition("b", creature.StatusWild, creature.StatusLocked), "")
	now = now.Add(45 * time.Second)
	result := j.Record(transition("c", creature.StatusWild, creature.StatusLocked), "")

	if len(result.Evicted) != 1 || result.Evicted[0].Reason != "expired" {
		t.Fatalf("expected the first entry to age out, got %+v", result.Evicted)
	}
	if size, oldest, newest := j.Window(); size != 2 || oldest != 2 || newest != 3 {
		t.Fatalf("unexpected window %d %d %d", size, oldest, newest)
	}
}

func TestJournalZeroCapacityRecordsNothing(t *testing.T) {
	j := New(0, 0, nil)
	j.Record(transition("a", creature.StatusWild, creature.StatusLocked), "")
	if entries := j.Entries(); entries != nil {
		t.Fatalf("expected no entries, got %+v", entries)
	}
}

func TestHistoryFiltersByEntity(t *testing.T) {
	j := New(10, 0, nil)
	j.Record(transition("a", creature.StatusWild, creature.StatusLocked), "")
	j.Record(transition("b", creature.StatusWild, creature.StatusLocked), "")
	j.Record(transition("a", creature.StatusLocked, creature.StatusWild), "timeout")

	history := j.History("a")
	if len(history) != 2 || history[1].Cause != "timeout" || history[0].ActorName != "Alice" {
		t.Fatalf("unexpected history %+v", history)
	}
	if err := VerifyHistory(history); err != nil {
		t.Fatalf("valid history rejected: %v", err)
	}
}

func TestJournalOrdersByCommit(t *testing.T) {
	j := New(10, 0, nil)
	escape := transition("a", creature.StatusLocked, creature.StatusWild)
	escape.Commit = 2
	relock := transition("a", creature.StatusWild, creature.StatusLocked)
	relock.Commit = 3
	first := transition("a", creature.StatusWild, creature.StatusLocked)
	first.Commit = 1

	j.Record(relock, "")
	j.Record(first, "")
	result := j.Record(escape, "escaped")

	history := j.History("a")
	if len(history) != 3 || history[0].Sequence != 1 || history[1].Sequence != 2 || history[2].Sequence != 3 {
		t.Fatalf("expected commit order, got %+v", history)
	}
	if err := VerifyHistory(history); err != nil {
		t.Fatalf("reordered history rejected: %v", err)
	}
	if result.OldestSequence != 1 || result.NewestSequence != 3 {
		t.Fatalf("unexpected window %+v", result)
	}

	local := j.Record(transition("b", creature.StatusWild, creature.StatusLocked), "")
	if local.NewestSequence != 4 {
		t.Fatalf("expected local sequence to follow the highest commit, got %+v", local)
	}
}

func TestVerifyHistory(t *testing.T) {
	entry := func(seq uint64, from, to creature.Status) Entry {
		return Entry{Sequence: seq, EntityID: "a", From: from, To: to}
	}
	valid := []Entry{
		entry(1, creature.StatusWild, creature.StatusLocked),
		entry(2, creature.StatusLocked, creature.StatusWild),
		entry(3, creature.StatusWild, creature.StatusLocked),
		entry(4, creature.StatusLocked, creature.StatusCaught),
	}
	if err := VerifyHistory(valid); err != nil {
		t.Fatalf("valid history rejected: %v", err)
	}

	afterCatch := append(append([]Entry(nil), valid...), entry(5, creature.StatusCaught, creature.StatusWild))
	if err := VerifyHistory(afterCatch); !errors.Is(err, ErrInconsistentHistory) {
		t.Fatalf("expected catch to be terminal, got %v", err)
	}

	broken := []Entry{entry(1, creature.StatusWild, creature.StatusLocked), entry(2, creature.StatusWild, creature.StatusLocked)}
	if err := VerifyHistory(broken); !errors.Is(err, ErrInconsistentHistory) {
		t.Fatalf("expected broken chain to be rejected, got %v", err)
	}
}
