// Package journal keeps a bounded, age-limited record of committed creature
// transitions for diagnostics and per-creature history.
package journal

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dimaspandu/pokecat-hunt/internal/creature"
)

// Telemetry captures the metrics adapter used by the journal to report drops.
type Telemetry interface {
	RecordJournalDrop(reason string)
}

// Entry is one committed transition.
type Entry struct {
	Sequence   uint64          `json:"sequence"`
	EntityID   string          `json:"entityId"`
	From       creature.Status `json:"from"`
	To         creature.Status `json:"to"`
	SessionID  string          `json:"sessionId"`
	ActorName  string          `json:"actorName,omitempty"`
	Cause      string          `json:"cause,omitempty"`
	At         time.Time       `json:"at"`
	RecordedAt time.Time       `json:"recordedAt"`
}

type Eviction struct {
	Sequence uint64
	Reason   string
}

type RecordResult struct {
	Size           int
	OldestSequence uint64
	NewestSequence uint64
	Evicted        []Eviction
}

// Journal retains transitions by count and age.
type Journal struct {
	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
	maxAge     time.Duration
	nextSeq    uint64
	now        func() time.Time
	telemetry  Telemetry
}

// New constructs a journal holding at most capacity entries no older than
// maxAge. A zero maxAge disables age eviction.
func New(capacity int, maxAge time.Duration, now func() time.Time) *Journal {
	if capacity < 0 {
		capacity = 0
	}
	if maxAge < 0 {
		maxAge = 0
	}
	if now == nil {
		now = time.Now
	}
	return &Journal{
		entries:    make([]Entry, 0, capacity),
		maxEntries: capacity,
		maxAge:     maxAge,
		now:        now,
	}
}

// AttachTelemetry configures the metrics sink used for eviction reporting.
func (j *Journal) AttachTelemetry(t Telemetry) {
	j.mu.Lock()
	j.telemetry = t
	j.mu.Unlock()
}

// Record stores tr under its registry commit number, or the next local
// sequence when the transition carries none, and enforces the retention
// limits.
func (j *Journal) Record(tr creature.Transition, cause string) RecordResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.maxEntries == 0 {
		return RecordResult{}
	}

	seq := tr.Commit
	if seq == 0 {
		seq = j.nextSeq + 1
	}
	if seq > j.nextSeq {
		j.nextSeq = seq
	}
	entry := Entry{
		Sequence:   seq,
		EntityID:   tr.Entity.ID,
		From:       tr.From,
		To:         tr.To,
		SessionID:  tr.Actor.SessionID,
		ActorName:  tr.Actor.Name,
		Cause:      cause,
		At:         tr.At,
		RecordedAt: j.now(),
	}
	j.insertLocked(entry)

	var evicted []Eviction
	if j.maxAge > 0 {
		cutoff := entry.RecordedAt.Add(-j.maxAge)
		idx := 0
		for idx < len(j.entries) && j.entries[idx].RecordedAt.Before(cutoff) {
			evicted = append(evicted, Eviction{Sequence: j.entries[idx].Sequence, Reason: "expired"})
			idx++
		}
		j.dropFrontLocked(idx)
	}
	if overflow := len(j.entries) - j.maxEntries; overflow > 0 {
		for i := 0; i < overflow; i++ {
			evicted = append(evicted, Eviction{Sequence: j.entries[i].Sequence, Reason: "count"})
		}
		j.dropFrontLocked(overflow)
	}
	if j.telemetry != nil {
		for _, ev := range evicted {
			j.telemetry.RecordJournalDrop(ev.Reason)
		}
	}

	size := len(j.entries)
	result := RecordResult{Size: size, Evicted: evicted}
	if size > 0 {
		result.OldestSequence = j.entries[0].Sequence
		result.NewestSequence = j.entries[size-1].Sequence
	}
	return result
}

// insertLocked keeps entries ordered by sequence. Transitions are recorded
// after the registry lock is released, so a later commit can arrive first.
func (j *Journal) insertLocked(entry Entry) {
	i := len(j.entries)
	for i > 0 && j.entries[i-1].Sequence > entry.Sequence {
		i--
	}
	j.entries = append(j.entries, Entry{})
	copy(j.entries[i+1:], j.entries[i:])
	j.entries[i] = entry
}

func (j *Journal) dropFrontLocked(n int) {
	if n <= 0 {
		return
	}
	copy(j.entries, j.entries[n:])
	j.entries = j.entries[:len(j.entries)-n]
}

// Entries returns a copy of the retained entries in commit order.
func (j *Journal) Entries() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.entries) == 0 {
		return nil
	}
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// History returns the retained entries for one creature.
func (j *Journal) History(entityID string) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Entry
	for _, entry := range j.entries {
		if entry.EntityID == entityID {
			out = append(out, entry)
		}
	}
	return out
}

// Window reports the current retention window.
func (j *Journal) Window() (size int, oldest, newest uint64) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	size = len(j.entries)
	if size == 0 {
		return size, 0, 0
	}
	return size, j.entries[0].Sequence, j.entries[size-1].Sequence
}

var ErrInconsistentHistory = errors.New("inconsistent transition history")

// VerifyHistory checks that one creature's entries chain together and that
// nothing follows a catch. A complete history starts from wild; a truncated
// one only needs to chain.
func VerifyHistory(entries []Entry) error {
	for i, entry := range entries {
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if prev.To == creature.StatusCaught {
			return fmt.Errorf("entry %d after catch at %d: %w", entry.Sequence, prev.Sequence, ErrInconsistentHistory)
		}
		if entry.From != prev.To {
			return fmt.Errorf("entry %d starts from %s, previous ended at %s: %w", entry.Sequence, entry.From, prev.To, ErrInconsistentHistory)
		}
	}
	return nil
}
