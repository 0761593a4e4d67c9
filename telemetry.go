package server

import (
	"fmt"
	"os"
	"sync/atomic"
)

type telemetryCounters struct {
	snapshotsSent        atomic.Uint64
	snapshotRecipients   atomic.Uint64
	lastSnapshotEntities atomic.Uint64
	noticesSent          atomic.Uint64
	resyncs              atomic.Uint64
	debug                bool
	journalSize          atomic.Uint64
	journalOldest        atomic.Uint64
	journalNewest        atomic.Uint64
	journalDropsCount    atomic.Uint64
	journalDropsAge      atomic.Uint64
}

type telemetrySnapshot struct {
	SnapshotsSent        uint64 `json:"snapshotsSent"`
	SnapshotRecipients   uint64 `json:"snapshotRecipients"`
	LastSnapshotEntities uint64 `json:"lastSnapshotEntities"`
	NoticesSent          uint64 `json:"noticesSent"`
	Resyncs              uint64 `json:"resyncs"`
	JournalSize          uint64 `json:"journalSize"`
	JournalOldest        uint64 `json:"journalOldestSequence"`
	JournalNewest        uint64 `json:"journalNewestSequence"`
	JournalDropsCount    uint64 `json:"journalDropsCount"`
	JournalDropsAge      uint64 `json:"journalDropsAge"`
}

func newTelemetryCounters() *telemetryCounters {
	t := &telemetryCounters{}
	if os.Getenv("DEBUG_TELEMETRY") == "1" {
		t.debug = true
	}
	return t
}

func (t *telemetryCounters) RecordSnapshot(entities, recipients int) {
	if entities < 0 {
		entities = 0
	}
	if recipients < 0 {
		recipients = 0
	}
	t.snapshotsSent.Add(1)
	t.snapshotRecipients.Add(uint64(recipients))
	t.lastSnapshotEntities.Store(uint64(entities))
	if t.debug {
		fmt.Printf("[telemetry] snapshot entities=%d recipients=%d total=%d\n",
			entities, recipients, t.snapshotsSent.Load())
	}
}

func (t *telemetryCounters) RecordNotice(recipients int) {
	if recipients > 0 {
		t.noticesSent.Add(uint64(recipients))
	}
}

func (t *telemetryCounters) RecordResync(recipients int) {
	if recipients > 0 {
		t.resyncs.Add(uint64(recipients))
	}
}

func (t *telemetryCounters) RecordJournal(size int, oldest, newest uint64) {
	if size < 0 {
		size = 0
	}
	t.journalSize.Store(uint64(size))
	t.journalOldest.Store(oldest)
	t.journalNewest.Store(newest)
}

// RecordJournalDrop satisfies journal.Telemetry.
func (t *telemetryCounters) RecordJournalDrop(reason string) {
	switch reason {
	case "expired":
		t.journalDropsAge.Add(1)
	default:
		t.journalDropsCount.Add(1)
	}
}

func (t *telemetryCounters) Snapshot() telemetrySnapshot {
	return telemetrySnapshot{
		SnapshotsSent:        t.snapshotsSent.Load(),
		SnapshotRecipients:   t.snapshotRecipients.Load(),
		LastSnapshotEntities: t.lastSnapshotEntities.Load(),
		NoticesSent:          t.noticesSent.Load(),
		Resyncs:              t.resyncs.Load(),
		JournalSize:          t.journalSize.Load(),
		JournalOldest:        t.journalOldest.Load(),
		JournalNewest:        t.journalNewest.Load(),
		JournalDropsCount:    t.journalDropsCount.Load(),
		JournalDropsAge:      t.journalDropsAge.Load(),
	}
}
