package logging_test

import (
	"context"
	"testing"
	"time"

	"github.com/dimaspandu/pokecat-hunt/logging"
	"github.com/dimaspandu/pokecat-hunt/logging/capture"
	"github.com/dimaspandu/pokecat-hunt/logging/sinks"
)

func newTestRouter(t *testing.T, cfg logging.Config) (*logging.Router, *sinks.MemorySink) {
	t.Helper()
	memory := sinks.NewMemorySink()
	fixed := time.Unix(1_700_000_000, 0)
	router, err := logging.NewRouter(logging.ClockFunc(func() time.Time { return fixed }), cfg, []logging.NamedSink{{Name: "memory", Sink: memory}})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return router, memory
}

func closeRouter(t *testing.T, router *logging.Router) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("close router: %v", err)
	}
}

func TestRouterForwardsToSinks(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityDebug
	cfg.Fields = map[string]any{"service": "pokecat"}
	router, memory := newTestRouter(t, cfg)

	capture.LockGranted(context.Background(), router, logging.SessionRef("s1"), capture.AttemptPayload{EntityID: "e1", Name: "Tabby"})
	closeRouter(t, router)

	events := memory.EventsOfType(capture.EventLockGranted)
	if len(events) != 1 {
		t.Fatalf("expected one lock event, got %d", len(events))
	}
	event := events[0]
	if event.Time.IsZero() || event.Extra["service"] != "pokecat" {
		t.Fatalf("router did not stamp event: %+v", event)
	}
	if len(event.Targets) != 1 || event.Targets[0] != logging.CreatureRef("e1") {
		t.Fatalf("unexpected targets %+v", event.Targets)
	}
	stats := router.Stats()
	if stats.Published != 1 || stats.ByCategory[logging.CategoryCapture] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(stats.Sinks) != 1 || stats.Sinks[0].Name != "memory" || stats.Sinks[0].Written != 1 {
		t.Fatalf("unexpected sink stats %+v", stats.Sinks)
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityInfo
	router, memory := newTestRouter(t, cfg)

	capture.LockRejected(context.Background(), router, logging.SessionRef("s1"), capture.AttemptPayload{EntityID: "e1"})
	capture.Caught(context.Background(), router, logging.SessionRef("s1"), capture.AttemptPayload{EntityID: "e1"})
	closeRouter(t, router)

	events := memory.Events()
	if len(events) != 1 || events[0].Type != capture.EventCaught {
		t.Fatalf("expected only the caught event, got %+v", events)
	}
	if stats := router.Stats(); stats.Filtered != 1 || stats.Published != 2 {
		t.Fatalf("expected one filtered event, got %+v", stats)
	}
}

func TestRouterAttachesContextFields(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.Fields = map[string]any{"service": "pokecat", "codec": "static"}
	router, memory := newTestRouter(t, cfg)

	ctx := logging.ContextWithFields(context.Background(), map[string]any{"session": "s1", "codec": "json"})
	ctx = logging.ContextWithFields(ctx, map[string]any{"name": "Alice"})
	capture.Caught(ctx, router, logging.SessionRef("s1"), capture.AttemptPayload{EntityID: "e1"})
	capture.Caught(context.Background(), router, logging.SessionRef("s2"), capture.AttemptPayload{EntityID: "e2"})
	closeRouter(t, router)

	events := memory.Events()
	if len(events) != 2 {
		t.Fatalf("expected two events, got %d", len(events))
	}
	extra := events[0].Extra
	if extra["session"] != "s1" || extra["name"] != "Alice" || extra["codec"] != "json" || extra["service"] != "pokecat" {
		t.Fatalf("context fields not merged: %+v", extra)
	}
	if _, ok := events[1].Extra["session"]; ok || events[1].Extra["codec"] != "static" {
		t.Fatalf("fields leaked across contexts: %+v", events[1].Extra)
	}
}

func TestRouterCloseIsRepeatable(t *testing.T) {
	router, _ := newTestRouter(t, logging.DefaultConfig())
	closeRouter(t, router)
	closeRouter(t, router)
}

func TestRouterIgnoresPublishAfterClose(t *testing.T) {
	router, memory := newTestRouter(t, logging.DefaultConfig())
	closeRouter(t, router)

	capture.Caught(context.Background(), router, logging.SessionRef("s1"), capture.AttemptPayload{EntityID: "e1"})
	if got := len(memory.Events()); got != 0 {
		t.Fatalf("expected no events after close, got %d", got)
	}
}

func TestParseSinks(t *testing.T) {
	got := logging.ParseSinks(" console, JSON,,zap ")
	want := []string{"console", "json", "zap"}
	if len(got) != len(want) {
		t.Fatalf("unexpected sinks %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected sinks %v", got)
		}
	}
}
