package telemetry

import (
	"bytes"
	"log"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dimaspandu/pokecat-hunt/logging"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		base := log.New(&buf, "", 0)
		logger := WrapLogger(base)
		logger.Printf("hello %s", "world")
		if got := buf.String(); got != "hello world\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})

	t.Run("discard", func(t *testing.T) {
		Discard().Printf("nothing %s", "here")
	})
}

func TestWrapZap(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := WrapZap(zap.New(core))
	logger.Printf("spawned %d creatures", 3)

	entries := logs.All()
	if len(entries) != 1 || entries[0].Message != "spawned 3 creatures" {
		t.Fatalf("unexpected zap entries: %+v", entries)
	}

	WrapZap(nil).Printf("ignored")
}

func TestWrapMetrics(t *testing.T) {
	metrics := logging.Metrics{}
	adapter := WrapMetrics(&metrics)

	adapter.Add(MetricLocksGranted, 2)
	adapter.Store(MetricLocksGranted, 5)
	adapter.Add(MetricLocksGranted, 3)

	snapshot := metrics.Snapshot()
	if got := snapshot[MetricLocksGranted]; got != 8 {
		t.Fatalf("unexpected metric value: %d", got)
	}

	var nilAdapter Metrics = WrapMetrics(nil)
	nilAdapter.Add("ignored", 1)
	nilAdapter.Store("ignored", 1)
}
