package telemetry

import (
	"log"

	"go.uber.org/zap"

	"github.com/dimaspandu/pokecat-hunt/logging"
)

// Logger is the printf-style logger handed to every engine component.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// Discard drops every message.
func Discard() Logger {
	return LoggerFunc(nil)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	return &loggerAdapter{logger: logger}
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// WrapZap routes Printf calls to a zap logger at info level.
func WrapZap(logger *zap.Logger) Logger {
	if logger == nil {
		return Discard()
	}
	sugar := logger.Sugar()
	return LoggerFunc(func(format string, args ...any) {
		sugar.Infof(format, args...)
	})
}

// Metrics is the counter surface used by the spawner, reaper and hub.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// WrapMetrics adapts the shared metrics registry into the Metrics interface.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return &metricsAdapter{metrics: metrics}
}

type metricsAdapter struct {
	metrics *logging.Metrics
}

func (m *metricsAdapter) Add(key string, delta uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryAdd(key, delta)
}

func (m *metricsAdapter) Store(key string, value uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryStore(key, value)
}

// Metric keys shared across packages.
const (
	MetricSpawned        = "creatures_spawned_total"
	MetricSpawnSkipped   = "spawn_cycles_skipped_total"
	MetricExpired        = "creatures_expired_total"
	MetricLocksGranted   = "locks_granted_total"
	MetricLocksRejected  = "locks_rejected_total"
	MetricLocksReleased  = "locks_released_total"
	MetricCaught         = "creatures_caught_total"
	MetricEscaped        = "capture_escapes_total"
	MetricRateLimited    = "requests_rate_limited_total"
	MetricBroadcastDrops = "broadcast_drops_total"
	MetricWild           = "creatures_wild"
	MetricSessions       = "sessions_connected"
	MetricCatalogReloads = "catalog_reloads_total"
)
