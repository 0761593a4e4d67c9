// Package config resolves server settings from defaults, an optional .env
// file, and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sasha-s/go-deadlock"

	"github.com/dimaspandu/pokecat-hunt/internal/observability"
	"github.com/dimaspandu/pokecat-hunt/internal/telemetry"
	"github.com/dimaspandu/pokecat-hunt/logging"
)

type Config struct {
	Addr      string
	ClientDir string

	SpawnInterval     time.Duration
	ReapInterval      time.Duration
	EntityLifetime    time.Duration
	SpawnRadiusMeters float64
	RarityCommon      float64
	RarityRare        float64
	MaxWild           int

	LockTTL   time.Duration
	LockRate  float64
	LockBurst int

	CatalogPath       string
	CatalogMongoURI   string
	CatalogMongoDB    string
	CatalogSQLitePath string

	LogSinks    []string
	LogJSONPath string
	LogLevel    logging.Severity
	LogFormat   string

	Observability     observability.Config
	DeadlockDetection bool
}

func Default() Config {
	return Config{
		Addr:              ":8080",
		ClientDir:         "client",
		SpawnInterval:     3 * time.Second,
		ReapInterval:      5 * time.Second,
		EntityLifetime:    30 * time.Second,
		SpawnRadiusMeters: 1000,
		RarityCommon:      0.7,
		RarityRare:        0.95,
		LockTTL:           60 * time.Second,
		LockRate:          5,
		LockBurst:         10,
		CatalogMongoDB:    "pokecat_hunt",
		LogSinks:          []string{logging.SinkConsole},
		LogJSONPath:       "events.jsonl",
		LogLevel:          logging.SeverityInfo,
		LogFormat:         "console",
	}
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads the given .env files (".env" when none are named) into
// the process environment. Missing files are not an error; existing
// variables are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// FromEnv applies environment overrides on top of Default. Invalid values
// are reported through logger and the default is kept.
func FromEnv(lookup LookupFunc, logger telemetry.Logger) Config {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if logger == nil {
		logger = telemetry.Discard()
	}
	cfg := Default()
	e := envReader{lookup: lookup, logger: logger}

	e.str("ADDR", &cfg.Addr)
	e.str("CLIENT_DIR", &cfg.ClientDir)
	e.duration("SPAWN_INTERVAL", &cfg.SpawnInterval, false)
	e.duration("REAP_INTERVAL", &cfg.ReapInterval, false)
	e.duration("ENTITY_LIFETIME", &cfg.EntityLifetime, false)
	e.float("SPAWN_RADIUS_METERS", &cfg.SpawnRadiusMeters)
	e.fraction("RARITY_COMMON", &cfg.RarityCommon)
	e.fraction("RARITY_RARE", &cfg.RarityRare)
	e.integer("MAX_WILD", &cfg.MaxWild)
	e.duration("LOCK_TTL", &cfg.LockTTL, true)
	e.float("LOCK_RATE", &cfg.LockRate)
	e.integer("LOCK_BURST", &cfg.LockBurst)
	e.str("CATALOG_PATH", &cfg.CatalogPath)
	e.str("CATALOG_MONGO_URI", &cfg.CatalogMongoURI)
	e.str("CATALOG_MONGO_DB", &cfg.CatalogMongoDB)
	e.str("CATALOG_SQLITE_PATH", &cfg.CatalogSQLitePath)
	e.str("LOG_JSON_PATH", &cfg.LogJSONPath)
	e.str("LOG_FORMAT", &cfg.LogFormat)
	e.boolean("ENABLE_PPROF_TRACE", &cfg.Observability.EnablePprofTrace)
	e.boolean("DEADLOCK_DETECTION", &cfg.DeadlockDetection)

	if raw, ok := lookup("LOG_SINKS"); ok && raw != "" {
		cfg.LogSinks = logging.ParseSinks(raw)
	}
	if raw, ok := lookup("LOG_LEVEL"); ok && raw != "" {
		if level, ok := logging.ParseSeverity(raw); ok {
			cfg.LogLevel = level
		} else {
			logger.Printf("invalid LOG_LEVEL=%q", raw)
		}
	}

	if cfg.RarityCommon > cfg.RarityRare {
		logger.Printf("RARITY_COMMON=%v exceeds RARITY_RARE=%v, using defaults", cfg.RarityCommon, cfg.RarityRare)
		def := Default()
		cfg.RarityCommon, cfg.RarityRare = def.RarityCommon, def.RarityRare
	}
	return cfg
}

// ApplyDeadlockDetection toggles go-deadlock's lock-order and timeout checks
// process-wide. With detection off the deadlock mutexes behave like sync.
func (c Config) ApplyDeadlockDetection() {
	deadlock.Opts.Disable = !c.DeadlockDetection
}

// LoggingConfig maps the log settings onto the router configuration.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if len(c.LogSinks) > 0 {
		cfg.EnabledSinks = append([]string(nil), c.LogSinks...)
	}
	cfg.MinimumSeverity = c.LogLevel
	cfg.JSON.FilePath = c.LogJSONPath
	cfg.Zap.Format = c.LogFormat
	cfg.Console.Prefix = "[events] "
	cfg.Fields = map[string]any{"service": "pokecat-hunt"}
	return cfg
}

type envReader struct {
	lookup LookupFunc
	logger telemetry.Logger
}

func (e envReader) raw(key string) (string, bool) {
	raw, ok := e.lookup(key)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}

func (e envReader) str(key string, dst *string) {
	if raw, ok := e.raw(key); ok {
		*dst = raw
	}
}

func (e envReader) duration(key string, dst *time.Duration, allowZero bool) {
	raw, ok := e.raw(key)
	if !ok {
		return
	}
	value, err := time.ParseDuration(raw)
	if err == nil && (value > 0 || (allowZero && value == 0)) {
		*dst = value
		return
	}
	if err == nil {
		err = errors.New("must be positive")
	}
	e.logger.Printf("invalid %s=%q: %v", key, raw, err)
}

func (e envReader) float(key string, dst *float64) {
	raw, ok := e.raw(key)
	if !ok {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err == nil && value > 0 {
		*dst = value
		return
	}
	if err == nil {
		err = errors.New("must be positive")
	}
	e.logger.Printf("invalid %s=%q: %v", key, raw, err)
}

func (e envReader) fraction(key string, dst *float64) {
	raw, ok := e.raw(key)
	if !ok {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err == nil && value >= 0 && value <= 1 {
		*dst = value
		return
	}
	if err == nil {
		err = errors.New("must be within [0,1]")
	}
	e.logger.Printf("invalid %s=%q: %v", key, raw, err)
}

func (e envReader) integer(key string, dst *int) {
	raw, ok := e.raw(key)
	if !ok {
		return
	}
	value, err := strconv.Atoi(raw)
	if err == nil && value >= 0 {
		*dst = value
		return
	}
	if err == nil {
		err = errors.New("must not be negative")
	}
	e.logger.Printf("invalid %s=%q: %v", key, raw, err)
}

func (e envReader) boolean(key string, dst *bool) {
	raw, ok := e.raw(key)
	if !ok {
		return
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		e.logger.Printf("invalid %s=%q: %v", key, raw, err)
		return
	}
	*dst = value
}
