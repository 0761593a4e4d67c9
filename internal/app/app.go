package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	server "github.com/dimaspandu/pokecat-hunt"
	"github.com/dimaspandu/pokecat-hunt/internal/catalog"
	"github.com/dimaspandu/pokecat-hunt/internal/config"
	servernet "github.com/dimaspandu/pokecat-hunt/internal/net"
	"github.com/dimaspandu/pokecat-hunt/internal/telemetry"
	"github.com/dimaspandu/pokecat-hunt/logging"
	loggingSinks "github.com/dimaspandu/pokecat-hunt/logging/sinks"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Logger telemetry.Logger
	// Lookup overrides os.LookupEnv when set.
	Lookup config.LookupFunc
	// EnvFiles are loaded before the environment is read. Defaults to ".env".
	EnvFiles []string
}

func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	if err := config.LoadDotEnv(cfg.EnvFiles...); err != nil {
		telemetryLogger.Printf("failed to load env file: %v", err)
	}
	settings := config.FromEnv(cfg.Lookup, telemetryLogger)
	settings.ApplyDeadlockDetection()

	logConfig := settings.LoggingConfig()
	sinks, err := buildSinks(logConfig)
	if err != nil {
		return fmt.Errorf("failed to construct logging sinks: %w", err)
	}
	router, err := logging.NewRouter(logging.ClockFunc(time.Now), logConfig, sinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	hub, err := server.NewHub(hubConfig(settings, telemetryLogger), router)
	if err != nil {
		return fmt.Errorf("failed to construct hub: %w", err)
	}

	clientDir, err := server.ResolveClientDir(settings.ClientDir)
	if err != nil {
		telemetryLogger.Printf("static client disabled: %v", err)
		clientDir = ""
	}
	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		ClientDir:     clientDir,
		Logger:        telemetryLogger,
		Observability: settings.Observability,
	})

	runCtx, stopHub := context.WithCancel(ctx)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(runCtx)
	}()
	defer func() {
		stopHub()
		<-hubDone
	}()

	srv := &http.Server{Addr: settings.Addr, Handler: handler}
	serveErr := make(chan error, 1)
	go func() {
		telemetryLogger.Printf("server listening on %s (catalog %s)", srv.Addr, catalogSource(settings).Name())
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// buildSinks instantiates every sink enabled in cfg. Unknown names are
// ignored.
func buildSinks(cfg logging.Config) ([]logging.NamedSink, error) {
	var sinks []logging.NamedSink
	if cfg.HasSink(logging.SinkConsole) {
		sinks = append(sinks, logging.NamedSink{
			Name: logging.SinkConsole,
			Sink: loggingSinks.NewConsoleSink(os.Stdout, cfg.Console),
		})
	}
	if cfg.HasSink(logging.SinkJSON) {
		sink, err := loggingSinks.NewJSONFile(cfg.JSON.FilePath, cfg.JSON.FlushInterval)
		if err != nil {
			closeSinks(sinks)
			return nil, fmt.Errorf("json sink: %w", err)
		}
		sinks = append(sinks, logging.NamedSink{Name: logging.SinkJSON, Sink: sink})
	}
	if cfg.HasSink(logging.SinkZap) {
		logger, err := loggingSinks.NewZapLogger(cfg.Zap, cfg.MinimumSeverity)
		if err != nil {
			closeSinks(sinks)
			return nil, fmt.Errorf("zap sink: %w", err)
		}
		sinks = append(sinks, logging.NamedSink{Name: logging.SinkZap, Sink: loggingSinks.NewZap(logger)})
	}
	return sinks, nil
}

func closeSinks(sinks []logging.NamedSink) {
	for _, named := range sinks {
		named.Sink.Close(context.Background())
	}
}

func hubConfig(settings config.Config, logger telemetry.Logger) server.HubConfig {
	hubCfg := server.DefaultHubConfig()
	hubCfg.Spawn.Interval = settings.SpawnInterval
	hubCfg.Spawn.Lifetime = settings.EntityLifetime
	hubCfg.Spawn.RadiusMeters = settings.SpawnRadiusMeters
	hubCfg.Spawn.Rarity.Common = settings.RarityCommon
	hubCfg.Spawn.Rarity.Rare = settings.RarityRare
	hubCfg.Spawn.MaxWild = settings.MaxWild
	hubCfg.Reaper.Interval = settings.ReapInterval
	hubCfg.Reaper.LockTTL = settings.LockTTL
	hubCfg.LockRate = settings.LockRate
	hubCfg.LockBurst = settings.LockBurst
	hubCfg.Catalog = catalogSource(settings)
	hubCfg.Logger = logger
	return hubCfg
}

// catalogSource picks the first configured backend: mongo, sqlite, a JSON
// file, then the embedded templates.
func catalogSource(settings config.Config) catalog.Source {
	switch {
	case settings.CatalogMongoURI != "":
		return catalog.MongoSource{URI: settings.CatalogMongoURI, Database: settings.CatalogMongoDB}
	case settings.CatalogSQLitePath != "":
		return catalog.SQLiteSource{Path: settings.CatalogSQLitePath}
	case settings.CatalogPath != "":
		return catalog.FileSource{Path: settings.CatalogPath}
	default:
		return catalog.EmbeddedSource{}
	}
}
