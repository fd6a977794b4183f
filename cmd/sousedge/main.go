// Sous Edge Core - Restaurant Operations Edge Server
//
// This is the main entry point for the Sous Edge Core application.
// The edge core runs on a box inside the restaurant and keeps the
// kitchen operational when the internet is not:
//   - Local device pairing and liveness tracking
//   - Realtime fan-out to screens, tills, and kitchen displays
//   - LAN discovery so hardware finds the box without configuration
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/sous-kitchen/edge-core/migrations"

	"github.com/sous-kitchen/edge-core/internal/api"
	"github.com/sous-kitchen/edge-core/internal/device"
	"github.com/sous-kitchen/edge-core/internal/discovery"
	"github.com/sous-kitchen/edge-core/internal/infrastructure/config"
	"github.com/sous-kitchen/edge-core/internal/infrastructure/database"
	"github.com/sous-kitchen/edge-core/internal/infrastructure/influxdb"
	"github.com/sous-kitchen/edge-core/internal/infrastructure/logging"
	"github.com/sous-kitchen/edge-core/internal/pairing"
	"github.com/sous-kitchen/edge-core/internal/realtime"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// pairingExpiryInterval is how often expired pairing codes are purged.
const pairingExpiryInterval = time.Minute

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Sous Edge Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device directory
	directory := device.NewDirectory(device.NewSQLiteRepository(db.DB), log)

	// Telemetry sink: latest values cached on the device record, full
	// series into InfluxDB when enabled.
	sink := &telemetrySink{directory: directory, logger: log}
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sink.store = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled, telemetry series will not be stored")
	}

	// Realtime hub with telemetry throttling
	throttle := realtime.NewTelemetryThrottle(cfg.TelemetryWindow())
	go throttle.Run(ctx, time.Duration(cfg.Telemetry.SweepInterval)*time.Second)

	hub := realtime.NewHub(cfg.WebSocket, throttle, sink, log)

	// Pairing registry
	registry := pairing.NewRegistry(pairing.NewSQLiteRepository(db.DB), directory, hub, log, cfg.PairingCodeTTL())
	go registry.RunExpiry(ctx, pairingExpiryInterval)

	// Liveness sweeper: units that stop beating go offline and their
	// organisation hears about it.
	go directory.RunSweeper(ctx,
		time.Duration(cfg.Heartbeat.SweepInterval)*time.Second,
		cfg.OfflineCutoff(),
		func(hardwareID string) {
			dev, err := directory.GetByHardwareID(ctx, hardwareID)
			if err != nil || dev.OrganizationID == nil {
				return
			}
			hub.PublishToOrganization(*dev.OrganizationID, realtime.EventDeviceUpdated, dev)
		},
	)
	log.Info("liveness sweeper started",
		"interval_s", cfg.Heartbeat.SweepInterval,
		"offline_after", cfg.OfflineCutoff().String(),
	)

	// mDNS discovery responder (optional)
	if cfg.Discovery.Enabled {
		responder, err := discovery.NewResponder(cfg.Discovery, cfg.DiscoveryPort(), log)
		if err != nil {
			return fmt.Errorf("creating discovery responder: %w", err)
		}
		go func() {
			if startErr := responder.Start(ctx); startErr != nil {
				log.Error("discovery responder failed", "error", startErr)
			}
		}()
	} else {
		log.Info("discovery disabled")
	}

	// HTTP API server
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Logger:    log,
		Directory: directory,
		Pairing:   registry,
		Hub:       hub,
		Publisher: hub,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify connections are healthy
	if err := healthCheck(ctx, db, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. Database

	log.Info("Sous Edge Core stopped")
	return nil
}

// telemetrySink fans accepted telemetry out to the device directory's
// metadata cache and, when connected, the time-series store.
type telemetrySink struct {
	directory *device.Directory
	store     realtime.TelemetrySink
	logger    *logging.Logger
}

// RecordTelemetry merges the sample into the device metadata blob as a
// latest-value cache, then forwards to the series store. A background
// context keeps in-flight merges out of the shutdown cascade.
func (s *telemetrySink) RecordTelemetry(hardwareID, key string, value float64, metadata map[string]any) {
	if err := s.directory.MergeMetadata(context.Background(), hardwareID, device.Metadata{key: value}); err != nil {
		s.logger.Warn("telemetry metadata merge failed",
			"hardware_id", hardwareID,
			"key", key,
			"error", err,
		)
	}
	if s.store != nil {
		s.store.RecordTelemetry(hardwareID, key, value, metadata)
	}
}

// getConfigPath returns the configuration file path.
// Uses SOUSEDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SOUSEDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
