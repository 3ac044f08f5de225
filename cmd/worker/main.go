package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/me/goshift/internal/config"
	"github.com/me/goshift/internal/dispatcher"
	"github.com/me/goshift/internal/logging"
	"github.com/me/goshift/internal/roster"
	"github.com/me/goshift/internal/store"
)

// The worker runs the job dispatcher against the shared database without an
// API server in front of it. Point any number of workers at the same
// PostgreSQL registry to scale schedule generation out; the atomic claim
// keeps them from stepping on each other.
func main() {
	// A .env file is a convenience for local runs; absence is normal.
	_ = godotenv.Load()

	configFile := flag.String("config", os.Getenv("GOSHIFT_CONFIG"), "Path to YAML config file")
	dbPath := flag.String("db", "", "SQLite database path")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (selects the postgres driver)")
	rosterURL := flag.String("roster-url", "", "Staff data service base URL")
	workers := flag.Int("workers", 0, "Concurrent job processors")
	poll := flag.Duration("poll", 0, "Poll interval after an empty claim")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json, console)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if *dbPath != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.DBPath = *dbPath
	}
	if *dsn != "" {
		cfg.Store.Driver = "postgres"
		cfg.Store.DSN = *dsn
	}
	if *rosterURL != "" {
		cfg.Roster.BaseURL = *rosterURL
	}
	if *workers > 0 {
		cfg.Dispatcher.Workers = *workers
	}
	if *poll > 0 {
		cfg.Dispatcher.PollInterval = *poll
		if cfg.Dispatcher.MaxIdleInterval < *poll {
			cfg.Dispatcher.MaxIdleInterval = *poll
		}
	}
	if *logLevel != "" {
		cfg.Server.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.Server.LogFormat = *logFormat
	}
	if *debug {
		cfg.Server.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Roster.BaseURL == "" {
		fmt.Fprintln(os.Stderr, "a roster service URL is required (set -roster-url or GOSHIFT_ROSTER_URL)")
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.Server.LogLevel), cfg.Server.LogFormat)

	st, err := openStore(cfg.Store, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	// Migrations are idempotent, so a worker may start before the server.
	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "driver", cfg.Store.Driver)

	rosterClient, health := buildRosterClient(cfg.Roster, logger)

	loop := dispatcher.NewLoop(st, rosterClient, dispatcher.Config{
		PollInterval:    cfg.Dispatcher.PollInterval,
		MaxIdleInterval: cfg.Dispatcher.MaxIdleInterval,
		Workers:         cfg.Dispatcher.Workers,
		StaleClaimAfter: cfg.Dispatcher.StaleClaimAfter,
		RequeueInterval: cfg.Dispatcher.RequeueInterval,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker starting",
		"roster", cfg.Roster.BaseURL,
		"workers", cfg.Dispatcher.Workers,
		"poll", cfg.Dispatcher.PollInterval,
	)

	// The loop runs on a background context so the signal handler can drain
	// it through Stop instead of cancelling in-flight jobs mid-write.
	go func() {
		if err := loop.Start(context.Background()); err != nil {
			logger.Error("dispatcher stopped", "error", err)
		}
	}()

	if health != nil {
		go func() {
			if err := health.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("roster health check stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	// Jobs still running after the timeout keep their PROCESSING claims and
	// are requeued by the stale-claim sweep of a later run.
	loop.Stop(cfg.Dispatcher.ShutdownTimeout)

	logger.Info("worker stopped")
}

// openStore opens the configured job registry backend.
func openStore(cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	if cfg.Driver == "postgres" {
		return store.NewPostgresStore(cfg.DSN, logger)
	}
	return store.NewSQLiteStore(cfg.DBPath, logger)
}

// buildRosterClient assembles the staff data service client chain the same
// way the server does: HTTP transport, circuit breaker, TTL cache, with the
// breaker and cache stages gated on their settings.
func buildRosterClient(cfg config.RosterConfig, logger *slog.Logger) (roster.Client, *roster.HealthCheck) {
	var client roster.Client = roster.NewHTTPClient(roster.Config{
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	}, logger)

	var health *roster.HealthCheck
	if cfg.FailureThreshold > 0 {
		breaker := roster.NewBreaker(client, roster.BreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			Cooldown:         cfg.Cooldown,
		}, logger)
		client = breaker

		hcfg := roster.DefaultHealthConfig()
		if cfg.HealthInterval > 0 {
			hcfg.Interval = cfg.HealthInterval
		}
		health = roster.NewHealthCheck(breaker, hcfg, logger)
	}

	if cfg.CacheTTL > 0 {
		client = roster.NewCachedClient(client, cfg.CacheTTL, logger)
	}
	return client, health
}
