package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/me/goshift/internal/config"
	"github.com/me/goshift/internal/dispatcher"
	"github.com/me/goshift/internal/logging"
	"github.com/me/goshift/internal/roster"
	"github.com/me/goshift/internal/server"
	"github.com/me/goshift/internal/store"
)

func main() {
	// A .env file is a convenience for local runs; absence is normal.
	_ = godotenv.Load()

	configFile := flag.String("config", os.Getenv("GOSHIFT_CONFIG"), "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address")
	dbPath := flag.String("db", "", "SQLite database path")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (selects the postgres driver)")
	rosterURL := flag.String("roster-url", "", "Staff data service base URL")
	workers := flag.Int("workers", 0, "Dispatcher worker count")
	dispatcherEnabled := flag.Bool("dispatcher", true, "Run the embedded job dispatcher")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json, console)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// Flags beat the file and the environment, but only when set.
	if *addr != "" {
		cfg.Server.Addr = *addr
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
	if *logLevel != "" {
		cfg.Server.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.Server.LogFormat = *logFormat
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "dispatcher" {
			cfg.Dispatcher.Enabled = *dispatcherEnabled
		}
	})
	if *debug {
		cfg.Server.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Dispatcher.Enabled && cfg.Roster.BaseURL == "" {
		fmt.Fprintln(os.Stderr, "a roster service URL is required when the dispatcher is enabled"+
			" (set -roster-url or GOSHIFT_ROSTER_URL, or pass -dispatcher=false)")
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.Server.LogLevel), cfg.Server.LogFormat)

	// Open store and run migrations.
	st, err := openStore(cfg.Store, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "driver", cfg.Store.Driver)

	var (
		rosterClient roster.Client
		health       *roster.HealthCheck
		serverOpts   []server.Option
	)
	if cfg.Roster.BaseURL != "" {
		rosterClient, health = buildRosterClient(cfg.Roster, logger)
		serverOpts = append(serverOpts, server.WithRosterClient(rosterClient))
		logger.Info("roster service configured", "base_url", cfg.Roster.BaseURL)
	}

	var disp dispatcher.Dispatcher
	if cfg.Dispatcher.Enabled {
		disp = dispatcher.NewLoop(st, rosterClient, dispatcherConfig(cfg.Dispatcher), logger)
	} else {
		logger.Info("embedded dispatcher disabled; a separate worker process must claim jobs")
	}

	srv := server.New(cfg.Server, st, disp, logger, serverOpts...)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The dispatcher gets a background context: a signal stops it through
	// StopDispatcher below, which waits for in-flight jobs instead of
	// cancelling them mid-write.
	srv.StartDispatcher(context.Background())

	if health != nil {
		go func() {
			if err := health.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("roster health check stopped", "error", err)
			}
		}()
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Stop claiming jobs and drain in-flight work before the listener goes
	// away. Jobs still running after the timeout keep their PROCESSING
	// claims and are requeued by the stale-claim sweep of the next run.
	srv.StopDispatcher(cfg.Dispatcher.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// openStore opens the configured job registry backend.
func openStore(cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	if cfg.Driver == "postgres" {
		return store.NewPostgresStore(cfg.DSN, logger)
	}
	return store.NewSQLiteStore(cfg.DBPath, logger)
}

// buildRosterClient assembles the staff data service client chain: HTTP
// transport, then a circuit breaker, then a TTL cache. The breaker stage
// (and with it the recovery health check) drops out when failure_threshold
// is zero, the cache stage when cache_ttl is zero.
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

func dispatcherConfig(cfg config.DispatcherConfig) dispatcher.Config {
	return dispatcher.Config{
		PollInterval:    cfg.PollInterval,
		MaxIdleInterval: cfg.MaxIdleInterval,
		Workers:         cfg.Workers,
		StaleClaimAfter: cfg.StaleClaimAfter,
		RequeueInterval: cfg.RequeueInterval,
	}
}
