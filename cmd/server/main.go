/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the pay engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load YAML config, apply command-line overrides
  2. Configure structured logging
  3. Initialize SQLite store (runs migrations)
  4. Apply seed file, if configured and the directory is empty
  5. Wire rule admin, calculator and handler
  6. Start period-close scheduler, if enabled
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file (optional)
  -port    HTTP server port, overrides server.port
  -db      SQLite database path, overrides database.path
           Use ":memory:" for in-memory database
  -seed    YAML seed file, overrides seed_file

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight run)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -config=./payroll.yaml
  ./server -db=":memory:" -seed=./examples/seed.yaml

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/pay-engine/api"
	"github.com/warp/pay-engine/config"
	"github.com/warp/pay-engine/factory"
	"github.com/warp/pay-engine/payroll"
	"github.com/warp/pay-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "YAML config file")
	port := flag.String("port", "", "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	seedPath := flag.String("seed", "", "YAML seed file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *seedPath != "" {
		cfg.SeedFile = *seedPath
	}

	logger := config.NewLogger(cfg.Log, os.Stdout)

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	admin := payroll.NewRuleAdmin(store, logger)
	calculator := &payroll.Calculator{
		Rules:     store,
		Entries:   store,
		Directory: store,
		Store:     store,
		Tiering:   cfg.TieringConfig(),
		Logger:    logger,
	}

	if cfg.SeedFile != "" {
		seed, err := factory.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return err
		}
		if _, err := seed.Apply(context.Background(), store, admin, logger); err != nil {
			return err
		}
	}

	handler := &api.Handler{
		Rules:            store,
		Admin:            admin,
		Calculator:       calculator,
		Calculations:     store,
		Directory:        store,
		RuleFactory:      factory.NewRuleFactory(),
		Logger:           logger,
		Reset:            store,
		BatchConcurrency: cfg.Batch.Concurrency,
	}
	router := api.NewRouter(handler, nil)

	periods, err := cfg.PeriodConfig()
	if err != nil {
		return err
	}
	scheduler := api.NewPeriodCloseScheduler(calculator, store, periods, logger)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.CheckInterval = cfg.Scheduler.Interval
	scheduler.ActorID = cfg.Scheduler.ActorID
	scheduler.Concurrency = cfg.Batch.Concurrency
	scheduler.Start()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", server.Addr,
			"database", cfg.Database.Path,
			"tiering", cfg.Tiering.Granularity,
			"regular_ceiling", cfg.Tiering.RegularCeiling,
			"overtime_ceiling", cfg.Tiering.OvertimeCeiling,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
