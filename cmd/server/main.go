/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Smart Pasal ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Open the ledger store and wrap it in the circuit breaker
  3. Create API handler with dependencies
  4. Configure HTTP router and start the inventory monitor
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides SQLITE_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the inventory monitor
  4. Close the store connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/smartpasal.db"

  # Run against MongoDB
  LEDGER_BACKEND=mongodb MONGO_URI="mongodb://db:27017/?replicaSet=rs0" ./server

  # Local development without tokens
  AUTH_DISABLED=true ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - ledger/store/breaker.go: Circuit breaker
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

	"github.com/sony/gobreaker"

	"github.com/smartpasal/pos-ledger/api"
	"github.com/smartpasal/pos-ledger/config"
	"github.com/smartpasal/pos-ledger/ledger"
	"github.com/smartpasal/pos-ledger/ledger/store"
	"github.com/smartpasal/pos-ledger/logging"
	"github.com/smartpasal/pos-ledger/metrics"
	"github.com/smartpasal/pos-ledger/store/mongodb"
	"github.com/smartpasal/pos-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.SQLitePath, "SQLite database path")
	flag.Parse()
	cfg.Port, cfg.SQLitePath = *port, *dbPath

	logger := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		ServiceName: "smartpasal-ledger",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Server exited")
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *logging.Logger) error {
	m := metrics.New()

	backend, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	ledgerStore := store.NewBreakerStore(backend, store.DefaultBreakerConfig("ledger"),
		logger.WithComponent("store").Logger,
		func(name string, to gobreaker.State) { m.BreakerState(name, int(to)) },
	)
	defer ledgerStore.Close()

	handler := api.NewHandler(api.Deps{
		Store:       ledgerStore,
		Logger:      logger,
		Metrics:     m,
		Sales:       cfg.SalesConfig(),
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		AuthEnabled:    cfg.AuthEnabled,
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.Origins,
	})

	monitor := api.NewInventoryMonitor(handler)
	monitor.Start()
	defer monitor.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting",
			"port", cfg.Port,
			"backend", string(cfg.Backend),
			"authEnabled", cfg.AuthEnabled,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info("Shutting down server", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func openStore(cfg config.Config) (ledger.Store, error) {
	switch cfg.Backend {
	case config.BackendMongoDB:
		mcfg := mongodb.DefaultConfig()
		mcfg.URI, mcfg.Database = cfg.MongoURI, cfg.MongoDB
		ctx, cancel := context.WithTimeout(context.Background(), mcfg.ConnectTimeout)
		defer cancel()
		return mongodb.New(ctx, mcfg)
	case config.BackendMemory:
		return store.NewMemory(), nil
	default:
		return sqlite.New(cfg.SQLitePath)
	}
}
