/*
main.go - Application entry point

PURPOSE:
  Starts the staffing ledger HTTP server. Handles configuration,
  dependency wiring, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, ledger.yaml, .env, LEDGER_* env, flags)
  2. Build the zap logger
  3. Open the SQLite store (runs migrations)
  4. Register Prometheus metrics
  5. Build the ledger service and the API handler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Config file (default: ./ledger.yaml when present)
  -port    HTTP server port, overrides http.port
  -db      SQLite database path, overrides database.path
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests (http.shutdown_timeout)
  3. Close database connection

EXAMPLES:
  ./server -db="./data/ledger.db"
  LEDGER_LOG_FORMAT=console ./server -port=3000

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/warp/staffing-ledger/api"
	"github.com/warp/staffing-ledger/config"
	"github.com/warp/staffing-ledger/ledger"
	"github.com/warp/staffing-ledger/observability"
	"github.com/warp/staffing-ledger/store/sqlite"
)

func main() {
	configFile := flag.String("config", "", "Config file path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	if err := run(*configFile, *port, *dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string, port int, dbPath string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.HTTP.Port = port
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := observability.NewLogger(observability.LogConfig{
		Environment: cfg.Environment,
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	opts := []ledger.Option{
		ledger.WithLogger(log),
		ledger.WithInvoiceDowngrade(cfg.Ledger.AllowInvoiceDowngrade),
	}
	routerOpts := api.RouterOptions{
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Scenarios:   cfg.Demo.Enabled,
	}
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics := observability.NewMetrics(registry)
		opts = append(opts, ledger.WithRecorder(metrics))
		routerOpts.Metrics = metrics
		routerOpts.Gatherer = registry
	}

	svc := ledger.NewService(store, opts...)
	handler := api.NewHandler(store, svc, log)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      api.NewRouter(handler, routerOpts),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("db", cfg.Database.Path),
			zap.Bool("metrics", cfg.Metrics.Enabled),
			zap.Bool("scenarios", cfg.Demo.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
