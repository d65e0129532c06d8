/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the billing engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (BILLING_* environment variables)
  2. Initialize SQLite store
  3. Build validation engine, pricing engine, rollback coordinator
  4. Configure HTTP router
  5. Start server with graceful shutdown

CONFIGURATION:
  BILLING_PORT                        HTTP server port (default: 8080)
  BILLING_DATABASE_PATH               SQLite database path (default: billing.db)
                                      Use ":memory:" for in-memory database
  BILLING_MIN_CHANGE_REASON_LENGTH    Correction reason minimum (default: 10)
  BILLING_RATE_CHANGE_COOLDOWN_DAYS   Tariff change cooldown (default: 30)
  BILLING_ESTIMATE_TOLERANCE_PERCENT  Reconciliation tolerance (default: 10)
  BILLING_MAX_BATCH_SIZE              Validation batch cap (default: 100)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - config/config.go: Configuration loading
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/norvik/billing-engine/api"
	"github.com/norvik/billing-engine/billing"
	"github.com/norvik/billing-engine/config"
	"github.com/norvik/billing-engine/rollback"
	"github.com/norvik/billing-engine/store/sqlite"
	"github.com/norvik/billing-engine/validation"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize store
	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Error("failed to initialize database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Wire the engines
	clock := billing.SystemClock{}
	pricing := billing.NewPricingEngine(clock)
	validator := validation.NewEngine(cfg.ValidationConfig(), clock)
	rollbacks := rollback.NewCoordinator(store, store, store, clock)

	handler := api.NewHandler(pricing, validator, rollbacks, store, log)
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting", "port", cfg.Port, "db", cfg.DatabasePath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
