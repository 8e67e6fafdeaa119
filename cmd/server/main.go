/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the gate pass engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load environment configuration (.env supported)
  2. Parse command-line flags (flags override environment)
  3. Initialize SQLite store
  4. Wire domain service and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -addr    HTTP listen address (default from HTTP_ADDR/PORT, else :8080)
  -db      SQLite database path (default from DB_PATH, else gatepass.db)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/gatepass.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on a different address
  ./server -addr=:3000

SEE ALSO:
  - config/config.go: Environment configuration
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/campusgate/gatepass-engine/api"
	"github.com/campusgate/gatepass-engine/config"
	"github.com/campusgate/gatepass-engine/gatepass"
	"github.com/campusgate/gatepass-engine/store/sqlite"
)

func main() {
	cfg := config.Load()

	// Flags override the environment.
	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "gatepass",
	})

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal("failed to initialize database", "err", err)
	}
	defer store.Close()

	// Wire domain service and API handler
	service := gatepass.NewService(store, store, cfg.PersonalQuota)
	handler := api.NewHandler(service, store, []byte(cfg.JWTSecret), cfg.TokenTTL, logger)
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", *addr, "db", *dbPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "err", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", "err", err)
	}

	logger.Info("server stopped")
}
