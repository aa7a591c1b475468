/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the contract engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (env / app.env via viper)
  2. Configure zerolog
  3. Initialize SQLite store
  4. Create API handler and billing scheduler
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the billing scheduler
  4. Close database connection
  5. Exit

CONFIGURATION (environment or ./app.env):
  APP_ENV, HTTP_HOST, HTTP_PORT, DB_PATH, BILLING_DEFAULT_CURRENCY,
  BILLING_WEEK_START, BILLING_UPCOMING_WINDOW_DAYS, SCHEDULER_ENABLED,
  SCHEDULER_INTERVAL, JWT_ACCESS_SECRET

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Background billing-run scheduler
  - config/config.go: Configuration loading
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/contract-engine/api"
	"github.com/warp/contract-engine/config"
	"github.com/warp/contract-engine/factory"
	"github.com/warp/contract-engine/logger"
	"github.com/warp/contract-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	handler := api.NewHandler(store, factory.NewContractFactory(cfg.Billing.DefaultCurrency), log, cfg.Billing.WeekStart)
	handler.UpcomingWindowDays = cfg.Billing.UpcomingWindowDays

	scheduler := api.NewBillingScheduler(store, handler, log)
	scheduler.CheckInterval = cfg.Scheduler.Interval
	scheduler.Enabled = cfg.Scheduler.Enabled
	handler.Scheduler = scheduler
	scheduler.Start()
	defer scheduler.Stop()

	router := api.NewRouter(handler, api.RouterOptions{
		JWTSecret: cfg.Auth.AccessSecret,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("env", cfg.Environment).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
