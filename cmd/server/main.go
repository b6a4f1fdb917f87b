/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the tabletto stock server: HTTP API plus the
  scheduled stock deduction. Handles configuration, dependency injection,
  and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment)
  2. Build the zap logger
  3. Open the store (SQLite or PostgreSQL) and migrate
  4. Wire engine, driver and HTTP handler
  5. Start the driver (an invalid schedule is logged, the API still serves)
  6. Serve until SIGINT/SIGTERM

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections, wait for active requests
  2. Stop the driver and let an in-flight tick finish
  3. Close the event writer and the database
  All within 30s.

ENVIRONMENT:
  See config/config.go. The most relevant:
  PORT, DB_DRIVER, DB_PATH, DATABASE_URL, ENABLE_STOCK_SCHEDULER,
  STOCK_SCHEDULER_CRON, STOCK_SCHEDULER_MODE, TZ, KAFKA_BROKERS

SEE ALSO:
  - api/server.go: Router configuration
  - scheduler/driver.go: Scheduler lifecycle
*/
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/oliverbenduhn/tabletto/api"
	"github.com/oliverbenduhn/tabletto/config"
	"github.com/oliverbenduhn/tabletto/events"
	"github.com/oliverbenduhn/tabletto/logging"
	"github.com/oliverbenduhn/tabletto/scheduler"
	"github.com/oliverbenduhn/tabletto/stock"
	"github.com/oliverbenduhn/tabletto/store/sqlstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	store, err := sqlstore.Open(ctx, sqlstore.Options{
		Driver: sqlstore.Driver(cfg.Database.Driver),
		DSN:    cfg.Database.DSN(),
	})
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer store.Close()
	logger.Info("database ready", zap.String("driver", cfg.Database.Driver))

	var publisher stock.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.HistoryTopic)
		defer kp.Close()
		publisher = kp
		logger.Info("publishing stock history to kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.HistoryTopic),
		)
	}

	mode, err := stock.ParseMode(cfg.Scheduler.Mode)
	if err != nil {
		logger.Fatal("invalid scheduler mode", zap.Error(err))
	}

	clock := stock.RealClock{}
	applicator := stock.NewApplicator(store, clock, publisher, logger.Named("applicator"))
	service := stock.NewStockService(applicator, cfg.Location)

	engine := scheduler.NewEngine(stock.NewEvaluator(mode, cfg.Location), applicator, logger.Named("engine"))
	engine.Workers = cfg.Scheduler.Workers
	engine.Timeout = cfg.Scheduler.Timeout

	driver := scheduler.NewDriver(engine, scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Schedule: scheduler.ScheduleFor(cfg.Scheduler.Cron, mode),
		Location: cfg.Location,
	}, logger.Named("scheduler"))
	// Start logs its own failure; the API keeps serving without the driver.
	_ = driver.Start()

	handler := api.NewHandler(service, driver, logger)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(handler, cfg.Server.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Server.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if err := driver.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
