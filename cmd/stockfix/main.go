/*
main.go - Negative stock repair

PURPOSE:
  Finds medications whose stock went below zero and resets them to 0. Every
  reset is written as a manual_correction history entry, so the change is
  audited like any other stock mutation. History is never deleted.

FLAGS:
  -dry-run   Only list what would change

ENVIRONMENT:
  Same database settings as the server (DB_DRIVER, DB_PATH, DATABASE_URL, TZ).
*/
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/oliverbenduhn/tabletto/config"
	"github.com/oliverbenduhn/tabletto/logging"
	"github.com/oliverbenduhn/tabletto/stock"
	"github.com/oliverbenduhn/tabletto/store/sqlstore"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "only report negative stocks")
	flag.Parse()

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

	applicator := stock.NewApplicator(store, stock.RealClock{}, nil, logger)
	repairer := &stock.Repairer{
		Service: stock.NewStockService(applicator, cfg.Location),
		Logger:  logger.Named("stockfix"),
	}

	res, err := repairer.Run(ctx, *dryRun)
	if err != nil {
		logger.Fatal("repair failed", zap.Error(err))
	}
	logger.Info("repair finished",
		zap.Bool("dry_run", *dryRun),
		zap.Int("found", res.Found),
		zap.Int("corrected", len(res.Corrected)),
		zap.Int("failed", len(res.Failed)),
	)
	if len(res.Failed) > 0 {
		logger.Sync()
		os.Exit(1)
	}
}
