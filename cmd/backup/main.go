/*
main.go - Database backup

PURPOSE:
  Writes backup-<timestamp>.db into BACKUP_DIR using SQLite's VACUUM INTO,
  which is consistent while the server keeps running. When BACKUP_S3_BUCKET
  is set the file is also uploaded (credentials from the default AWS chain).

ENVIRONMENT:
  DB_PATH, BACKUP_DIR, BACKUP_S3_BUCKET, BACKUP_S3_PREFIX
*/
package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"github.com/oliverbenduhn/tabletto/backup"
	"github.com/oliverbenduhn/tabletto/config"
	"github.com/oliverbenduhn/tabletto/logging"
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

	if cfg.Database.Driver != string(sqlstore.DriverSQLite) {
		logger.Fatal("backup supports sqlite only; use pg_dump for postgres")
	}

	ctx := context.Background()
	store, err := sqlstore.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer store.Close()

	b := &backup.Backup{
		Source: store,
		Dir:    cfg.Backup.Dir,
		Bucket: cfg.Backup.S3Bucket,
		Prefix: cfg.Backup.S3Prefix,
		Clock:  stock.RealClock{},
		Logger: logger.Named("backup"),
	}
	if cfg.Backup.S3Bucket != "" {
		client, err := backup.NewS3Client(ctx)
		if err != nil {
			logger.Fatal("failed to configure s3", zap.Error(err))
		}
		b.S3 = client
	}

	if _, err := b.Run(ctx); err != nil {
		logger.Fatal("backup failed", zap.Error(err))
	}
}
