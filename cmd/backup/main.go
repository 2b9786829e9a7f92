package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"ktm-timetables/config"
	"ktm-timetables/storage"
)

// BackupConfig holds the settings only the backup job needs. Storage and
// database settings are shared with the server.
type BackupConfig struct {
	Prefix      string `envconfig:"BACKUP_PREFIX" default:"backups"`
	KeepBackups int    `envconfig:"KEEP_BACKUPS" default:"4"`
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}
	var bcfg BackupConfig
	if err := envconfig.Process("", &bcfg); err != nil {
		logging.Fatal("Backup config load error", zap.Error(err))
	}
	if !cfg.MirrorEnabled() {
		logging.Fatal("S3_BUCKET is required for backups")
	}

	client, err := storage.NewS3Client(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	b := &Backup{Client: client, Bucket: cfg.S3Bucket, Prefix: bcfg.Prefix, Keep: bcfg.KeepBackups, Logger: logging}

	ctx := context.Background()
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05Z")

	logging.Info("Archiving timetables", zap.String("dir", cfg.OutputDir))
	archive, err := archiveDir(cfg.OutputDir)
	if err != nil {
		logging.Fatal("Archiving timetables failed", zap.Error(err))
	}
	if err := b.Store(ctx, timetablesKind, fmt.Sprintf("%s-%s.tar.gz", timetablesKind, stamp), archive); err != nil {
		logging.Fatal("Timetable backup failed", zap.Error(err))
	}

	if cfg.DBEnabled {
		dump, err := createDump(ctx, cfg)
		if err != nil {
			logging.Fatal("Database dump failed", zap.Error(err))
		}
		if err := b.Store(ctx, databaseKind, fmt.Sprintf("%s-%s.sql.gz", databaseKind, stamp), dump); err != nil {
			logging.Fatal("Database backup failed", zap.Error(err))
		}
	}

	logging.Info("Backup finished")
}
