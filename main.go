package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"ktm-timetables/config"
	"ktm-timetables/providers"
	"ktm-timetables/providers/command"
	"ktm-timetables/providers/layout"
	"ktm-timetables/services"
	"ktm-timetables/storage"
)

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

// newRecognizer selects the table-recognition backend named by TABLE_BACKEND.
func newRecognizer(cfg *config.Config, logger *zap.Logger) (providers.Recognizer, error) {
	switch cfg.TableBackend {
	case "", "layout":
		return layout.NewRecognizer(logger), nil
	case "command":
		if cfg.TableCommand == "" {
			return nil, command.ErrNoCommand
		}
		return command.NewRecognizer(cfg.TableCommand, logger), nil
	default:
		return nil, fmt.Errorf("unknown table backend %q", cfg.TableBackend)
	}
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
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logging.Fatal("Unknown timezone", zap.String("timezone", cfg.Timezone), zap.Error(err))
	}
	routes, err := config.LoadRouteFiles(cfg.RouteMapFile)
	if err != nil {
		logging.Fatal("Route map load error", zap.String("path", cfg.RouteMapFile), zap.Error(err))
	}

	// Setup Backends
	recognizer, err := newRecognizer(cfg, logging)
	if err != nil {
		logging.Fatal("Table backend setup failed", zap.Error(err))
	}
	logging.Info("Table backend selected", zap.String("backend", recognizer.Name()))

	store := storage.NewParquetStore(cfg.OutputDir, logging)
	client := services.NewHTTPClient(cfg.UserAgent, cfg.HTTPTimeout)
	syncService := services.NewSyncService(cfg, client, recognizer, store, logging)

	var runStore *storage.RunStore
	if cfg.DBEnabled {
		db, err := storage.OpenDB(cfg.DSN())
		if err != nil {
			logging.Fatal("Failed to connect to database", zap.Error(err))
		}
		logging.Info("Successfully connected to database.")
		runStore = storage.NewRunStore(db, logging)
		logging.Info("Running database auto-migration...")
		if err := runStore.Migrate(); err != nil {
			logging.Fatal("Database migration failed", zap.Error(err))
		}
		syncService.Runs = runStore
	}

	if cfg.MirrorEnabled() {
		s3Client, err := storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		syncService.Mirror = storage.NewMirror(s3Client, cfg.S3Bucket, cfg.S3Prefix, logging)
		logging.Info("S3 mirror enabled", zap.String("bucket", cfg.S3Bucket), zap.String("prefix", cfg.S3Prefix))
	}

	api := NewAPI(cfg, services.NewLookupService(store, routes, cfg.TableCacheTTL, logging), store, syncService, loc, logging)
	if runStore != nil {
		api.Runs = runStore
	}

	// Setup Router
	router := gin.Default()
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	api.SetupRoutes(router)

	// Setup Cron
	cronScheduler := cron.New(cron.WithLocation(loc))
	_, err = cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled sync job...")
		api.RunSync(context.Background())
	})
	if err != nil {
		logging.Fatal("Invalid cron schedule", zap.String("schedule", cfg.CronSchedule), zap.Error(err))
	}
	cronScheduler.Start()
	defer cronScheduler.Stop()

	if cfg.RunOnStart {
		go api.RunSync(context.Background())
	}

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}
