package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/mahadalirequestan-ship-it/worldbank/internal/config"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/database"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/dedupe"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/ingest"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/logging"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/metrics"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/query"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/server"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/uploads"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logging.Setup(logging.Config{Format: cfg.Log.Format, Level: cfg.Log.Level})
	if logging.ParseLevel(cfg.Log.Level) > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	slog.Info("configuration loaded successfully",
		"db_driver", cfg.Database.Driver,
		"db_host", cfg.Database.Host,
		"db_port", cfg.Database.Port,
		"db_name", cfg.Database.Name,
		"storage_type", cfg.Storage.Type,
	)

	slog.Info("CORS configuration",
		"allowed_origins", cfg.CORS.AllowedOrigins,
		"allowed_methods", cfg.CORS.AllowedMethods,
		"allowed_headers", cfg.CORS.AllowedHeaders,
		"allow_credentials", cfg.CORS.AllowCredentials,
		"max_age", cfg.CORS.MaxAge,
	)

	slog.Info("ingestion configuration",
		"batch_size", cfg.Ingest.BatchSize,
		"insert_chunk", cfg.Ingest.InsertChunkSize,
		"batch_pause", cfg.Ingest.BatchPause,
		"read_workers", cfg.Ingest.ReadWorkers,
		"load_concurrency", cfg.Ingest.LoadConcurrency,
	)

	// Initialize database connection
	db, err := database.New(&cfg.Database, cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	// Perform health check
	if err := database.HealthCheck(db); err != nil {
		log.Fatalf("database health check failed: %v", err)
	}

	ctx := context.Background()
	driver, err := uploads.NewStorageFromConfig(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("failed to initialize staging storage: %v", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	querySvc := query.NewService(db, cfg.Cache.TTL)
	ingestor := ingest.NewIngestor(
		ingest.NewGormSink(db, cfg.Ingest.InsertChunkSize),
		ingest.NewPool(cfg.Ingest.ReadWorkers),
		m,
		ingest.Options{
			BatchSize:       cfg.Ingest.BatchSize,
			BatchPause:      cfg.Ingest.BatchPause,
			LoadConcurrency: cfg.Ingest.LoadConcurrency,
			OnLoaded:        querySvc.Invalidate,
		},
	)

	router := server.NewRouter(cfg, server.Deps{
		Ingester:   ingestor,
		Stager:     uploads.NewStager(driver),
		Query:      querySvc,
		Duplicates: dedupe.NewResolver(db, m, querySvc.Invalidate),
		Metrics:    m,
		Health: func(ctx context.Context) error {
			return database.HealthCheck(db.WithContext(ctx))
		},
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	} else {
		slog.Info("server gracefully stopped")
	}

	slog.Info("server stopped")
}
