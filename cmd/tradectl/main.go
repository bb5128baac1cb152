package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mahadalirequestan-ship-it/worldbank/internal/cli"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/config"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/database"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/ingest"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(openFromConfig)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func openFromConfig(ctx context.Context) (*cli.Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(logging.Config{Format: cfg.Log.Format, Level: cfg.Log.Level})

	db, err := database.New(&cfg.Database, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	return &cli.Env{
		DB:          db,
		ChunkSize:   cfg.Ingest.InsertChunkSize,
		ReadWorkers: cfg.Ingest.ReadWorkers,
		Ingest: ingest.Options{
			BatchSize:       cfg.Ingest.BatchSize,
			BatchPause:      cfg.Ingest.BatchPause,
			LoadConcurrency: cfg.Ingest.LoadConcurrency,
		},
		Close: func() {
			if err := database.Close(db); err != nil {
				slog.Error("failed to close database", "error", err)
			}
		},
	}, nil
}
