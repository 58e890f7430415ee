package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/asksql/asksql/internal/config"
	"github.com/asksql/asksql/internal/demo/world"
	"github.com/asksql/asksql/internal/observability"
	s3store "github.com/asksql/asksql/internal/storage/s3"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv("asksql-demo-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	seedCfg, err := world.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load demo config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := s3store.New(ctx, cfg.ObjectStore)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}
	if err := store.Check(ctx); err != nil {
		logger.Error("object store is not reachable", slog.Any("error", err))
		os.Exit(1)
	}

	data := world.Generate(seedCfg.Seed, seedCfg.ExtraCities)
	result, err := world.NewSeeder(store, logger).Seed(ctx, seedCfg.Dataset, data, seedCfg.SchemaFile)
	if err != nil {
		logger.Error("demo seed failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("demo dataset written",
		slog.String("dataset", seedCfg.Dataset),
		slog.String("schema_key", result.SchemaKey),
		slog.String("schema_file", result.SchemaFile),
		slog.Any("rows", result.RowCounts),
	)
	fmt.Printf("ASKSQL_DUCKDB_DATASET=%s\n", result.DatasetSpec)
	if result.SchemaFile != "" {
		fmt.Printf("ASKSQL_SCHEMA_FILE=%s\n", result.SchemaFile)
	}
}
