package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/asksql/asksql/internal/api"
	"github.com/asksql/asksql/internal/config"
	"github.com/asksql/asksql/internal/history"
	"github.com/asksql/asksql/internal/nl2sql"
	"github.com/asksql/asksql/internal/observability"
	"github.com/asksql/asksql/internal/pipeline"
	"github.com/asksql/asksql/internal/query"
	duckdbengine "github.com/asksql/asksql/internal/query/duckdb"
	querypostgres "github.com/asksql/asksql/internal/query/postgres"
	"github.com/asksql/asksql/internal/schema"
	schemapostgres "github.com/asksql/asksql/internal/schema/postgres"
	"github.com/asksql/asksql/internal/secrets"
	"github.com/asksql/asksql/internal/storage"
	s3store "github.com/asksql/asksql/internal/storage/s3"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv("asksql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	writer, closer := observability.LogWriter(cfg, os.Stdout)
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}
	logger := observability.NewLogger(cfg, writer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("asksql-api failed", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.Secrets.UseKeyring {
		ring, err := secrets.OpenKeyring()
		if err != nil {
			return err
		}
		filled, err := secrets.NewResolver(ring).Apply(&cfg, func(key string) bool {
			_, ok := os.LookupEnv(key)
			return ok
		})
		if err != nil {
			return err
		}
		if len(filled) > 0 {
			logger.Info("credentials loaded from keyring", slog.Any("names", filled))
		}
	}

	executor, schemaLoader, closeDB, err := openExecutor(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	schemas := schema.NewCache(schemaLoader, logger)
	if err := schemas.Refresh(ctx); err != nil {
		return fmt.Errorf("load schema description: %w", err)
	}
	logger.Info("schema loaded", slog.Int("tables", len(schemas.Current().Tables)), slog.String("source", cfg.Schema.Source))
	stopRefresh := startSchemaRefresh(ctx, schemas, cfg.Schema.RefreshInterval)
	defer stopRefresh()

	generator, err := nl2sql.NewGenerator(nl2sql.Config{
		Provider:    cfg.AI.Provider,
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Timeout:     cfg.AI.Timeout,
		HTTPReferer: cfg.AI.HTTPReferer,
		Title:       cfg.AI.Title,
	})
	if err != nil {
		return fmt.Errorf("initialize generation client: %w", err)
	}

	queryHistory, err := history.Open(ctx, cfg.History.Path, cfg.History.MaxEntries)
	if err != nil {
		return err
	}
	defer func() { _ = queryHistory.Close() }()

	assistant := pipeline.New(generator, executor, schemas, pipeline.Options{
		Temperature:       cfg.AI.Temperature,
		MaxTokens:         cfg.AI.MaxTokens,
		GenerationTimeout: cfg.AI.Timeout,
	}, logger)

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:   logger,
		Pipeline: assistant,
		History:  queryHistory,
		Readiness: api.CombineReadinessChecks(
			api.CheckPipeline(assistant),
			api.CheckSchemaLoaded(assistant),
			queryHistory.Ping,
		),
		DependencyTimeout: 2 * time.Second,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("dialect", executor.Dialect()),
			slog.String("provider", generator.Provider()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// startSchemaRefresh runs the cache refresh loop in the background. The
// returned stop func cancels the loop and waits for it to exit, so it must
// run before the schema loader's database is closed.
func startSchemaRefresh(ctx context.Context, cache *schema.Cache, interval time.Duration) func() {
	refreshCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cache.Run(refreshCtx, interval)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

// openExecutor builds the executor for the configured driver and the schema
// loader matching the configured schema source.
func openExecutor(ctx context.Context, cfg config.Config) (query.Executor, schema.Loader, func(), error) {
	var fileLoader schema.Loader
	if cfg.Schema.Source == config.SchemaSourceFile {
		fileLoader = schema.FileLoader{Path: cfg.Schema.File}
	}

	switch cfg.Database.Driver {
	case config.DatabaseDriverDuckDB:
		tables, err := storage.ParseDatasetSpec(cfg.DuckDB.Dataset)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse ASKSQL_DUCKDB_DATASET: %w", err)
		}
		store, err := s3store.New(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("initialize object store: %w", err)
		}
		engine := duckdbengine.NewEngine(store, tables, duckdbengine.Options{
			Path:    cfg.DuckDB.Path,
			Timeout: cfg.Database.StatementTimeout,
		})
		if err := engine.Load(ctx); err != nil {
			_ = engine.Close()
			return nil, nil, nil, err
		}
		loader := fileLoader
		if loader == nil {
			loader = duckdbengine.SchemaLoader{Engine: engine}
		}
		return engine, loader, func() { _ = engine.Close() }, nil
	default:
		db, err := querypostgres.Open(ctx, querypostgres.DBConfig{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		loader := fileLoader
		if loader == nil {
			loader = schemapostgres.NewIntrospector(db, cfg.Schema.Name)
		}
		return querypostgres.NewExecutor(db, cfg.Database.StatementTimeout), loader, func() { _ = db.Close() }, nil
	}
}
