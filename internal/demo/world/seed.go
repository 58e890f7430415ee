package world

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/asksql/asksql/internal/storage"
)

type SeedResult struct {
	// DatasetSpec is the value for ASKSQL_DUCKDB_DATASET.
	DatasetSpec string
	SchemaKey   string
	SchemaFile  string
	Objects     []storage.ObjectInfo
	RowCounts   map[string]int
}

type Seeder struct {
	store  storage.ObjectStore
	logger *slog.Logger
}

func NewSeeder(store storage.ObjectStore, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{store: store, logger: logger}
}

// Seed writes one Parquet object per table plus the schema description. When
// schemaFile is set the description is also written there for the file
// schema source.
func (s *Seeder) Seed(ctx context.Context, dataset string, data Dataset, schemaFile string) (SeedResult, error) {
	if s.store == nil {
		return SeedResult{}, fmt.Errorf("object store is required")
	}

	tables := []struct {
		name   string
		rows   int
		encode func() ([]byte, error)
	}{
		{"city", len(data.Cities), func() ([]byte, error) { return encodeParquet(data.Cities) }},
		{"country", len(data.Countries), func() ([]byte, error) { return encodeParquet(data.Countries) }},
		{"countrylanguage", len(data.Languages), func() ([]byte, error) { return encodeParquet(data.Languages) }},
	}

	result := SeedResult{RowCounts: map[string]int{}}
	spec := map[string][]string{}
	for _, table := range tables {
		key, err := storage.DatasetTableKey(dataset, table.name)
		if err != nil {
			return SeedResult{}, err
		}
		payload, err := table.encode()
		if err != nil {
			return SeedResult{}, fmt.Errorf("encode %s: %w", table.name, err)
		}
		info, err := storage.PutBytes(ctx, s.store, key, payload, storage.ContentTypeParquet)
		if err != nil {
			return SeedResult{}, fmt.Errorf("upload %s: %w", table.name, err)
		}
		s.logger.InfoContext(ctx, "demo table written",
			slog.String("table", table.name),
			slog.String("key", key),
			slog.Int("rows", table.rows),
			slog.Int64("bytes", info.Size),
		)
		spec[table.name] = []string{key}
		result.Objects = append(result.Objects, info)
		result.RowCounts[table.name] = table.rows
	}
	result.DatasetSpec = storage.FormatDatasetSpec(spec)

	schemaJSON, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		return SeedResult{}, fmt.Errorf("encode schema: %w", err)
	}
	schemaKey, err := storage.DatasetSchemaKey(dataset)
	if err != nil {
		return SeedResult{}, err
	}
	if _, err := storage.PutBytes(ctx, s.store, schemaKey, schemaJSON, storage.ContentTypeJSON); err != nil {
		return SeedResult{}, fmt.Errorf("upload schema: %w", err)
	}
	result.SchemaKey = schemaKey

	if schemaFile != "" {
		if err := os.MkdirAll(filepath.Dir(schemaFile), 0o755); err != nil {
			return SeedResult{}, fmt.Errorf("create schema dir: %w", err)
		}
		if err := os.WriteFile(schemaFile, append(schemaJSON, '\n'), 0o644); err != nil {
			return SeedResult{}, fmt.Errorf("write schema file: %w", err)
		}
		result.SchemaFile = schemaFile
	}
	return result, nil
}

func encodeParquet[T any](rows []T) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[T](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
