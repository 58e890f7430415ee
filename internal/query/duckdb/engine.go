package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/asksql/asksql/internal/query"
	"github.com/asksql/asksql/internal/schema"
	"github.com/asksql/asksql/internal/storage"
)

const DefaultStatementTimeout = 30 * time.Second

type Options struct {
	// Path is the DuckDB database file; empty means in-memory.
	Path    string
	Timeout time.Duration
}

// Engine exposes Parquet objects from the object store as DuckDB views and
// runs statements against them. File access is confined to the engine's
// dataset directory and the configuration is locked once the database is
// opened.
type Engine struct {
	store   storage.ObjectStore
	tables  map[string][]string
	path    string
	timeout time.Duration

	mu      sync.Mutex
	db      *sql.DB
	rootDir string
	workDir string
}

func NewEngine(store storage.ObjectStore, tables map[string][]string, opts Options) *Engine {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultStatementTimeout
	}
	return &Engine{store: store, tables: tables, path: opts.Path, timeout: timeout}
}

func (e *Engine) Dialect() string {
	return "duckdb"
}

// Load copies every dataset object to a local work dir and (re)creates one
// view per table. It is safe to call again to pick up new objects.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked(ctx)
}

func (e *Engine) loadLocked(ctx context.Context) error {
	if e.store == nil {
		return fmt.Errorf("object store is required")
	}
	if len(e.tables) == 0 {
		return fmt.Errorf("no dataset tables configured")
	}

	if e.db == nil {
		if err := e.openLocked(ctx); err != nil {
			return err
		}
	}

	workDir, err := os.MkdirTemp(e.rootDir, "load-")
	if err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	localPaths, err := e.download(ctx, workDir)
	if err != nil {
		_ = os.RemoveAll(workDir)
		return err
	}

	for _, tableName := range sortedKeys(localPaths) {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(tableName), quoteStringArray(localPaths[tableName]))
		if _, err := e.db.ExecContext(ctx, viewSQL); err != nil {
			_ = os.RemoveAll(workDir)
			return fmt.Errorf("create view for table %q: %w", tableName, err)
		}
	}

	previous := e.workDir
	e.workDir = workDir
	if previous != "" {
		_ = os.RemoveAll(previous)
	}
	return nil
}

// openLocked opens the database and restricts it to reading files under
// rootDir. lock_configuration keeps statements from undoing the restriction.
func (e *Engine) openLocked(ctx context.Context) error {
	rootDir, err := os.MkdirTemp("", "asksql-duckdb-")
	if err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(rootDir); err == nil {
		rootDir = resolved
	}
	db, err := sql.Open("duckdb", e.path)
	if err != nil {
		_ = os.RemoveAll(rootDir)
		return fmt.Errorf("open duckdb: %w", err)
	}
	settings := []string{
		fmt.Sprintf("SET allowed_directories = %s", quoteStringArray([]string{rootDir + string(os.PathSeparator)})),
		"SET enable_external_access = false",
		"SET autoinstall_known_extensions = false",
		"SET autoload_known_extensions = false",
		"SET lock_configuration = true",
	}
	for _, statement := range settings {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			_ = db.Close()
			_ = os.RemoveAll(rootDir)
			return fmt.Errorf("configure duckdb (%s): %w", statement, err)
		}
	}
	e.db = db
	e.rootDir = rootDir
	return nil
}

func (e *Engine) download(ctx context.Context, workDir string) (map[string][]string, error) {
	out := make(map[string][]string, len(e.tables))
	for _, tableName := range sortedKeys(e.tables) {
		for index, key := range e.tables[tableName] {
			reader, err := e.store.Get(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("get object %q: %w", key, err)
			}
			localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(tableName), index))
			if err := writeFile(localPath, reader); err != nil {
				_ = reader.Close()
				return nil, fmt.Errorf("write local parquet file %q: %w", localPath, err)
			}
			if err := reader.Close(); err != nil {
				return nil, fmt.Errorf("close object %q: %w", key, err)
			}
			out[tableName] = append(out[tableName], localPath)
		}
	}
	return out, nil
}

func (e *Engine) handle(ctx context.Context) (*sql.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		if err := e.loadLocked(ctx); err != nil {
			return nil, err
		}
	}
	return e.db, nil
}

func (e *Engine) Ping(ctx context.Context) error {
	db, err := e.handle(ctx)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (e *Engine) Execute(ctx context.Context, sqlText string) (query.Result, error) {
	if strings.TrimSpace(sqlText) == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	db, err := e.handle(ctx)
	if err != nil {
		return query.Result{}, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return query.Result{}, e.classify(ctx, fmt.Errorf("acquire connection: %w", err))
	}
	defer func() { _ = conn.Close() }()

	// Prepare rejects text holding more than one statement.
	stmt, err := conn.PrepareContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, e.classify(ctx, err)
	}
	defer func() { _ = stmt.Close() }()

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return query.Result{}, e.classify(ctx, err)
	}
	defer func() { _ = rows.Close() }()

	result, err := query.CollectRows(rows)
	if err != nil {
		return query.Result{}, e.classify(ctx, err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

// Describe reports the dataset views as a schema description, so the engine
// can also serve as the schema source.
func (e *Engine) Describe(ctx context.Context) (schema.Description, error) {
	db, err := e.handle(ctx)
	if err != nil {
		return schema.Description{}, err
	}
	rows, err := db.QueryContext(ctx, `
SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = 'main'
ORDER BY table_name, ordinal_position`)
	if err != nil {
		return schema.Description{}, fmt.Errorf("query duckdb columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var desc schema.Description
	index := map[string]int{}
	for rows.Next() {
		var tableName, columnName, dataType, isNullable string
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable); err != nil {
			return schema.Description{}, fmt.Errorf("scan duckdb column: %w", err)
		}
		pos, ok := index[tableName]
		if !ok {
			desc.Tables = append(desc.Tables, schema.Table{Name: tableName, Schema: "main"})
			pos = len(desc.Tables) - 1
			index[tableName] = pos
		}
		desc.Tables[pos].Columns = append(desc.Tables[pos].Columns, schema.Column{
			Name:     columnName,
			DataType: strings.ToLower(dataType),
			Nullable: schema.BoolPtr(strings.EqualFold(isNullable, "YES")),
		})
	}
	if err := rows.Err(); err != nil {
		return schema.Description{}, fmt.Errorf("iterate duckdb columns: %w", err)
	}
	return desc, nil
}

// SchemaLoader adapts an Engine to schema.Loader.
type SchemaLoader struct {
	Engine *Engine
}

func (l SchemaLoader) Load(ctx context.Context) (schema.Description, error) {
	return l.Engine.Describe(ctx)
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.db != nil {
		err = e.db.Close()
		e.db = nil
	}
	if e.rootDir != "" {
		_ = os.RemoveAll(e.rootDir)
		e.rootDir = ""
		e.workDir = ""
	}
	return err
}

func (e *Engine) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", query.ErrTimeout, e.timeout, err)
	}
	return err
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}
