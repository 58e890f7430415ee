package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/asksql/asksql/internal/migrations"
)

const DefaultMaxEntries = 50

var ErrNotFound = errors.New("history entry not found")

type Entry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Question  string    `json:"question"`
	SQL       string    `json:"sql"`
	RowCount  *int      `json:"row_count,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps a capped list of generated statements per session.
type Store struct {
	db         *sql.DB
	maxEntries int
	now        func() time.Time
}

// Open opens (or creates) the history database at path and applies pending
// migrations. An empty path keeps history in memory for the process lifetime.
func Open(ctx context.Context, path string, maxEntries int) (*Store, error) {
	dsn := ":memory:"
	if strings.TrimSpace(path) != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
		dsn = path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	store, err := newWithDB(ctx, db, maxEntries)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func newWithDB(ctx context.Context, db *sql.DB, maxEntries int) (*Store, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if _, err := migrations.NewRunner().Up(ctx, db, 0); err != nil {
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &Store{db: db, maxEntries: maxEntries, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a new entry and evicts the oldest entries of the session
// beyond the configured cap.
func (s *Store) Record(ctx context.Context, sessionID, question, sqlText string) (Entry, error) {
	entry := Entry{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Question:  question,
		SQL:       sqlText,
		CreatedAt: s.now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO query_history (id, session_id, question, sql_text, created_at)
VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.SessionID, entry.Question, entry.SQL, entry.CreatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return Entry{}, fmt.Errorf("insert history entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
DELETE FROM query_history
WHERE session_id = ?
  AND seq NOT IN (
	SELECT seq FROM query_history WHERE session_id = ? ORDER BY seq DESC LIMIT ?
  )`, sessionID, sessionID, s.maxEntries); err != nil {
		return Entry{}, fmt.Errorf("evict history entries: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("commit history entry: %w", err)
	}
	return entry, nil
}

func (s *Store) SetRowCount(ctx context.Context, sessionID, id string, rowCount int) error {
	return s.update(ctx, `UPDATE query_history SET row_count = ?, error_kind = NULL WHERE session_id = ? AND id = ?`, rowCount, sessionID, id)
}

func (s *Store) SetErrorKind(ctx context.Context, sessionID, id, kind string) error {
	return s.update(ctx, `UPDATE query_history SET error_kind = ? WHERE session_id = ? AND id = ?`, kind, sessionID, id)
}

func (s *Store) update(ctx context.Context, statement string, args ...any) error {
	result, err := s.db.ExecContext(ctx, statement, args...)
	if err != nil {
		return fmt.Errorf("update history entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update history entry: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns the session's entries, newest first.
func (s *Store) List(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, question, sql_text, row_count, error_kind, created_at
FROM query_history
WHERE session_id = ?
ORDER BY seq DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			entry     Entry
			rowCount  sql.NullInt64
			errorKind sql.NullString
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Question, &entry.SQL, &rowCount, &errorKind, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		if rowCount.Valid {
			n := int(rowCount.Int64)
			entry.RowCount = &n
		}
		entry.ErrorKind = errorKind.String
		entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse history timestamp %q: %w", createdAt, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// Clear removes every entry of the session and reports how many were removed.
func (s *Store) Clear(ctx context.Context, sessionID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM query_history WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return int(affected), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
