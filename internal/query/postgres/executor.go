package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/asksql/asksql/internal/query"
)

const (
	DefaultStatementTimeout = 30 * time.Second

	queryCanceledCode = "57014"
)

type Executor struct {
	db      *sql.DB
	timeout time.Duration
}

func NewExecutor(db *sql.DB, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultStatementTimeout
	}
	return &Executor{db: db, timeout: timeout}
}

func (e *Executor) Dialect() string {
	return "postgres"
}

func (e *Executor) Ping(ctx context.Context) error {
	if e.db == nil {
		return fmt.Errorf("database is not configured")
	}
	return e.db.PingContext(ctx)
}

// Execute runs sqlText inside a read-only transaction on a dedicated
// connection with statement_timeout set for that transaction only.
func (e *Executor) Execute(ctx context.Context, sqlText string) (query.Result, error) {
	if e.db == nil {
		return query.Result{}, fmt.Errorf("database is not configured")
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return query.Result{}, e.classify(ctx, fmt.Errorf("acquire connection: %w", err))
	}
	defer func() { _ = conn.Close() }()

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return query.Result{}, e.classify(ctx, fmt.Errorf("begin read-only transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", e.timeout.Milliseconds())); err != nil {
		return query.Result{}, e.classify(ctx, fmt.Errorf("set statement timeout: %w", err))
	}

	rows, err := tx.QueryContext(ctx, sqlText)
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

func (e *Executor) classify(ctx context.Context, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == queryCanceledCode {
		return fmt.Errorf("%w after %s: %w", query.ErrTimeout, e.timeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", query.ErrTimeout, e.timeout, err)
	}
	return err
}
