package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout marks an execution that hit the statement timeout.
var ErrTimeout = errors.New("query: statement timeout exceeded")

type Result struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"data"`
	RowCount int              `json:"rowCount"`
	Duration time.Duration    `json:"-"`
}

// Executor runs exactly the text it is given under a bounded timeout. Each
// call acquires its own connection and releases it before returning.
type Executor interface {
	Execute(ctx context.Context, sqlText string) (Result, error)
	Ping(ctx context.Context) error
	Dialect() string
}

// CollectRows drains rows into column-keyed maps. On any error no rows are
// returned.
func CollectRows(rows *sql.Rows) (Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		record := make(map[string]any, len(columns))
		for i, column := range columns {
			record[column] = normalizeValue(values[i])
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	return Result{Columns: columns, Rows: out, RowCount: len(out)}, nil
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}
