package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/asksql/asksql/internal/schema"
)

const columnsQuery = `
SELECT c.table_name, c.column_name, c.data_type, c.udt_name, c.is_nullable,
       COALESCE(pk.is_primary, false) AS is_primary
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
LEFT JOIN (
  SELECT kcu.table_name, kcu.column_name, true AS is_primary
  FROM information_schema.table_constraints tc
  JOIN information_schema.key_column_usage kcu
    ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
  WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1
) pk ON pk.table_name = c.table_name AND pk.column_name = c.column_name
WHERE c.table_schema = $1 AND t.table_type IN ('BASE TABLE', 'VIEW')
ORDER BY c.table_name, c.ordinal_position`

type Introspector struct {
	db         *sql.DB
	schemaName string
}

func NewIntrospector(db *sql.DB, schemaName string) *Introspector {
	if strings.TrimSpace(schemaName) == "" {
		schemaName = "public"
	}
	return &Introspector{db: db, schemaName: schemaName}
}

func (i *Introspector) Load(ctx context.Context) (schema.Description, error) {
	if i.db == nil {
		return schema.Description{}, fmt.Errorf("introspector database is required")
	}
	rows, err := i.db.QueryContext(ctx, columnsQuery, i.schemaName)
	if err != nil {
		return schema.Description{}, fmt.Errorf("query information_schema columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var desc schema.Description
	index := map[string]int{}
	for rows.Next() {
		var (
			tableName  string
			columnName string
			dataType   string
			udtName    string
			isNullable string
			isPrimary  bool
		)
		if err := rows.Scan(&tableName, &columnName, &dataType, &udtName, &isNullable, &isPrimary); err != nil {
			return schema.Description{}, fmt.Errorf("scan column row: %w", err)
		}
		pos, ok := index[tableName]
		if !ok {
			desc.Tables = append(desc.Tables, schema.Table{Name: tableName, Schema: i.schemaName})
			pos = len(desc.Tables) - 1
			index[tableName] = pos
		}
		column := schema.Column{
			Name:       columnName,
			DataType:   dataType,
			Nullable:   schema.BoolPtr(strings.EqualFold(isNullable, "YES")),
			PrimaryKey: isPrimary,
		}
		if udtName != "" && udtName != dataType {
			column.Format = udtName
		}
		desc.Tables[pos].Columns = append(desc.Tables[pos].Columns, column)
	}
	if err := rows.Err(); err != nil {
		return schema.Description{}, fmt.Errorf("iterate column rows: %w", err)
	}
	return desc, nil
}
