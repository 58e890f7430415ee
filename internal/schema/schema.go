package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalid = errors.New("schema: invalid description")

// Description is the ordered table/column metadata used to ground SQL
// generation. Tables and columns keep their declared order.
type Description struct {
	Tables []Table `json:"tables"`
}

type Table struct {
	Name    string   `json:"name"`
	Schema  string   `json:"schema,omitempty"`
	Columns []Column `json:"columns"`
}

type Column struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	Format     string `json:"format,omitempty"`
	Nullable   *bool  `json:"is_nullable,omitempty"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
}

type Loader interface {
	Load(ctx context.Context) (Description, error)
}

func (d Description) IsEmpty() bool {
	return len(d.Tables) == 0
}

func (d Description) Table(name string) (Table, bool) {
	for _, table := range d.Tables {
		if strings.EqualFold(table.Name, name) {
			return table, true
		}
	}
	return Table{}, false
}

func (d Description) TableNames() []string {
	names := make([]string, 0, len(d.Tables))
	for _, table := range d.Tables {
		names = append(names, table.Name)
	}
	return names
}

func (d Description) Validate() error {
	seenTables := make(map[string]struct{}, len(d.Tables))
	for i, table := range d.Tables {
		name := strings.TrimSpace(table.Name)
		if name == "" {
			return fmt.Errorf("%w: table %d has no name", ErrInvalid, i)
		}
		key := strings.ToLower(name)
		if _, exists := seenTables[key]; exists {
			return fmt.Errorf("%w: duplicate table %q", ErrInvalid, name)
		}
		seenTables[key] = struct{}{}

		seenColumns := make(map[string]struct{}, len(table.Columns))
		for j, column := range table.Columns {
			columnName := strings.TrimSpace(column.Name)
			if columnName == "" {
				return fmt.Errorf("%w: table %q column %d has no name", ErrInvalid, name, j)
			}
			columnKey := strings.ToLower(columnName)
			if _, exists := seenColumns[columnKey]; exists {
				return fmt.Errorf("%w: duplicate column %q in table %q", ErrInvalid, columnName, name)
			}
			seenColumns[columnKey] = struct{}{}
		}
	}
	return nil
}

func BoolPtr(v bool) *bool {
	return &v
}
