package schema

import (
	"encoding/json"
	"fmt"
)

// BuildContext renders the description as indented JSON for embedding in a
// generation prompt. An empty description yields an empty string.
func BuildContext(desc Description) (string, error) {
	if desc.IsEmpty() {
		return "", nil
	}
	tables := make([]Table, 0, len(desc.Tables))
	for _, table := range desc.Tables {
		columns := make([]Column, len(table.Columns))
		copy(columns, table.Columns)
		if columns == nil {
			columns = []Column{}
		}
		tables = append(tables, Table{Name: table.Name, Schema: table.Schema, Columns: columns})
	}
	out, err := json.MarshalIndent(tables, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal schema context: %w", err)
	}
	return string(out), nil
}
