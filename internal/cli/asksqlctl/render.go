package asksqlctl

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/pterm/pterm"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatCSV   = "csv"
)

func validFormat(format string) bool {
	switch format {
	case formatTable, formatJSON, formatCSV:
		return true
	}
	return false
}

type renderer struct {
	out    io.Writer
	format string
	color  bool
}

func (r renderer) json(value any) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// sql prints a statement, highlighted for terminals when color is enabled.
func (r renderer) sql(text string) error {
	if !r.color {
		_, err := fmt.Fprintln(r.out, text)
		return err
	}
	lexer := lexers.Get("sql")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)
	style := styles.Get("monokai")
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}
	iterator, err := lexer.Tokenise(nil, text)
	if err != nil {
		_, err = fmt.Fprintln(r.out, text)
		return err
	}
	if err := formatter.Format(r.out, style, iterator); err != nil {
		return err
	}
	_, err = fmt.Fprintln(r.out)
	return err
}

func (r renderer) results(set resultSet) error {
	switch r.format {
	case formatJSON:
		return r.json(set)
	case formatCSV:
		return writeCSV(r.out, set)
	}

	if len(set.Columns) == 0 {
		_, err := fmt.Fprintf(r.out, "(%d rows)\n", set.RowCount)
		return err
	}
	data := pterm.TableData{set.Columns}
	for _, row := range set.Data {
		data = append(data, rowCells(set.Columns, row))
	}
	if err := r.table(data); err != nil {
		return err
	}
	_, err := fmt.Fprintf(r.out, "(%d rows)\n", set.RowCount)
	return err
}

func (r renderer) table(data pterm.TableData) error {
	rendered, err := pterm.DefaultTable.WithHasHeader().WithBoxed(r.color).WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	_, err = fmt.Fprintln(r.out, rendered)
	return err
}

func writeCSV(w io.Writer, set resultSet) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(set.Columns); err != nil {
		return err
	}
	for _, row := range set.Data {
		if err := writer.Write(rowCells(set.Columns, row)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func rowCells(columns []string, row map[string]any) []string {
	cells := make([]string, 0, len(columns))
	for _, column := range columns {
		cells = append(cells, formatCell(row[column]))
	}
	return cells
}

func formatCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return typed
	case json.Number:
		return typed.String()
	case bool:
		return strconv.FormatBool(typed)
	case map[string]any, []any:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	default:
		return fmt.Sprint(typed)
	}
}

func truncateCell(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	if limit <= 0 || len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
