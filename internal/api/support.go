package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/asksql/asksql/internal/observability"
)

// ExampleQuestions are offered to new users as starting points.
var ExampleQuestions = []string{
	"Show me the top 10 most populated cities",
	"Average country population by continent",
	"Which countries have more than 50 million population?",
	"Show me countries with more than one official language.",
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": deps.Pipeline.Schema().Tables})
}

// keepaliveProbe counts the rows of the first described table, or selects a
// constant when no schema is loaded.
func keepaliveProbe(tables []string) string {
	if len(tables) == 0 {
		return "SELECT 1"
	}
	return "SELECT COUNT(*) FROM " + `"` + strings.ReplaceAll(tables[0], `"`, `""`) + `"`
}

func handleKeepalive(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "sql execution is not configured", false, nil)
		return
	}
	names := make([]string, 0)
	for _, table := range deps.Pipeline.Schema().Tables {
		names = append(names, table.Name)
	}
	probe := keepaliveProbe(names)

	result, err := deps.Pipeline.ExecuteSQL(r.Context(), probe)
	timestamp := deps.Now().UTC().Format(time.RFC3339)
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "KEEPALIVE_FAILED", err.Error(), true, map[string]any{
			"query":     probe,
			"timestamp": timestamp,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"timestamp": timestamp,
		"query":     probe,
		"rowCount":  result.RowCount,
	})
}

func handleListHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.History == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "HISTORY_NOT_CONFIGURED", "history is not configured", false, nil)
		return
	}
	sessionID := observability.SessionIDFromContext(r.Context())
	entries, err := deps.History.List(r.Context(), sessionID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_ERROR", "failed to list history", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "entries": entries})
}

func handleClearHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.History == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "HISTORY_NOT_CONFIGURED", "history is not configured", false, nil)
		return
	}
	sessionID := observability.SessionIDFromContext(r.Context())
	removed, err := deps.History.Clear(r.Context(), sessionID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_ERROR", "failed to clear history", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "removed": removed})
}
