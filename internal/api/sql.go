package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/asksql/asksql/internal/observability"
	"github.com/asksql/asksql/internal/pipeline"
	"github.com/asksql/asksql/internal/query"
	"github.com/asksql/asksql/internal/schema"
)

type generateRequest struct {
	Question string          `json:"question"`
	Schema   json.RawMessage `json:"schema,omitempty"`
}

type generateResponse struct {
	pipeline.Generation
	HistoryID string `json:"history_id,omitempty"`
}

type executeRequest struct {
	SQLQuery  string `json:"sqlQuery"`
	HistoryID string `json:"history_id,omitempty"`
}

type executeResponse struct {
	Results    query.Result `json:"results"`
	DurationMs int64        `json:"duration_ms"`
}

type askResponse struct {
	pipeline.Generation
	Results    *query.Result `json:"results,omitempty"`
	DurationMs int64         `json:"duration_ms,omitempty"`
	HistoryID  string        `json:"history_id,omitempty"`
}

func handleGenerateSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "sql generation is not configured", false, nil)
		return
	}
	var request generateRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid generate request body", false, map[string]any{"details": err.Error()})
		return
	}
	override, ok := parseSchemaOverride(w, r, request.Schema)
	if !ok {
		return
	}

	generation, err := deps.Pipeline.GenerateSQL(r.Context(), request.Question, override)
	if err != nil {
		writePipelineError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Generation: generation,
		HistoryID:  recordHistory(r.Context(), deps, request.Question, generation.SQL),
	})
}

func handleExecuteSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "sql execution is not configured", false, nil)
		return
	}
	var request executeRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid execute request body", false, map[string]any{"details": err.Error()})
		return
	}

	result, err := deps.Pipeline.ExecuteSQL(r.Context(), request.SQLQuery)
	completeHistory(r.Context(), deps, request.HistoryID, result, err)
	if err != nil {
		writePipelineError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Results: result, DurationMs: result.Duration.Milliseconds()})
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "sql generation is not configured", false, nil)
		return
	}
	var request generateRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	override, ok := parseSchemaOverride(w, r, request.Schema)
	if !ok {
		return
	}

	generation, err := deps.Pipeline.GenerateSQL(r.Context(), request.Question, override)
	if err != nil {
		writePipelineError(r.Context(), w, err)
		return
	}
	historyID := recordHistory(r.Context(), deps, request.Question, generation.SQL)
	response := askResponse{Generation: generation, HistoryID: historyID}
	if !generation.Executable {
		writeJSON(w, http.StatusOK, response)
		return
	}

	result, err := deps.Pipeline.ExecuteSQL(r.Context(), generation.SQL)
	completeHistory(r.Context(), deps, historyID, result, err)
	if err != nil {
		writePipelineError(r.Context(), w, err)
		return
	}
	response.Results = &result
	response.DurationMs = result.Duration.Milliseconds()
	writeJSON(w, http.StatusOK, response)
}

func parseSchemaOverride(w http.ResponseWriter, r *http.Request, raw json.RawMessage) (*schema.Description, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, true
	}
	desc, err := schema.Parse(raw)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_INPUT", "invalid schema description", false, map[string]any{"details": err.Error()})
		return nil, false
	}
	return &desc, true
}

// recordHistory stores a generated statement for the caller's session. A
// history failure never fails the request.
func recordHistory(ctx context.Context, deps Dependencies, question, sqlText string) string {
	if deps.History == nil {
		return ""
	}
	entry, err := deps.History.Record(ctx, observability.SessionIDFromContext(ctx), question, sqlText)
	if err != nil {
		logHistoryFailure(ctx, deps, "record", err)
		return ""
	}
	return entry.ID
}

func completeHistory(ctx context.Context, deps Dependencies, historyID string, result query.Result, execErr error) {
	if deps.History == nil || historyID == "" {
		return
	}
	sessionID := observability.SessionIDFromContext(ctx)
	var err error
	if execErr != nil {
		err = deps.History.SetErrorKind(ctx, sessionID, historyID, string(pipeline.KindOf(execErr)))
	} else {
		err = deps.History.SetRowCount(ctx, sessionID, historyID, result.RowCount)
	}
	if err != nil {
		logHistoryFailure(ctx, deps, "complete", err)
	}
}

func logHistoryFailure(ctx context.Context, deps Dependencies, action string, err error) {
	if deps.Logger == nil {
		return
	}
	deps.Logger.WarnContext(ctx, "history_update_failed",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("action", action),
		slog.String("error", err.Error()),
	)
}
