package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asksql/asksql/internal/config"
	"github.com/asksql/asksql/internal/history"
	"github.com/asksql/asksql/internal/observability"
	"github.com/asksql/asksql/internal/pipeline"
)

type ReadinessCheck func(ctx context.Context) error

// HistoryStore is the session-scoped query history used by the handlers.
type HistoryStore interface {
	Record(ctx context.Context, sessionID, question, sqlText string) (history.Entry, error)
	SetRowCount(ctx context.Context, sessionID, id string, rowCount int) error
	SetErrorKind(ctx context.Context, sessionID, id, kind string) error
	List(ctx context.Context, sessionID string) ([]history.Entry, error)
	Clear(ctx context.Context, sessionID string) (int, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Pipeline          *pipeline.Pipeline
	History           HistoryStore
	Now               func() time.Time
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})
	mux.HandleFunc("GET /v1/examples", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"examples": ExampleQuestions})
	})
	mux.HandleFunc("GET /v1/keepalive", func(w http.ResponseWriter, r *http.Request) {
		handleKeepalive(deps, w, r)
	})
	mux.HandleFunc("POST /v1/generate-sql", func(w http.ResponseWriter, r *http.Request) {
		handleGenerateSQL(deps, w, r)
	})
	mux.HandleFunc("POST /v1/execute-sql", func(w http.ResponseWriter, r *http.Request) {
		handleExecuteSQL(deps, w, r)
	})
	mux.HandleFunc("POST /v1/ask", func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, w, r)
	})
	mux.HandleFunc("GET /v1/history", func(w http.ResponseWriter, r *http.Request) {
		handleListHistory(deps, w, r)
	})
	mux.HandleFunc("DELETE /v1/history", func(w http.ResponseWriter, r *http.Request) {
		handleClearHistory(deps, w, r)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.SessionMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckPipeline reports whether the configured database answers a ping.
func CheckPipeline(p *pipeline.Pipeline) ReadinessCheck {
	return func(ctx context.Context) error {
		if p == nil {
			return errors.New("pipeline is not configured")
		}
		return p.Ping(ctx)
	}
}

func CheckSchemaLoaded(p *pipeline.Pipeline) ReadinessCheck {
	return func(_ context.Context) error {
		if p == nil || p.Schema().IsEmpty() {
			return errors.New("schema description is empty")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

const maxRequestBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error":      message,
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

// writePipelineError maps a pipeline error kind onto the HTTP envelope.
func writePipelineError(ctx context.Context, w http.ResponseWriter, err error) {
	var pipelineErr *pipeline.Error
	if !errors.As(err, &pipelineErr) {
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", err.Error(), false, nil)
		return
	}

	extra := map[string]any{"kind": string(pipelineErr.Kind)}
	switch pipelineErr.Kind {
	case pipeline.KindInvalidInput:
		writeError(ctx, w, http.StatusBadRequest, "INVALID_INPUT", pipelineErr.Message, false, extra)
	case pipeline.KindForbiddenOperation:
		if pipelineErr.Keyword != "" {
			extra["keyword"] = pipelineErr.Keyword
		}
		writeError(ctx, w, http.StatusBadRequest, "FORBIDDEN_OPERATION", pipelineErr.Message, false, extra)
	case pipeline.KindGenerationUnavailable:
		writeError(ctx, w, http.StatusBadGateway, "GENERATION_UNAVAILABLE", pipelineErr.Message, true, extra)
	case pipeline.KindGenerationMalformed:
		writeError(ctx, w, http.StatusBadGateway, "GENERATION_MALFORMED", pipelineErr.Message, false, extra)
	case pipeline.KindExecutionError:
		if pipelineErr.Timeout {
			writeError(ctx, w, http.StatusGatewayTimeout, "EXECUTION_TIMEOUT", pipelineErr.Message, true, extra)
			return
		}
		writeError(ctx, w, http.StatusBadRequest, "EXECUTION_ERROR", pipelineErr.Message, false, extra)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", pipelineErr.Message, false, extra)
	}
}
