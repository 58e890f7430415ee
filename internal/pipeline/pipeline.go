package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/asksql/asksql/internal/nl2sql"
	"github.com/asksql/asksql/internal/observability"
	"github.com/asksql/asksql/internal/query"
	"github.com/asksql/asksql/internal/schema"
	"github.com/asksql/asksql/internal/sqlguard"
)

// SchemaSource supplies the current description; *schema.Cache satisfies it.
type SchemaSource interface {
	Current() schema.Description
}

type Options struct {
	Temperature       float64
	MaxTokens         int
	GenerationTimeout time.Duration
}

// Pipeline composes prompt assembly, generation, the safety gate and the
// executor. It holds no per-request state.
type Pipeline struct {
	generator nl2sql.Generator
	executor  query.Executor
	schemas   SchemaSource
	opts      Options
	logger    *slog.Logger
}

type Generation struct {
	SQL        string `json:"sqlQuery"`
	Executable bool   `json:"executable"`
	Provider   string `json:"provider,omitempty"`
	Model      string `json:"model,omitempty"`
}

type Answer struct {
	Generation
	Result *query.Result `json:"result,omitempty"`
}

func New(generator nl2sql.Generator, executor query.Executor, schemas SchemaSource, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 30 * time.Second
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = nl2sql.DefaultMaxTokens
	}
	return &Pipeline{generator: generator, executor: executor, schemas: schemas, opts: opts, logger: logger}
}

func (p *Pipeline) Schema() schema.Description {
	if p.schemas == nil {
		return schema.Description{}
	}
	return p.schemas.Current()
}

// GenerateSQL turns a question into gate-accepted text. When override is nil
// the current schema from the source is used.
func (p *Pipeline) GenerateSQL(ctx context.Context, question string, override *schema.Description) (Generation, error) {
	if strings.TrimSpace(question) == "" {
		return Generation{}, invalidInput("question is required")
	}
	if p.generator == nil {
		return Generation{}, &Error{Kind: KindGenerationUnavailable, Message: "no generation provider is configured"}
	}

	desc := p.Schema()
	if override != nil {
		if err := override.Validate(); err != nil {
			return Generation{}, &Error{Kind: KindInvalidInput, Message: err.Error(), Err: err}
		}
		desc = *override
	}
	schemaContext, err := schema.BuildContext(desc)
	if err != nil {
		return Generation{}, &Error{Kind: KindInvalidInput, Message: "schema could not be rendered", Err: err}
	}
	prompt := nl2sql.BuildPrompt(question, schemaContext, nl2sql.PromptOptions{
		Temperature: p.opts.Temperature,
		MaxTokens:   p.opts.MaxTokens,
	})

	genCtx, cancel := context.WithTimeout(ctx, p.opts.GenerationTimeout)
	defer cancel()
	start := time.Now()
	result, err := p.generator.Generate(genCtx, prompt)
	elapsed := time.Since(start)
	provider := p.generator.Provider()
	if err != nil {
		kind := KindGenerationUnavailable
		outcome := "unavailable"
		if errors.Is(err, nl2sql.ErrMalformed) {
			kind = KindGenerationMalformed
			outcome = "malformed"
		}
		observability.ObserveGeneration(provider, outcome, elapsed)
		p.logger.WarnContext(ctx, "sql_generation_failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("provider", provider),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return Generation{}, &Error{Kind: kind, Message: "SQL generation failed: " + err.Error(), Err: err}
	}
	observability.ObserveGeneration(provider, "ok", elapsed)

	if nl2sql.IsRefusal(result.Text) {
		observability.ObserveGuardDecision(false, "refusal")
		p.logger.InfoContext(ctx, "sql_generation_refused",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("provider", provider),
		)
		return Generation{}, &Error{Kind: KindForbiddenOperation, Message: sqlguard.DenialMessage}
	}

	if err := p.gate(ctx, result.Text, "generate"); err != nil {
		return Generation{}, err
	}

	generation := Generation{
		SQL:        result.Text,
		Executable: sqlguard.IsReadQuery(result.Text),
		Provider:   result.Provider,
		Model:      result.Model,
	}
	p.logger.InfoContext(ctx, "sql_generated",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("provider", result.Provider),
		slog.String("model", result.Model),
		slog.Bool("executable", generation.Executable),
		slog.Int64("latency_ms", elapsed.Milliseconds()),
	)
	return generation, nil
}

// ExecuteSQL applies the safety gate and then runs the text unchanged. There
// is no path to the executor that skips the gate.
func (p *Pipeline) ExecuteSQL(ctx context.Context, sqlText string) (query.Result, error) {
	if strings.TrimSpace(sqlText) == "" {
		return query.Result{}, invalidInput("sqlQuery is required")
	}
	if err := p.gate(ctx, sqlText, "execute"); err != nil {
		return query.Result{}, err
	}
	if p.executor == nil {
		return query.Result{}, &Error{Kind: KindExecutionError, Message: "no database is configured"}
	}

	start := time.Now()
	result, err := p.executor.Execute(ctx, sqlText)
	elapsed := time.Since(start)
	if err != nil {
		timedOut := errors.Is(err, query.ErrTimeout)
		outcome := "error"
		if timedOut {
			outcome = "timeout"
		}
		observability.ObserveExecution(outcome, 0, elapsed)
		p.logger.WarnContext(ctx, "sql_execution_failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("dialect", p.executor.Dialect()),
			slog.Bool("timeout", timedOut),
			slog.String("error", err.Error()),
		)
		return query.Result{}, &Error{Kind: KindExecutionError, Message: err.Error(), Timeout: timedOut, Err: err}
	}

	observability.ObserveExecution("ok", result.RowCount, elapsed)
	p.logger.InfoContext(ctx, "sql_executed",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("dialect", p.executor.Dialect()),
		slog.Int("row_count", result.RowCount),
		slog.Int64("latency_ms", elapsed.Milliseconds()),
	)
	return result, nil
}

// Ask runs generate then execute. Text that is not a read query, such as a
// schema answer, is returned without execution.
func (p *Pipeline) Ask(ctx context.Context, question string, override *schema.Description) (Answer, error) {
	generation, err := p.GenerateSQL(ctx, question, override)
	if err != nil {
		return Answer{}, err
	}
	answer := Answer{Generation: generation}
	if !generation.Executable {
		return answer, nil
	}
	result, err := p.ExecuteSQL(ctx, generation.SQL)
	if err != nil {
		return Answer{Generation: generation}, err
	}
	answer.Result = &result
	return answer, nil
}

// Ping checks the executor's database.
func (p *Pipeline) Ping(ctx context.Context) error {
	if p.executor == nil {
		return fmt.Errorf("no database is configured")
	}
	return p.executor.Ping(ctx)
}

func (p *Pipeline) gate(ctx context.Context, text, stage string) error {
	decision := sqlguard.Check(text)
	observability.ObserveGuardDecision(decision.Accepted, decision.Keyword)
	if decision.Accepted {
		return nil
	}
	p.logger.WarnContext(ctx, "sql_rejected",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("stage", stage),
		slog.String("keyword", decision.Keyword),
	)
	return &Error{Kind: KindForbiddenOperation, Message: decision.Message, Keyword: decision.Keyword}
}
