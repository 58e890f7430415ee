package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/asksql/asksql/internal/nl2sql"
	"github.com/asksql/asksql/internal/query"
	"github.com/asksql/asksql/internal/schema"
	"github.com/asksql/asksql/internal/sqlguard"
)

const topCitiesSQL = "SELECT name, population FROM city ORDER BY population DESC LIMIT 10"

type fakeGenerator struct {
	mu      sync.Mutex
	text    string
	err     error
	prompts []nl2sql.Prompt
}

func (f *fakeGenerator) Generate(_ context.Context, prompt nl2sql.Prompt) (nl2sql.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return nl2sql.Result{}, f.err
	}
	return nl2sql.Result{Text: f.text, Provider: "fake", Model: "fake-1"}, nil
}

func (f *fakeGenerator) Provider() string { return "fake" }

type fakeExecutor struct {
	mu       sync.Mutex
	result   query.Result
	err      error
	executed []string
}

func (f *fakeExecutor) Execute(_ context.Context, sqlText string) (query.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, sqlText)
	if f.err != nil {
		return query.Result{}, f.err
	}
	return f.result, nil
}

func (f *fakeExecutor) Ping(context.Context) error { return f.err }
func (f *fakeExecutor) Dialect() string            { return "fake" }

func worldSchema() schema.Description {
	return schema.Description{Tables: []schema.Table{{
		Name: "city",
		Columns: []schema.Column{
			{Name: "id", DataType: "integer", PrimaryKey: true},
			{Name: "name", DataType: "text"},
			{Name: "population", DataType: "integer"},
		},
	}}}
}

func topCitiesResult() query.Result {
	rows := make([]map[string]any, 0, 10)
	for i := 0; i < 10; i++ {
		rows = append(rows, map[string]any{"name": fmt.Sprintf("city-%d", i), "population": int64(1000 - i)})
	}
	return query.Result{Columns: []string{"name", "population"}, Rows: rows, RowCount: len(rows)}
}

func newTestPipeline(gen nl2sql.Generator, exec query.Executor) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(gen, exec, schema.NewStaticCache(worldSchema()), Options{Temperature: 0.3, MaxTokens: 500}, logger)
}

func TestGenerateSQLBuildsPromptFromSchemaAndQuestion(t *testing.T) {
	gen := &fakeGenerator{text: topCitiesSQL}
	p := newTestPipeline(gen, &fakeExecutor{})

	question := "Top 10 most populated cities\n"
	got, err := p.GenerateSQL(context.Background(), question, nil)
	if err != nil {
		t.Fatalf("GenerateSQL() error = %v", err)
	}
	if got.SQL != topCitiesSQL || !got.Executable || got.Provider != "fake" {
		t.Fatalf("GenerateSQL() = %#v", got)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("prompts = %d", len(gen.prompts))
	}
	prompt := gen.prompts[0]
	if prompt.User != question {
		t.Fatalf("prompt.User = %q, want the raw question", prompt.User)
	}
	if !strings.Contains(prompt.System, `"population"`) {
		t.Fatal("prompt.System missing schema context")
	}
	if prompt.Temperature != 0.3 || prompt.MaxTokens != 500 {
		t.Fatalf("prompt params = %v/%d", prompt.Temperature, prompt.MaxTokens)
	}
}

func TestGenerateSQLUsesOverrideSchema(t *testing.T) {
	gen := &fakeGenerator{text: "SELECT code FROM country"}
	p := newTestPipeline(gen, &fakeExecutor{})
	override := schema.Description{Tables: []schema.Table{{Name: "country", Columns: []schema.Column{{Name: "code", DataType: "text"}}}}}

	if _, err := p.GenerateSQL(context.Background(), "codes", &override); err != nil {
		t.Fatalf("GenerateSQL() error = %v", err)
	}
	if strings.Contains(gen.prompts[0].System, `"population"`) || !strings.Contains(gen.prompts[0].System, `"country"`) {
		t.Fatal("override schema not used")
	}

	invalid := schema.Description{Tables: []schema.Table{{Name: "a"}, {Name: "a"}}}
	_, err := p.GenerateSQL(context.Background(), "codes", &invalid)
	if KindOf(err) != KindInvalidInput {
		t.Fatalf("GenerateSQL(invalid schema) kind = %q", KindOf(err))
	}
}

func TestGenerateSQLRequiresQuestion(t *testing.T) {
	gen := &fakeGenerator{text: "SELECT 1"}
	p := newTestPipeline(gen, &fakeExecutor{})
	_, err := p.GenerateSQL(context.Background(), "   ", nil)
	if KindOf(err) != KindInvalidInput {
		t.Fatalf("kind = %q", KindOf(err))
	}
	if len(gen.prompts) != 0 {
		t.Fatal("generator must not be called for invalid input")
	}
}

func TestGenerateSQLMapsGeneratorFailures(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{err: fmt.Errorf("%w: connection refused", nl2sql.ErrUnavailable), want: KindGenerationUnavailable},
		{err: fmt.Errorf("%w: no choices", nl2sql.ErrMalformed), want: KindGenerationMalformed},
		{err: errors.New("unexpected"), want: KindGenerationUnavailable},
	}
	for _, tc := range tests {
		exec := &fakeExecutor{}
		p := newTestPipeline(&fakeGenerator{err: tc.err}, exec)
		_, err := p.Ask(context.Background(), "Top 10 most populated cities", nil)
		if KindOf(err) != tc.want {
			t.Fatalf("Ask() kind = %q, want %q (err=%v)", KindOf(err), tc.want, err)
		}
		if !errors.Is(err, tc.err) {
			t.Fatalf("Ask() error does not wrap cause: %v", err)
		}
		if len(exec.executed) != 0 {
			t.Fatal("generation failure must not reach the executor")
		}
	}
}

func TestGenerateSQLRejectsForbiddenText(t *testing.T) {
	exec := &fakeExecutor{}
	p := newTestPipeline(&fakeGenerator{text: "CREATE TABLE cities (id int)"}, exec)

	answer, err := p.Ask(context.Background(), "Create a new table for cities", nil)
	var pipelineErr *Error
	if !errors.As(err, &pipelineErr) || pipelineErr.Kind != KindForbiddenOperation {
		t.Fatalf("Ask() error = %v", err)
	}
	if pipelineErr.Message != sqlguard.DenialMessage || pipelineErr.Keyword != "create" {
		t.Fatalf("error = %#v", pipelineErr)
	}
	if answer.SQL != "" {
		t.Fatalf("rejected SQL leaked to caller: %q", answer.SQL)
	}
	if len(exec.executed) != 0 {
		t.Fatal("rejected text must never be executed")
	}
}

func TestGenerateSQLTreatsRefusalAsForbidden(t *testing.T) {
	exec := &fakeExecutor{}
	p := newTestPipeline(&fakeGenerator{text: nl2sql.RefusalText}, exec)

	_, err := p.GenerateSQL(context.Background(), "Drop every table please", nil)
	if KindOf(err) != KindForbiddenOperation {
		t.Fatalf("kind = %q", KindOf(err))
	}
	if !strings.Contains(err.Error(), sqlguard.DenialMessage) {
		t.Fatalf("error = %v", err)
	}
}

func TestAskReturnsSchemaAnswerWithoutExecuting(t *testing.T) {
	exec := &fakeExecutor{}
	p := newTestPipeline(&fakeGenerator{text: "The database contains the following tables: city."}, exec)

	answer, err := p.Ask(context.Background(), "What tables are in the database?", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer.Executable || answer.Result != nil {
		t.Fatalf("answer = %#v", answer)
	}
	if len(exec.executed) != 0 {
		t.Fatal("schema answers must not be executed")
	}
}

func TestAskRunsGeneratedSQLExactly(t *testing.T) {
	exec := &fakeExecutor{result: topCitiesResult()}
	p := newTestPipeline(&fakeGenerator{text: topCitiesSQL}, exec)

	answer, err := p.Ask(context.Background(), "Top 10 most populated cities", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer.Result == nil || answer.Result.RowCount > 10 {
		t.Fatalf("answer.Result = %#v", answer.Result)
	}
	if len(exec.executed) != 1 || exec.executed[0] != topCitiesSQL {
		t.Fatalf("executed = %#v", exec.executed)
	}
}

func TestExecuteSQLAlwaysAppliesGate(t *testing.T) {
	exec := &fakeExecutor{}
	p := newTestPipeline(&fakeGenerator{}, exec)

	for _, text := range []string{"DELETE FROM city", "select 1; drop table city", "GRANT ALL ON city TO bob"} {
		_, err := p.ExecuteSQL(context.Background(), text)
		if KindOf(err) != KindForbiddenOperation {
			t.Fatalf("ExecuteSQL(%q) kind = %q", text, KindOf(err))
		}
	}
	if len(exec.executed) != 0 {
		t.Fatalf("executor reached with %#v", exec.executed)
	}
}

func TestExecuteSQLValidatesInput(t *testing.T) {
	p := newTestPipeline(&fakeGenerator{}, &fakeExecutor{})
	if _, err := p.ExecuteSQL(context.Background(), " \n "); KindOf(err) != KindInvalidInput {
		t.Fatalf("kind = %q", KindOf(err))
	}
	noDB := New(&fakeGenerator{}, nil, nil, Options{}, nil)
	if _, err := noDB.ExecuteSQL(context.Background(), "SELECT 1"); KindOf(err) != KindExecutionError {
		t.Fatalf("kind = %q", KindOf(err))
	}
	if err := noDB.Ping(context.Background()); err == nil {
		t.Fatal("Ping() without executor expected error")
	}
	if !noDB.Schema().IsEmpty() {
		t.Fatal("Schema() without source should be empty")
	}
}

func TestExecuteSQLMapsExecutorErrors(t *testing.T) {
	exec := &fakeExecutor{err: errors.New(`column "nope" does not exist`)}
	p := newTestPipeline(&fakeGenerator{}, exec)
	result, err := p.ExecuteSQL(context.Background(), "SELECT nope FROM city")
	var pipelineErr *Error
	if !errors.As(err, &pipelineErr) || pipelineErr.Kind != KindExecutionError || pipelineErr.Timeout {
		t.Fatalf("error = %#v", err)
	}
	if pipelineErr.Message != `column "nope" does not exist` {
		t.Fatalf("Message = %q", pipelineErr.Message)
	}
	if result.Rows != nil {
		t.Fatal("no rows may accompany an error")
	}

	exec.err = fmt.Errorf("%w after 30s: canceled", query.ErrTimeout)
	_, err = p.ExecuteSQL(context.Background(), "SELECT pg_sleep(60)")
	if !errors.As(err, &pipelineErr) || !pipelineErr.Timeout || pipelineErr.Kind != KindExecutionError {
		t.Fatalf("timeout error = %#v", err)
	}
}

func TestConcurrentRequestsShareNoState(t *testing.T) {
	exec := &fakeExecutor{result: topCitiesResult()}
	p := newTestPipeline(&fakeGenerator{text: topCitiesSQL}, exec)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Ask(context.Background(), "Top 10 most populated cities", nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(exec.executed) != 16 {
		t.Fatalf("executed = %d", len(exec.executed))
	}
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{Kind: KindExecutionError, Message: "boom", Err: errors.New("boom")}
	if err.Error() != "ExecutionError: boom" {
		t.Fatalf("Error() = %q", err.Error())
	}
	wrapped := &Error{Kind: KindGenerationUnavailable, Message: "failed", Err: errors.New("dial tcp")}
	if wrapped.Error() != "GenerationUnavailable: failed: dial tcp" {
		t.Fatalf("Error() = %q", wrapped.Error())
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatal("KindOf(plain) should be empty")
	}
}
