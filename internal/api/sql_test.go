package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/asksql/asksql/internal/nl2sql"
	"github.com/asksql/asksql/internal/query"
	"github.com/asksql/asksql/internal/sqlguard"
)

const countCitiesSQL = "SELECT COUNT(*) FROM city"

func TestGenerateSQLReturnsStatementAndRecordsHistory(t *testing.T) {
	exec := &stubExecutor{}
	h, store := newTestHandler(t, stubGenerator{text: countCitiesSQL}, exec, true)
	session := map[string]string{"X-Session-ID": "s1"}

	rr, body := doJSON(t, h, http.MethodPost, "/v1/generate-sql", `{"question":"How many cities are there?"}`, session)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if body["sqlQuery"] != countCitiesSQL || body["executable"] != true {
		t.Fatalf("body = %v", body)
	}
	historyID, _ := body["history_id"].(string)
	if historyID == "" {
		t.Fatal("expected history_id")
	}
	if len(exec.calls()) != 0 {
		t.Fatal("generate must not execute")
	}

	entries, err := store.List(context.Background(), "s1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].ID != historyID || entries[0].Question != "How many cities are there?" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestGenerateSQLAcceptsSchemaOverride(t *testing.T) {
	h, _ := newTestHandler(t, stubGenerator{text: "SELECT code FROM country"}, &stubExecutor{}, false)
	request := `{"question":"list countries","schema":[{"name":"country","columns":[{"name":"code","data_type":"text"}]}]}`

	rr, body := doJSON(t, h, http.MethodPost, "/v1/generate-sql", request, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if body["sqlQuery"] != "SELECT code FROM country" {
		t.Fatalf("body = %v", body)
	}

	rr, body = doJSON(t, h, http.MethodPost, "/v1/generate-sql", `{"question":"q","schema":{"tables":"nope"}}`, nil)
	if rr.Code != http.StatusBadRequest || body["error_code"] != "INVALID_INPUT" {
		t.Fatalf("status = %d body = %v", rr.Code, body)
	}
}

func TestGenerateSQLErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		gen       stubGenerator
		body      string
		status    int
		code      string
		retryable bool
	}{
		{name: "empty question", gen: stubGenerator{text: "SELECT 1"}, body: `{"question":"  "}`, status: http.StatusBadRequest, code: "INVALID_INPUT"},
		{name: "unknown field", gen: stubGenerator{text: "SELECT 1"}, body: `{"prompt":"x"}`, status: http.StatusBadRequest, code: "INVALID_JSON"},
		{name: "provider down", gen: stubGenerator{err: fmt.Errorf("%w: status 503", nl2sql.ErrUnavailable)}, body: `{"question":"q"}`, status: http.StatusBadGateway, code: "GENERATION_UNAVAILABLE", retryable: true},
		{name: "malformed", gen: stubGenerator{err: fmt.Errorf("%w: no choices", nl2sql.ErrMalformed)}, body: `{"question":"q"}`, status: http.StatusBadGateway, code: "GENERATION_MALFORMED"},
		{name: "mutating output", gen: stubGenerator{text: "DROP TABLE city"}, body: `{"question":"drop the city table"}`, status: http.StatusBadRequest, code: "FORBIDDEN_OPERATION"},
		{name: "refusal", gen: stubGenerator{text: nl2sql.RefusalText}, body: `{"question":"delete all rows"}`, status: http.StatusBadRequest, code: "FORBIDDEN_OPERATION"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newTestHandler(t, tc.gen, &stubExecutor{}, false)
			rr, body := doJSON(t, h, http.MethodPost, "/v1/generate-sql", tc.body, nil)
			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d body=%s", rr.Code, tc.status, rr.Body.String())
			}
			if body["error_code"] != tc.code {
				t.Fatalf("error_code = %v, want %s", body["error_code"], tc.code)
			}
			if body["retryable"] != tc.retryable {
				t.Fatalf("retryable = %v", body["retryable"])
			}
			if body["trace_id"] == "" {
				t.Fatal("expected trace_id in error envelope")
			}
		})
	}
}

func TestExecuteSQLRunsAcceptedTextAndCompletesHistory(t *testing.T) {
	exec := &stubExecutor{result: cityCountResult()}
	h, store := newTestHandler(t, stubGenerator{}, exec, true)
	ctx := context.Background()

	entry, err := store.Record(ctx, "default", "How many cities?", countCitiesSQL)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	rr, body := doJSON(t, h, http.MethodPost, "/v1/execute-sql", fmt.Sprintf(`{"sqlQuery":%q,"history_id":%q}`, countCitiesSQL, entry.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	results, ok := body["results"].(map[string]any)
	if !ok || results["rowCount"] != float64(1) {
		t.Fatalf("results = %v", body["results"])
	}
	if calls := exec.calls(); len(calls) != 1 || calls[0] != countCitiesSQL {
		t.Fatalf("executed = %v", calls)
	}

	entries, err := store.List(ctx, "default")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if entries[0].RowCount == nil || *entries[0].RowCount != 1 {
		t.Fatalf("RowCount = %v", entries[0].RowCount)
	}
}

func TestExecuteSQLRejectsMutationWithoutExecuting(t *testing.T) {
	exec := &stubExecutor{}
	h, _ := newTestHandler(t, stubGenerator{}, exec, false)

	rr, body := doJSON(t, h, http.MethodPost, "/v1/execute-sql", `{"sqlQuery":"DELETE FROM city"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if body["error_code"] != "FORBIDDEN_OPERATION" || body["message"] != sqlguard.DenialMessage {
		t.Fatalf("body = %v", body)
	}
	extra, _ := body["context"].(map[string]any)
	if extra["keyword"] != "delete" {
		t.Fatalf("context = %v", body["context"])
	}
	if len(exec.calls()) != 0 {
		t.Fatal("rejected statement reached the executor")
	}
}

func TestExecuteSQLTimeoutIsRetryable(t *testing.T) {
	exec := &stubExecutor{err: fmt.Errorf("run statement: %w", query.ErrTimeout)}
	h, _ := newTestHandler(t, stubGenerator{}, exec, false)

	rr, body := doJSON(t, h, http.MethodPost, "/v1/execute-sql", `{"sqlQuery":"SELECT pg_sleep(60)"}`, nil)
	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d", rr.Code)
	}
	if body["error_code"] != "EXECUTION_TIMEOUT" || body["retryable"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestExecuteSQLDatabaseErrorIsBadRequest(t *testing.T) {
	exec := &stubExecutor{err: fmt.Errorf(`relation "citty" does not exist`)}
	h, _ := newTestHandler(t, stubGenerator{}, exec, false)

	rr, body := doJSON(t, h, http.MethodPost, "/v1/execute-sql", `{"sqlQuery":"SELECT * FROM citty"}`, nil)
	if rr.Code != http.StatusBadRequest || body["error_code"] != "EXECUTION_ERROR" {
		t.Fatalf("status = %d body = %v", rr.Code, body)
	}
}

func TestAskGeneratesAndExecutes(t *testing.T) {
	exec := &stubExecutor{result: cityCountResult()}
	h, store := newTestHandler(t, stubGenerator{text: countCitiesSQL}, exec, true)

	rr, body := doJSON(t, h, http.MethodPost, "/v1/ask", `{"question":"How many cities?"}`, map[string]string{"X-Session-ID": "s2"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if body["sqlQuery"] != countCitiesSQL {
		t.Fatalf("body = %v", body)
	}
	if _, ok := body["results"].(map[string]any); !ok {
		t.Fatalf("results missing: %v", body)
	}

	entries, err := store.List(context.Background(), "s2")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].RowCount == nil || *entries[0].RowCount != 1 {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestAskSkipsExecutionForNonQueryAnswer(t *testing.T) {
	exec := &stubExecutor{}
	h, _ := newTestHandler(t, stubGenerator{text: "The city table has columns id, name and population."}, exec, false)

	rr, body := doJSON(t, h, http.MethodPost, "/v1/ask", `{"question":"what columns does city have?"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if body["executable"] != false {
		t.Fatalf("executable = %v", body["executable"])
	}
	if _, ok := body["results"]; ok {
		t.Fatal("non-query answer should have no results")
	}
	if len(exec.calls()) != 0 {
		t.Fatal("non-query answer reached the executor")
	}
}

func TestHistoryListAndClearAreSessionScoped(t *testing.T) {
	h, store := newTestHandler(t, stubGenerator{}, &stubExecutor{}, true)
	ctx := context.Background()
	for _, session := range []string{"a", "a", "b"} {
		if _, err := store.Record(ctx, session, "q", "SELECT 1"); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	rr, body := doJSON(t, h, http.MethodGet, "/v1/history", "", map[string]string{"X-Session-ID": "a"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	entries, _ := body["entries"].([]any)
	if len(entries) != 2 || body["session_id"] != "a" {
		t.Fatalf("body = %v", body)
	}

	rr, body = doJSON(t, h, http.MethodDelete, "/v1/history", "", map[string]string{"X-Session-ID": "a"})
	if rr.Code != http.StatusOK || body["removed"] != float64(2) {
		t.Fatalf("status = %d body = %v", rr.Code, body)
	}

	remaining, err := store.List(ctx, "b")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("session b entries = %d", len(remaining))
	}
}
