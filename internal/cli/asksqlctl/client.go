package asksqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type apiClient struct {
	baseURL   string
	sessionID string
	http      *http.Client
}

// apiError is the error envelope returned by asksql-api.
type apiError struct {
	Status    int            `json:"-"`
	Code      string         `json:"error_code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Context   map[string]any `json:"context"`
	TraceID   string         `json:"trace_id"`
	raw       string
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.raw)
	}
	message := fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
	if e.Retryable {
		message += " (retryable)"
	}
	return message
}

type resultSet struct {
	Columns  []string         `json:"columns"`
	Data     []map[string]any `json:"data"`
	RowCount int              `json:"rowCount"`
}

type generateResponse struct {
	SQLQuery   string `json:"sqlQuery"`
	Executable bool   `json:"executable"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	HistoryID  string `json:"history_id"`
}

type executeResponse struct {
	Results    resultSet `json:"results"`
	DurationMs int64     `json:"duration_ms"`
}

type askResponse struct {
	generateResponse
	Results    *resultSet `json:"results"`
	DurationMs int64      `json:"duration_ms"`
}

type historyEntry struct {
	ID        string `json:"id"`
	Question  string `json:"question"`
	SQL       string `json:"sql"`
	RowCount  *int   `json:"row_count"`
	ErrorKind string `json:"error_kind"`
	CreatedAt string `json:"created_at"`
}

type historyResponse struct {
	SessionID string         `json:"session_id"`
	Entries   []historyEntry `json:"entries"`
}

type schemaResponse struct {
	Tables []struct {
		Name    string `json:"name"`
		Columns []struct {
			Name       string `json:"name"`
			DataType   string `json:"data_type"`
			Nullable   *bool  `json:"is_nullable"`
			PrimaryKey bool   `json:"primary_key"`
		} `json:"columns"`
	} `json:"tables"`
}

// do sends payload as JSON and returns the raw response body. Responses with
// status >= 400 are returned as *apiError.
func (c *apiClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(c.sessionID) != "" {
		req.Header.Set("X-Session-ID", strings.TrimSpace(c.sessionID))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode, raw: strings.TrimSpace(string(raw))}
		_ = json.Unmarshal(raw, apiErr)
		return nil, apiErr
	}
	return raw, nil
}

func (c *apiClient) decode(ctx context.Context, method, path string, payload, target any) error {
	raw, err := c.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}
