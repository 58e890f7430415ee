package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	ProviderOpenAI = "openai-compatible"

	defaultOpenAIModel = "meta-llama/llama-3.3-70b-instruct"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	HTTPReferer string
	Title       string
	HTTPClient  *http.Client
}

// OpenAIGenerator talks to any OpenAI-compatible chat completions endpoint,
// OpenRouter included.
type OpenAIGenerator struct {
	baseURL     string
	apiKey      string
	model       string
	httpReferer string
	title       string
	client      *http.Client
}

func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &OpenAIGenerator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		httpReferer: strings.TrimSpace(cfg.HTTPReferer),
		title:       strings.TrimSpace(cfg.Title),
		client:      client,
	}, nil
}

func (g *OpenAIGenerator) Provider() string {
	return ProviderOpenAI
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt Prompt) (Result, error) {
	body, err := json.Marshal(buildChatRequest(g.model, prompt))
	if err != nil {
		return Result{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	if g.httpReferer != "" {
		httpReq.Header.Set("HTTP-Referer", g.httpReferer)
	}
	if g.title != "" {
		httpReq.Header.Set("X-Title", g.title)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Result{}, unavailable("request chat completion: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, unavailable("read chat response body: %v", err)
	}
	if resp.StatusCode >= 400 {
		return Result{}, unavailable("chat completion failed status=%d body=%s", resp.StatusCode, truncate(string(rawRespBody), 512))
	}

	var parsed chatResponse
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Result{}, malformed("decode chat completion response: %v", err)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, malformed("empty chat completion choices")
	}
	message := parsed.Choices[0].Message
	if message == nil || message.Content == nil {
		return Result{}, malformed("chat completion choice has no message content")
	}

	text := CleanOutput(*message.Content)
	if text == "" {
		return Result{}, malformed("model returned empty text")
	}
	return Result{Text: text, Provider: ProviderOpenAI, Model: g.model}, nil
}

func buildChatRequest(model string, prompt Prompt) chatRequest {
	return chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		Temperature: prompt.Temperature,
		MaxTokens:   prompt.MaxTokens,
	}
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
