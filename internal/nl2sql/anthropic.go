package nl2sql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	ProviderAnthropic = "anthropic"

	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
)

type AnthropicConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type AnthropicGenerator struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
}

func NewAnthropicGenerator(cfg AnthropicConfig) (*AnthropicGenerator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultAnthropicModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &AnthropicGenerator{
		client:  anthropic.NewClient(opts...),
		model:   model,
		timeout: timeout,
	}, nil
}

func (g *AnthropicGenerator) Provider() string {
	return ProviderAnthropic
}

func (g *AnthropicGenerator) Generate(ctx context.Context, prompt Prompt) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   int64(prompt.MaxTokens),
		Temperature: anthropic.Float(prompt.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: prompt.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User)),
		},
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return Result{}, classifyAnthropicError(err)
	}
	if resp == nil {
		return Result{}, malformed("anthropic returned no message")
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	cleaned := CleanOutput(text.String())
	if cleaned == "" {
		return Result{}, malformed("model returned no text content")
	}
	return Result{Text: cleaned, Provider: ProviderAnthropic, Model: g.model}, nil
}

// classifyAnthropicError separates calls that did not complete from 2xx
// responses whose body could not be decoded.
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	var netErr net.Error
	switch {
	case errors.As(err, &apiErr),
		errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return unavailable("anthropic messages: %v", err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		strings.Contains(err.Error(), "error parsing response json") ||
		strings.Contains(err.Error(), "expected destination type") {
		return malformed("anthropic response: %v", err)
	}
	return unavailable("anthropic messages: %v", err)
}
