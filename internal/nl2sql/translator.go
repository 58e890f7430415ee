package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnavailable means the remote call did not complete.
	ErrUnavailable = errors.New("nl2sql: generation unavailable")
	// ErrMalformed means the call completed but carried no usable text.
	ErrMalformed = errors.New("nl2sql: malformed generation response")
)

type Prompt struct {
	System      string  `json:"system"`
	User        string  `json:"user"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type Result struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Generator sends one prompt to a completion service. Implementations make
// exactly one attempt and never retry.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (Result, error)
	Provider() string
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	HTTPReferer string
	Title       string
}

func NewGenerator(cfg Config) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai", ProviderOpenAI:
		return NewOpenAIGenerator(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Timeout:     cfg.Timeout,
			HTTPReferer: cfg.HTTPReferer,
			Title:       cfg.Title,
		})
	case ProviderAnthropic:
		return NewAnthropicGenerator(AnthropicConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported generation provider %q", cfg.Provider)
	}
}
