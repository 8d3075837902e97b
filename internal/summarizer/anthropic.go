package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultAnthropicURL   = "https://api.anthropic.com"
	DefaultAnthropicModel = "claude-3-haiku-20240307"
	anthropicVersion      = "2023-06-01"
)

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicBackend struct {
	client    *resty.Client
	model     string
	maxTokens int
}

// NewAnthropic summarizes through the Anthropic Messages API.
func NewAnthropic(cfg AnthropicConfig, timeout time.Duration, maxInput int, logger *zap.Logger) *Remote {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultAnthropicURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}

	c := resty.New().
		SetBaseURL(base).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", cfg.APIKey).
		SetHeader("anthropic-version", anthropicVersion).
		SetTimeout(timeout)

	backend := &anthropicBackend{client: c, model: model, maxTokens: maxTokens}
	return newRemote(ProviderAnthropic, backend, timeout, maxInput, logger)
}

func (b *anthropicBackend) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := messagesRequest{
		Model:     b.model,
		MaxTokens: b.maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	}

	var out messagesResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(&reqBody).
		SetResult(&out).
		Post("/v1/messages")
	if err != nil {
		return "", fmt.Errorf("%w: anthropic request: %w", ErrSummarization, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: anthropic status %d: %s", ErrSummarization, resp.StatusCode(), resp.String())
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("%w: no text in anthropic response", ErrSummarization)
	}
	return text.String(), nil
}
