package summarizer

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type openAIBackend struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAI summarizes through the chat completions API.
func NewOpenAI(cfg OpenAIConfig, timeout time.Duration, maxInput int, logger *zap.Logger) *Remote {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	backend := &openAIBackend{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
	return newRemote(ProviderOpenAI, backend, timeout, maxInput, logger)
}

func (b *openAIBackend) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: b.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   b.maxTokens,
			Temperature: float32(b.temperature),
		},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSummarization, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrSummarization)
	}
	return resp.Choices[0].Message.Content, nil
}
