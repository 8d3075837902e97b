// Package summarizer produces short plain-text summaries of notes and folders.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/memo-notes/internal/models"
	"go.uber.org/zap"
)

// Summarizer never fails: remote backends fall back to the local heuristic.
type Summarizer interface {
	SummarizeNote(ctx context.Context, content string) string
	SummarizeFolder(ctx context.Context, notes []*models.Note) string
}

// ErrSummarization marks a failed remote summary. It stays inside this package.
var ErrSummarization = errors.New("summarization failed")

const (
	ProviderLocal     = "local"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	EmptyFolder = "This folder is empty."

	// Texts shorter than this are returned unchanged.
	shortTextChars  = 200
	keySentences    = 5
	folderNoteLimit = 10
	folderNoteChars = 500
	titleLimit      = 5
	themeLimit      = 5

	DefaultTimeout       = 30 * time.Second
	DefaultMaxInputChars = 10000
)

type Config struct {
	Provider      string
	Timeout       time.Duration
	MaxInputChars int
	OpenAI        OpenAIConfig
	Anthropic     AnthropicConfig
}

type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	BaseURL     string
}

type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	BaseURL   string
}

// New picks the backend once. A remote provider without an API key runs the
// local heuristic instead.
func New(cfg Config, logger *zap.Logger) (Summarizer, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}

	switch cfg.Provider {
	case "", ProviderLocal:
		logger.Info("Using local summarizer")
		return NewLocal(), nil
	case ProviderOpenAI:
		if cfg.OpenAI.APIKey == "" {
			logger.Warn("OpenAI API key not set, using local summarizer")
			return NewLocal(), nil
		}
		logger.Info("Using OpenAI summarizer", zap.String("model", cfg.OpenAI.Model))
		return NewOpenAI(cfg.OpenAI, cfg.Timeout, cfg.MaxInputChars, logger), nil
	case ProviderAnthropic:
		if cfg.Anthropic.APIKey == "" {
			logger.Warn("Anthropic API key not set, using local summarizer")
			return NewLocal(), nil
		}
		logger.Info("Using Anthropic summarizer", zap.String("model", cfg.Anthropic.Model))
		return NewAnthropic(cfg.Anthropic, cfg.Timeout, cfg.MaxInputChars, logger), nil
	default:
		return nil, fmt.Errorf("unknown summarizer provider %q", cfg.Provider)
	}
}
