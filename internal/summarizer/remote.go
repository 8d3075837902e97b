package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xaenox/memo-notes/internal/models"
	"github.com/xaenox/memo-notes/internal/textutil"
	"go.uber.org/zap"
)

const (
	notePrompt   = "Please summarize the following text in a concise paragraph:\n\n"
	folderPrompt = "Please summarize the following collection of notes. Give an overview of the main themes and topics covered:\n\n"
)

// completer sends one prompt to a language model and returns its answer.
type completer interface {
	complete(ctx context.Context, prompt string) (string, error)
}

// Remote asks a language model for summaries and falls back to Local on any
// failure.
type Remote struct {
	name     string
	backend  completer
	fallback *Local
	timeout  time.Duration
	maxInput int
	logger   *zap.Logger
}

func newRemote(name string, backend completer, timeout time.Duration, maxInput int, logger *zap.Logger) *Remote {
	return &Remote{
		name:     name,
		backend:  backend,
		fallback: NewLocal(),
		timeout:  timeout,
		maxInput: maxInput,
		logger:   logger,
	}
}

func (r *Remote) SummarizeNote(ctx context.Context, content string) string {
	plain := textutil.StripMarkup(content)
	if utf8.RuneCountInString(plain) < shortTextChars {
		return plain
	}

	summary, err := r.ask(ctx, notePrompt+textutil.Truncate(plain, r.maxInput))
	if err != nil {
		r.logger.Warn("Remote note summary failed, using local summarizer",
			zap.String("provider", r.name),
			zap.Error(err))
		return r.fallback.SummarizeNote(ctx, content)
	}
	return summary
}

func (r *Remote) SummarizeFolder(ctx context.Context, notes []*models.Note) string {
	present := make([]*models.Note, 0, len(notes))
	for _, n := range notes {
		if n != nil {
			present = append(present, n)
		}
	}
	if len(present) == 0 {
		return EmptyFolder
	}

	var b strings.Builder
	for _, n := range present[:min(folderNoteLimit, len(present))] {
		fmt.Fprintf(&b, "Title: %s\nContent: %s\n\n", n.Title,
			textutil.Truncate(textutil.StripMarkup(n.Content), folderNoteChars))
	}
	if len(present) > folderNoteLimit {
		fmt.Fprintf(&b, "(and %d more notes)", len(present)-folderNoteLimit)
	}

	summary, err := r.ask(ctx, folderPrompt+textutil.Truncate(b.String(), r.maxInput))
	if err != nil {
		r.logger.Warn("Remote folder summary failed, using local summarizer",
			zap.String("provider", r.name),
			zap.Int("notes", len(present)),
			zap.Error(err))
		return r.fallback.SummarizeFolder(ctx, notes)
	}
	return summary
}

func (r *Remote) ask(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	answer, err := r.backend.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%w: empty response", ErrSummarization)
	}
	return answer, nil
}
