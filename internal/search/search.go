// Package search runs a depth-first substring search over a folder forest.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/xaenox/memo-notes/internal/models"
	"github.com/xaenox/memo-notes/internal/textutil"
	"go.uber.org/zap"
)

const (
	// ContextChars is the number of characters kept on each side of a match.
	ContextChars = 50
	// FallbackChars is the preview length used when the match is not in the content.
	FallbackChars = 100

	Ellipsis      = "…"
	PathSeparator = " > "
	NoContent     = "No content available"
)

// Source supplies the current folder forest.
type Source interface {
	GetRootFolders(ctx context.Context) ([]*models.Folder, error)
}

type Engine struct {
	source Source
	logger *zap.Logger
}

func NewEngine(source Source, logger *zap.Logger) *Engine {
	return &Engine{source: source, logger: logger}
}

// SearchNotes reloads the forest and searches it. On a load failure it returns
// an empty result list together with the error.
func (e *Engine) SearchNotes(ctx context.Context, query string) ([]models.SearchResult, error) {
	roots, err := e.source.GetRootFolders(ctx)
	if err != nil {
		e.logger.Error("Failed to load folders for search",
			zap.Error(err),
			zap.String("query", query))
		return []models.SearchResult{}, fmt.Errorf("search %q: %w", query, err)
	}

	results := Search(roots, query)
	e.logger.Debug("Search finished",
		zap.String("query", query),
		zap.Int("root_folders", len(roots)),
		zap.Int("results", len(results)))
	return results, nil
}

// Search walks roots in pre-order (each folder's notes before its subfolders)
// and returns every note whose title or plain-text content contains query,
// ignoring case. An empty query matches every note.
func Search(roots []*models.Folder, query string) []models.SearchResult {
	results := []models.SearchResult{}
	q := textutil.FoldRunes(query)
	for _, root := range roots {
		if root == nil {
			continue
		}
		root.Walk(func(folder *models.Folder, ancestors []*models.Folder) bool {
			path := breadcrumb(ancestors, folder)
			for _, note := range folder.Notes {
				if note == nil || !matches(note, q) {
					continue
				}
				results = append(results, models.SearchResult{
					Note:         note,
					ParentFolder: folder,
					Path:         path,
					PreviewText:  Preview(note.Content, query),
				})
			}
			return true
		})
	}
	return results
}

// MatchesQuery reports whether the note title or its markup-stripped content
// contains query, ignoring case.
func MatchesQuery(note *models.Note, query string) bool {
	if note == nil {
		return false
	}
	return matches(note, textutil.FoldRunes(query))
}

func matches(note *models.Note, q []rune) bool {
	if textutil.IndexRunes(textutil.FoldRunes(note.Title), q) >= 0 {
		return true
	}
	return textutil.IndexRunes(textutil.FoldRunes(textutil.StripMarkup(note.Content)), q) >= 0
}

// Preview returns the plain-text window around the first occurrence of query
// in content: up to ContextChars characters on each side, with an ellipsis on
// every side that was cut.
func Preview(content, query string) string {
	if content == "" {
		return NoContent
	}
	plain := []rune(textutil.StripMarkup(content))
	q := textutil.FoldRunes(query)

	pos := textutil.IndexRunes(textutil.FoldRunes(string(plain)), q)
	if pos < 0 {
		return textutil.Truncate(string(plain), FallbackChars) + Ellipsis
	}

	start := max(0, pos-ContextChars)
	end := min(len(plain), pos+len(q)+ContextChars)

	var b strings.Builder
	if start > 0 {
		b.WriteString(Ellipsis)
	}
	b.WriteString(string(plain[start:end]))
	if end < len(plain) {
		b.WriteString(Ellipsis)
	}
	return b.String()
}

func breadcrumb(ancestors []*models.Folder, folder *models.Folder) string {
	names := make([]string, 0, len(ancestors)+1)
	for _, a := range ancestors {
		names = append(names, a.Name)
	}
	names = append(names, folder.Name)
	return strings.Join(names, PathSeparator)
}
