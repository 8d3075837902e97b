package bot

import (
	"fmt"
	"strings"

	"github.com/xaenox/memo-notes/internal/models"
	"github.com/xaenox/memo-notes/internal/search"
	"github.com/xaenox/memo-notes/internal/textutil"
)

const (
	maxResults  = 10
	titleLength = 50
)

// splitPath turns "Work / Projects/Q3" into its folder names.
func splitPath(p string) []string {
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s = strings.TrimSpace(s); s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// splitArgs splits command arguments on '|' into at most n trimmed parts.
func splitArgs(args string, n int) []string {
	parts := strings.SplitN(args, "|", n)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func childByName(folders []*models.Folder, name string) *models.Folder {
	for _, f := range folders {
		if f != nil && strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}

// resolveFolder finds the folder named by segments, matching names without
// regard to case.
func resolveFolder(roots []*models.Folder, segments []string) (models.TreeEntry, bool) {
	if len(segments) == 0 {
		return models.TreeEntry{}, false
	}
	var parent *models.Folder
	level := roots
	for i, name := range segments {
		f := childByName(level, name)
		if f == nil {
			return models.TreeEntry{}, false
		}
		if i == len(segments)-1 {
			return models.FolderEntry(f, parent), true
		}
		parent, level = f, f.SubFolders
	}
	return models.TreeEntry{}, false
}

// resolveNote finds the note titled title inside the folder named by segments.
func resolveNote(roots []*models.Folder, segments []string, title string) (models.TreeEntry, bool) {
	entry, ok := resolveFolder(roots, segments)
	if !ok {
		return models.TreeEntry{}, false
	}
	for _, n := range entry.Folder.Notes {
		if n != nil && strings.EqualFold(n.Title, title) {
			return models.NoteEntry(n, entry.Folder), true
		}
	}
	return models.TreeEntry{}, false
}

func noteTitle(content string) string {
	line := textutil.StripMarkup(strings.SplitN(content, "\n", 2)[0])
	if line == "" {
		return "Untitled"
	}
	if title := textutil.Truncate(line, titleLength); title != line {
		return strings.TrimSpace(title) + search.Ellipsis
	}
	return line
}

func renderTree(roots []*models.Folder) string {
	if len(roots) == 0 {
		return "You don't have any folders yet. Create one with /newfolder <name>."
	}
	var b strings.Builder
	for _, root := range roots {
		root.Walk(func(f *models.Folder, ancestors []*models.Folder) bool {
			fmt.Fprintf(&b, "%s📁 %s", strings.Repeat("  ", len(ancestors)), f.Name)
			if n := len(f.Notes); n > 0 {
				fmt.Fprintf(&b, " (%d)", n)
			}
			b.WriteString("\n")
			return true
		})
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderResults(query string, results []models.SearchResult) string {
	if len(results) == 0 {
		return escapeMarkdown(fmt.Sprintf("No notes match %q.", query))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Found %d notes:*\n\n", len(results))
	for i, r := range results {
		if i == maxResults {
			b.WriteString(escapeMarkdown(fmt.Sprintf("…and %d more.", len(results)-maxResults)))
			break
		}
		fmt.Fprintf(&b, "*%s*\n_%s_\n%s\n\n",
			escapeMarkdown(r.Note.Title),
			escapeMarkdown(r.Path),
			escapeMarkdown(r.PreviewText))
	}
	return strings.TrimRight(b.String(), "\n")
}

// escapeMarkdown escapes special characters for MarkdownV2.
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}
