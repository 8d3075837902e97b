// Package export writes the folder tree out as markdown files with YAML front matter.
package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/afero"
	"github.com/xaenox/memo-notes/internal/models"
	"github.com/xaenox/memo-notes/internal/textutil"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	nameLimit   = 40
	idSuffixLen = 8
)

// FrontMatter is the YAML header of an exported note.
type FrontMatter struct {
	ID        string    `yaml:"id"`
	Title     string    `yaml:"title"`
	Folder    string    `yaml:"folder"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
	Summary   string    `yaml:"summary,omitempty"`
}

type Stats struct {
	Folders int
	Notes   int
}

type Exporter struct {
	fs     afero.Fs
	logger *zap.Logger
}

func New(fs afero.Fs, logger *zap.Logger) *Exporter {
	return &Exporter{fs: fs, logger: logger}
}

// Export mirrors roots below dir: one directory per folder, one markdown file
// per note. Names carry a short id suffix so equal titles never collide.
func (e *Exporter) Export(ctx context.Context, dir string, roots []*models.Folder) (Stats, error) {
	var stats Stats
	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		return stats, fmt.Errorf("error creating export directory: %w", err)
	}

	for _, root := range roots {
		if root == nil {
			continue
		}
		var walkErr error
		root.Walk(func(folder *models.Folder, ancestors []*models.Folder) bool {
			if err := ctx.Err(); err != nil {
				walkErr = err
				return false
			}

			segments := []string{dir}
			for _, a := range ancestors {
				segments = append(segments, entryName(a.Name, a.ID))
			}
			folderDir := path.Join(append(segments, entryName(folder.Name, folder.ID))...)
			if err := e.fs.MkdirAll(folderDir, 0o755); err != nil {
				walkErr = fmt.Errorf("error creating folder %s: %w", folder.ID, err)
				return false
			}
			stats.Folders++

			breadcrumb := folderPath(ancestors, folder)
			for _, note := range folder.Notes {
				if note == nil {
					continue
				}
				file := path.Join(folderDir, entryName(note.Title, note.ID)+".md")
				if err := e.writeNote(file, breadcrumb, note); err != nil {
					walkErr = err
					return false
				}
				stats.Notes++
			}
			return true
		})
		if walkErr != nil {
			e.logger.Error("Export failed",
				zap.Error(walkErr),
				zap.String("dir", dir),
				zap.Int("notes_written", stats.Notes))
			return stats, walkErr
		}
	}

	e.logger.Info("Exported notes",
		zap.String("dir", dir),
		zap.Int("folders", stats.Folders),
		zap.Int("notes", stats.Notes))
	return stats, nil
}

func (e *Exporter) writeNote(file, folder string, note *models.Note) error {
	data, err := Render(note, folder)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(e.fs, file, data, 0o644); err != nil {
		return fmt.Errorf("error writing note %s: %w", note.ID, err)
	}
	return nil
}

// Render returns the markdown document for note: front matter followed by
// the plain-text body.
func Render(note *models.Note, folder string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")

	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	fm := FrontMatter{
		ID:        note.ID,
		Title:     note.Title,
		Folder:    folder,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
		Summary:   note.Summary,
	}
	if err := encoder.Encode(fm); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}

	buf.WriteString("---\n\n")
	if body := textutil.StripMarkup(note.Content); body != "" {
		buf.WriteString(body)
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

func folderPath(ancestors []*models.Folder, folder *models.Folder) string {
	names := make([]string, 0, len(ancestors)+1)
	for _, a := range ancestors {
		names = append(names, a.Name)
	}
	return strings.Join(append(names, folder.Name), " > ")
}

// entryName makes a file system safe name from a title and an id.
func entryName(title, id string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			return r
		case unicode.IsSpace(r):
			return ' '
		default:
			return '_'
		}
	}, title)
	clean = strings.Join(strings.Fields(clean), " ")
	clean = strings.TrimSpace(textutil.Truncate(clean, nameLimit))
	if clean == "" {
		clean = "untitled"
	}
	if id == "" {
		return clean
	}
	return clean + "-" + textutil.Truncate(id, idSuffixLen)
}
