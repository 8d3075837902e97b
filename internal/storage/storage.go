package storage

import (
	"context"

	"github.com/xaenox/memo-notes/internal/models"
)

// Storage persists the folder forest. A nil parent addresses the root level.
// Mutations update the caller's in-memory folders so they match what was
// written. Implementations have no internal locking: callers serialize
// mutations.
type Storage interface {
	SaveNote(ctx context.Context, note *models.Note, parent *models.Folder) error
	SaveFolder(ctx context.Context, folder *models.Folder, parent *models.Folder) error
	DeleteNote(ctx context.Context, note *models.Note, parent *models.Folder) error
	DeleteFolder(ctx context.Context, folder *models.Folder, parent *models.Folder) error
	GetRootFolders(ctx context.Context) ([]*models.Folder, error)
	RemoveRootFolder(ctx context.Context, folder *models.Folder) error
	SearchNotes(ctx context.Context, query string) ([]models.SearchResult, error)

	// FindParent returns the folder owning folderID, nil for a root folder,
	// or ErrNotFound.
	FindParent(ctx context.Context, folderID string) (*models.Folder, error)
	MoveNote(ctx context.Context, note *models.Note, from, to *models.Folder) error
	MoveFolder(ctx context.Context, folder *models.Folder, from, to *models.Folder) error
	RenameFolder(ctx context.Context, folder *models.Folder, parent *models.Folder, name string) error

	Close() error
}
