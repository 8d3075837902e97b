package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/memo-notes/internal/models"
	"github.com/xaenox/memo-notes/internal/search"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// registryEntry is one root folder in the registry record. The name is kept
// so the forest can still be listed when a folder's own record is missing.
type registryEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Engine implements Storage on top of a RecordStore.
//
// Every mutation reloads the stored forest, indexes it by id with explicit
// parent links, substitutes the caller's folders and writes the changed
// folders, all of their ancestors and the root registry as one batch.
type Engine struct {
	records RecordStore
	search  *search.Engine
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the clock used for note timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the uuid generator used for new notes and folders.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// NewEngine returns an Engine storing its records in records.
func NewEngine(records RecordStore, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		records: records,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.search = search.NewEngine(e, logger)
	return e
}

var _ Storage = (*Engine)(nil)

func (e *Engine) SaveNote(ctx context.Context, note *models.Note, parent *models.Folder) error {
	if note == nil {
		return invalidArgument("cannot save nil note")
	}
	if note.ID == "" {
		note.ID = e.newID()
	}
	now := e.now()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.UpdatedAt = now
	if parent != nil && parent.ID == "" {
		parent.ID = e.newID()
	}

	roots, err := e.GetRootFolders(ctx)
	if err != nil {
		return fmt.Errorf("save note %s: %w", note.ID, err)
	}
	idx := models.NewIndex(roots)

	owner := idx.NoteParent(note.ID)
	switch {
	case parent == nil:
		parent = owner
	case owner != nil && owner.ID != parent.ID:
		return invalidArgument("note %s belongs to folder %s, move it instead", note.ID, owner.ID)
	}

	var b Batch
	if err := putNote(&b, folderID(parent), note); err != nil {
		return err
	}

	added := false
	if parent != nil {
		added = parent.AddNote(note)
		stored, known := idx.Folder(parent.ID)
		if added || !known || !stored.HasNote(note.ID) {
			if _, err := e.stage(&b, roots, parent); err != nil {
				if added {
					parent.RemoveNote(note.ID)
				}
				return err
			}
		}
	}

	if err := e.records.Apply(ctx, &b); err != nil {
		if added {
			parent.RemoveNote(note.ID)
		}
		e.logger.Error("Failed to save note",
			zap.Error(err),
			zap.String("note_id", note.ID),
			zap.String("folder_id", folderID(parent)))
		return fmt.Errorf("save note %s: %w", note.ID, err)
	}

	e.logger.Debug("Saved note",
		zap.String("note_id", note.ID),
		zap.String("folder_id", folderID(parent)),
		zap.Int("records", b.Len()))
	return nil
}

func (e *Engine) SaveFolder(ctx context.Context, folder *models.Folder, parent *models.Folder) error {
	if folder == nil {
		return invalidArgument("cannot save nil folder")
	}
	if folder.ID == "" {
		folder.ID = e.newID()
	}
	if parent != nil && parent.ID == "" {
		parent.ID = e.newID()
	}

	roots, err := e.GetRootFolders(ctx)
	if err != nil {
		return fmt.Errorf("save folder %s: %w", folder.ID, err)
	}
	idx := models.NewIndex(roots)

	if parent == nil {
		parent = idx.Parent(folder.ID)
	}
	if err := checkPlacement(idx, folder, parent); err != nil {
		return err
	}

	added := false
	changed := []*models.Folder{folder}
	if parent != nil {
		added = parent.AddSubFolder(folder)
		changed = []*models.Folder{parent, folder}
	}

	var b Batch
	if _, err := e.stage(&b, roots, changed...); err != nil {
		if added {
			parent.RemoveSubFolder(folder.ID)
		}
		return err
	}

	if err := e.records.Apply(ctx, &b); err != nil {
		if added {
			parent.RemoveSubFolder(folder.ID)
		}
		e.logger.Error("Failed to save folder",
			zap.Error(err),
			zap.String("folder_id", folder.ID),
			zap.String("parent_id", folderID(parent)))
		return fmt.Errorf("save folder %s: %w", folder.ID, err)
	}

	e.logger.Debug("Saved folder",
		zap.String("folder_id", folder.ID),
		zap.String("parent_id", folderID(parent)),
		zap.Int("records", b.Len()))
	return nil
}

func (e *Engine) DeleteNote(ctx context.Context, note *models.Note, parent *models.Folder) error {
	if note == nil {
		return invalidArgument("cannot delete nil note")
	}

	roots, err := e.GetRootFolders(ctx)
	if err != nil {
		return fmt.Errorf("delete note %s: %w", note.ID, err)
	}
	idx := models.NewIndex(roots)
	if parent == nil {
		parent = idx.NoteParent(note.ID)
	}

	var b Batch
	b.Delete(NoteKey(folderID(parent), note.ID))
	if parent != nil {
		parent.RemoveNote(note.ID)
		if _, known := idx.Folder(parent.ID); known {
			if _, err := e.stage(&b, roots, parent); err != nil {
				return err
			}
		}
	}

	if err := e.records.Apply(ctx, &b); err != nil {
		e.logger.Error("Failed to delete note",
			zap.Error(err),
			zap.String("note_id", note.ID),
			zap.String("folder_id", folderID(parent)))
		return fmt.Errorf("delete note %s: %w", note.ID, err)
	}
	return nil
}

// DeleteFolder removes everything below folder, then folder's own records,
// then detaches it from its parent or the registry. Cleanup continues past
// individual failures; all of them are returned together.
func (e *Engine) DeleteFolder(ctx context.Context, folder *models.Folder, parent *models.Folder) error {
	if folder == nil {
		return invalidArgument("cannot delete nil folder")
	}

	roots, err := e.GetRootFolders(ctx)
	if err != nil {
		return fmt.Errorf("delete folder %s: %w", folder.ID, err)
	}
	idx := models.NewIndex(roots)
	if parent == nil {
		parent = idx.Parent(folder.ID)
	}

	var errs error
	done := make(map[string]struct{})
	e.purge(ctx, folder, done, &errs)
	if stored, ok := idx.Folder(folder.ID); ok && stored != folder {
		// subfolders the caller's copy no longer lists
		for _, sub := range stored.SubFolders {
			e.purge(ctx, sub, done, &errs)
		}
	}

	var b Batch
	if parent != nil {
		parent.RemoveSubFolder(folder.ID)
		if _, known := idx.Folder(parent.ID); known {
			if _, err := e.stage(&b, roots, parent); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	} else {
		if err := putRegistry(&b, removeFolder(roots, folder.ID)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if b.Len() > 0 {
		if err := e.records.Apply(ctx, &b); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if errs != nil {
		e.logger.Error("Folder deleted with errors",
			zap.Error(errs),
			zap.String("folder_id", folder.ID),
			zap.Int("failures", len(multierr.Errors(errs))))
		return &Error{Op: "delete folder", Key: folder.ID, Err: errs}
	}
	e.logger.Debug("Deleted folder", zap.String("folder_id", folder.ID))
	return nil
}

// purge deletes the records of folder's notes, its subfolders and finally
// its own area, detaching from the in-memory folder whatever was deleted.
// It reports whether everything below folder was removed.
func (e *Engine) purge(ctx context.Context, folder *models.Folder, done map[string]struct{}, errs *error) bool {
	if folder == nil {
		return true
	}
	if _, ok := done[folder.ID]; ok {
		return true
	}
	done[folder.ID] = struct{}{}

	clean := true
	for _, note := range append([]*models.Note(nil), folder.Notes...) {
		var b Batch
		b.Delete(NoteKey(folder.ID, note.ID))
		if err := e.records.Apply(ctx, &b); err != nil {
			*errs = multierr.Append(*errs, err)
			clean = false
			continue
		}
		folder.RemoveNote(note.ID)
	}
	for _, sub := range append([]*models.Folder(nil), folder.SubFolders...) {
		if !e.purge(ctx, sub, done, errs) {
			clean = false
			continue
		}
		folder.RemoveSubFolder(sub.ID)
	}

	var b Batch
	b.DeletePrefix(FolderPrefix(folder.ID))
	if err := e.records.Apply(ctx, &b); err != nil {
		*errs = multierr.Append(*errs, err)
		return false
	}
	return clean
}

// GetRootFolders loads the registry and refreshes every folder from its own
// metadata record, and every note from its own note record, recursively.
func (e *Engine) GetRootFolders(ctx context.Context) ([]*models.Folder, error) {
	entries, err := e.readRegistry(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	roots := make([]*models.Folder, 0, len(entries))
	for _, entry := range entries {
		if _, dup := seen[entry.ID]; dup {
			continue
		}
		folder := &models.Folder{ID: entry.ID, Name: entry.Name}
		if err := e.reload(ctx, folder, seen); err != nil {
			return nil, err
		}
		roots = append(roots, folder)
	}
	return roots, nil
}

func (e *Engine) reload(ctx context.Context, folder *models.Folder, seen map[string]struct{}) error {
	seen[folder.ID] = struct{}{}

	stored, err := e.readFolder(ctx, folder.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		e.logger.Warn("Folder metadata missing, keeping the copy held by its parent",
			zap.String("folder_id", folder.ID),
			zap.String("name", folder.Name))
	case err != nil:
		return err
	default:
		folder.Name = stored.Name
		folder.Notes = stored.Notes
		folder.SubFolders = stored.SubFolders
		folder.Summary = stored.Summary
	}
	folder.Normalize()

	for i, note := range folder.Notes {
		current, err := e.readNote(ctx, folder.ID, note.ID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		folder.Notes[i] = current
	}

	subs := make([]*models.Folder, 0, len(folder.SubFolders))
	for _, sub := range folder.SubFolders {
		if _, dup := seen[sub.ID]; dup {
			e.logger.Warn("Folder listed under more than one parent, dropping duplicate",
				zap.String("folder_id", sub.ID),
				zap.String("parent_id", folder.ID))
			continue
		}
		if err := e.reload(ctx, sub, seen); err != nil {
			return err
		}
		subs = append(subs, sub)
	}
	folder.SubFolders = subs
	return nil
}

func (e *Engine) RemoveRootFolder(ctx context.Context, folder *models.Folder) error {
	if folder == nil {
		return invalidArgument("cannot remove nil folder")
	}
	entries, err := e.readRegistry(ctx)
	if err != nil {
		return fmt.Errorf("remove root folder %s: %w", folder.ID, err)
	}

	kept := make([]registryEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.ID != folder.ID {
			kept = append(kept, entry)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}

	var b Batch
	if err := putRegistryEntries(&b, kept); err != nil {
		return err
	}
	if err := e.records.Apply(ctx, &b); err != nil {
		return fmt.Errorf("remove root folder %s: %w", folder.ID, err)
	}
	return nil
}

func (e *Engine) SearchNotes(ctx context.Context, query string) ([]models.SearchResult, error) {
	return e.search.SearchNotes(ctx, query)
}

func (e *Engine) FindParent(ctx context.Context, id string) (*models.Folder, error) {
	roots, err := e.GetRootFolders(ctx)
	if err != nil {
		return nil, err
	}
	idx := models.NewIndex(roots)
	if _, ok := idx.Folder(id); !ok {
		return nil, fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	return idx.Parent(id), nil
}

// MoveNote takes note out of from and appends it to to. A nil from is
// resolved from storage.
func (e *Engine) MoveNote(ctx context.Context, note *models.Note, from, to *models.Folder) error {
	if note == nil || to == nil {
		return invalidArgument("move note needs a note and a destination folder")
	}
	if note.ID == "" {
		return invalidArgument("note has not been saved")
	}
	if to.ID == "" {
		to.ID = e.newID()
	}

	roots, err := e.GetRootFolders(ctx)
	if err != nil {
		return fmt.Errorf("move note %s: %w", note.ID, err)
	}
	idx := models.NewIndex(roots)
	owner := idx.NoteParent(note.ID)
	switch {
	case from == nil:
		from = owner
	case owner != nil && owner.ID != from.ID:
		return invalidArgument("note %s belongs to folder %s, not %s", note.ID, owner.ID, from.ID)
	}
	if from != nil && from.ID == to.ID {
		return nil
	}

	var b Batch
	b.Delete(NoteKey(folderID(from), note.ID))
	if err := putNote(&b, to.ID, note); err != nil {
		return err
	}

	pos := -1
	var changed []*models.Folder
	if from != nil {
		pos = from.NoteIndex(note.ID)
		from.RemoveNote(note.ID)
		changed = append(changed, from)
	}
	added := to.AddNote(note)
	changed = append(changed, to)

	rollback := func() {
		if added {
			to.RemoveNote(note.ID)
		}
		if pos >= 0 {
			from.InsertNote(pos, note)
		}
	}

	if _, err := e.stage(&b, roots, changed...); err != nil {
		rollback()
		return err
	}
	if err := e.records.Apply(ctx, &b); err != nil {
		rollback()
		e.logger.Error("Failed to move note",
			zap.Error(err),
			zap.String("note_id", note.ID),
			zap.String("from", folderID(from)),
			zap.String("to", to.ID))
		return fmt.Errorf("move note %s: %w", note.ID, err)
	}
	return nil
}

// MoveFolder detaches folder from from (or the registry) and attaches it to
// to (or the registry when to is nil). A folder can never be moved below itself.
func (e *Engine) MoveFolder(ctx context.Context, folder *models.Folder, from, to *models.Folder) error {
	if folder == nil {
		return invalidArgument("cannot move nil folder")
	}

	roots, err := e.GetRootFolders(ctx)
	if err != nil {
		return fmt.Errorf("move folder %s: %w", folder.ID, err)
	}
	idx := models.NewIndex(roots)
	if _, ok := idx.Folder(folder.ID); !ok {
		return fmt.Errorf("move folder %s: %w", folder.ID, ErrNotFound)
	}
	owner := idx.Parent(folder.ID)
	switch {
	case from == nil:
		from = owner
	case owner == nil || owner.ID != from.ID:
		return invalidArgument("folder %s is not a child of folder %s", folder.ID, from.ID)
	}
	if to != nil {
		if to.ID == folder.ID || folder.Contains(to.ID) || idx.IsDescendant(folder.ID, to.ID) {
			return invalidArgument("cannot move folder %q into itself or one of its descendants", folder.Name)
		}
		if to.ID == "" {
			to.ID = e.newID()
		}
	}
	if folderID(from) == folderID(to) {
		return nil
	}

	pos := -1
	var changed []*models.Folder
	if from != nil {
		pos = from.SubFolderIndex(folder.ID)
		from.RemoveSubFolder(folder.ID)
		changed = append(changed, from)
	} else {
		roots = removeFolder(roots, folder.ID)
	}
	added := false
	if to != nil {
		added = to.AddSubFolder(folder)
		changed = append(changed, to)
	} else {
		roots = append(roots, folder)
	}
	changed = append(changed, folder)

	rollback := func() {
		if added {
			to.RemoveSubFolder(folder.ID)
		}
		if pos >= 0 {
			from.InsertSubFolder(pos, folder)
		}
	}

	var b Batch
	if _, err := e.stage(&b, roots, changed...); err != nil {
		rollback()
		return err
	}
	if err := e.records.Apply(ctx, &b); err != nil {
		rollback()
		e.logger.Error("Failed to move folder",
			zap.Error(err),
			zap.String("folder_id", folder.ID),
			zap.String("from", folderID(from)),
			zap.String("to", folderID(to)))
		return fmt.Errorf("move folder %s: %w", folder.ID, err)
	}
	return nil
}

func (e *Engine) RenameFolder(ctx context.Context, folder *models.Folder, parent *models.Folder, name string) error {
	if folder == nil {
		return invalidArgument("cannot rename nil folder")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return invalidArgument("folder name must not be empty")
	}

	old := folder.Name
	folder.Name = name
	if err := e.SaveFolder(ctx, folder, parent); err != nil {
		folder.Name = old
		return err
	}
	return nil
}

func (e *Engine) Close() error {
	return e.records.Close()
}

// stage adds to b the metadata of every changed folder and of all of their
// ancestors, followed by the root registry. roots is the stored forest;
// changed folders replace their stored copies by id. A changed folder found
// nowhere in the forest becomes a root folder, so parents must come before
// their children in changed.
func (e *Engine) stage(b *Batch, roots []*models.Folder, changed ...*models.Folder) ([]*models.Folder, error) {
	byID := make(map[string]*models.Folder, len(changed))
	for _, f := range changed {
		byID[f.ID] = f
	}
	roots = substitute(roots, byID)
	idx := models.NewIndex(roots)

	written := make(map[string]struct{})
	for _, f := range changed {
		if _, ok := idx.Folder(f.ID); !ok {
			e.logger.Info("Registering folder as root folder",
				zap.String("folder_id", f.ID),
				zap.String("name", f.Name))
			roots = append(roots, f)
			idx = models.NewIndex(roots)
		}
		chain := append([]*models.Folder{f}, idx.Ancestors(f.ID)...)
		for _, folder := range chain {
			if _, ok := written[folder.ID]; ok {
				continue
			}
			written[folder.ID] = struct{}{}
			if err := putFolder(b, folder); err != nil {
				return nil, err
			}
		}
	}

	if err := putRegistry(b, roots); err != nil {
		return nil, err
	}
	return roots, nil
}

// substitute returns roots with every folder whose id is in byID replaced by
// that folder, at any depth.
func substitute(roots []*models.Folder, byID map[string]*models.Folder) []*models.Folder {
	out := make([]*models.Folder, len(roots))
	for i, r := range roots {
		if c, ok := byID[r.ID]; ok {
			out[i] = c
		} else {
			out[i] = r
		}
	}
	for _, r := range out {
		r.Walk(func(f *models.Folder, _ []*models.Folder) bool {
			for _, sub := range f.SubFolders {
				if sub == nil {
					continue
				}
				if c, ok := byID[sub.ID]; ok && sub != c {
					f.ReplaceSubFolder(c)
				}
			}
			return true
		})
	}
	return out
}

// checkPlacement enforces single ownership and acyclicity for folder under parent.
func checkPlacement(idx *models.Index, folder, parent *models.Folder) error {
	if parent == nil {
		return nil
	}
	if parent.ID == folder.ID || folder.Contains(parent.ID) || idx.IsDescendant(folder.ID, parent.ID) {
		return invalidArgument("folder %q cannot be placed inside itself or one of its descendants", folder.Name)
	}
	if _, stored := idx.Folder(folder.ID); !stored {
		return nil
	}
	current := idx.Parent(folder.ID)
	if current == nil {
		return invalidArgument("folder %s is a root folder, move it instead", folder.ID)
	}
	if current.ID != parent.ID {
		return invalidArgument("folder %s belongs to folder %s, move it instead", folder.ID, current.ID)
	}
	return nil
}

func removeFolder(folders []*models.Folder, id string) []*models.Folder {
	out := make([]*models.Folder, 0, len(folders))
	for _, f := range folders {
		if f.ID != id {
			out = append(out, f)
		}
	}
	return out
}

func folderID(f *models.Folder) string {
	if f == nil {
		return ""
	}
	return f.ID
}

func (e *Engine) readRegistry(ctx context.Context) ([]registryEntry, error) {
	data, err := e.records.Get(ctx, RootFoldersKey)
	if errors.Is(err, ErrNotFound) {
		return []registryEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []registryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, storageError("decode", RootFoldersKey, err)
	}
	return entries, nil
}

func (e *Engine) readFolder(ctx context.Context, id string) (*models.Folder, error) {
	key := FolderKey(id)
	data, err := e.records.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var folder models.Folder
	if err := json.Unmarshal(data, &folder); err != nil {
		return nil, storageError("decode", key, err)
	}
	return &folder, nil
}

func (e *Engine) readNote(ctx context.Context, parentID, id string) (*models.Note, error) {
	key := NoteKey(parentID, id)
	data, err := e.records.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var note models.Note
	if err := json.Unmarshal(data, &note); err != nil {
		return nil, storageError("decode", key, err)
	}
	return &note, nil
}

func putNote(b *Batch, parentID string, note *models.Note) error {
	key := NoteKey(parentID, note.ID)
	data, err := json.Marshal(note)
	if err != nil {
		return storageError("encode", key, err)
	}
	b.Put(key, data)
	return nil
}

func putFolder(b *Batch, folder *models.Folder) error {
	key := FolderKey(folder.ID)
	data, err := json.Marshal(folder)
	if err != nil {
		return storageError("encode", key, err)
	}
	b.Put(key, data)
	return nil
}

func putRegistry(b *Batch, roots []*models.Folder) error {
	entries := make([]registryEntry, 0, len(roots))
	for _, f := range roots {
		entries = append(entries, registryEntry{ID: f.ID, Name: f.Name})
	}
	return putRegistryEntries(b, entries)
}

func putRegistryEntries(b *Batch, entries []registryEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return storageError("encode", RootFoldersKey, err)
	}
	b.Put(RootFoldersKey, data)
	return nil
}
