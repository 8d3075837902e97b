// Package storetest holds a compliance suite shared by every RecordStore backend.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/xaenox/memo-notes/internal/storage"
)

// Run exercises the RecordStore contract. makeStore must return an empty,
// isolated store.
func Run(t *testing.T, makeStore func(t *testing.T) storage.RecordStore) {
	t.Helper()

	s := makeStore(t)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	folderID := uuid.New().String()
	otherID := uuid.New().String()
	noteID := uuid.New().String()

	// Missing keys
	if _, err := s.Get(ctx, storage.RootFoldersKey); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get missing: want ErrNotFound, got %v", err)
	}

	// Puts, applied in order
	var b storage.Batch
	b.Put(storage.RootFoldersKey, []byte(`[]`))
	b.Put(storage.FolderKey(folderID), []byte(`{"id":"a"}`))
	b.Put(storage.NoteKey(folderID, noteID), []byte(`{"id":"n"}`))
	b.Put(storage.FolderKey(otherID), []byte(`{"id":"b"}`))
	b.Put(storage.NoteKey("", noteID), []byte(`root note`))
	b.Put(storage.RootFoldersKey, []byte(`[{"id":"a"}]`))
	if err := s.Apply(ctx, &b); err != nil {
		t.Fatalf("Apply puts: %v", err)
	}
	if got, err := s.Get(ctx, storage.RootFoldersKey); err != nil || string(got) != `[{"id":"a"}]` {
		t.Fatalf("Get registry: got=%q err=%v", got, err)
	}
	if got, err := s.Get(ctx, storage.NoteKey(folderID, noteID)); err != nil || string(got) != `{"id":"n"}` {
		t.Fatalf("Get note: got=%q err=%v", got, err)
	}

	// Overwrite
	var overwrite storage.Batch
	overwrite.Put(storage.FolderKey(folderID), []byte(`{"id":"a","name":"x"}`))
	if err := s.Apply(ctx, &overwrite); err != nil {
		t.Fatalf("Apply overwrite: %v", err)
	}
	if got, err := s.Get(ctx, storage.FolderKey(folderID)); err != nil || string(got) != `{"id":"a","name":"x"}` {
		t.Fatalf("Get overwritten: got=%q err=%v", got, err)
	}

	// Deleting a missing key is not an error
	var missing storage.Batch
	missing.Delete(storage.NoteKey(otherID, uuid.New().String()))
	missing.DeletePrefix(storage.FolderPrefix(uuid.New().String()))
	if err := s.Apply(ctx, &missing); err != nil {
		t.Fatalf("Apply delete missing: %v", err)
	}

	// Prefix delete removes the whole area and nothing else
	var area storage.Batch
	area.DeletePrefix(storage.FolderPrefix(folderID))
	if err := s.Apply(ctx, &area); err != nil {
		t.Fatalf("Apply delete prefix: %v", err)
	}
	for _, key := range []string{storage.FolderKey(folderID), storage.NoteKey(folderID, noteID)} {
		if _, err := s.Get(ctx, key); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("Get %s after prefix delete: want ErrNotFound, got %v", key, err)
		}
	}
	for _, key := range []string{storage.FolderKey(otherID), storage.NoteKey("", noteID), storage.RootFoldersKey} {
		if _, err := s.Get(ctx, key); err != nil {
			t.Fatalf("Get %s after prefix delete: %v", key, err)
		}
	}

	// Single delete
	var del storage.Batch
	del.Delete(storage.NoteKey("", noteID))
	if err := s.Apply(ctx, &del); err != nil {
		t.Fatalf("Apply delete: %v", err)
	}
	if _, err := s.Get(ctx, storage.NoteKey("", noteID)); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get deleted: want ErrNotFound, got %v", err)
	}

	// Empty batch
	if err := s.Apply(ctx, &storage.Batch{}); err != nil {
		t.Fatalf("Apply empty: %v", err)
	}
}
