package storage

import (
	"context"
	"strings"
)

// Record layout shared by every backend. Notes live beneath their folder's
// area so that deleting the area removes them.
const (
	RootFoldersKey = "root_folders.json"
	metadataName   = "metadata.json"
)

func FolderPrefix(folderID string) string {
	return "folder_" + folderID + "/"
}

func FolderKey(folderID string) string {
	return FolderPrefix(folderID) + metadataName
}

// NoteKey returns the record key of a note. An empty parentID addresses the
// root-level area.
func NoteKey(parentID, noteID string) string {
	name := "note_" + noteID + ".json"
	if parentID == "" {
		return name
	}
	return FolderPrefix(parentID) + name
}

// RecordStore is a keyed store of opaque records.
type RecordStore interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Apply runs the batch in order. Deleting a missing key is not an error.
	Apply(ctx context.Context, batch *Batch) error
	Close() error
}

type OpKind int

const (
	OpPut OpKind = iota
	OpDelete
	OpDeletePrefix
)

type Op struct {
	Kind  OpKind
	Key   string
	Value []byte
}

// Batch is an ordered list of record mutations. SQL backends commit a batch
// in one transaction; the file backend applies it in order and stops at the
// first failure.
type Batch struct {
	ops []Op
}

func (b *Batch) Put(key string, value []byte) {
	b.ops = append(b.ops, Op{Kind: OpPut, Key: key, Value: value})
}

func (b *Batch) Delete(key string) {
	b.ops = append(b.ops, Op{Kind: OpDelete, Key: key})
}

// DeletePrefix removes every record whose key starts with prefix.
func (b *Batch) DeletePrefix(prefix string) {
	b.ops = append(b.ops, Op{Kind: OpDeletePrefix, Key: prefix})
}

func (b *Batch) Ops() []Op {
	return b.ops
}

func (b *Batch) Len() int {
	return len(b.ops)
}

// Keys lists the keys touched by the batch, in order.
func (b *Batch) Keys() []string {
	keys := make([]string, len(b.ops))
	for i, op := range b.ops {
		keys[i] = op.Key
	}
	return keys
}

func hasPrefix(key, prefix string) bool {
	return strings.HasPrefix(key, prefix)
}
