package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// FileStore keeps one file per record beneath a base directory. Record keys
// are slash-separated relative paths.
type FileStore struct {
	fs     afero.Fs
	logger *zap.Logger
}

// OpenFileStore roots a FileStore at dir on the OS filesystem, creating it if needed.
func OpenFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	osfs := afero.NewOsFs()
	if err := osfs.MkdirAll(dir, 0o755); err != nil {
		return nil, storageError("create directory", dir, err)
	}
	return NewFileStore(afero.NewBasePathFs(osfs, dir), logger), nil
}

// NewFileStore uses fsys as the storage root.
func NewFileStore(fsys afero.Fs, logger *zap.Logger) *FileStore {
	return &FileStore{fs: fsys, logger: logger}
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, storageError("read", key, err)
	}
	return data, nil
}

func (s *FileStore) Apply(ctx context.Context, batch *Batch) error {
	for i, op := range batch.Ops() {
		if err := ctx.Err(); err != nil {
			return storageError("apply", op.Key, err)
		}
		var err error
		switch op.Kind {
		case OpPut:
			err = s.put(op.Key, op.Value)
		case OpDelete:
			err = s.remove(op.Key)
		case OpDeletePrefix:
			err = s.removeArea(op.Key)
		}
		if err != nil {
			if i > 0 {
				s.logger.Warn("Batch partially applied",
					zap.Int("applied", i),
					zap.Int("total", batch.Len()),
					zap.String("failed_key", op.Key))
			}
			return err
		}
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

// put writes value next to key and renames it into place so readers never
// see a half-written record.
func (s *FileStore) put(key string, value []byte) error {
	if dir := path.Dir(key); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return storageError("create directory", dir, err)
		}
	}
	tmp := key + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, value, 0o644); err != nil {
		return storageError("write", key, err)
	}
	if err := s.fs.Rename(tmp, key); err != nil {
		_ = s.fs.Remove(tmp)
		return storageError("write", key, fmt.Errorf("rename: %w", err))
	}
	return nil
}

func (s *FileStore) remove(key string) error {
	if err := s.fs.Remove(key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageError("delete", key, err)
	}
	return nil
}

// removeArea deletes a folder's directory. Prefixes are always directory
// areas ("folder_<id>/").
func (s *FileStore) removeArea(prefix string) error {
	dir := strings.TrimSuffix(prefix, "/")
	if dir == "" || dir == "." {
		return storageError("delete", prefix, errors.New("refusing to remove storage root"))
	}
	if err := s.fs.RemoveAll(dir); err != nil {
		return storageError("delete", prefix, err)
	}
	return nil
}
