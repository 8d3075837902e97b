package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"
)

//go:embed migrations/*.sql
var migrations embed.FS

// dialect captures the few statements that differ between SQL backends.
type dialect struct {
	name      string
	migration string
	get       string
	upsert    string
	delete    string
	deleteAll string
}

// SQLStore keeps records in a single key/value table. Every batch is one
// transaction, so an ancestor chain is either fully written or not at all.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d}
	if err := s.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing %s schema: %w", d.name, err)
	}
	return s, nil
}

func (s *SQLStore) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations/" + s.dialect.migration)
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

// DB exposes the underlying connection.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, s.dialect.get, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageError("read", key, err)
	}
	return value, nil
}

func (s *SQLStore) Apply(ctx context.Context, batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin", "", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, op := range batch.Ops() {
		switch op.Kind {
		case OpPut:
			_, err = tx.ExecContext(ctx, s.dialect.upsert, op.Key, op.Value, now)
		case OpDelete:
			_, err = tx.ExecContext(ctx, s.dialect.delete, op.Key)
		case OpDeletePrefix:
			_, err = tx.ExecContext(ctx, s.dialect.deleteAll, len(op.Key), op.Key)
		}
		if err != nil {
			return storageError("write", op.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageError("commit", "", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
