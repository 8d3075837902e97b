package storage

import (
	"context"
	"sort"
	"sync"
)

// FaultFunc lets tests fail selected operations. op is "get", "put", "delete"
// or "delete_prefix".
type FaultFunc func(op, key string) error

// MemoryStore keeps records in a map. It is used for tests and for
// storage.driver=memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
	fault   FaultFunc
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]byte),
	}
}

// SetFault installs f; nil clears it.
func (s *MemoryStore) SetFault(f FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("get", key); err != nil {
		return nil, err
	}
	value, exists := s.records[key]
	if !exists {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Apply stops at the first failing op; earlier ops stay applied, like the
// file backend.
func (s *MemoryStore) Apply(ctx context.Context, batch *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range batch.Ops() {
		switch op.Kind {
		case OpPut:
			if err := s.check("put", op.Key); err != nil {
				return err
			}
			value := make([]byte, len(op.Value))
			copy(value, op.Value)
			s.records[op.Key] = value
		case OpDelete:
			if err := s.check("delete", op.Key); err != nil {
				return err
			}
			delete(s.records, op.Key)
		case OpDeletePrefix:
			if err := s.check("delete_prefix", op.Key); err != nil {
				return err
			}
			for key := range s.records {
				if hasPrefix(key, op.Key) {
					delete(s.records, key)
				}
			}
		}
	}
	return nil
}

// Keys returns every stored key in sorted order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *MemoryStore) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

func (s *MemoryStore) check(op, key string) error {
	if s.fault == nil {
		return nil
	}
	if err := s.fault(op, key); err != nil {
		return storageError(op, key, err)
	}
	return nil
}
