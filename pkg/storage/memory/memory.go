// Package memory provides an in-memory implementation of the storage interface.
package memory

import (
	"context"
	"sync"

	"github.com/vitrine/vitrine/pkg/storage"
)

// MemoryStorage implements the Storage interface using an in-memory map.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string]*storage.Record
}

// NewMemoryStorage creates a new in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]*storage.Record),
	}
}

// Get returns a copy of the stored record.
func (m *MemoryStorage) Get(ctx context.Context, sessionID string) (*storage.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, &storage.NotFoundError{SessionID: sessionID}
	}
	return rec.Clone(), nil
}

// Put stores a copy of rec.
func (m *MemoryStorage) Put(ctx context.Context, rec *storage.Record) error {
	if err := storage.Validate(rec); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[rec.SessionID] = rec.Clone()
	return nil
}

// List returns session ids ordered by last update.
func (m *MemoryStorage) List(ctx context.Context, filter *storage.ListFilter) ([]string, int, error) {
	m.mu.RLock()
	records := make([]*storage.Record, 0, len(m.sessions))
	for _, rec := range m.sessions {
		records = append(records, rec)
	}
	m.mu.RUnlock()

	ids, total := storage.Page(records, filter)
	return ids, total, nil
}

// Ping always succeeds.
func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close clears the map.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*storage.Record)
	return nil
}
