package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Record is the hot-tier row of a session: small, read and written every turn.
type Record struct {
	ID        string
	CVData    json.RawMessage
	Metadata  json.RawMessage
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Size returns the persisted payload size in bytes.
func (r *Record) Size() int {
	return len(r.CVData) + len(r.Metadata)
}

// HotStore persists session records. Save with expectedVersion 0 inserts and
// returns ErrVersionConflict when the id exists; otherwise it updates only if
// the stored version equals expectedVersion. Load returns ErrRecordNotFound
// for unknown ids.
type HotStore interface {
	Load(ctx context.Context, id string) (*Record, error)
	Save(ctx context.Context, rec *Record, expectedVersion int64) error
}

// BlobStore persists large auxiliary blobs addressed by key. Get returns
// ErrBlobNotFound for unknown keys.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// MemoryHotStore is an in-process HotStore.
type MemoryHotStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryHotStore creates an empty in-memory hot store.
func NewMemoryHotStore() *MemoryHotStore {
	return &MemoryHotStore{records: make(map[string]Record)}
}

// Load implements HotStore.
func (m *MemoryHotStore) Load(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	rec.CVData = append(json.RawMessage(nil), rec.CVData...)
	rec.Metadata = append(json.RawMessage(nil), rec.Metadata...)
	return &rec, nil
}

// Save implements HotStore.
func (m *MemoryHotStore) Save(_ context.Context, rec *Record, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[rec.ID]
	switch {
	case expectedVersion == 0 && ok:
		return ErrVersionConflict
	case expectedVersion != 0 && (!ok || cur.Version != expectedVersion):
		return ErrVersionConflict
	}
	stored := *rec
	stored.CVData = append(json.RawMessage(nil), rec.CVData...)
	stored.Metadata = append(json.RawMessage(nil), rec.Metadata...)
	m.records[rec.ID] = stored
	return nil
}
