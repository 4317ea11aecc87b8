package coldstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/jonathan/cv-tailor/internal/session"
)

// Memory is a map-backed session.BlobStore for tests and single-process runs
// that need no persistence at all.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ session.BlobStore = (*Memory)(nil)

// NewMemory creates an empty memory blob store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Put implements session.BlobStore.
func (m *Memory) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

// Get implements session.BlobStore.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, session.ErrBlobNotFound
	}
	return append([]byte(nil), data...), nil
}

// Delete implements session.BlobStore.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Keys lists stored keys with the given prefix in sorted order.
func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
