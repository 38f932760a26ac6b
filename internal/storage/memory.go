package storage

import (
	"context"
	"sync"
)

// MemoryBackend keeps slots in process memory. It is used for tests and for
// ephemeral demo runs.
type MemoryBackend struct {
	mu    sync.RWMutex
	slots map[string][]byte

	// SaveErr, when set, is returned by every Save.
	SaveErr error
	saves   int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{slots: make(map[string][]byte)}
}

func (m *MemoryBackend) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.slots[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryBackend) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.slots[key] = append([]byte(nil), data...)
	m.saves++
	return nil
}

// Saves returns how many successful saves happened.
func (m *MemoryBackend) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
