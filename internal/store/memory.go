package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps readings in process memory. Readers never block each other.
type MemoryStore struct {
	mu       sync.RWMutex
	readings []Reading
	nextID   int64
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, now: time.Now}
}

func (m *MemoryStore) Append(_ context.Context, value, threshold int) (Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Reading{
		ID:         m.nextID,
		Value:      value,
		Threshold:  threshold,
		CapturedAt: m.now(),
	}
	m.nextID++
	m.readings = append(m.readings, r)
	return r, nil
}

func (m *MemoryStore) Latest(_ context.Context, n int) ([]Reading, error) {
	if n <= 0 {
		return []Reading{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if n > len(m.readings) {
		n = len(m.readings)
	}
	out := make([]Reading, 0, n)
	for i := len(m.readings) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.readings[i])
	}
	return out, nil
}

func (m *MemoryStore) AttachThreshold(_ context.Context, threshold int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.readings) == 0 {
		return nil
	}
	m.readings[len(m.readings)-1].Threshold = threshold
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
