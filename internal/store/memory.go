package store

import "sync"

// Memory is an in-process Store for tests.
type Memory struct {
	mu     sync.Mutex
	values map[string]int64

	// Puts counts PutLong calls.
	Puts int
	// PutError, if set, is returned by PutLong and nothing is written.
	PutError error
	// GetError, if set, is returned by GetLong.
	GetError error
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{values: map[string]int64{}}
}

// GetLong returns the value for key, or def if it was never written.
func (m *Memory) GetLong(key string, def int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetError != nil {
		return def, m.GetError
	}
	v, ok := m.values[key]
	if !ok {
		return def, nil
	}
	return v, nil
}

// PutLong stores value under key.
func (m *Memory) PutLong(key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Puts++
	if m.PutError != nil {
		return m.PutError
	}
	m.values[key] = value
	return nil
}
