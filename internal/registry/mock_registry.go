package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockRegistry is an in-memory implementation of Registry for testing
type MockRegistry struct {
	mu      sync.RWMutex
	records map[string]*Record
	closed  bool

	// PublishErr, when set, is returned by every Publish call
	PublishErr error
}

// NewMockRegistry creates a new mock registry
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{
		records: make(map[string]*Record),
	}
}

func (m *MockRegistry) Publish(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("registry is closed")
	}
	if m.PublishErr != nil {
		return m.PublishErr
	}

	cp := *rec
	if prev, ok := m.records[rec.ID]; ok {
		cp.CreatedAt = prev.CreatedAt
	} else {
		cp.CreatedAt = time.Now()
	}
	cp.LastHeartbeat = time.Now()
	m.records[rec.ID] = &cp
	return nil
}

func (m *MockRegistry) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(m.records, id)
	return nil
}

func (m *MockRegistry) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	cp := *rec
	return &cp, nil
}

func (m *MockRegistry) List(ctx context.Context) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockRegistry) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.records = make(map[string]*Record)
	return nil
}
