package store

import (
	"context"
	"sync"

	"github.com/rbright/murmur/internal/quota"
)

// Memory keeps counters for the life of the process.
type Memory struct {
	mu       sync.Mutex
	counters map[string]quota.Counter
}

func NewMemory() *Memory {
	return &Memory{counters: make(map[string]quota.Counter)}
}

func (m *Memory) Get(_ context.Context, service string) (quota.Counter, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[service]
	return c, ok, nil
}

func (m *Memory) Upsert(_ context.Context, counter quota.Counter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[counter.Service] = counter
	return nil
}

func (m *Memory) Close() error {
	return nil
}
