package session

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is a bounded in-process store. Entries expire after ttl and the
// least recently used entry is evicted once capacity is reached.
type Memory struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, Context]
}

func NewMemory(capacity int, ttl time.Duration) *Memory {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Memory{cache: expirable.NewLRU[string, Context](capacity, nil, ttl)}
}

func (m *Memory) Put(_ context.Context, id string, sc Context) error {
	sc.ExtractionMetadata = maps.Clone(sc.ExtractionMetadata)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Add(ID(id), sc)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.cache.Get(ID(id))
	if !ok {
		return Context{}, ErrNotFound
	}
	return sc, nil
}

func (m *Memory) Take(_ context.Context, id string) (Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.cache.Get(ID(id))
	if !ok {
		return Context{}, ErrNotFound
	}
	m.cache.Remove(ID(id))
	return sc, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(ID(id))
	return nil
}

func (m *Memory) Len() int {
	return m.cache.Len()
}
