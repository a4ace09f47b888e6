// Package storage provides KeyValueStore and SessionSync implementations that
// need no external service: an in-memory store with a broadcast hub, and a
// JSON file shared by every instance on the machine.
package storage

import (
	"context"
	"sync"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
)

const hubBuffer = 16

var (
	_ ports.KeyValueStore = (*MemoryStore)(nil)
	_ ports.SessionSync   = (*Hub)(nil)
)

// MemoryStore is a process-local KeyValueStore.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *MemoryStore) SetMany(_ context.Context, entries map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range entries {
		m.entries[k] = v
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

func (m *MemoryStore) Update(_ context.Context, keys []string, edit func(entries map[string]string) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := m.entries[k]; ok {
			entries[k] = v
		}
	}
	if !edit(entries) {
		return nil
	}
	for _, k := range keys {
		if v, ok := entries[k]; ok {
			m.entries[k] = v
		} else {
			delete(m.entries, k)
		}
	}
	return nil
}

// Put writes a raw value, bypassing any validation. Used to seed fixtures.
func (m *MemoryStore) Put(key, value string) {
	m.mu.Lock()
	m.entries[key] = value
	m.mu.Unlock()
}

// Hub fans sync messages out to every listener in the process. Several
// buses sharing one MemoryStore and one Hub behave like browser tabs of the
// same origin.
type Hub struct {
	mu        sync.Mutex
	listeners map[chan domain.SyncMessage]struct{}
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[chan domain.SyncMessage]struct{})}
}

// Broadcast never blocks: a listener whose buffer is full misses the
// message, which is acceptable because every message means "re-read".
func (h *Hub) Broadcast(_ context.Context, msg domain.SyncMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.listeners {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (h *Hub) Listen(ctx context.Context) (<-chan domain.SyncMessage, error) {
	ch := make(chan domain.SyncMessage, hubBuffer)
	h.mu.Lock()
	h.listeners[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.listeners, ch)
		close(ch)
		h.mu.Unlock()
	}()
	return ch, nil
}
