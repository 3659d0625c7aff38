// Package kv is the scoped key-value persistence the collection flow uses
// for draft snapshots and cross-page handoff state: write-through on every
// mutation, read-once at start, delete on terminal success. Backends: Redis
// when configured, embedded Badger otherwise, in-memory for tests.
package kv

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned by Get for absent (or expired) keys.
var ErrNotFound = errors.New("kv: key not found")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemoryStore is a map-backed Store for tests and single-process dev runs.
type MemoryStore struct {
	mu      sync.RWMutex
	items   map[string]memoryItem
	failing bool
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem)}
}

// SetFailing makes every write fail, for exercising the
// persistence-unavailable path in tests.
func (m *MemoryStore) SetFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

var errMemoryUnavailable = errors.New("kv: memory store unavailable")

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		return nil, ErrNotFound
	}
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errMemoryUnavailable
	}
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = time.Now().Add(ttl)
	}
	m.items[key] = item
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
