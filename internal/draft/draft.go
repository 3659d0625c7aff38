// Package draft persists the in-progress {stepIndex, draft} snapshot so the
// journey survives page reloads and network failure. Snapshots are keyed per
// browser session, not per token: a returning visitor re-enters through the
// same browser.
package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/smallplates/collect/internal/domain"
	"github.com/smallplates/collect/internal/kv"
	"github.com/smallplates/collect/pkg/logger"
)

// Snapshot is exactly what gets restored on re-entry. Dirty rides along so
// the page-exit guard stays armed after a reload.
type Snapshot struct {
	StepIndex int                `json:"step_index"`
	Draft     domain.RecipeDraft `json:"draft"`
	Dirty     bool               `json:"dirty,omitempty"`
}

// Status is the autosave indicator shown next to the form. A write is
// "saving" immediately and "saved" after a short settle delay; the delay is
// cosmetic and correctness never depends on it.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
)

const keyPrefix = "draft:"

// Saver writes through to the snapshot store on every journey mutation and
// owns the delete-after-success step. Once a key is completed it is
// tombstoned for the process lifetime so a stray late autosave can never
// resurrect a submitted draft.
type Saver struct {
	store  kv.Store
	ttl    time.Duration
	settle time.Duration

	mu     sync.Mutex
	status map[string]Status
	timers map[string]*time.Timer
	done   map[string]bool
}

func NewSaver(store kv.Store, ttl, settle time.Duration) *Saver {
	return &Saver{
		store:  store,
		ttl:    ttl,
		settle: settle,
		status: make(map[string]Status),
		timers: make(map[string]*time.Timer),
		done:   make(map[string]bool),
	}
}

// Save writes the snapshot for key. Called synchronously after the state
// change that produced it, which is what keeps writes causally ordered.
// A store failure is reported as ErrPersistenceUnavailable; the journey
// continues without autosave.
func (s *Saver) Save(ctx context.Context, key string, snap Snapshot) error {
	s.mu.Lock()
	if s.done[key] {
		// Submission already succeeded for this key; drop the write.
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal draft snapshot: %w", err)
	}

	if err := s.store.Set(ctx, keyPrefix+key, data, s.ttl); err != nil {
		s.setStatus(key, StatusIdle)
		return fmt.Errorf("%w: %v", domain.ErrPersistenceUnavailable, err)
	}

	s.markSaving(key)
	return nil
}

// Load returns the stored snapshot, or nil when none exists.
func (s *Saver) Load(ctx context.Context, key string) (*Snapshot, error) {
	data, err := s.store.Get(ctx, keyPrefix+key)
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load draft snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// A corrupt snapshot is treated as absent rather than trapping
		// the visitor behind a decode error.
		logger.Warn("Discarding unreadable draft snapshot", "key", key, "error", err)
		return nil, nil
	}
	return &snap, nil
}

// Complete deletes the snapshot after a successful submission and tombstones
// the key. Runs strictly after submission success; even if the store delete
// fails the tombstone guarantees the old draft is never written again.
func (s *Saver) Complete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.done[key] = true
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
	s.status[key] = StatusIdle
	s.mu.Unlock()

	if err := s.store.Delete(ctx, keyPrefix+key); err != nil {
		return fmt.Errorf("delete draft snapshot: %w", err)
	}
	return nil
}

// Reopen clears the tombstone for a key, for the Add Another path where the
// same session starts a fresh draft.
func (s *Saver) Reopen(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.done, key)
}

// Status returns the current autosave indicator for key.
func (s *Saver) Status(key string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.status[key]; ok {
		return st
	}
	return StatusIdle
}

func (s *Saver) markSaving(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status[key] = StatusSaving
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.timers[key] = time.AfterFunc(s.settle, func() {
		s.settleTo(key, StatusSaved)
	})
}

func (s *Saver) settleTo(key string, st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done[key] {
		return
	}
	s.status[key] = st
}

func (s *Saver) setStatus(key string, st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[key] = st
}
