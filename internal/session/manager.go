package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smallplates/collect/internal/domain"
	"github.com/smallplates/collect/internal/journey"
	"github.com/smallplates/collect/internal/kv"
)

const keyPrefix = "session:"

// snapshot is the durable subset of a Session. In-flight flags and search
// sequencing are process-local and deliberately not persisted; a process
// restart drops any half-finished submit attempt, which is safe because the
// idempotency record covers replays.
type snapshot struct {
	ID         string                      `json:"id"`
	Token      string                      `json:"token"`
	OwnerID    string                      `json:"owner_id"`
	OwnerName  string                      `json:"owner_name,omitempty"`
	OwnerEmail string                      `json:"owner_email,omitempty"`
	GroupID    string                      `json:"group_id,omitempty"`
	CookbookID string                      `json:"cookbook_id,omitempty"`
	Identity   *domain.ContributorIdentity `json:"identity,omitempty"`
	State      journey.State               `json:"state"`
	Submitted  bool                        `json:"submitted"`
	LastResult *domain.SubmissionResult    `json:"last_result,omitempty"`
}

// liveEntry pairs a cached session with its eviction deadline, mirroring the
// TTL the store applies to the snapshot.
type liveEntry struct {
	sess    *Session
	expires time.Time
}

// Manager keeps live sessions in memory and writes snapshots through to the
// kv store so a session survives process restarts for the snapshot TTL.
// Cached entries expire on the same TTL so the map does not grow for the
// process lifetime.
type Manager struct {
	store kv.Store
	ttl   time.Duration

	mu   sync.Mutex
	live map[string]*liveEntry
}

func NewManager(store kv.Store, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		ttl:   ttl,
		live:  make(map[string]*liveEntry),
	}
}

// Open creates a fresh session for a validated collection link.
func (m *Manager) Open(ctx context.Context, info domain.TokenInfo) (*Session, error) {
	ownerName := info.RawDisplayName
	if ownerName == "" {
		ownerName = info.DisplayName
	}
	s := &Session{
		ID:         uuid.NewString(),
		Token:      info.Token,
		OwnerID:    info.OwnerID,
		OwnerName:  ownerName,
		OwnerEmail: info.OwnerEmail,
		GroupID:    info.GroupID,
		CookbookID: info.CookbookID,
		state:      journey.New(),
	}
	if err := m.Persist(ctx, s); err != nil {
		return nil, err
	}
	m.remember(s)
	return s, nil
}

// Get returns the live session, rebuilding it from the store when the
// process has restarted since the session was opened.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	if e, ok := m.live[id]; ok {
		if time.Now().Before(e.expires) {
			m.mu.Unlock()
			return e.sess, nil
		}
		delete(m.live, id)
	}
	m.mu.Unlock()

	data, err := m.store.Get(ctx, keyPrefix+id)
	if err == kv.ErrNotFound {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	s := &Session{
		ID:         snap.ID,
		Token:      snap.Token,
		OwnerID:    snap.OwnerID,
		OwnerName:  snap.OwnerName,
		OwnerEmail: snap.OwnerEmail,
		GroupID:    snap.GroupID,
		CookbookID: snap.CookbookID,
		identity:   snap.Identity,
		state:      snap.State,
		submitted:  snap.Submitted,
		lastResult: snap.LastResult,
	}

	m.mu.Lock()
	// Another request may have rebuilt it first; keep the winner.
	if existing, ok := m.live[id]; ok && time.Now().Before(existing.expires) {
		m.mu.Unlock()
		return existing.sess, nil
	}
	m.live[id] = &liveEntry{sess: s, expires: time.Now().Add(m.ttl)}
	m.mu.Unlock()
	return s, nil
}

// remember caches the session and sweeps entries whose TTL has lapsed. The
// sweep rides on Open because that is the only call that grows the map.
func (m *Manager) remember(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for id, e := range m.live {
		if now.After(e.expires) {
			delete(m.live, id)
		}
	}
	m.live[s.ID] = &liveEntry{sess: s, expires: now.Add(m.ttl)}
}

// Persist writes the session snapshot through to the store.
func (m *Manager) Persist(ctx context.Context, s *Session) error {
	s.mu.Lock()
	snap := snapshot{
		ID:         s.ID,
		Token:      s.Token,
		OwnerID:    s.OwnerID,
		OwnerName:  s.OwnerName,
		OwnerEmail: s.OwnerEmail,
		GroupID:    s.GroupID,
		CookbookID: s.CookbookID,
		Identity:   s.identity,
		State:      s.state,
		Submitted:  s.submitted,
		LastResult: s.lastResult,
	}
	s.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := m.store.Set(ctx, keyPrefix+snap.ID, data, m.ttl); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceUnavailable, err)
	}

	// The store slides the TTL on every write; keep the cache in step.
	m.mu.Lock()
	if e, ok := m.live[snap.ID]; ok {
		e.expires = time.Now().Add(m.ttl)
	}
	m.mu.Unlock()
	return nil
}
