package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/smallplates/collect/internal/domain"
)

// ---------- Mocks ----------

type mockTokenRepo struct {
	byToken map[string]*domain.TokenInfo
	err     error
}

func (m *mockTokenRepo) FindByToken(_ context.Context, token, _ string) (*domain.TokenInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byToken[token], nil
}

type mockGuestRepo struct {
	mu         sync.Mutex
	candidates []domain.GuestCandidate
	searchErr  error

	created   []domain.ContributorIdentity
	createErr error
	nextID    int

	bumped    []string
	marked    []string
	updates   map[string]string // guestID -> email
	updateErr error

	notifyEmail string
	notifyOptIn bool
}

func newMockGuestRepo() *mockGuestRepo {
	return &mockGuestRepo{updates: make(map[string]string)}
}

func (m *mockGuestRepo) Search(ctx context.Context, ownerID, firstInitial, lastName string) ([]domain.GuestCandidate, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.GuestCandidate
	for _, c := range m.candidates {
		if len(c.FirstName) > 0 &&
			strings.EqualFold(c.FirstName[:1], firstInitial) &&
			strings.EqualFold(c.LastName, lastName) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockGuestRepo) Create(_ context.Context, ownerID, firstName, lastName string) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.created = append(m.created, domain.ContributorIdentity{FirstName: firstName, LastName: lastName})
	return fmt.Sprintf("guest-%d", m.nextID), nil
}

func (m *mockGuestRepo) BumpExpectedRecipes(_ context.Context, guestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bumped = append(m.bumped, guestID)
	return nil
}

func (m *mockGuestRepo) MarkSubmitted(_ context.Context, guestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked = append(m.marked, guestID)
	return nil
}

func (m *mockGuestRepo) NotifyFields(_ context.Context, guestID string) (string, bool, error) {
	return m.notifyEmail, m.notifyOptIn, nil
}

func (m *mockGuestRepo) UpdateNotification(_ context.Context, guestID, email string, optIn bool) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates[guestID] = email
	return nil
}

type insertedRecipe struct {
	ownerID   string
	guestID   string
	draft     domain.RecipeDraft
	guestName string
}

type mockRecipeRepo struct {
	mu        sync.Mutex
	inserted  []insertedRecipe
	insertErr error
	updates   map[string]string // recipeID -> email
	updateErr error
	nextID    int
}

func newMockRecipeRepo() *mockRecipeRepo {
	return &mockRecipeRepo{updates: make(map[string]string)}
}

func (m *mockRecipeRepo) Insert(_ context.Context, ownerID, guestID string, draft domain.RecipeDraft, guestName string) (string, error) {
	if m.insertErr != nil {
		return "", m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.inserted = append(m.inserted, insertedRecipe{ownerID, guestID, draft, guestName})
	return fmt.Sprintf("recipe-%d", m.nextID), nil
}

func (m *mockRecipeRepo) UpdateNotification(_ context.Context, recipeID, email string, optIn bool) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates[recipeID] = email
	return nil
}

type mockIdempotencyRepo struct {
	mu      sync.Mutex
	records map[string][2]string // key -> {recipeID, guestID}
	err     error
}

func newMockIdempotencyRepo() *mockIdempotencyRepo {
	return &mockIdempotencyRepo{records: make(map[string][2]string)}
}

func (m *mockIdempotencyRepo) CheckOrCreate(_ context.Context, key, recipeID, guestID string) (string, string, error) {
	if m.err != nil {
		return "", "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[key]; ok {
		return rec[0], rec[1], nil
	}
	if recipeID != "" {
		m.records[key] = [2]string{recipeID, guestID}
	}
	return "", "", nil
}

func (m *mockIdempotencyRepo) CleanupExpired(context.Context) (int64, error) { return 0, nil }

type publishedEvent struct {
	subject string
	payload any
}

type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, subject string, data interface{}) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, publishedEvent{subject, data})
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.subject
	}
	return out
}

var errDown = errors.New("collaborator down")
