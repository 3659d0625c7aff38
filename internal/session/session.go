// Package session holds the per-browser state of a collection visit: the
// validated link context, the chosen identity, and the journey position.
// One goroutine per request mutates a session; the mutex serializes
// concurrent tabs sharing a session token.
package session

import (
	"context"
	"sync"

	"github.com/smallplates/collect/internal/domain"
	"github.com/smallplates/collect/internal/journey"
)

type Session struct {
	mu sync.Mutex

	ID         string
	Token      string
	OwnerID    string
	OwnerName  string
	OwnerEmail string
	GroupID    string
	CookbookID string

	identity *domain.ContributorIdentity
	state    journey.State

	submitInFlight bool
	submitted      bool
	lastResult     *domain.SubmissionResult

	searchSeq    uint64
	searchCancel context.CancelFunc
}

// Owner returns the campaign owner this visit collects for.
func (s *Session) Owner() domain.CampaignOwner {
	return domain.CampaignOwner{ID: s.OwnerID, Name: s.OwnerName, Email: s.OwnerEmail}
}

// SetIdentity records who is contributing. Identity is fixed for the rest
// of the journey; a second call is a client bug and is rejected.
func (s *Session) SetIdentity(id domain.ContributorIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity != nil {
		return domain.ErrIdentityLocked
	}
	s.identity = &id
	return nil
}

func (s *Session) Identity() (domain.ContributorIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return domain.ContributorIdentity{}, domain.ErrNoIdentity
	}
	return *s.identity, nil
}

// State returns a copy of the journey state.
func (s *Session) State() journey.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Apply runs one journey event through the reducer and stores the result.
func (s *Session) Apply(ev journey.Event) (journey.State, journey.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, tr, err := journey.Reduce(s.state, ev)
	if err != nil {
		return s.state, tr, err
	}
	s.state = next
	return next, tr, nil
}

// RestoreState replaces the journey state wholesale, used when re-entering
// with a persisted draft snapshot.
func (s *Session) RestoreState(st journey.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// BeginSubmit claims the single submission slot. It fails when a submission
// is already in flight or has already succeeded, which is what makes a
// double-click produce exactly one recipe.
func (s *Session) BeginSubmit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitted || s.submitInFlight {
		return domain.ErrDuplicateSubmission
	}
	s.submitInFlight = true
	return nil
}

// EndSubmit releases the slot. A nil result means the attempt failed and
// the visitor may retry.
func (s *Session) EndSubmit(result *domain.SubmissionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitInFlight = false
	if result != nil {
		s.submitted = true
		s.lastResult = result
	}
}

func (s *Session) Submitted() (bool, *domain.SubmissionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted, s.lastResult
}

// AdoptGuest links a new-contributor identity to the guest row the first
// submission created, so further recipes in this session attach to the
// same guest instead of creating duplicates.
func (s *Session) AdoptGuest(guestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity != nil && s.identity.GuestID == "" {
		s.identity.GuestID = guestID
		s.identity.Existing = true
	}
}

// ResetForAnother clears the submission slot so the same contributor can
// add a further recipe. Identity stays locked.
func (s *Session) ResetForAnother() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = false
	s.lastResult = nil
}

// BeginSearch registers a new search attempt, cancelling any previous one
// still running. The returned sequence number identifies this attempt.
func (s *Session) BeginSearch(parent context.Context) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.searchCancel != nil {
		s.searchCancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.searchCancel = cancel
	s.searchSeq++
	return ctx, s.searchSeq
}

// IsLatestSearch reports whether seq is still the newest search. Results
// from superseded attempts are discarded by the caller.
func (s *Session) IsLatestSearch(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seq == s.searchSeq
}
