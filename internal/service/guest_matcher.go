package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallplates/collect/internal/domain"
	"github.com/smallplates/collect/internal/repository"
)

// GuestMatcher finds existing guest rows for a typed name so returning
// contributors attach to their row instead of creating a duplicate.
type GuestMatcher struct {
	guests  repository.GuestRepository
	timeout time.Duration
}

func NewGuestMatcher(guests repository.GuestRepository, timeout time.Duration) *GuestMatcher {
	return &GuestMatcher{guests: guests, timeout: timeout}
}

// Search returns candidates matching first initial plus exact last name.
// An empty slice is a normal answer, not an error; the visitor continues
// as a new contributor.
func (m *GuestMatcher) Search(ctx context.Context, ownerID, firstInitial, lastName string) ([]domain.GuestCandidate, error) {
	firstInitial = strings.TrimSpace(firstInitial)
	lastName = strings.TrimSpace(lastName)
	if firstInitial == "" || lastName == "" {
		return nil, &domain.ValidationError{Fields: missingOf(firstInitial == "", "first_initial", lastName == "", "last_name")}
	}
	// The match is on a single initial; a visitor who typed their whole
	// first name still gets candidates.
	if runes := []rune(firstInitial); len(runes) > 1 {
		firstInitial = string(runes[:1])
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	candidates, err := m.guests.Search(ctx, ownerID, firstInitial, lastName)
	if err != nil {
		return nil, fmt.Errorf("search guests: %w", err)
	}
	return candidates, nil
}

// IdentityFromSelection builds the locked identity for a picked candidate.
func IdentityFromSelection(c domain.GuestCandidate) domain.ContributorIdentity {
	return domain.ContributorIdentity{
		GuestID:   c.ID,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email,
		Phone:     c.Phone,
		Existing:  true,
	}
}

// IdentityFromName builds a new-contributor identity from the full name the
// visitor typed when no candidate matched.
func IdentityFromName(fullName string) (domain.ContributorIdentity, error) {
	first, last := domain.SplitFullName(fullName)
	if first == "" {
		return domain.ContributorIdentity{}, &domain.ValidationError{Fields: []string{"full_name"}}
	}
	return domain.ContributorIdentity{
		FirstName: first,
		LastName:  last,
	}, nil
}

func missingOf(c1 bool, f1 string, c2 bool, f2 string) []string {
	var out []string
	if c1 {
		out = append(out, f1)
	}
	if c2 {
		out = append(out, f2)
	}
	return out
}
