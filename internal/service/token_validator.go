package service

import (
	"context"
	"fmt"

	"github.com/smallplates/collect/internal/domain"
	"github.com/smallplates/collect/internal/repository"
	"github.com/smallplates/collect/pkg/logger"
)

// TokenValidator resolves a collection link token to its campaign. The
// format check runs before any I/O so obviously broken links never reach
// the database.
type TokenValidator struct {
	tokens repository.TokenRepository
}

func NewTokenValidator(tokens repository.TokenRepository) *TokenValidator {
	return &TokenValidator{tokens: tokens}
}

// Validate resolves token, optionally scoped to groupID (the link may carry
// a group query parameter addressing one table's campaign).
func (v *TokenValidator) Validate(ctx context.Context, token, groupID string) (*domain.TokenInfo, error) {
	if !domain.ValidTokenFormat(token) {
		return nil, domain.ErrInvalidToken
	}

	info, err := v.tokens.FindByToken(ctx, token, groupID)
	if err != nil {
		return nil, fmt.Errorf("resolve collection token: %w", err)
	}
	if info == nil {
		logger.InfoContext(ctx, "Unknown collection token", "token_prefix", prefix(token, 8))
		return nil, domain.ErrTokenNotFound
	}
	return info, nil
}

// prefix truncates s for logging; full tokens never hit the logs.
func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
