package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallplates/collect/internal/domain"
)

type TokenRepository interface {
	FindByToken(ctx context.Context, token, groupID string) (*domain.TokenInfo, error)
}

type tokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) TokenRepository {
	return &tokenRepository{pool: pool}
}

// FindByToken resolves a collection link token to its campaign metadata.
// A non-empty groupID scopes the campaign to that group; otherwise the
// profile's active group applies. Disabled campaigns are indistinguishable
// from unknown tokens on purpose.
func (r *tokenRepository) FindByToken(ctx context.Context, token, groupID string) (*domain.TokenInfo, error) {
	const q = `
		SELECT p.id, COALESCE(p.display_name,''), COALESCE(p.raw_display_name,''),
		       COALESCE(p.custom_message,''), COALESCE(p.custom_signature,''),
		       COALESCE(p.couple_names,''), COALESCE(p.couple_image_url,''),
		       COALESCE(p.active_group_id::text,''), COALESCE(p.active_cookbook_id::text,''),
		       COALESCE(p.email,'')
		FROM profiles p
		WHERE p.collection_link_token=$1 AND p.collection_enabled=true`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	info := domain.TokenInfo{Token: token, Valid: true}
	err := r.pool.QueryRow(ctx, q, token).Scan(
		&info.OwnerID, &info.DisplayName, &info.RawDisplayName,
		&info.CustomMessage, &info.CustomSignature,
		&info.CoupleNames, &info.CoupleImageURL,
		&info.GroupID, &info.CookbookID, &info.OwnerEmail,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if groupID != "" {
		info.GroupID = groupID
	}

	// A group carries its own welcome message; when the campaign is scoped
	// to a group that message wins over the profile-level one.
	if info.GroupID != "" {
		const gq = `
			SELECT COALESCE(custom_message,''), COALESCE(custom_signature,''),
			       COALESCE(cookbook_id::text,'')
			FROM collection_groups WHERE id=$1 AND owner_id=$2`
		var msg, sig, cookbook string
		gerr := r.pool.QueryRow(ctx, gq, info.GroupID, info.OwnerID).Scan(&msg, &sig, &cookbook)
		if gerr != nil && gerr != pgx.ErrNoRows {
			return nil, gerr
		}
		if msg != "" {
			info.CustomMessage = msg
		}
		if sig != "" {
			info.CustomSignature = sig
		}
		if cookbook != "" {
			info.CookbookID = cookbook
		}
	}

	return &info, nil
}
