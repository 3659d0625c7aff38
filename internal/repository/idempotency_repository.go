package repository

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type IdempotencyRepository interface {
	// CheckOrCreate looks up an existing submission for key. When one
	// exists its recipe and guest IDs are returned; otherwise the given
	// IDs are recorded (when non-empty) and empty strings come back.
	CheckOrCreate(ctx context.Context, key, recipeID, guestID string) (existingRecipeID, existingGuestID string, err error)
	CleanupExpired(ctx context.Context) (int64, error)
}

type idempotencyRepository struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepository(pool *pgxpool.Pool) IdempotencyRepository {
	return &idempotencyRepository{pool: pool}
}

func (r *idempotencyRepository) CheckOrCreate(ctx context.Context, key, recipeID, guestID string) (string, string, error) {
	// Hash the idempotency key for privacy and consistent length
	hasher := sha256.New()
	hasher.Write([]byte(key))
	keyHash := fmt.Sprintf("%x", hasher.Sum(nil))

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var existingRecipe, existingGuest string
	const checkQuery = `SELECT recipe_id, guest_id FROM submission_idempotency WHERE key_hash=$1`
	err := r.pool.QueryRow(ctx, checkQuery, keyHash).Scan(&existingRecipe, &existingGuest)
	if err == nil {
		return existingRecipe, existingGuest, nil
	}
	if err != pgx.ErrNoRows {
		return "", "", err
	}

	if recipeID != "" {
		const insertQuery = `
			INSERT INTO submission_idempotency (key_hash, recipe_id, guest_id, expires_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (key_hash) DO NOTHING`
		expiresAt := time.Now().Add(24 * time.Hour)
		if _, err := r.pool.Exec(ctx, insertQuery, keyHash, recipeID, guestID, expiresAt); err != nil {
			return "", "", err
		}
	}

	return "", "", nil
}

func (r *idempotencyRepository) CleanupExpired(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const query = `DELETE FROM submission_idempotency WHERE expires_at < now()`
	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
