package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallplates/collect/internal/domain"
)

type RecipeRepository interface {
	Insert(ctx context.Context, ownerID, guestID string, draft domain.RecipeDraft, guestName string) (string, error)
	UpdateNotification(ctx context.Context, recipeID, email string, optIn bool) error
}

type recipeRepository struct {
	pool *pgxpool.Pool
}

func NewRecipeRepository(pool *pgxpool.Pool) RecipeRepository {
	return &recipeRepository{pool: pool}
}

// Insert stores the submitted recipe. The draft is expected to already be
// in its final shape: either structured fields or raw text, never both.
func (r *recipeRepository) Insert(ctx context.Context, ownerID, guestID string, draft domain.RecipeDraft, guestName string) (string, error) {
	const q = `
		INSERT INTO guest_recipes
			(owner_id, guest_id, recipe_name, ingredients, instructions,
			 personal_note, raw_full_text, submitted_by_name, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, now())
		RETURNING id`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id string
	err := r.pool.QueryRow(ctx, q,
		ownerID, guestID, draft.RecipeName, draft.Ingredients, draft.Instructions,
		draft.PersonalNote, draft.RawFullText, guestName,
	).Scan(&id)
	return id, err
}

func (r *recipeRepository) UpdateNotification(ctx context.Context, recipeID, email string, optIn bool) error {
	const q = `
		UPDATE guest_recipes
		SET notify_email = NULLIF($2, ''), notify_on_publish = $3
		WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, recipeID, email, optIn)
	return err
}
