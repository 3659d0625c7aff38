package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallplates/collect/internal/domain"
)

type GuestRepository interface {
	Search(ctx context.Context, ownerID, firstInitial, lastName string) ([]domain.GuestCandidate, error)
	Create(ctx context.Context, ownerID, firstName, lastName string) (string, error)
	BumpExpectedRecipes(ctx context.Context, guestID string) error
	MarkSubmitted(ctx context.Context, guestID string) error
	NotifyFields(ctx context.Context, guestID string) (email string, optIn bool, err error)
	UpdateNotification(ctx context.Context, guestID, email string, optIn bool) error
}

type guestRepository struct {
	pool *pgxpool.Pool
}

func NewGuestRepository(pool *pgxpool.Pool) GuestRepository {
	return &guestRepository{pool: pool}
}

// Search matches on exact last name plus first initial, case-insensitively.
// Matching is deliberately strict so a short list comes back instead of a
// fuzzy ranking the visitor has to second-guess.
func (r *guestRepository) Search(ctx context.Context, ownerID, firstInitial, lastName string) ([]domain.GuestCandidate, error) {
	const q = `
		SELECT id, first_name, last_name, COALESCE(email,''), COALESCE(phone,'')
		FROM guests
		WHERE owner_id=$1
		  AND lower(last_name)=lower($2)
		  AND lower(left(first_name,1))=lower($3)
		ORDER BY first_name, last_name`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, ownerID, lastName, firstInitial)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GuestCandidate
	for rows.Next() {
		var c domain.GuestCandidate
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *guestRepository) Create(ctx context.Context, ownerID, firstName, lastName string) (string, error) {
	const q = `
		INSERT INTO guests (owner_id, first_name, last_name, expected_recipes, has_submitted, source)
		VALUES ($1, $2, $3, 1, false, 'collection')
		RETURNING id`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id string
	err := r.pool.QueryRow(ctx, q, ownerID, firstName, lastName).Scan(&id)
	return id, err
}

func (r *guestRepository) BumpExpectedRecipes(ctx context.Context, guestID string) error {
	const q = `UPDATE guests SET expected_recipes = expected_recipes + 1 WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, guestID)
	return err
}

func (r *guestRepository) MarkSubmitted(ctx context.Context, guestID string) error {
	const q = `UPDATE guests SET has_submitted=true WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, guestID)
	return err
}

func (r *guestRepository) NotifyFields(ctx context.Context, guestID string) (string, bool, error) {
	const q = `SELECT COALESCE(email,''), COALESCE(notify_on_publish,false) FROM guests WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var email string
	var optIn bool
	err := r.pool.QueryRow(ctx, q, guestID).Scan(&email, &optIn)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	return email, optIn, err
}

// UpdateNotification stores the opt-in choice at the guest level. The
// opt-in timestamp is only stamped when turning the preference on.
func (r *guestRepository) UpdateNotification(ctx context.Context, guestID, email string, optIn bool) error {
	const q = `
		UPDATE guests
		SET email = NULLIF($2, ''),
		    notify_on_publish = $3,
		    notify_opt_in_at = CASE WHEN $3 THEN now() ELSE notify_opt_in_at END
		WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, guestID, email, optIn)
	return err
}
