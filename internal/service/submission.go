package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallplates/collect/internal/domain"
	"github.com/smallplates/collect/internal/repository"
	"github.com/smallplates/collect/pkg/events"
	"github.com/smallplates/collect/pkg/logger"
)

// SubmissionPipeline turns a finished draft plus a locked identity into a
// stored recipe. All guest bookkeeping happens here so the handler only
// sees one call with one result.
type SubmissionPipeline struct {
	guests      repository.GuestRepository
	recipes     repository.RecipeRepository
	idempotency repository.IdempotencyRepository
	bus         events.Publisher
}

func NewSubmissionPipeline(
	guests repository.GuestRepository,
	recipes repository.RecipeRepository,
	idempotency repository.IdempotencyRepository,
	bus events.Publisher,
) *SubmissionPipeline {
	return &SubmissionPipeline{
		guests:      guests,
		recipes:     recipes,
		idempotency: idempotency,
		bus:         bus,
	}
}

// Submit stores the recipe and returns the result. On any error the caller
// keeps its draft and identity untouched and may retry; the idempotency key
// makes a retried network-level duplicate collapse onto the first insert.
func (p *SubmissionPipeline) Submit(
	ctx context.Context,
	owner domain.CampaignOwner,
	identity domain.ContributorIdentity,
	draft domain.RecipeDraft,
	idempotencyKey string,
) (*domain.SubmissionResult, error) {
	draft = normalize(draft)
	if draft.RawFullText == "" {
		if missing := draft.MissingFields(); len(missing) > 0 {
			return nil, &domain.ValidationError{Fields: missing}
		}
	}

	if idempotencyKey != "" {
		recipeID, guestID, err := p.idempotency.CheckOrCreate(ctx, idempotencyKey, "", "")
		if err != nil {
			return nil, fmt.Errorf("check idempotency: %w", err)
		}
		if recipeID != "" {
			logger.InfoContext(ctx, "Replayed submission served from idempotency record",
				"recipe_id", recipeID)
			return &domain.SubmissionResult{RecipeID: recipeID, GuestID: guestID}, nil
		}
	}

	guestID := identity.GuestID
	if identity.Existing && guestID != "" {
		if err := p.guests.BumpExpectedRecipes(ctx, guestID); err != nil {
			return nil, fmt.Errorf("bump expected recipes: %w", err)
		}
	} else {
		id, err := p.guests.Create(ctx, owner.ID, identity.FirstName, identity.LastName)
		if err != nil {
			return nil, fmt.Errorf("create guest: %w", err)
		}
		guestID = id
		p.publish(ctx, events.GuestCreated, events.GuestCreatedEvent{
			GuestID:   guestID,
			OwnerID:   owner.ID,
			FirstName: identity.FirstName,
			LastName:  identity.LastName,
			Source:    "collection",
			CreatedAt: time.Now().UTC(),
		})
	}

	recipeID, err := p.recipes.Insert(ctx, owner.ID, guestID, draft, identity.FullName())
	if err != nil {
		return nil, fmt.Errorf("insert recipe: %w", err)
	}

	if err := p.guests.MarkSubmitted(ctx, guestID); err != nil {
		// The recipe is in; a failed flag update is not worth failing the
		// visitor over.
		logger.ErrorContext(ctx, "Failed to mark guest as submitted",
			"guest_id", guestID, "error", err)
	}

	if idempotencyKey != "" {
		if _, _, err := p.idempotency.CheckOrCreate(ctx, idempotencyKey, recipeID, guestID); err != nil {
			logger.ErrorContext(ctx, "Failed to record idempotency key",
				"recipe_id", recipeID, "error", err)
		}
	}

	p.publish(ctx, events.RecipeSubmitted, events.RecipeSubmittedEvent{
		RecipeID:    recipeID,
		GuestID:     guestID,
		OwnerID:     owner.ID,
		RecipeName:  draft.RecipeName,
		GuestName:   identity.FullName(),
		RawText:     draft.RawFullText != "",
		SubmittedAt: time.Now().UTC(),
	})

	if owner.Email != "" {
		p.publish(ctx, events.NotifySend, events.NotificationEvent{
			Type:       "owner_recipe_alert",
			Recipient:  owner.Email,
			OwnerName:  owner.Name,
			GuestName:  identity.FullName(),
			RecipeID:   recipeID,
			RecipeName: draft.RecipeName,
		})
	}

	email, optIn, err := p.guests.NotifyFields(ctx, guestID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read notify fields", "guest_id", guestID, "error", err)
		email, optIn = "", false
	}

	return &domain.SubmissionResult{
		RecipeID:    recipeID,
		GuestID:     guestID,
		RecipeName:  draft.RecipeName,
		NotifyOptIn: optIn,
		NotifyEmail: email,
	}, nil
}

// normalize enforces the raw-text exclusivity rule and backfills the title.
// When the visitor pasted a whole recipe the structured fields are dropped
// regardless of what an earlier form visit left in the draft; otherwise
// the structured fields are stored trimmed.
func normalize(d domain.RecipeDraft) domain.RecipeDraft {
	d.RawFullText = strings.TrimSpace(d.RawFullText)
	if d.RawFullText != "" {
		d.Ingredients = ""
		d.Instructions = ""
		if strings.TrimSpace(d.RecipeName) == "" {
			d.RecipeName = domain.TitleFromRawText(d.RawFullText)
		}
	} else {
		d.Ingredients = strings.TrimSpace(d.Ingredients)
		d.Instructions = strings.TrimSpace(d.Instructions)
	}
	d.RecipeName = strings.TrimSpace(d.RecipeName)
	return d
}

func (p *SubmissionPipeline) publish(ctx context.Context, subject string, payload any) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, subject, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}
