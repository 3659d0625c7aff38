package service

import (
	"context"
	"strings"

	"github.com/smallplates/collect/internal/domain"
	"github.com/smallplates/collect/internal/repository"
	"github.com/smallplates/collect/pkg/events"
	"github.com/smallplates/collect/pkg/logger"
)

// NotificationPreference records the publish opt-in after a successful
// submission. It writes two levels, the recipe row and the guest row, and
// treats both as best effort: the recipe itself is already safe, so a
// failed preference write degrades the journey rather than failing it.
type NotificationPreference struct {
	guests  repository.GuestRepository
	recipes repository.RecipeRepository
	bus     events.Publisher
}

func NewNotificationPreference(
	guests repository.GuestRepository,
	recipes repository.RecipeRepository,
	bus events.Publisher,
) *NotificationPreference {
	return &NotificationPreference{guests: guests, recipes: recipes, bus: bus}
}

// Record stores the opt-in choice for the submitted recipe. The returned
// error is only ever a validation error; storage failures are logged and
// swallowed.
func (n *NotificationPreference) Record(
	ctx context.Context,
	result domain.SubmissionResult,
	identity domain.ContributorIdentity,
	email string,
	optIn bool,
) error {
	email = strings.TrimSpace(email)
	if optIn && email == "" {
		return &domain.ValidationError{Fields: []string{"email"}}
	}

	if err := n.recipes.UpdateNotification(ctx, result.RecipeID, email, optIn); err != nil {
		logger.ErrorContext(ctx, "Failed to store recipe notification preference",
			"recipe_id", result.RecipeID, "error", err)
	}
	if err := n.guests.UpdateNotification(ctx, result.GuestID, email, optIn); err != nil {
		logger.ErrorContext(ctx, "Failed to store guest notification preference",
			"guest_id", result.GuestID, "error", err)
	}

	if optIn && n.bus != nil {
		ev := events.NotificationEvent{
			Type:       "opt_in_confirmation",
			Recipient:  email,
			GuestName:  identity.FullName(),
			RecipeID:   result.RecipeID,
			RecipeName: result.RecipeName,
		}
		if err := n.bus.Publish(ctx, events.NotifySend, ev); err != nil {
			logger.ErrorContext(ctx, "Failed to publish notification event",
				"recipe_id", result.RecipeID, "error", err)
		}
	}

	return nil
}
