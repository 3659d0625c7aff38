package mailer

import (
	"fmt"

	"github.com/smallplates/collect/pkg/logger"
)

type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendOptInConfirmation(toEmail, guestName, recipeName string) error {
	logger.Info("📧 [DEV MAIL] Opt-In Confirmation",
		"to", toEmail,
		"guest", guestName,
		"recipe", recipeName,
	)

	fmt.Printf("\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"📧 OPT-IN CONFIRMATION (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s (%s)\n"+
		"Subject: We received your recipe!\n"+
		"\n"+
		"Recipe: %s\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		toEmail, guestName, recipeName)

	return nil
}

func (d *DevMailer) SendOwnerRecipeAlert(toEmail, ownerName, guestName, recipeName string) error {
	logger.Info("📧 [DEV MAIL] Owner Recipe Alert",
		"to", toEmail,
		"owner", ownerName,
		"guest", guestName,
		"recipe", recipeName,
	)

	fmt.Printf("\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"📧 OWNER RECIPE ALERT (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s (%s)\n"+
		"Subject: %s added a recipe to your cookbook\n"+
		"\n"+
		"Recipe: %s\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		toEmail, ownerName, guestName, recipeName)

	return nil
}
