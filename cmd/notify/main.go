package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/smallplates/collect/internal/mailer"
	"github.com/smallplates/collect/pkg/config"
	"github.com/smallplates/collect/pkg/events"
	"github.com/smallplates/collect/pkg/logger"
)

// The notify worker drains notify.send off the bus and turns each event
// into an email. Delivery is at-most-once; a lost confirmation email is
// acceptable, a blocked submission is not.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	m := buildMailer(cfg)

	err = eventBus.QueueSubscribe(events.NotifySend, "notify-workers", func(msg *events.Message) {
		var ev events.NotificationEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			logger.Error("Dropping unreadable notification event", "error", err)
			return
		}

		switch ev.Type {
		case "opt_in_confirmation":
			if err := m.SendOptInConfirmation(ev.Recipient, ev.GuestName, ev.RecipeName); err != nil {
				logger.Error("Failed to send opt-in confirmation",
					"recipient", ev.Recipient, "recipe_id", ev.RecipeID, "error", err)
			}
		case "owner_recipe_alert":
			if err := m.SendOwnerRecipeAlert(ev.Recipient, ev.OwnerName, ev.GuestName, ev.RecipeName); err != nil {
				logger.Error("Failed to send owner alert",
					"recipient", ev.Recipient, "recipe_id", ev.RecipeID, "error", err)
			}
		default:
			logger.Warn("Unknown notification type", "type", ev.Type)
		}
	})
	if err != nil {
		logger.Error("Failed to subscribe", "subject", events.NotifySend, "error", err)
		os.Exit(1)
	}

	logger.Info("Notify worker listening", "subject", events.NotifySend)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down notify worker...")
}

func buildMailer(cfg *config.Config) mailer.Service {
	if cfg.Email.DevMode {
		return mailer.NewDevMailer()
	}
	if cfg.Email.MailerSendKey != "" {
		return mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.SMTPFromName, cfg.Email.SMTPFrom)
	}
	return mailer.NewSMTPMailer(
		cfg.Email.SMTPHost, cfg.Email.SMTPPort,
		cfg.Email.SMTPFrom, cfg.Email.SMTPUser, cfg.Email.SMTPPass,
		cfg.Email.SMTPUseTLS,
	)
}
