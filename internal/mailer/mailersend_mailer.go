package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

type MailerSendClient struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	enabled bool
}

func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSendClient {
	m := &MailerSendClient{
		enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}

	if m.enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}

	return m
}

func (m *MailerSendClient) SendOptInConfirmation(toEmail, guestName, recipeName string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := "We received your recipe!"
	html := fmt.Sprintf(`
		<h2>Thank you, %s!</h2>
		<p>Your recipe <strong>%s</strong> has been added to the cookbook.</p>
		<p>We'll email you at this address when the cookbook is published.</p>
		<p>No further action is needed.</p>
	`, guestName, recipeName)

	text := fmt.Sprintf("Thank you, %s! Your recipe %q has been added to the cookbook.\n\nWe'll email you when the cookbook is published.", guestName, recipeName)

	return m.sendEmail(toEmail, guestName, subject, text, html)
}

func (m *MailerSendClient) SendOwnerRecipeAlert(toEmail, ownerName, guestName, recipeName string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := fmt.Sprintf("%s added a recipe to your cookbook", guestName)
	html := fmt.Sprintf(`
		<h2>New recipe collected</h2>
		<p>Hi %s,</p>
		<p><strong>%s</strong> just submitted <strong>%s</strong> through your collection link.</p>
	`, ownerName, guestName, recipeName)

	text := fmt.Sprintf("Hi %s,\n\n%s just submitted %q through your collection link.", ownerName, guestName, recipeName)

	return m.sendEmail(toEmail, ownerName, subject, text, html)
}

func (m *MailerSendClient) sendEmail(toEmail, toName, subject, text, html string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: toName, Email: toEmail}})
	msg.SetSubject(subject)

	if strings.TrimSpace(text) != "" {
		msg.SetText(text)
	}
	if strings.TrimSpace(html) != "" {
		msg.SetHTML(html)
	}

	_, err := m.client.Email.Send(ctx, msg)
	return err
}
