package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/smallplates/collect/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	// Collection events
	RecipeSubmitted = "recipe.submitted"
	GuestCreated    = "guest.created"

	// Notification events
	NotifySend = "notify.send"
)

// Event payloads
type RecipeSubmittedEvent struct {
	RecipeID    string    `json:"recipe_id"`
	GuestID     string    `json:"guest_id"`
	OwnerID     string    `json:"owner_id"`
	RecipeName  string    `json:"recipe_name"`
	GuestName   string    `json:"guest_name"`
	RawText     bool      `json:"raw_text"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type GuestCreatedEvent struct {
	GuestID   string    `json:"guest_id"`
	OwnerID   string    `json:"owner_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

type NotificationEvent struct {
	Type       string `json:"type"`
	Recipient  string `json:"recipient"`
	GuestName  string `json:"guest_name"`
	RecipeID   string `json:"recipe_id"`
	RecipeName string `json:"recipe_name"`
	OwnerName  string `json:"owner_name"`
}
