package notifications

import (
	"context"
	"log"
	"time"

	"booklend-chat-service/internal/models"
)

// Publisher is the transport the notifier publishes through.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Envelope is the wire format of a chat notification event.
type Envelope struct {
	SchemaVersion int    `json:"schema_version"`
	EventType     string `json:"event_type"`
	OccurredAt    string `json:"occurred_at"`
	Service       string `json:"service"`
	Environment   string `json:"environment"`
	RoomKey       string `json:"room_key"`
	ListingID     int64  `json:"listing_id"`
	SenderID      int64  `json:"sender_id"`
	RecipientID   int64  `json:"recipient_id"`
	Preview       string `json:"preview"`
}

const previewLimit = 80

// Notifier emits message-sent events toward the notification service.
// Emission is fire-and-forget; a broken broker never fails a send.
type Notifier struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

func NewNotifier(publisher Publisher, routingKey, service, environment string) *Notifier {
	return &Notifier{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

func (n *Notifier) MessageSent(ctx context.Context, room models.Room, msg models.MessageView) {
	if n == nil || n.publisher == nil {
		return
	}

	envelope := Envelope{
		SchemaVersion: 1,
		EventType:     "chat_message_sent",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       n.service,
		Environment:   n.environment,
		RoomKey:       room.RoomKey,
		ListingID:     room.ListingID,
		SenderID:      msg.SenderID,
		RecipientID:   room.OtherUserID(msg.SenderID),
		Preview:       preview(msg.Body),
	}

	if err := n.publisher.Publish(ctx, n.routingKey, envelope); err != nil {
		log.Printf("notification publish failed for room %s: %v", room.RoomKey, err)
	}
}

func preview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewLimit {
		return body
	}
	return string(runes[:previewLimit])
}
