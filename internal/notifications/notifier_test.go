package notifications

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booklend-chat-service/internal/models"
)

type capturePublisher struct {
	routingKey string
	events     []Envelope
	err        error
}

func (p *capturePublisher) Publish(ctx context.Context, routingKey string, event any) error {
	p.routingKey = routingKey
	p.events = append(p.events, event.(Envelope))
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func TestMessageSentBuildsEnvelope(t *testing.T) {
	publisher := &capturePublisher{}
	notifier := NewNotifier(publisher, "chat.message_sent", "chat-service", "test")

	room := models.Room{RoomKey: "room-1", ListingID: 10, LenderID: 1, BorrowerID: 2}
	msg := models.MessageView{SenderID: 2, Body: "hello there"}
	notifier.MessageSent(context.Background(), room, msg)

	require.Len(t, publisher.events, 1)
	envelope := publisher.events[0]
	assert.Equal(t, "chat.message_sent", publisher.routingKey)
	assert.Equal(t, "chat_message_sent", envelope.EventType)
	assert.Equal(t, "room-1", envelope.RoomKey)
	assert.Equal(t, int64(2), envelope.SenderID)
	assert.Equal(t, int64(1), envelope.RecipientID)
	assert.Equal(t, "hello there", envelope.Preview)
	assert.NotEmpty(t, envelope.OccurredAt)
}

func TestMessageSentTruncatesPreview(t *testing.T) {
	publisher := &capturePublisher{}
	notifier := NewNotifier(publisher, "chat.message_sent", "chat-service", "test")

	room := models.Room{RoomKey: "room-1", LenderID: 1, BorrowerID: 2}
	long := strings.Repeat("a", 200)
	notifier.MessageSent(context.Background(), room, models.MessageView{SenderID: 1, Body: long})

	require.Len(t, publisher.events, 1)
	assert.Len(t, publisher.events[0].Preview, previewLimit)
}

func TestMessageSentSwallowsPublishError(t *testing.T) {
	publisher := &capturePublisher{err: assert.AnError}
	notifier := NewNotifier(publisher, "chat.message_sent", "chat-service", "test")

	room := models.Room{RoomKey: "room-1", LenderID: 1, BorrowerID: 2}
	notifier.MessageSent(context.Background(), room, models.MessageView{SenderID: 1, Body: "x"})
}

func TestMessageSentNilPublisher(t *testing.T) {
	notifier := NewNotifier(nil, "chat.message_sent", "chat-service", "test")
	notifier.MessageSent(context.Background(), models.Room{}, models.MessageView{})

	var nilNotifier *Notifier
	nilNotifier.MessageSent(context.Background(), models.Room{}, models.MessageView{})
}
