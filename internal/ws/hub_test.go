package ws

import (
	"context"
	"testing"

	"booklend-chat-service/internal/models"
)

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewHub()

	hub.AddClient("room-a", nil, ConnInfo{ConnID: "c1", UserID: 7})
	if len(hub.rooms) != 1 {
		t.Fatalf("expected room to be created")
	}
	info, ok := hub.getConnInfo("room-a", nil)
	if !ok || info.UserID != 7 {
		t.Fatalf("expected conn info to be tracked, got %+v ok=%v", info, ok)
	}

	hub.RemoveClient("room-a", nil)
	if len(hub.rooms) != 0 {
		t.Fatalf("expected room to be removed")
	}
	if len(hub.connInfo) != 0 {
		t.Fatalf("expected conn info to be removed")
	}
}

func TestHubRemoveClientUnknownRoom(t *testing.T) {
	hub := NewHub()
	hub.RemoveClient("missing", nil)
}

type recordingRelay struct {
	events []models.RoomEvent
}

func (r *recordingRelay) Publish(ctx context.Context, event models.RoomEvent) error {
	r.events = append(r.events, event)
	return nil
}

func TestHubBroadcastGoesThroughRelay(t *testing.T) {
	hub := NewHub()
	relay := &recordingRelay{}
	hub.SetRelay(relay)

	hub.BroadcastRoomMessage("room-a", models.MessageView{ID: 1, RoomKey: "room-a", Body: "hi"})

	if len(relay.events) != 1 {
		t.Fatalf("expected 1 relayed event, got %d", len(relay.events))
	}
	event := relay.events[0]
	if event.Type != "message" || event.RoomKey != "room-a" || event.Message == nil || event.Message.Body != "hi" {
		t.Fatalf("unexpected event %+v", event)
	}
}
