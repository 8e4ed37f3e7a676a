package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"booklend-chat-service/internal/models"
	"booklend-chat-service/internal/observability"
)

// Relay forwards room events to other service instances. The local instance
// receives its own events back through the relay subscription.
type Relay interface {
	Publish(ctx context.Context, event models.RoomEvent) error
}

// Hub maintains active websocket subscribers per room key.
type Hub struct {
	rooms    map[string]map[*websocket.Conn]bool
	connInfo map[string]map[*websocket.Conn]ConnInfo
	relay    Relay
	mu       sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:    make(map[string]map[*websocket.Conn]bool),
		connInfo: make(map[string]map[*websocket.Conn]ConnInfo),
	}
}

// SetRelay attaches a cross-instance relay. Must be called before the hub
// starts serving connections.
func (h *Hub) SetRelay(relay Relay) {
	h.relay = relay
}

// AddClient registers a websocket connection to a room.
func (h *Hub) AddClient(roomKey string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomKey]; !ok {
		h.rooms[roomKey] = make(map[*websocket.Conn]bool)
	}
	h.rooms[roomKey][conn] = true
	if _, ok := h.connInfo[roomKey]; !ok {
		h.connInfo[roomKey] = make(map[*websocket.Conn]ConnInfo)
	}
	h.connInfo[roomKey][conn] = info
}

// RemoveClient removes a websocket connection from a room.
func (h *Hub) RemoveClient(roomKey string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[roomKey]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, roomKey)
		}
	}
	if infos, ok := h.connInfo[roomKey]; ok {
		delete(infos, conn)
		if len(infos) == 0 {
			delete(h.connInfo, roomKey)
		}
	}
}

// BroadcastRoomMessage sends a stored message to every subscriber of the
// room. With a relay attached, delivery goes through the relay so that
// subscribers on other instances receive it too; without one, delivery is
// local only.
func (h *Hub) BroadcastRoomMessage(roomKey string, msg models.MessageView) {
	event := models.RoomEvent{Type: "message", RoomKey: roomKey, Message: &msg}
	if h.relay != nil {
		if err := h.relay.Publish(context.Background(), event); err == nil {
			return
		}
		log.Printf("websocket relay publish failed for room %s, delivering locally", roomKey)
	}
	h.DeliverLocal(event)
}

// DeliverLocal writes an event to the subscribers connected to this instance.
func (h *Hub) DeliverLocal(event models.RoomEvent) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.rooms[event.RoomKey]))
	for conn := range h.rooms[event.RoomKey] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logWSError(event.RoomKey, conn, err)
			conn.Close()
			h.RemoveClient(event.RoomKey, conn)
			observability.IncWSEvent("ws_error")
		}
	}
}

func (h *Hub) logWSError(roomKey string, conn *websocket.Conn, err error) {
	if info, ok := h.getConnInfo(roomKey, conn); ok {
		log.Printf("websocket write error room=%s conn=%s user=%d ip=%s: %v", roomKey, info.ConnID, info.UserID, info.IP, err)
		return
	}
	log.Printf("websocket write error room=%s: %v", roomKey, err)
}

func (h *Hub) getConnInfo(roomKey string, conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if infos, ok := h.connInfo[roomKey]; ok {
		info, exists := infos[conn]
		return info, exists
	}
	return ConnInfo{}, false
}
