package ws

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"booklend-chat-service/internal/middleware"
	"booklend-chat-service/internal/observability"
	"booklend-chat-service/internal/repositories"
)

// RoomWebSocketHandler handles room event subscriptions.
type RoomWebSocketHandler struct {
	hub       *Hub
	rooms     repositories.RoomRepository
	jwtSecret string
}

// NewRoomWebSocketHandler constructs a RoomWebSocketHandler.
func NewRoomWebSocketHandler(hub *Hub, rooms repositories.RoomRepository, jwtSecret string) *RoomWebSocketHandler {
	return &RoomWebSocketHandler{hub: hub, rooms: rooms, jwtSecret: jwtSecret}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and subscribes the member to room events.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	roomKey := c.Param("room_key")
	if roomKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room key"})
		return
	}

	ctx, span := otel.Tracer("booklend-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	userID, err := middleware.ParseUserID(token, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if _, err := h.rooms.GetByKeyForUser(ctx, roomKey, userID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for room"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(roomKey, conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	log.Printf("websocket connect room=%s conn=%s user=%d ip=%s", roomKey, info.ConnID, userID, info.IP)

	// Keep connection alive and clean on close. Inbound frames carry no
	// commands; sends go through the HTTP API.
	go func() {
		defer func() {
			h.hub.RemoveClient(roomKey, conn)
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			log.Printf("websocket disconnect room=%s conn=%s user=%d after %s", roomKey, info.ConnID, userID, time.Since(info.ConnectedAt))
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("ws_error")
					log.Printf("websocket read error room=%s conn=%s: %v", roomKey, info.ConnID, err)
				}
				return
			}
		}
	}()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}
