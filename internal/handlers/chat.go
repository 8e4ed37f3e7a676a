package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"booklend-chat-service/internal/chat"
	"booklend-chat-service/internal/models"
)

// ChatHandler exposes the chat room endpoints.
type ChatHandler struct {
	service chat.Service
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(service chat.Service) *ChatHandler {
	return &ChatHandler{service: service}
}

// RegisterRoutes wires the chat endpoints under the given group.
func (h *ChatHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/rooms", h.ResolveRoom)
	rg.GET("/rooms", h.ListRooms)
	rg.GET("/rooms/:room_key", h.GetRoom)
	rg.DELETE("/rooms/:room_key", h.LeaveRoom)
	rg.GET("/rooms/:room_key/messages", h.ListMessages)
	rg.POST("/rooms/:room_key/messages", h.PostMessage)
	rg.POST("/rooms/:room_key/read", h.MarkRead)
	rg.GET("/unread-count", h.UnreadCount)
}

// ResolveRoom returns the single usable room for a listing between the
// caller (borrower) and the lender, creating it when needed.
func (h *ChatHandler) ResolveRoom(c *gin.Context) {
	var req struct {
		ListingID int64 `json:"listing_id" binding:"required"`
		LenderID  int64 `json:"lender_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	borrowerID := currentUserID(c)
	room, err := h.service.GetOrCreateRoom(c.Request.Context(), req.ListingID, req.LenderID, borrowerID, borrowerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// ListRooms returns the caller's rooms that hold at least one message.
func (h *ChatHandler) ListRooms(c *gin.Context) {
	page, ok := pageFromQuery(c)
	if !ok {
		return
	}

	rooms, err := h.service.ListRooms(c.Request.Context(), currentUserID(c), page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// GetRoom returns one room for the caller, rejoining them if they had left.
func (h *ChatHandler) GetRoom(c *gin.Context) {
	room, err := h.service.GetRoom(c.Request.Context(), c.Param("room_key"), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// ListMessages returns the messages the caller may see, newest first.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	page, ok := pageFromQuery(c)
	if !ok {
		return
	}

	msgs, err := h.service.ListMessages(c.Request.Context(), c.Param("room_key"), currentUserID(c), page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// PostMessage stores a message from the caller and broadcasts it.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req struct {
		Body string             `json:"body" binding:"required"`
		Type models.MessageType `json:"message_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), c.Param("room_key"), currentUserID(c), req.Body, req.Type)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead marks every message from the other member as read.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	if err := h.service.MarkRead(c.Request.Context(), c.Param("room_key"), currentUserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UnreadCount returns the caller's total unread count across rooms.
func (h *ChatHandler) UnreadCount(c *gin.Context) {
	count, err := h.service.UnreadCount(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

// LeaveRoom records the caller's departure from the room.
func (h *ChatHandler) LeaveRoom(c *gin.Context) {
	if err := h.service.LeaveRoom(c.Request.Context(), c.Param("room_key"), currentUserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeError(c *gin.Context, err error) {
	switch chat.KindOf(err) {
	case chat.KindInvalidArgument:
		c.JSON(http.StatusBadRequest, gin.H{"error": chat.MessageOf(err)})
	case chat.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": chat.MessageOf(err)})
	default:
		log.Printf("chat handler: request_id=%s: %v", requestIDFromContext(c), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
