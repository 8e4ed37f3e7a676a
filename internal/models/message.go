package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// MessageType discriminates the message variants.
type MessageType string

const (
	MessageTypeText     MessageType = "TEXT"
	MessageTypeSystem   MessageType = "SYSTEM"
	MessageTypeBookCard MessageType = "BOOK_CARD"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeSystem, MessageTypeBookCard:
		return true
	}
	return false
}

// SystemSenderID is the reserved sender id for service-generated messages.
const SystemSenderID int64 = 0

// Message is a single chat message. Immutable after creation except for the
// read flag and read timestamp.
type Message struct {
	ID        int64        `db:"id" json:"id"`
	RoomKey   string       `db:"room_key" json:"room_key"`
	SenderID  int64        `db:"sender_id" json:"sender_id"`
	Body      string       `db:"body" json:"body"`
	Type      MessageType  `db:"message_type" json:"message_type"`
	Payload   NullBookCard `db:"payload" json:"-"`
	IsRead    bool         `db:"is_read" json:"is_read"`
	ReadAt    *time.Time   `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// IsSystem reports whether the message was generated by the service.
func (m *Message) IsSystem() bool {
	return m.SenderID == SystemSenderID
}

// BookCardPayload is the structured payload of a BOOK_CARD message.
type BookCardPayload struct {
	ListingID int64  `json:"listing_id"`
	BookTitle string `json:"book_title"`
	BookImage string `json:"book_image,omitempty"`
	Message   string `json:"message"`
}

// NullBookCard is a nullable JSON column holding a book-card payload.
// Only BOOK_CARD messages carry one.
type NullBookCard struct {
	Card  BookCardPayload
	Valid bool
}

func (n NullBookCard) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return json.Marshal(n.Card)
}

func (n *NullBookCard) Scan(src interface{}) error {
	if src == nil {
		n.Valid = false
		return nil
	}
	if err := scanJSON(src, &n.Card); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// MessageView is a message annotated for a particular viewer.
type MessageView struct {
	ID             int64            `json:"id"`
	RoomKey        string           `json:"room_key"`
	SenderID       int64            `json:"sender_id"`
	SenderNickname string           `json:"sender_nickname"`
	Body           string           `json:"body"`
	Type           MessageType      `json:"message_type"`
	Payload        *BookCardPayload `json:"payload,omitempty"`
	IsRead         bool             `json:"is_read"`
	ReadAt         *time.Time       `json:"read_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	IsMine         bool             `json:"isMine"`
	IsSystem       bool             `json:"is_system"`
}

// RoomSummary is a room annotated for a particular viewer, used in list and
// detail views.
type RoomSummary struct {
	RoomKey           string     `json:"room_key"`
	ListingID         int64      `json:"listing_id"`
	BookTitle         string     `json:"book_title"`
	BookImage         string     `json:"book_image,omitempty"`
	OtherUserID       int64      `json:"other_user_id"`
	OtherUserNickname string     `json:"other_user_nickname"`
	LastMessage       *string    `json:"last_message,omitempty"`
	LastMessageAt     *time.Time `json:"last_message_at,omitempty"`
	UnreadCount       int64      `json:"unread_count"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
}

// RoomEvent is broadcast to websocket subscribers of a room.
type RoomEvent struct {
	Type    string       `json:"type"`
	RoomKey string       `json:"room_key"`
	Message *MessageView `json:"message,omitempty"`
}
