package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"booklend-chat-service/internal/chat"
	"booklend-chat-service/internal/models"
)

type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) GetOrCreateRoom(ctx context.Context, listingID, lenderID, borrowerID, callerID int64) (models.RoomSummary, error) {
	args := m.Called(ctx, listingID, lenderID, borrowerID, callerID)
	var room models.RoomSummary
	if val := args.Get(0); val != nil {
		room = val.(models.RoomSummary)
	}
	return room, args.Error(1)
}

func (m *ChatServiceMock) ListRooms(ctx context.Context, userID int64, page models.PageRequest) (models.Page[models.RoomSummary], error) {
	args := m.Called(ctx, userID, page)
	var rooms models.Page[models.RoomSummary]
	if val := args.Get(0); val != nil {
		rooms = val.(models.Page[models.RoomSummary])
	}
	return rooms, args.Error(1)
}

func (m *ChatServiceMock) GetRoom(ctx context.Context, roomKey string, userID int64) (models.RoomSummary, error) {
	args := m.Called(ctx, roomKey, userID)
	var room models.RoomSummary
	if val := args.Get(0); val != nil {
		room = val.(models.RoomSummary)
	}
	return room, args.Error(1)
}

func (m *ChatServiceMock) ListMessages(ctx context.Context, roomKey string, userID int64, page models.PageRequest) (models.Page[models.MessageView], error) {
	args := m.Called(ctx, roomKey, userID, page)
	var msgs models.Page[models.MessageView]
	if val := args.Get(0); val != nil {
		msgs = val.(models.Page[models.MessageView])
	}
	return msgs, args.Error(1)
}

func (m *ChatServiceMock) SendMessage(ctx context.Context, roomKey string, senderID int64, body string, msgType models.MessageType) (models.MessageView, error) {
	args := m.Called(ctx, roomKey, senderID, body, msgType)
	var msg models.MessageView
	if val := args.Get(0); val != nil {
		msg = val.(models.MessageView)
	}
	return msg, args.Error(1)
}

func (m *ChatServiceMock) SendBookCard(ctx context.Context, roomKey string, card models.BookCardPayload) error {
	args := m.Called(ctx, roomKey, card)
	return args.Error(0)
}

func (m *ChatServiceMock) MarkRead(ctx context.Context, roomKey string, userID int64) error {
	args := m.Called(ctx, roomKey, userID)
	return args.Error(0)
}

func (m *ChatServiceMock) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ChatServiceMock) LeaveRoom(ctx context.Context, roomKey string, userID int64) error {
	args := m.Called(ctx, roomKey, userID)
	return args.Error(0)
}

var _ chat.Service = (*ChatServiceMock)(nil)
