package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"booklend-chat-service/internal/chat"
	"booklend-chat-service/internal/mocks"
	"booklend-chat-service/internal/models"
)

func setupChatRouter(handler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(1))
		c.Next()
	})
	handler.RegisterRoutes(r.Group("/api/v1/chat"))
	return r
}

func TestResolveRoomSuccess(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	handler := NewChatHandler(service)
	router := setupChatRouter(handler)

	service.On("GetOrCreateRoom", mock.Anything, int64(10), int64(2), int64(1), int64(1)).
		Return(models.RoomSummary{RoomKey: "abc", ListingID: 10, OtherUserID: 2}, nil).Once()

	body := bytes.NewBufferString(`{"listing_id":10,"lender_id":2}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/rooms", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.RoomSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "abc", resp.RoomKey)
	service.AssertExpectations(t)
}

func TestResolveRoomSelfChat(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	handler := NewChatHandler(service)
	router := setupChatRouter(handler)

	service.On("GetOrCreateRoom", mock.Anything, int64(10), int64(1), int64(1), int64(1)).
		Return(models.RoomSummary{}, chat.NewInvalidArgument("cannot open a chat with yourself")).Once()

	body := bytes.NewBufferString(`{"listing_id":10,"lender_id":1}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/rooms", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	service.AssertExpectations(t)
}

func TestResolveRoomMissingBody(t *testing.T) {
	handler := NewChatHandler(new(mocks.ChatServiceMock))
	router := setupChatRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/rooms", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRoomsSuccess(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	handler := NewChatHandler(service)
	router := setupChatRouter(handler)

	page := models.Page[models.RoomSummary]{Items: []models.RoomSummary{{RoomKey: "abc"}}, Size: 20, Total: 1}
	service.On("ListRooms", mock.Anything, int64(1), models.PageRequest{}).Return(page, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/rooms", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	service.AssertExpectations(t)
}

func TestListRoomsInvalidPage(t *testing.T) {
	handler := NewChatHandler(new(mocks.ChatServiceMock))
	router := setupChatRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/rooms?page=abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRoomNotFound(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	handler := NewChatHandler(service)
	router := setupChatRouter(handler)

	service.On("GetRoom", mock.Anything, "missing", int64(1)).
		Return(models.RoomSummary{}, chat.NewNotFound("no access to chat room")).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/rooms/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "no access to chat room", resp["error"])
	service.AssertExpectations(t)
}

func TestListMessagesSuccess(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	handler := NewChatHandler(service)
	router := setupChatRouter(handler)

	page := models.Page[models.MessageView]{Items: []models.MessageView{{ID: 1, Body: "hi"}}, Size: 5, Total: 1}
	service.On("ListMessages", mock.Anything, "abc", int64(1), models.PageRequest{Page: 0, Size: 5}).Return(page, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/rooms/abc/messages?size=5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	service.AssertExpectations(t)
}

func TestPostMessageSuccess(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	handler := NewChatHandler(service)
	router := setupChatRouter(handler)

	service.On("SendMessage", mock.Anything, "abc", int64(1), "hi", models.MessageType("")).
		Return(models.MessageView{ID: 7, Body: "hi", IsMine: true}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/rooms/abc/messages", bytes.NewBufferString(`{"body":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp models.MessageView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.IsMine)
	service.AssertExpectations(t)
}

func TestPostMessageServiceError(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	handler := NewChatHandler(service)
	router := setupChatRouter(handler)

	service.On("SendMessage", mock.Anything, "abc", int64(1), "hi", models.MessageType("")).
		Return(models.MessageView{}, assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/rooms/abc/messages", bytes.NewBufferString(`{"body":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	service.AssertExpectations(t)
}

func TestMarkReadSuccess(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	handler := NewChatHandler(service)
	router := setupChatRouter(handler)

	service.On("MarkRead", mock.Anything, "abc", int64(1)).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/rooms/abc/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	service.AssertExpectations(t)
}

func TestUnreadCountSuccess(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	handler := NewChatHandler(service)
	router := setupChatRouter(handler)

	service.On("UnreadCount", mock.Anything, int64(1)).Return(int64(4), nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/unread-count", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int64
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(4), resp["unread_count"])
	service.AssertExpectations(t)
}

func TestLeaveRoomSuccess(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	handler := NewChatHandler(service)
	router := setupChatRouter(handler)

	service.On("LeaveRoom", mock.Anything, "abc", int64(1)).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/chat/rooms/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	service.AssertExpectations(t)
}
