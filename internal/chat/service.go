package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"booklend-chat-service/internal/models"
	"booklend-chat-service/internal/observability"
	"booklend-chat-service/internal/repositories"
)

// Service is the caller-facing contract of the chat subsystem, independent of
// transport.
type Service interface {
	GetOrCreateRoom(ctx context.Context, listingID, lenderID, borrowerID, callerID int64) (models.RoomSummary, error)
	ListRooms(ctx context.Context, userID int64, page models.PageRequest) (models.Page[models.RoomSummary], error)
	GetRoom(ctx context.Context, roomKey string, userID int64) (models.RoomSummary, error)
	ListMessages(ctx context.Context, roomKey string, userID int64, page models.PageRequest) (models.Page[models.MessageView], error)
	SendMessage(ctx context.Context, roomKey string, senderID int64, body string, msgType models.MessageType) (models.MessageView, error)
	SendBookCard(ctx context.Context, roomKey string, card models.BookCardPayload) error
	MarkRead(ctx context.Context, roomKey string, userID int64) error
	UnreadCount(ctx context.Context, userID int64) (int64, error)
	LeaveRoom(ctx context.Context, roomKey string, userID int64) error
}

// Broadcaster fans a stored message out to connected clients. Best-effort;
// implementations log their own failures.
type Broadcaster interface {
	BroadcastRoomMessage(roomKey string, msg models.MessageView)
}

// Notifier publishes a message-sent event to the notification side channel.
// Fire-and-forget; implementations log their own failures.
type Notifier interface {
	MessageSent(ctx context.Context, room models.Room, msg models.MessageView)
}

const (
	unknownUserName   = "unknown user"
	unknownBookTitle  = "unknown book"
	systemDisplayName = "system"
)

// ChatService implements Service on top of the room and message stores.
type ChatService struct {
	rooms       repositories.RoomRepository
	messages    repositories.MessageRepository
	listings    repositories.ListingRepository
	users       repositories.UserRepository
	broadcaster Broadcaster
	notifier    Notifier
	now         func() time.Time
}

// NewChatService wires a ChatService. broadcaster and notifier may be nil.
func NewChatService(
	rooms repositories.RoomRepository,
	messages repositories.MessageRepository,
	listings repositories.ListingRepository,
	users repositories.UserRepository,
	broadcaster Broadcaster,
	notifier Notifier,
) *ChatService {
	return &ChatService{
		rooms:       rooms,
		messages:    messages,
		listings:    listings,
		users:       users,
		broadcaster: broadcaster,
		notifier:    notifier,
		now:         time.Now,
	}
}

// GetOrCreateRoom resolves the single usable room for a (listing, lender,
// borrower) triple, creating one when none exists. The returned summary is
// built from the caller's perspective. Concurrent callers may still race a
// creation past the final re-check; the next resolution repairs that through
// duplicate cleanup.
func (s *ChatService) GetOrCreateRoom(ctx context.Context, listingID, lenderID, borrowerID, callerID int64) (models.RoomSummary, error) {
	if lenderID == borrowerID {
		return models.RoomSummary{}, invalidArgument("cannot open a chat with yourself")
	}

	listing, err := s.listings.Get(ctx, listingID)
	if errors.Is(err, repositories.ErrListingNotFound) {
		return models.RoomSummary{}, notFound("listing not found")
	} else if err != nil {
		return models.RoomSummary{}, internal("load listing", err)
	}
	if _, err := s.users.Get(ctx, lenderID); err != nil {
		return models.RoomSummary{}, userLookupError("lender", err)
	}
	if _, err := s.users.Get(ctx, borrowerID); err != nil {
		return models.RoomSummary{}, userLookupError("borrower", err)
	}

	rooms, err := s.rooms.FindByTriple(ctx, listingID, lenderID, borrowerID)
	if err != nil {
		return models.RoomSummary{}, internal("find chat rooms", err)
	}

	candidate, outcome, err := s.selectCandidate(ctx, rooms)
	if err != nil {
		return models.RoomSummary{}, internal("rejoin chat room", err)
	}
	if len(rooms) > 1 {
		log.Printf("chat: %d duplicate rooms for listing=%d lender=%d borrower=%d, cleaning up",
			len(rooms), listingID, lenderID, borrowerID)
		s.cleanupDuplicateRooms(ctx, rooms, candidate)
	}

	if candidate == nil {
		// Re-check before inserting: another caller may have created the room
		// between the first query and now.
		recheck, err := s.rooms.FindByTriple(ctx, listingID, lenderID, borrowerID)
		if err != nil {
			return models.RoomSummary{}, internal("re-check chat rooms", err)
		}
		if len(recheck) > 0 {
			candidate = &recheck[0]
			outcome = "recheck"
			if len(recheck) > 1 {
				s.cleanupDuplicateRooms(ctx, recheck, candidate)
			}
		}
	}

	if candidate == nil {
		room := models.Room{
			RoomKey:    uuid.NewString(),
			ListingID:  listingID,
			LenderID:   lenderID,
			BorrowerID: borrowerID,
			IsActive:   true,
			CreatedAt:  s.now(),
		}
		if err := s.rooms.Create(ctx, &room); err != nil {
			return models.RoomSummary{}, internal("create chat room", err)
		}
		candidate = &room
		outcome = "created"
		log.Printf("chat: created room %s for listing %d", room.RoomKey, listingID)
	}

	observability.IncRoomResolved(outcome)
	return s.buildRoomSummary(ctx, candidate, callerID, &listing)
}

// selectCandidate picks a usable room from the active rooms of a triple,
// which arrive newest first. A room where both members are present always
// wins; otherwise the newest room with leavers becomes the rejoin target.
func (s *ChatService) selectCandidate(ctx context.Context, rooms []models.Room) (*models.Room, string, error) {
	for i := range rooms {
		room := &rooms[i]
		if !room.HasLeft(room.LenderID) && !room.HasLeft(room.BorrowerID) {
			return room, "healthy", nil
		}
	}
	if len(rooms) == 0 {
		return nil, "", nil
	}
	room := &rooms[0]
	log.Printf("chat: rejoining members of room %s (lender left=%v, borrower left=%v)",
		room.RoomKey, room.HasLeft(room.LenderID), room.HasLeft(room.BorrowerID))
	room.Rejoin(room.LenderID)
	room.Rejoin(room.BorrowerID)
	if err := s.rooms.Update(ctx, room); err != nil {
		return nil, "", err
	}
	return room, "rejoined", nil
}

// ListRooms returns the viewer's rooms that hold at least one message,
// excluding rooms the viewer has left.
func (s *ChatService) ListRooms(ctx context.Context, userID int64, page models.PageRequest) (models.Page[models.RoomSummary], error) {
	page = page.Normalize()
	rooms, err := s.rooms.ListWithMessagesForUser(ctx, userID, page.Size, page.Offset())
	if err != nil {
		return models.Page[models.RoomSummary]{}, internal("list chat rooms", err)
	}

	summaries := make([]models.RoomSummary, 0, len(rooms))
	for i := range rooms {
		room := &rooms[i]
		if room.HasLeft(userID) {
			continue
		}
		summary, err := s.buildRoomSummary(ctx, room, userID, nil)
		if err != nil {
			return models.Page[models.RoomSummary]{}, err
		}
		summaries = append(summaries, summary)
	}
	return models.NewPage(summaries, page, int64(len(summaries))), nil
}

// GetRoom returns the room summary for a member, rejoining them if they had
// previously left.
func (s *ChatService) GetRoom(ctx context.Context, roomKey string, userID int64) (models.RoomSummary, error) {
	room, err := s.memberRoom(ctx, roomKey, userID)
	if err != nil {
		return models.RoomSummary{}, err
	}
	if room.HasLeft(userID) {
		log.Printf("chat: rejoining user %d to room %s", userID, roomKey)
		room.Rejoin(userID)
		if err := s.rooms.Update(ctx, &room); err != nil {
			return models.RoomSummary{}, internal("rejoin chat room", err)
		}
	}
	return s.buildRoomSummary(ctx, &room, userID, nil)
}

// ListMessages returns the messages a member may see, newest first. A member
// who left sees only what was said after their departure.
func (s *ChatService) ListMessages(ctx context.Context, roomKey string, userID int64, page models.PageRequest) (models.Page[models.MessageView], error) {
	room, err := s.memberRoom(ctx, roomKey, userID)
	if err != nil {
		return models.Page[models.MessageView]{}, err
	}
	page = page.Normalize()

	var (
		msgs  []models.Message
		total int64
	)
	if leftAt := room.LeftTimestamp(userID); leftAt != nil {
		msgs, err = s.messages.ListByRoomAfter(ctx, room.RoomKey, *leftAt, page.Size, page.Offset())
		if err == nil {
			total, err = s.messages.CountByRoomAfter(ctx, room.RoomKey, *leftAt)
		}
	} else {
		msgs, err = s.messages.ListByRoom(ctx, room.RoomKey, page.Size, page.Offset())
		if err == nil {
			total, err = s.messages.CountByRoom(ctx, room.RoomKey)
		}
	}
	if err != nil {
		return models.Page[models.MessageView]{}, internal("list messages", err)
	}

	names := map[int64]string{}
	views := make([]models.MessageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, s.messageView(ctx, &msgs[i], userID, names))
	}
	return models.NewPage(views, page, total), nil
}

// SendMessage stores a member's message and refreshes the room's last-message
// fields. The very first message in a room is preceded by a best-effort
// system announcement referencing the listing.
func (s *ChatService) SendMessage(ctx context.Context, roomKey string, senderID int64, body string, msgType models.MessageType) (models.MessageView, error) {
	if body == "" {
		return models.MessageView{}, invalidArgument("message body is required")
	}
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if !msgType.Valid() {
		return models.MessageView{}, invalidArgument("unknown message type")
	}

	room, err := s.memberRoom(ctx, roomKey, senderID)
	if err != nil {
		return models.MessageView{}, err
	}

	if count, err := s.messages.CountByRoom(ctx, room.RoomKey); err != nil {
		log.Printf("chat: first-message check failed for room %s: %v", room.RoomKey, err)
	} else if count == 0 {
		s.announceRoomCreated(ctx, &room)
	}

	msg := models.Message{
		RoomKey:   room.RoomKey,
		SenderID:  senderID,
		Body:      body,
		Type:      msgType,
		CreatedAt: s.now(),
	}
	if err := s.messages.Create(ctx, &msg); err != nil {
		return models.MessageView{}, internal("store message", err)
	}

	room.UpdateLastMessage(msg.Body, msg.CreatedAt)
	if err := s.rooms.Update(ctx, &room); err != nil {
		return models.MessageView{}, internal("update room after send", err)
	}

	view := s.messageView(ctx, &msg, senderID, nil)
	observability.IncMessageSent(string(msg.Type))
	if s.broadcaster != nil {
		s.broadcaster.BroadcastRoomMessage(room.RoomKey, view)
	}
	if s.notifier != nil {
		s.notifier.MessageSent(ctx, room, view)
	}
	return view, nil
}

// SendBookCard posts a system-authored book card into the room. The room's
// last-message preview shows the card's text, not the raw payload.
func (s *ChatService) SendBookCard(ctx context.Context, roomKey string, card models.BookCardPayload) error {
	room, err := s.rooms.GetByKey(ctx, roomKey)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		return notFound(noAccessMessage)
	} else if err != nil {
		return internal("load chat room", err)
	}
	if err := s.postSystemMessage(ctx, &room, card.Message, models.MessageTypeBookCard, &card); err != nil {
		return internal("store book card", err)
	}
	return nil
}

// MarkRead flips all unread messages in the room not authored by the viewer
// to read. Idempotent.
func (s *ChatService) MarkRead(ctx context.Context, roomKey string, userID int64) error {
	room, err := s.memberRoom(ctx, roomKey, userID)
	if err != nil {
		return err
	}
	updated, err := s.messages.MarkAllRead(ctx, room.RoomKey, userID, s.now())
	if err != nil {
		return internal("mark messages read", err)
	}
	if updated > 0 {
		log.Printf("chat: marked %d messages read in room %s for user %d", updated, roomKey, userID)
	}
	return nil
}

// UnreadCount sums unread not-mine messages over every room the user is a
// member of and has not left. Leaving a room mutes it.
func (s *ChatService) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	rooms, err := s.rooms.ListAllForUser(ctx, userID)
	if err != nil {
		return 0, internal("list chat rooms", err)
	}
	keys := make([]string, 0, len(rooms))
	for i := range rooms {
		if !rooms[i].HasLeft(userID) {
			keys = append(keys, rooms[i].RoomKey)
		}
	}
	count, err := s.messages.CountUnreadAcrossRooms(ctx, keys, userID)
	if err != nil {
		return 0, internal("count unread messages", err)
	}
	return count, nil
}

// LeaveRoom marks the member as departed without destroying shared history.
// The member's unread backlog is cleared first so a later rejoin starts
// clean; the room stays active even when both members have left.
func (s *ChatService) LeaveRoom(ctx context.Context, roomKey string, userID int64) error {
	room, err := s.memberRoom(ctx, roomKey, userID)
	if err != nil {
		return err
	}
	if room.HasLeft(userID) {
		log.Printf("chat: user %d already left room %s", userID, roomKey)
		return nil
	}

	cleared, err := s.messages.MarkAllRead(ctx, room.RoomKey, userID, s.now())
	if err != nil {
		return internal("clear unread on leave", err)
	}
	if cleared > 0 {
		log.Printf("chat: cleared %d unread messages for user %d leaving room %s", cleared, userID, roomKey)
	}

	name := s.displayName(ctx, userID, nil)
	if err := s.postSystemMessage(ctx, &room, fmt.Sprintf("%s left the chat.", name), models.MessageTypeSystem, nil); err != nil {
		log.Printf("chat: leave announcement failed for room %s: %v", roomKey, err)
	}

	room.MarkLeft(userID, s.now())
	if err := s.rooms.Update(ctx, &room); err != nil {
		return internal("persist leave state", err)
	}
	log.Printf("chat: user %d left room %s (empty=%v)", userID, roomKey, room.IsEmpty())
	return nil
}

// memberRoom loads the active room and verifies membership. A missing room
// and a non-member look the same to the caller.
func (s *ChatService) memberRoom(ctx context.Context, roomKey string, userID int64) (models.Room, error) {
	room, err := s.rooms.GetByKeyForUser(ctx, roomKey, userID)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		return models.Room{}, notFound(noAccessMessage)
	} else if err != nil {
		return models.Room{}, internal("load chat room", err)
	}
	return room, nil
}

// announceRoomCreated posts the room's opening system message. Best-effort:
// any failure is logged and the caller's send proceeds.
func (s *ChatService) announceRoomCreated(ctx context.Context, room *models.Room) {
	listing, err := s.listings.Get(ctx, room.ListingID)
	if err != nil {
		log.Printf("chat: opening announcement skipped for room %s: %v", room.RoomKey, err)
		return
	}
	body := fmt.Sprintf("Chat opened for %q.", listing.Title)
	if err := s.postSystemMessage(ctx, room, body, models.MessageTypeSystem, nil); err != nil {
		log.Printf("chat: opening announcement failed for room %s: %v", room.RoomKey, err)
	}
}

// postSystemMessage stores a service-generated message and refreshes the
// room's last-message fields.
func (s *ChatService) postSystemMessage(ctx context.Context, room *models.Room, body string, msgType models.MessageType, card *models.BookCardPayload) error {
	msg := models.Message{
		RoomKey:   room.RoomKey,
		SenderID:  models.SystemSenderID,
		Body:      body,
		Type:      msgType,
		CreatedAt: s.now(),
	}
	if card != nil {
		msg.Payload = models.NullBookCard{Card: *card, Valid: true}
	}
	if err := s.messages.Create(ctx, &msg); err != nil {
		return err
	}
	room.UpdateLastMessage(body, msg.CreatedAt)
	if err := s.rooms.Update(ctx, room); err != nil {
		return err
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastRoomMessage(room.RoomKey, s.messageView(ctx, &msg, models.SystemSenderID, nil))
	}
	return nil
}

// buildRoomSummary assembles the viewer-facing room view. listing may be
// passed in when the caller already loaded it.
func (s *ChatService) buildRoomSummary(ctx context.Context, room *models.Room, viewerID int64, listing *models.Listing) (models.RoomSummary, error) {
	title := unknownBookTitle
	image := ""
	if listing == nil {
		if l, err := s.listings.Get(ctx, room.ListingID); err == nil {
			listing = &l
		}
	}
	if listing != nil {
		title = listing.Title
		if listing.ImageURL != nil {
			image = *listing.ImageURL
		}
	}

	otherID := room.OtherUserID(viewerID)
	unread, err := s.messages.CountUnreadForUser(ctx, room.RoomKey, viewerID)
	if err != nil {
		return models.RoomSummary{}, internal("count unread messages", err)
	}

	return models.RoomSummary{
		RoomKey:           room.RoomKey,
		ListingID:         room.ListingID,
		BookTitle:         title,
		BookImage:         image,
		OtherUserID:       otherID,
		OtherUserNickname: s.displayName(ctx, otherID, nil),
		LastMessage:       room.LastMessage,
		LastMessageAt:     room.LastMessageAt,
		UnreadCount:       unread,
		IsActive:          room.IsActive,
		CreatedAt:         room.CreatedAt,
	}, nil
}

// messageView annotates a stored message for a viewer. names caches lookups
// within one listing call.
func (s *ChatService) messageView(ctx context.Context, msg *models.Message, viewerID int64, names map[int64]string) models.MessageView {
	view := models.MessageView{
		ID:        msg.ID,
		RoomKey:   msg.RoomKey,
		SenderID:  msg.SenderID,
		Body:      msg.Body,
		Type:      msg.Type,
		IsRead:    msg.IsRead,
		ReadAt:    msg.ReadAt,
		CreatedAt: msg.CreatedAt,
	}
	if msg.Payload.Valid {
		card := msg.Payload.Card
		view.Payload = &card
	}
	if msg.IsSystem() {
		view.SenderNickname = systemDisplayName
		view.IsSystem = true
		return view
	}
	view.SenderNickname = s.displayName(ctx, msg.SenderID, names)
	view.IsMine = msg.SenderID == viewerID
	return view
}

// displayName resolves a user's nickname, degrading to a placeholder when the
// directory has no record. names may be nil.
func (s *ChatService) displayName(ctx context.Context, userID int64, names map[int64]string) string {
	if names != nil {
		if name, ok := names[userID]; ok {
			return name
		}
	}
	name := unknownUserName
	if user, err := s.users.Get(ctx, userID); err == nil {
		name = user.Nickname
	}
	if names != nil {
		names[userID] = name
	}
	return name
}

func userLookupError(role string, err error) error {
	if errors.Is(err, repositories.ErrUserNotFound) {
		return notFound(role + " not found")
	}
	return internal("load "+role, err)
}
