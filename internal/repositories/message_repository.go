package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"booklend-chat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions with stored chat messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	ListByRoom(ctx context.Context, roomKey string, limit, offset int) ([]models.Message, error)
	ListByRoomAfter(ctx context.Context, roomKey string, after time.Time, limit, offset int) ([]models.Message, error)
	CountByRoom(ctx context.Context, roomKey string) (int64, error)
	CountByRoomAfter(ctx context.Context, roomKey string, after time.Time) (int64, error)
	CountUnreadForUser(ctx context.Context, roomKey string, userID int64) (int64, error)
	CountUnreadAcrossRooms(ctx context.Context, roomKeys []string, userID int64) (int64, error)
	MarkAllRead(ctx context.Context, roomKey string, userID int64, at time.Time) (int64, error)
	DeleteByRoom(ctx context.Context, roomKey string) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, room_key, sender_id, body, message_type, payload, is_read, read_at, created_at`

// Create stores a message and fills in its id.
func (r *MessageRepo) Create(ctx context.Context, msg *models.Message) error {
	return r.db.QueryRowxContext(ctx, `INSERT INTO chat_messages
		(room_key, sender_id, body, message_type, payload, is_read, read_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		msg.RoomKey, msg.SenderID, msg.Body, msg.Type, msg.Payload, msg.IsRead, msg.ReadAt, msg.CreatedAt).
		Scan(&msg.ID, &msg.CreatedAt)
}

// ListByRoom returns the room's messages newest first.
func (r *MessageRepo) ListByRoom(ctx context.Context, roomKey string, limit, offset int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM chat_messages
		WHERE room_key=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		roomKey, limit, offset)
	return msgs, err
}

// ListByRoomAfter returns messages created strictly after the given time,
// newest first. Used for viewers with a leave timestamp.
func (r *MessageRepo) ListByRoomAfter(ctx context.Context, roomKey string, after time.Time, limit, offset int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM chat_messages
		WHERE room_key=$1 AND created_at > $2 ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`,
		roomKey, after, limit, offset)
	return msgs, err
}

// CountByRoom returns how many messages the room holds.
func (r *MessageRepo) CountByRoom(ctx context.Context, roomKey string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM chat_messages WHERE room_key=$1`, roomKey)
	return count, err
}

// CountByRoomAfter counts messages created strictly after the given time.
func (r *MessageRepo) CountByRoomAfter(ctx context.Context, roomKey string, after time.Time) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM chat_messages WHERE room_key=$1 AND created_at > $2`, roomKey, after)
	return count, err
}

// CountUnreadForUser counts unread messages in the room not authored by the
// user. System messages never count as unread.
func (r *MessageRepo) CountUnreadForUser(ctx context.Context, roomKey string, userID int64) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chat_messages
		WHERE room_key=$1 AND sender_id <> $2 AND sender_id <> $3 AND is_read = FALSE`,
		roomKey, userID, models.SystemSenderID)
	return count, err
}

// CountUnreadAcrossRooms sums unread not-mine messages over a set of rooms,
// again skipping system messages.
func (r *MessageRepo) CountUnreadAcrossRooms(ctx context.Context, roomKeys []string, userID int64) (int64, error) {
	if len(roomKeys) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chat_messages
		WHERE room_key = ANY($1) AND sender_id <> $2 AND sender_id <> $3 AND is_read = FALSE`,
		pq.Array(roomKeys), userID, models.SystemSenderID)
	return count, err
}

// MarkAllRead flips every unread not-mine message in the room to read in one
// conditional update, guarding against lost updates from a concurrent send.
func (r *MessageRepo) MarkAllRead(ctx context.Context, roomKey string, userID int64, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_messages
		SET is_read = TRUE, read_at = $3
		WHERE room_key=$1 AND sender_id <> $2 AND is_read = FALSE`,
		roomKey, userID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteByRoom removes all of a room's messages. Used only by duplicate cleanup.
func (r *MessageRepo) DeleteByRoom(ctx context.Context, roomKey string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE room_key=$1`, roomKey)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
