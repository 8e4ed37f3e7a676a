package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"booklend-chat-service/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomRepository abstracts room persistence.
type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	Update(ctx context.Context, room *models.Room) error
	GetByKey(ctx context.Context, roomKey string) (models.Room, error)
	GetByKeyForUser(ctx context.Context, roomKey string, userID int64) (models.Room, error)
	FindByTriple(ctx context.Context, listingID, lenderID, borrowerID int64) ([]models.Room, error)
	ListWithMessagesForUser(ctx context.Context, userID int64, limit, offset int) ([]models.Room, error)
	ListAllForUser(ctx context.Context, userID int64) ([]models.Room, error)
	Delete(ctx context.Context, id int64) error
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

const roomColumns = `id, room_key, listing_id, lender_id, borrower_id, is_active,
	left_members, left_times, last_message, last_message_at, created_at`

// Create inserts the room and fills in its storage id and creation time.
func (r *RoomRepo) Create(ctx context.Context, room *models.Room) error {
	return r.db.QueryRowxContext(ctx, `INSERT INTO chat_rooms
		(room_key, listing_id, lender_id, borrower_id, is_active, left_members, left_times, last_message, last_message_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		room.RoomKey, room.ListingID, room.LenderID, room.BorrowerID, room.IsActive,
		room.LeftMembers, room.LeftTimes, room.LastMessage, room.LastMessageAt, room.CreatedAt).
		Scan(&room.ID, &room.CreatedAt)
}

// Update persists the room's mutable state.
func (r *RoomRepo) Update(ctx context.Context, room *models.Room) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_rooms
		SET is_active=$2, left_members=$3, left_times=$4, last_message=$5, last_message_at=$6
		WHERE id=$1`,
		room.ID, room.IsActive, room.LeftMembers, room.LeftTimes, room.LastMessage, room.LastMessageAt)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// GetByKey fetches a room by its opaque key.
func (r *RoomRepo) GetByKey(ctx context.Context, roomKey string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room,
		`SELECT `+roomColumns+` FROM chat_rooms WHERE room_key=$1`, roomKey)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// GetByKeyForUser fetches an active room the user is a member of. Members who
// left still match; leave state is a visibility concern, not a membership one.
func (r *RoomRepo) GetByKeyForUser(ctx context.Context, roomKey string, userID int64) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM chat_rooms
		WHERE room_key=$1 AND (lender_id=$2 OR borrower_id=$2) AND is_active = TRUE`,
		roomKey, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// FindByTriple returns all active rooms for a (listing, lender, borrower)
// triple, newest first. More than one row means duplicates exist.
func (r *RoomRepo) FindByTriple(ctx context.Context, listingID, lenderID, borrowerID int64) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms, `SELECT `+roomColumns+` FROM chat_rooms
		WHERE listing_id=$1 AND lender_id=$2 AND borrower_id=$3 AND is_active = TRUE
		ORDER BY created_at DESC`,
		listingID, lenderID, borrowerID)
	return rooms, err
}

// ListWithMessagesForUser returns the user's active rooms that have at least
// one message, most recent conversation first.
func (r *RoomRepo) ListWithMessagesForUser(ctx context.Context, userID int64, limit, offset int) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms, `SELECT `+roomColumns+` FROM chat_rooms cr
		WHERE (cr.lender_id=$1 OR cr.borrower_id=$1)
		AND cr.is_active = TRUE
		AND EXISTS (SELECT 1 FROM chat_messages cm WHERE cm.room_key = cr.room_key)
		ORDER BY cr.last_message_at DESC NULLS LAST, cr.created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	return rooms, err
}

// ListAllForUser returns every active room the user is a member of.
func (r *RoomRepo) ListAllForUser(ctx context.Context, userID int64) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms, `SELECT `+roomColumns+` FROM chat_rooms
		WHERE (lender_id=$1 OR borrower_id=$1) AND is_active = TRUE`, userID)
	return rooms, err
}

// Delete removes a room row by storage id. Used only by duplicate cleanup.
func (r *RoomRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chat_rooms WHERE id=$1`, id)
	return err
}
