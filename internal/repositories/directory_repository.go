package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"booklend-chat-service/internal/models"
)

var (
	ErrListingNotFound = errors.New("listing not found")
	ErrUserNotFound    = errors.New("user not found")
)

// ListingRepository is the read-only contract against the listing catalog.
type ListingRepository interface {
	Get(ctx context.Context, id int64) (models.Listing, error)
}

// UserRepository is the read-only contract against the user directory.
type UserRepository interface {
	Get(ctx context.Context, id int64) (models.User, error)
}

// ListingRepo reads listing display data from the shared database.
type ListingRepo struct {
	db *sqlx.DB
}

// NewListingRepo constructs a ListingRepo.
func NewListingRepo(db *sqlx.DB) *ListingRepo {
	return &ListingRepo{db: db}
}

func (r *ListingRepo) Get(ctx context.Context, id int64) (models.Listing, error) {
	var listing models.Listing
	err := r.db.GetContext(ctx, &listing,
		`SELECT id, title, image_url FROM listings WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Listing{}, ErrListingNotFound
	}
	return listing, err
}

// UserRepo reads user display data from the shared database.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Get(ctx context.Context, id int64) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`SELECT id, nickname FROM users WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}
