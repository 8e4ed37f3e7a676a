package models

// Listing is the slice of a lending listing this service needs: display
// metadata for room views and system announcements.
type Listing struct {
	ID       int64   `db:"id" json:"id"`
	Title    string  `db:"title" json:"title"`
	ImageURL *string `db:"image_url" json:"image_url,omitempty"`
}

// User is the slice of a user record this service needs.
type User struct {
	ID       int64  `db:"id" json:"id"`
	Nickname string `db:"nickname" json:"nickname"`
}
