package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// runMigrations creates the chat schema. The (listing_id, lender_id,
// borrower_id) triple is deliberately not unique: concurrent creations may
// briefly coexist and are reconciled by the resolver's duplicate cleanup.
func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS listings (
            id BIGSERIAL PRIMARY KEY,
            title TEXT NOT NULL,
            image_url TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            nickname TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS chat_rooms (
            id BIGSERIAL PRIMARY KEY,
            room_key TEXT NOT NULL UNIQUE,
            listing_id BIGINT NOT NULL,
            lender_id BIGINT NOT NULL,
            borrower_id BIGINT NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            left_members JSONB NOT NULL DEFAULT '[]',
            left_times JSONB NOT NULL DEFAULT '{}',
            last_message TEXT,
            last_message_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_chat_rooms_triple
            ON chat_rooms (listing_id, lender_id, borrower_id);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_rooms_last_message_at
            ON chat_rooms (last_message_at DESC NULLS LAST);`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
            id BIGSERIAL PRIMARY KEY,
            room_key TEXT NOT NULL REFERENCES chat_rooms(room_key) ON DELETE CASCADE,
            sender_id BIGINT NOT NULL,
            body TEXT NOT NULL,
            message_type TEXT NOT NULL DEFAULT 'TEXT',
            payload JSONB,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            read_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_room_created
            ON chat_messages (room_key, created_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_unread
            ON chat_messages (room_key, sender_id) WHERE is_read = FALSE;`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
