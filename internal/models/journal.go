package models

import "time"

// JournalEntry is a user's daily journal note.
type JournalEntry struct {
	ID        string         `db:"id" json:"id"`
	UserID    string         `db:"user_id" json:"user_id"`
	Date      string         `db:"entry_date" json:"date"` // YYYY-MM-DD
	Content   string         `db:"content" json:"content"`
	Mood      string         `db:"mood" json:"mood"`
	Tags      StringList     `db:"tags" json:"tags"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
	Images    []JournalImage `db:"-" json:"images,omitempty"`
}

// JournalImage is an image attached to a journal entry.
type JournalImage struct {
	ID          string    `db:"id" json:"id"`
	JournalID   string    `db:"journal_id" json:"journal_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Path        string    `db:"path" json:"path"`
	URL         string    `db:"url" json:"url"`
	ContentType string    `db:"content_type" json:"content_type"`
	Size        int64     `db:"size" json:"size"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
