package models

import "time"

// EmailStatus represents the delivery state of a queued email.
type EmailStatus string

const (
	EmailPending EmailStatus = "pending"
	EmailSending EmailStatus = "sending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
)

// Email is a queued transactional email.
type Email struct {
	ID            string      `db:"id" json:"id"`
	UserID        string      `db:"user_id" json:"user_id"`
	ToEmail       string      `db:"to_email" json:"to_email"`
	ToName        string      `db:"to_name" json:"to_name"`
	Template      string      `db:"template" json:"template"`
	Subject       string      `db:"subject" json:"subject"`
	Params        JSONMap     `db:"params" json:"params"`
	Status        EmailStatus `db:"status" json:"status"`
	Attempts      int         `db:"attempts" json:"attempts"`
	LastError     string      `db:"last_error" json:"last_error,omitempty"`
	NextAttemptAt time.Time   `db:"next_attempt_at" json:"next_attempt_at"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	SentAt        *time.Time  `db:"sent_at" json:"sent_at,omitempty"`
}
