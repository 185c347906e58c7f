// Package mailer renders, queues and delivers transactional email.
package mailer

import (
	"context"
	"strings"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
	"tradelens/internal/store"
)

// Queue persists outbound email for the dispatcher.
type Queue struct {
	store store.DataStore
}

// NewQueue creates a queue over ds.
func NewQueue(ds store.DataStore) *Queue {
	return &Queue{store: ds}
}

// With returns a queue writing through ds, typically a transaction.
func (q *Queue) With(ds store.DataStore) *Queue {
	return &Queue{store: ds}
}

// Enqueue validates the recipient and template, renders the subject when it is
// empty and stores the email as pending.
func (q *Queue) Enqueue(ctx context.Context, e *models.Email) error {
	e.ToEmail = strings.TrimSpace(e.ToEmail)
	if e.ToEmail == "" || !strings.Contains(e.ToEmail, "@") {
		return apperrors.NewValidationError("to_email", e.ToEmail, "must be an email address")
	}
	if !HasTemplate(e.Template) {
		return apperrors.NewValidationError("template", e.Template, "unknown email template")
	}
	if e.Subject == "" {
		subject, err := RenderSubject(e.Template, e.Params)
		if err != nil {
			return err
		}
		e.Subject = subject
	}
	e.Status = models.EmailPending
	return q.store.EnqueueEmail(ctx, e)
}
