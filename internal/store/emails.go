package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tradelens/internal/models"
)

const emailColumns = "id, user_id, to_email, to_name, template, subject, params, status, attempts, last_error, next_attempt_at, created_at, sent_at"

// EnqueueEmail adds an email to the outbound queue.
func (s *SQLStore) EnqueueEmail(ctx context.Context, e *models.Email) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := utcNow()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.NextAttemptAt.IsZero() {
		e.NextAttemptAt = now
	}
	if e.Status == "" {
		e.Status = models.EmailPending
	}
	if e.Params == nil {
		e.Params = models.JSONMap{}
	}

	_, err := s.exec(ctx, `
		INSERT INTO email_queue (`+emailColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.ToEmail, e.ToName, e.Template, e.Subject, e.Params, e.Status,
		e.Attempts, e.LastError, e.NextAttemptAt.UTC(), e.CreatedAt.UTC(), nil)
	return dbError("email", e.ID, err)
}

// ClaimDueEmails marks up to limit pending emails that are due as sending and
// returns them. A claimed email becomes eligible for ReleaseStaleEmails once
// lease has passed.
func (s *SQLStore) ClaimDueEmails(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.Email, error) {
	var claimed []models.Email

	err := s.WithTx(ctx, func(tx DataStore) error {
		ts := tx.(*SQLStore)

		var due []models.Email
		query, args := paginate(`
			SELECT `+emailColumns+` FROM email_queue
			WHERE status = ? AND next_attempt_at <= ?
			ORDER BY next_attempt_at, created_at`,
			[]interface{}{models.EmailPending, now.UTC()}, limit, 0)
		if err := ts.selectRows(ctx, &due, query, args...); err != nil {
			return dbError("email", "", err)
		}

		leaseUntil := now.Add(lease).UTC()
		for _, e := range due {
			res, err := ts.exec(ctx, `
				UPDATE email_queue SET status = ?, next_attempt_at = ?
				WHERE id = ? AND status = ?
			`, models.EmailSending, leaseUntil, e.ID, models.EmailPending)
			if err != nil {
				return dbError("email", e.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 1 {
				e.Status = models.EmailSending
				e.NextAttemptAt = leaseUntil
				claimed = append(claimed, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkEmailSent records a successful delivery.
func (s *SQLStore) MarkEmailSent(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, "email", id, `
		UPDATE email_queue SET status = ?, attempts = attempts + 1, last_error = '', sent_at = ?
		WHERE id = ?
	`, models.EmailSent, at.UTC(), id)
}

// MarkEmailRetry puts an email back in the queue for another attempt at next.
func (s *SQLStore) MarkEmailRetry(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error {
	return s.execOne(ctx, "email", id, `
		UPDATE email_queue SET status = ?, attempts = ?, last_error = ?, next_attempt_at = ?
		WHERE id = ?
	`, models.EmailPending, attempts, lastErr, next.UTC(), id)
}

// MarkEmailFailed gives up on an email.
func (s *SQLStore) MarkEmailFailed(ctx context.Context, id string, attempts int, lastErr string) error {
	return s.execOne(ctx, "email", id, `
		UPDATE email_queue SET status = ?, attempts = ?, last_error = ?
		WHERE id = ?
	`, models.EmailFailed, attempts, lastErr, id)
}

// ReleaseStaleEmails returns emails whose sending lease expired to the queue.
func (s *SQLStore) ReleaseStaleEmails(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.exec(ctx, `
		UPDATE email_queue SET status = ?
		WHERE status = ? AND next_attempt_at <= ?
	`, models.EmailPending, models.EmailSending, now.UTC())
	if err != nil {
		return 0, dbError("email", "", err)
	}
	return res.RowsAffected()
}

// ListEmails returns queued emails, newest first.
func (s *SQLStore) ListEmails(ctx context.Context, f EmailFilter) ([]models.Email, error) {
	query := "SELECT " + emailColumns + " FROM email_queue WHERE 1=1"
	args := []interface{}{}

	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}

	query += " ORDER BY created_at DESC, id"
	query, args = paginate(query, args, f.Limit, 0)

	emails := []models.Email{}
	if err := s.selectRows(ctx, &emails, query, args...); err != nil {
		return nil, dbError("email", "", err)
	}
	return emails, nil
}
