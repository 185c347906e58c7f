package store

import (
	"context"

	"github.com/google/uuid"

	"tradelens/internal/models"
)

const journalColumns = "id, user_id, entry_date, content, mood, tags, created_at, updated_at"
const imageColumns = "id, journal_id, user_id, path, url, content_type, size, created_at"

// SaveJournalEntry creates the entry for (UserID, Date) or updates the existing one.
// entry.ID and entry.CreatedAt are set from the stored row.
func (s *SQLStore) SaveJournalEntry(ctx context.Context, e *models.JournalEntry) error {
	now := utcNow()
	if e.Tags == nil {
		e.Tags = models.StringList{}
	}

	_, err := s.exec(ctx, `
		INSERT INTO journal (`+journalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, entry_date) DO UPDATE SET
			content = excluded.content,
			mood = excluded.mood,
			tags = excluded.tags,
			updated_at = excluded.updated_at
	`, uuid.NewString(), e.UserID, e.Date, e.Content, e.Mood, e.Tags, now, now)
	if err != nil {
		return dbError("journal", e.Date, err)
	}

	stored, err := s.GetJournalEntryByDate(ctx, e.UserID, e.Date)
	if err != nil {
		return err
	}
	e.ID = stored.ID
	e.CreatedAt = stored.CreatedAt
	e.UpdatedAt = stored.UpdatedAt
	return nil
}

// GetJournalEntry retrieves a journal entry by id.
func (s *SQLStore) GetJournalEntry(ctx context.Context, userID, id string) (*models.JournalEntry, error) {
	var e models.JournalEntry
	if err := s.get(ctx, &e, "SELECT "+journalColumns+" FROM journal WHERE id = ? AND user_id = ?", id, userID); err != nil {
		return nil, dbError("journal", id, err)
	}
	return &e, nil
}

// GetJournalEntryByDate retrieves the journal entry of a day.
func (s *SQLStore) GetJournalEntryByDate(ctx context.Context, userID, date string) (*models.JournalEntry, error) {
	var e models.JournalEntry
	if err := s.get(ctx, &e, "SELECT "+journalColumns+" FROM journal WHERE user_id = ? AND entry_date = ?", userID, date); err != nil {
		return nil, dbError("journal", date, err)
	}
	return &e, nil
}

// ListJournalEntries returns journal entries, newest date first.
func (s *SQLStore) ListJournalEntries(ctx context.Context, f JournalFilter) ([]models.JournalEntry, error) {
	query := "SELECT " + journalColumns + " FROM journal WHERE 1=1"
	args := []interface{}{}

	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.From != "" {
		query += " AND entry_date >= ?"
		args = append(args, f.From)
	}
	if f.To != "" {
		query += " AND entry_date <= ?"
		args = append(args, f.To)
	}
	if f.Tag != "" {
		query += " AND tags LIKE ?"
		args = append(args, `%"`+f.Tag+`"%`)
	}

	query += " ORDER BY entry_date DESC"
	query, args = paginate(query, args, f.Limit, f.Offset)

	entries := []models.JournalEntry{}
	if err := s.selectRows(ctx, &entries, query, args...); err != nil {
		return nil, dbError("journal", "", err)
	}
	return entries, nil
}

// DeleteJournalEntry removes an entry and its image rows.
func (s *SQLStore) DeleteJournalEntry(ctx context.Context, userID, id string) error {
	if _, err := s.exec(ctx, "DELETE FROM journal_images WHERE journal_id = ? AND user_id = ?", id, userID); err != nil {
		return dbError("journal", id, err)
	}
	return s.execOne(ctx, "journal", id, "DELETE FROM journal WHERE id = ? AND user_id = ?", id, userID)
}

// AddJournalImage records an uploaded image.
func (s *SQLStore) AddJournalImage(ctx context.Context, img *models.JournalImage) error {
	if img.ID == "" {
		img.ID = uuid.NewString()
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = utcNow()
	}
	_, err := s.exec(ctx, `
		INSERT INTO journal_images (`+imageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, img.ID, img.JournalID, img.UserID, img.Path, img.URL, img.ContentType, img.Size, img.CreatedAt.UTC())
	return dbError("journal_image", img.ID, err)
}

// GetJournalImage retrieves an image owned by userID.
func (s *SQLStore) GetJournalImage(ctx context.Context, userID, id string) (*models.JournalImage, error) {
	var img models.JournalImage
	if err := s.get(ctx, &img, "SELECT "+imageColumns+" FROM journal_images WHERE id = ? AND user_id = ?", id, userID); err != nil {
		return nil, dbError("journal_image", id, err)
	}
	return &img, nil
}

// ListJournalImages returns the images of a journal entry.
func (s *SQLStore) ListJournalImages(ctx context.Context, journalID string) ([]models.JournalImage, error) {
	images := []models.JournalImage{}
	if err := s.selectRows(ctx, &images, "SELECT "+imageColumns+" FROM journal_images WHERE journal_id = ? ORDER BY created_at", journalID); err != nil {
		return nil, dbError("journal_image", "", err)
	}
	return images, nil
}

// DeleteJournalImage removes an image row.
func (s *SQLStore) DeleteJournalImage(ctx context.Context, userID, id string) error {
	return s.execOne(ctx, "journal_image", id, "DELETE FROM journal_images WHERE id = ? AND user_id = ?", id, userID)
}
