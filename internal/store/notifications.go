package store

import (
	"context"

	"github.com/google/uuid"

	"tradelens/internal/models"
)

const notificationColumns = "id, user_id, type, title, message, data, is_read, created_at"

// CreateNotification inserts an in-app notification.
func (s *SQLStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = utcNow()
	}
	if n.Data == nil {
		n.Data = models.JSONMap{}
	}
	_, err := s.exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, n.Type, n.Title, n.Message, n.Data, n.Read, n.CreatedAt.UTC())
	return dbError("notification", n.ID, err)
}

// ListNotifications returns notifications of a user, newest first.
func (s *SQLStore) ListNotifications(ctx context.Context, f NotificationFilter) ([]models.Notification, error) {
	query := "SELECT " + notificationColumns + " FROM notifications WHERE user_id = ?"
	args := []interface{}{f.UserID}

	if f.UnreadOnly {
		query += " AND is_read = ?"
		args = append(args, false)
	}

	query += " ORDER BY created_at DESC, id"
	query, args = paginate(query, args, f.Limit, f.Offset)

	list := []models.Notification{}
	if err := s.selectRows(ctx, &list, query, args...); err != nil {
		return nil, dbError("notification", "", err)
	}
	return list, nil
}

// CountUnreadNotifications returns the number of unread notifications.
func (s *SQLStore) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.get(ctx, &n, "SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = ?", userID, false); err != nil {
		return 0, dbError("notification", "", err)
	}
	return n, nil
}

// MarkNotificationRead marks one notification as read.
func (s *SQLStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	return s.execOne(ctx, "notification", id, "UPDATE notifications SET is_read = ? WHERE id = ? AND user_id = ?", true, id, userID)
}

// MarkAllNotificationsRead marks every notification of a user as read.
func (s *SQLStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.exec(ctx, "UPDATE notifications SET is_read = ? WHERE user_id = ? AND is_read = ?", true, userID, false)
	if err != nil {
		return 0, dbError("notification", "", err)
	}
	return res.RowsAffected()
}

// DeleteNotification removes a notification.
func (s *SQLStore) DeleteNotification(ctx context.Context, userID, id string) error {
	return s.execOne(ctx, "notification", id, "DELETE FROM notifications WHERE id = ? AND user_id = ?", id, userID)
}
