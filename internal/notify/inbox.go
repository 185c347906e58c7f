package notify

import (
	"context"

	"tradelens/internal/models"
	"tradelens/internal/store"
)

// Inbox reads and updates the in-app notifications of a user.
type Inbox struct {
	store store.DataStore
}

// NewInbox creates an inbox over ds.
func NewInbox(ds store.DataStore) *Inbox {
	return &Inbox{store: ds}
}

// InboxPage is one page of notifications with the total unread count.
type InboxPage struct {
	Items  []models.Notification `json:"items"`
	Unread int                   `json:"unread"`
}

// List returns notifications newest first.
func (i *Inbox) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) (*InboxPage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	items, err := i.store.ListNotifications(ctx, store.NotificationFilter{
		UserID:     userID,
		UnreadOnly: unreadOnly,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, err
	}
	unread, err := i.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &InboxPage{Items: items, Unread: unread}, nil
}

// UnreadCount returns the number of unread notifications.
func (i *Inbox) UnreadCount(ctx context.Context, userID string) (int, error) {
	return i.store.CountUnreadNotifications(ctx, userID)
}

// MarkRead marks one notification read.
func (i *Inbox) MarkRead(ctx context.Context, userID, id string) error {
	return i.store.MarkNotificationRead(ctx, userID, id)
}

// MarkAllRead marks every notification read and returns how many changed.
func (i *Inbox) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return i.store.MarkAllNotificationsRead(ctx, userID)
}

// Delete removes a notification.
func (i *Inbox) Delete(ctx context.Context, userID, id string) error {
	return i.store.DeleteNotification(ctx, userID, id)
}
