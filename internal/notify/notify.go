// Package notify fans user notifications out to the in-app inbox and the email queue.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradelens/internal/config"
	"tradelens/internal/mailer"
	"tradelens/internal/models"
	"tradelens/internal/store"
)

// Notifier defines the interface for sending notifications. ds is the store
// the channels write through, so a notification can join the caller's transaction.
type Notifier interface {
	Send(ctx context.Context, ds store.DataStore, n Notification) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, ds store.DataStore, n Notification) error
}

// Recipient is the email address of the notified user.
type Recipient struct {
	Email string
	Name  string
}

// Notification represents a notification message.
type Notification struct {
	UserID    string
	Type      models.NotificationType
	Title     string
	Message   string
	Data      map[string]string
	Recipient *Recipient // nil skips the email channel
	Timestamp time.Time
}

// NotificationLevel represents the notification level filter of a channel.
type NotificationLevel string

const (
	LevelAll       NotificationLevel = "all"
	LevelImportant NotificationLevel = "important"
	LevelOff       NotificationLevel = "off"
)

var importantTypes = map[models.NotificationType]bool{
	models.NotifyWelcome:             true,
	models.NotifyPaymentSuccess:      true,
	models.NotifyPaymentFailed:       true,
	models.NotifySubscriptionExpired: true,
	models.NotifySubscriptionExpires: true,
	models.NotifyTradeDigest:         true,
}

// Allows reports whether a notification of type t passes the level filter.
func (l NotificationLevel) Allows(t models.NotificationType) bool {
	switch l {
	case LevelOff:
		return false
	case LevelImportant:
		return importantTypes[t]
	default:
		return true
	}
}

type levelChannel struct {
	ch    NotificationChannel
	level NotificationLevel
}

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	mu       sync.RWMutex
	channels []levelChannel
	logger   zerolog.Logger
}

// NewMultiNotifier creates a MultiNotifier with the in-app channel and, when
// queue is not nil, the email channel.
func NewMultiNotifier(cfg config.NotifyConfig, queue *mailer.Queue, logger zerolog.Logger) *MultiNotifier {
	mn := &MultiNotifier{logger: logger}
	mn.AddChannel(InAppChannel{}, NotificationLevel(cfg.InApp))
	if queue != nil {
		mn.AddChannel(NewEmailChannel(queue), NotificationLevel(cfg.Email))
	}
	return mn
}

// AddChannel adds a notification channel with its level filter.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel, level NotificationLevel) {
	if level == "" {
		level = LevelAll
	}
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, levelChannel{ch: ch, level: level})
}

// Send sends a notification to every channel whose level accepts it.
func (mn *MultiNotifier) Send(ctx context.Context, ds store.DataStore, n Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, lc := range channels {
		if !lc.level.Allows(n.Type) {
			continue
		}
		if err := lc.ch.Send(ctx, ds, n); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", lc.ch.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	mn.logger.Debug().Str("user_id", n.UserID).Str("type", string(n.Type)).Msg("Notification sent")
	return nil
}

// InAppChannel stores notifications in the user's inbox.
type InAppChannel struct{}

// Name returns the name of the channel.
func (InAppChannel) Name() string {
	return "in_app"
}

// Send records the notification row.
func (InAppChannel) Send(ctx context.Context, ds store.DataStore, n Notification) error {
	return ds.CreateNotification(ctx, &models.Notification{
		UserID:    n.UserID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      models.JSONMap(n.Data),
		CreatedAt: n.Timestamp,
	})
}

// emailTemplates maps notification types to the mailer template rendering them.
var emailTemplates = map[models.NotificationType]string{
	models.NotifyWelcome:             mailer.TemplateWelcome,
	models.NotifyPaymentSuccess:      mailer.TemplatePaymentSuccess,
	models.NotifySubscriptionExpires: mailer.TemplateSubscriptionExpiring,
	models.NotifySubscriptionExpired: mailer.TemplateSubscriptionExpired,
	models.NotifyTradeDigest:         mailer.TemplateTradeClosedDigest,
}

// EmailChannel queues an email for notification types that have a template.
type EmailChannel struct {
	queue *mailer.Queue
}

// NewEmailChannel creates an email channel over queue.
func NewEmailChannel(queue *mailer.Queue) *EmailChannel {
	return &EmailChannel{queue: queue}
}

// Name returns the name of the channel.
func (e *EmailChannel) Name() string {
	return "email"
}

// Send queues the email. Notifications without a recipient or template are skipped.
func (e *EmailChannel) Send(ctx context.Context, ds store.DataStore, n Notification) error {
	tpl, ok := emailTemplates[n.Type]
	if !ok || n.Recipient == nil || n.Recipient.Email == "" {
		return nil
	}

	params := models.JSONMap{"name": n.Recipient.Name}
	for k, v := range n.Data {
		params[k] = v
	}
	return e.queue.With(ds).Enqueue(ctx, &models.Email{
		UserID:   n.UserID,
		ToEmail:  n.Recipient.Email,
		ToName:   n.Recipient.Name,
		Template: tpl,
		Params:   params,
	})
}

// NoOpNotifier is a notifier that does nothing.
type NoOpNotifier struct{}

// Send does nothing.
func (NoOpNotifier) Send(context.Context, store.DataStore, Notification) error {
	return nil
}
