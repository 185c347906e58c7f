// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradelens/internal/models"
)

// DataStore defines the interface for data persistence. Methods taking a userID
// only see rows owned by that user.
type DataStore interface {
	// Users & roles
	UpsertUser(ctx context.Context, user *models.User) (created bool, err error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	GrantRole(ctx context.Context, userID string, role models.Role) error
	RevokeRole(ctx context.Context, userID string, role models.Role) error
	ListRoles(ctx context.Context, userID string) ([]models.Role, error)
	ListRoleGrants(ctx context.Context) ([]models.UserRole, error)

	// Accounts & strategies
	CreateAccount(ctx context.Context, account *models.Account) error
	UpdateAccount(ctx context.Context, account *models.Account) error
	DeleteAccount(ctx context.Context, userID, id string) error
	GetAccount(ctx context.Context, userID, id string) (*models.Account, error)
	ListAccounts(ctx context.Context, userID string) ([]models.Account, error)
	CreateStrategy(ctx context.Context, strategy *models.Strategy) error
	UpdateStrategy(ctx context.Context, strategy *models.Strategy) error
	DeleteStrategy(ctx context.Context, userID, id string) error
	GetStrategy(ctx context.Context, userID, id string) (*models.Strategy, error)
	ListStrategies(ctx context.Context, userID string) ([]models.Strategy, error)

	// Trades, exits & metrics
	CreateTrade(ctx context.Context, trade *models.Trade) error
	UpdateTrade(ctx context.Context, trade *models.Trade) error
	DeleteTrade(ctx context.Context, userID, id string) error
	GetTrade(ctx context.Context, userID, id string) (*models.Trade, error)
	GetSharedTrade(ctx context.Context, id string) (*models.Trade, error)
	ListTrades(ctx context.Context, filter models.TradeFilter) ([]models.Trade, error)
	ListTradesWithMetrics(ctx context.Context, filter models.TradeFilter) ([]models.TradeWithMetrics, error)
	ListUserIDsWithTrades(ctx context.Context) ([]string, error)
	AddExit(ctx context.Context, exit *models.PartialExit) error
	UpdateExit(ctx context.Context, exit *models.PartialExit) error
	DeleteExit(ctx context.Context, tradeID, exitID string) error
	ListExits(ctx context.Context, tradeID string) ([]models.PartialExit, error)
	SaveMetrics(ctx context.Context, metrics *models.TradeMetrics) error
	GetMetrics(ctx context.Context, tradeID string) (*models.TradeMetrics, error)

	// Journal
	SaveJournalEntry(ctx context.Context, entry *models.JournalEntry) error
	GetJournalEntry(ctx context.Context, userID, id string) (*models.JournalEntry, error)
	GetJournalEntryByDate(ctx context.Context, userID, date string) (*models.JournalEntry, error)
	ListJournalEntries(ctx context.Context, filter JournalFilter) ([]models.JournalEntry, error)
	DeleteJournalEntry(ctx context.Context, userID, id string) error
	AddJournalImage(ctx context.Context, image *models.JournalImage) error
	GetJournalImage(ctx context.Context, userID, id string) (*models.JournalImage, error)
	ListJournalImages(ctx context.Context, journalID string) ([]models.JournalImage, error)
	DeleteJournalImage(ctx context.Context, userID, id string) error

	// Community
	UpsertProfile(ctx context.Context, profile *models.TraderProfile) error
	GetProfile(ctx context.Context, userID string) (*models.TraderProfile, error)
	GetProfileByUsername(ctx context.Context, username string) (*models.TraderProfile, error)
	UpdateProfileStats(ctx context.Context, userID string, stats ProfileStats) error
	ListPublicProfileIDs(ctx context.Context) ([]string, error)
	Follow(ctx context.Context, followerID, followeeID string) (bool, error)
	Unfollow(ctx context.Context, followerID, followeeID string) (bool, error)
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
	CountFollows(ctx context.Context, userID string) (followers, following int, err error)
	LikeTrade(ctx context.Context, userID, tradeID string) (bool, error)
	UnlikeTrade(ctx context.Context, userID, tradeID string) (bool, error)
	CountLikes(ctx context.Context, tradeID string) (int, error)
	ListFeed(ctx context.Context, filter FeedFilter) ([]models.FeedItem, error)

	// Notifications
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]models.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, userID, id string) error

	// Subscriptions & payments
	GetSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	SaveSubscription(ctx context.Context, sub *models.Subscription) error
	ListSubscriptionsEndingBefore(ctx context.Context, t time.Time) ([]models.Subscription, error)
	MarkReminderSent(ctx context.Context, id string, at time.Time) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	UpdatePayment(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentByProviderOrder(ctx context.Context, provider, orderID string) (*models.Payment, error)
	ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error)

	// Email queue
	EnqueueEmail(ctx context.Context, email *models.Email) error
	ClaimDueEmails(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.Email, error)
	MarkEmailSent(ctx context.Context, id string, at time.Time) error
	MarkEmailRetry(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error
	MarkEmailFailed(ctx context.Context, id string, attempts int, lastErr string) error
	ReleaseStaleEmails(ctx context.Context, now time.Time) (int64, error)
	ListEmails(ctx context.Context, filter EmailFilter) ([]models.Email, error)

	// Lifecycle
	WithTx(ctx context.Context, fn func(DataStore) error) error
	Ping(ctx context.Context) error
	Close() error
}

// JournalFilter represents filters for querying journal entries.
type JournalFilter struct {
	UserID string
	From   string // YYYY-MM-DD, inclusive
	To     string // YYYY-MM-DD, inclusive
	Tag    string
	Limit  int
	Offset int
}

// FeedFilter represents filters for the community feed.
type FeedFilter struct {
	ViewerID      string
	FollowingOnly bool
	AuthorID      string
	Limit         int
	Offset        int
}

// NotificationFilter represents filters for querying notifications.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// EmailFilter represents filters for querying queued emails.
type EmailFilter struct {
	Status models.EmailStatus
	Limit  int
}

// ProfileStats holds the denormalized statistics of a trader profile.
type ProfileStats struct {
	TotalTrades  int
	WinRate      decimal.Decimal
	NetPnL       decimal.Decimal
	ProfitFactor *decimal.Decimal
}
