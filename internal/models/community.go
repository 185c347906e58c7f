package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TraderProfile is the public face of a user in the community.
type TraderProfile struct {
	UserID       string           `db:"user_id" json:"user_id"`
	Username     string           `db:"username" json:"username"`
	DisplayName  string           `db:"display_name" json:"display_name"`
	Bio          string           `db:"bio" json:"bio"`
	IsPublic     bool             `db:"is_public" json:"is_public"`
	TotalTrades  int              `db:"total_trades" json:"total_trades"`
	WinRate      decimal.Decimal  `db:"win_rate" json:"win_rate"`
	NetPnL       decimal.Decimal  `db:"net_pnl" json:"net_pnl"`
	ProfitFactor *decimal.Decimal `db:"profit_factor" json:"profit_factor,omitempty"`
	Followers    int              `db:"followers" json:"followers"`
	Following    int              `db:"following" json:"following"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// FeedItem is a shared trade as shown in the community feed.
type FeedItem struct {
	Trade         Trade         `db:"trade" json:"trade"`
	Metrics       TradeMetrics  `db:"metrics" json:"metrics"`
	Author        TraderProfile `db:"author" json:"author"`
	Likes         int           `db:"likes" json:"likes"`
	LikedByViewer bool          `db:"liked_by_viewer" json:"liked_by_viewer"`
}

// NotificationType identifies what a notification is about.
type NotificationType string

const (
	NotifyTradeClosed         NotificationType = "trade_closed"
	NotifyNewFollower         NotificationType = "new_follower"
	NotifyTradeLiked          NotificationType = "trade_liked"
	NotifyPaymentSuccess      NotificationType = "payment_success"
	NotifyPaymentFailed       NotificationType = "payment_failed"
	NotifySubscriptionExpired NotificationType = "subscription_expired"
	NotifySubscriptionExpires NotificationType = "subscription_expiring"
	NotifyWelcome             NotificationType = "welcome"
	NotifyTradeDigest         NotificationType = "trade_digest"
)

// Notification is an in-app notification.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Type      NotificationType `db:"type" json:"type"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Data      JSONMap          `db:"data" json:"data"`
	Read      bool             `db:"is_read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
