package notify

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradelens/internal/models"
	"tradelens/pkg/utils"
)

const dateLayout = "Jan 2, 2006"

// RecipientOf returns the email recipient of user, or nil when unknown.
func RecipientOf(user *models.User) *Recipient {
	if user == nil || user.Email == "" {
		return nil
	}
	return &Recipient{Email: user.Email, Name: user.DisplayName}
}

// TradeClosed builds the notification emitted when a trade becomes closed.
func TradeClosed(trade *models.Trade, m *models.TradeMetrics) Notification {
	return Notification{
		UserID:  trade.UserID,
		Type:    models.NotifyTradeClosed,
		Title:   fmt.Sprintf("Trade closed: %s %s", trade.Action, trade.Instrument),
		Message: fmt.Sprintf("%s closed with net P&L %s (%s)", trade.Instrument, utils.FormatPnL(m.NetPnL, ""), utils.FormatPercent(m.PercentGain)),
		Data: map[string]string{
			"trade_id":     trade.ID,
			"instrument":   trade.Instrument,
			"net_pnl":      m.NetPnL.String(),
			"result":       string(m.Result),
			"percent_gain": m.PercentGain.StringFixed(2),
		},
	}
}

// NewFollower builds the notification sent to a followed trader.
func NewFollower(followeeID string, follower *models.TraderProfile) Notification {
	return Notification{
		UserID:  followeeID,
		Type:    models.NotifyNewFollower,
		Title:   "New follower",
		Message: fmt.Sprintf("@%s started following you", follower.Username),
		Data:    map[string]string{"follower_id": follower.UserID, "username": follower.Username},
	}
}

// TradeLiked builds the notification sent to the author of a liked trade.
func TradeLiked(trade *models.Trade, liker *models.TraderProfile) Notification {
	name := "Someone"
	data := map[string]string{"trade_id": trade.ID}
	if liker != nil {
		name = "@" + liker.Username
		data["user_id"] = liker.UserID
	}
	return Notification{
		UserID:  trade.UserID,
		Type:    models.NotifyTradeLiked,
		Title:   "Trade liked",
		Message: fmt.Sprintf("%s liked your %s trade", name, trade.Instrument),
		Data:    data,
	}
}

// Welcome builds the notification for a newly registered user.
func Welcome(user *models.User, trialEnd *time.Time) Notification {
	data := map[string]string{}
	if trialEnd != nil {
		data["trial_end"] = trialEnd.Format(dateLayout)
	}
	return Notification{
		UserID:    user.ID,
		Type:      models.NotifyWelcome,
		Title:     "Welcome to TradeLens",
		Message:   "Your trading journal is ready.",
		Data:      data,
		Recipient: RecipientOf(user),
	}
}

// PaymentSucceeded builds the notification for a completed payment.
func PaymentSucceeded(user *models.User, p *models.Payment, plan models.Plan, sub *models.Subscription) Notification {
	return Notification{
		UserID:  p.UserID,
		Type:    models.NotifyPaymentSuccess,
		Title:   "Payment received",
		Message: fmt.Sprintf("%s is active until %s", plan.Name, sub.CurrentPeriodEnd.Format(dateLayout)),
		Data: map[string]string{
			"payment_id": p.ID,
			"plan":       plan.Name,
			"amount":     utils.FormatMoney(p.Amount, p.Currency),
			"period_end": sub.CurrentPeriodEnd.Format(dateLayout),
		},
		Recipient: RecipientOf(user),
	}
}

// PaymentFailed builds the notification for a failed payment.
func PaymentFailed(user *models.User, p *models.Payment, plan models.Plan) Notification {
	return Notification{
		UserID:  p.UserID,
		Type:    models.NotifyPaymentFailed,
		Title:   "Payment failed",
		Message: fmt.Sprintf("Your %s payment via %s did not go through", plan.Name, p.Provider),
		Data: map[string]string{
			"payment_id": p.ID,
			"plan":       plan.Name,
			"amount":     utils.FormatMoney(p.Amount, p.Currency),
		},
		Recipient: RecipientOf(user),
	}
}

// SubscriptionExpiring builds the reminder sent before a subscription ends.
func SubscriptionExpiring(user *models.User, sub *models.Subscription, planName string, now time.Time) Notification {
	days := int(sub.CurrentPeriodEnd.Sub(now).Hours()/24 + 0.5)
	if days < 0 {
		days = 0
	}
	return Notification{
		UserID:  sub.UserID,
		Type:    models.NotifySubscriptionExpires,
		Title:   "Subscription ending soon",
		Message: fmt.Sprintf("%s ends on %s", planName, sub.CurrentPeriodEnd.Format(dateLayout)),
		Data: map[string]string{
			"plan":       planName,
			"period_end": sub.CurrentPeriodEnd.Format(dateLayout),
			"days_left":  fmt.Sprintf("%d", days),
		},
		Recipient: RecipientOf(user),
	}
}

// SubscriptionExpired builds the notification sent when access ends.
func SubscriptionExpired(user *models.User, sub *models.Subscription, planName string) Notification {
	return Notification{
		UserID:    sub.UserID,
		Type:      models.NotifySubscriptionExpired,
		Title:     "Subscription ended",
		Message:   fmt.Sprintf("%s access has ended", planName),
		Data:      map[string]string{"plan": planName},
		Recipient: RecipientOf(user),
	}
}

// TradeDigest builds the periodic summary of closed trades.
func TradeDigest(user *models.User, count int, netPnL, winRate decimal.Decimal, period string) Notification {
	return Notification{
		UserID:  user.ID,
		Type:    models.NotifyTradeDigest,
		Title:   fmt.Sprintf("%d trades closed %s", count, period),
		Message: fmt.Sprintf("Net P&L %s, win rate %s%%", utils.FormatPnL(netPnL, ""), winRate.StringFixed(1)),
		Data: map[string]string{
			"count":    fmt.Sprintf("%d", count),
			"period":   period,
			"net_pnl":  utils.FormatPnL(netPnL, ""),
			"win_rate": winRate.StringFixed(1) + "%",
		},
		Recipient: RecipientOf(user),
	}
}
