package trades

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
	"tradelens/internal/notify"
)

// Digest summarizes the trades a user closed in a window.
type Digest struct {
	UserID  string          `json:"user_id"`
	Count   int             `json:"count"`
	Wins    int             `json:"wins"`
	NetPnL  decimal.Decimal `json:"net_pnl"`
	WinRate decimal.Decimal `json:"win_rate"`
}

// DigestFor returns the trades of userID whose last exit falls in [from, to).
func (s *Service) DigestFor(ctx context.Context, userID string, from, to time.Time) (Digest, error) {
	d := Digest{UserID: userID, NetPnL: decimal.Zero, WinRate: decimal.Zero}
	list, err := s.store.ListTradesWithMetrics(ctx, models.TradeFilter{UserID: userID, Status: models.TradeClosed})
	if err != nil {
		return d, err
	}
	for _, t := range list {
		at := t.Metrics.LastExitTime
		if at == nil || at.Before(from) || !at.Before(to) {
			continue
		}
		d.Count++
		d.NetPnL = d.NetPnL.Add(t.Metrics.NetPnL)
		if t.Metrics.Result == models.ResultWin {
			d.Wins++
		}
	}
	if d.Count > 0 {
		d.WinRate = decimal.NewFromInt(int64(d.Wins)).Div(decimal.NewFromInt(int64(d.Count))).Mul(decimal.NewFromInt(100))
	}
	return d, nil
}

// SendDigests notifies every user that closed trades in [from, to). period
// names the window in the message ("today", "this week"). It returns the
// number of digests sent.
func (s *Service) SendDigests(ctx context.Context, period string, from, to time.Time) (int, error) {
	users, err := s.store.ListUserIDsWithTrades(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, id := range users {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		d, err := s.DigestFor(ctx, id, from, to)
		if err != nil {
			return sent, err
		}
		if d.Count == 0 {
			continue
		}
		user, err := s.store.GetUser(ctx, id)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return sent, err
		}
		if err := s.notifier.Send(ctx, s.store, notify.TradeDigest(user, d.Count, d.NetPnL, d.WinRate, period)); err != nil {
			s.logger.Warn().Err(err).Str("user_id", id).Msg("Trade digest failed")
			continue
		}
		sent++
	}
	s.logger.Info().Int("sent", sent).Str("period", period).Msg("Trade digests sent")
	return sent, nil
}
