package trades

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradelens/internal/analytics"
	"tradelens/internal/cache"
	"tradelens/internal/models"
)

// Summary returns the performance summary of userID, optionally limited to one
// account. Results are cached until the next trade mutation.
func (s *Service) Summary(ctx context.Context, userID, accountID string) (*analytics.Summary, error) {
	key := cache.SummaryKey(userID, accountID)
	if s.cache != nil {
		var cached analytics.Summary
		if ok, err := cache.GetJSON(ctx, s.cache, key, &cached); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Summary cache read failed")
		} else if ok {
			return &cached, nil
		}
	}

	starting := decimal.Zero
	if accountID != "" {
		a, err := s.store.GetAccount(ctx, userID, accountID)
		if err != nil {
			return nil, err
		}
		starting = a.StartingBalance
	}

	list, err := s.store.ListTradesWithMetrics(ctx, models.TradeFilter{UserID: userID, AccountID: accountID})
	if err != nil {
		return nil, err
	}
	sum := analytics.Summarize(list, starting)

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, sum, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Summary cache write failed")
		}
	}
	return &sum, nil
}

// Breakdown groups the user's closed trades. Strategy groups are labelled
// with strategy names.
func (s *Service) Breakdown(ctx context.Context, userID string, key analytics.BreakdownKey, filter models.TradeFilter) ([]analytics.Group, error) {
	filter.UserID = userID
	list, err := s.store.ListTradesWithMetrics(ctx, filter)
	if err != nil {
		return nil, err
	}
	var labels map[string]string
	if key == analytics.ByStrategy {
		if labels, err = strategyLabels(ctx, s.store, userID); err != nil {
			return nil, err
		}
	}
	return analytics.Breakdown(list, key, labels), nil
}

// Daily returns net P&L per calendar day in loc.
func (s *Service) Daily(ctx context.Context, userID string, loc *time.Location, filter models.TradeFilter) ([]analytics.DayPnL, error) {
	filter.UserID = userID
	list, err := s.store.ListTradesWithMetrics(ctx, filter)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return analytics.DailyPnL(list, loc), nil
}

// Equity returns the equity curve of the user or of one account.
func (s *Service) Equity(ctx context.Context, userID, accountID string) ([]analytics.EquityPoint, error) {
	starting := decimal.Zero
	if accountID != "" {
		a, err := s.store.GetAccount(ctx, userID, accountID)
		if err != nil {
			return nil, err
		}
		starting = a.StartingBalance
	}
	list, err := s.store.ListTradesWithMetrics(ctx, models.TradeFilter{UserID: userID, AccountID: accountID})
	if err != nil {
		return nil, err
	}
	return analytics.EquityCurve(list, starting), nil
}

// invalidate drops the cached summaries and profile affected by a change to trade.
func (s *Service) invalidate(ctx context.Context, trade *models.Trade) {
	keys := []string{cache.SummaryKey(trade.UserID, ""), cache.ProfileKey(trade.UserID)}
	if trade.AccountID != nil {
		keys = append(keys, cache.SummaryKey(trade.UserID, *trade.AccountID))
	}
	s.drop(ctx, keys...)
}

func (s *Service) invalidateAccount(ctx context.Context, userID, accountID string) {
	s.drop(ctx, cache.SummaryKey(userID, accountID))
}

// invalidateUser drops the user-wide summary and profile plus every account summary.
func (s *Service) invalidateUser(ctx context.Context, userID string) {
	keys := []string{cache.SummaryKey(userID, ""), cache.ProfileKey(userID)}
	if accounts, err := s.store.ListAccounts(ctx, userID); err == nil {
		for _, a := range accounts {
			keys = append(keys, cache.SummaryKey(userID, a.ID))
		}
	}
	s.drop(ctx, keys...)
}

func (s *Service) drop(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, s.cache, keys...); err != nil {
		s.logger.Warn().Err(err).Strs("keys", keys).Msg("Cache invalidation failed")
	}
}
