// Package trades implements the trade journal: trades, exit legs, accounts,
// strategies and the analytics derived from them.
//
// Every mutation recomputes the trade metrics inside the same transaction, so a
// trade and its metrics never disagree.
package trades

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradelens/internal/cache"
	apperrors "tradelens/internal/errors"
	"tradelens/internal/logging"
	"tradelens/internal/models"
	"tradelens/internal/notify"
	"tradelens/internal/pnl"
	"tradelens/internal/store"
)

// Service implements trade operations scoped to a user.
type Service struct {
	store    store.DataStore
	cache    cache.Store
	cacheTTL time.Duration
	notifier notify.Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a trade service. c may be nil to disable caching.
func NewService(ds store.DataStore, c cache.Store, cacheTTL time.Duration, notifier notify.Notifier, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = notify.NoOpNotifier{}
	}
	return &Service{
		store:    ds,
		cache:    c,
		cacheTTL: cacheTTL,
		notifier: notifier,
		logger:   logging.WithOperation(logger, "trades"),
		now:      time.Now,
	}
}

// TradeInput is a new trade. When ExitPrice is set the trade is booked closed
// with one exit leg for the full quantity.
type TradeInput struct {
	AccountID          *string           `json:"account_id"`
	StrategyID         *string           `json:"strategy_id"`
	Instrument         string            `json:"instrument"`
	MarketType         models.MarketType `json:"market_type"`
	Action             models.Action     `json:"action"`
	Quantity           decimal.Decimal   `json:"quantity"`
	EntryPrice         decimal.Decimal   `json:"entry_price"`
	EntryTime          time.Time         `json:"entry_time"`
	StopLoss           *decimal.Decimal  `json:"stop_loss"`
	Target             *decimal.Decimal  `json:"target"`
	Commission         decimal.Decimal   `json:"commission"`
	Fees               decimal.Decimal   `json:"fees"`
	ContractMultiplier decimal.Decimal   `json:"contract_multiplier"`
	Notes              string            `json:"notes"`
	Tags               []string          `json:"tags"`
	Rating             int               `json:"rating"`
	IsShared           bool              `json:"is_shared"`

	ExitPrice      *decimal.Decimal `json:"exit_price"`
	ExitTime       *time.Time       `json:"exit_time"`
	ExitCommission decimal.Decimal  `json:"exit_commission"`
	ExitFees       decimal.Decimal  `json:"exit_fees"`
}

// TradePatch holds the editable fields of a trade; nil fields are unchanged.
type TradePatch struct {
	AccountID          *string            `json:"account_id"`
	StrategyID         *string            `json:"strategy_id"`
	Instrument         *string            `json:"instrument"`
	MarketType         *models.MarketType `json:"market_type"`
	Action             *models.Action     `json:"action"`
	Quantity           *decimal.Decimal   `json:"quantity"`
	EntryPrice         *decimal.Decimal   `json:"entry_price"`
	EntryTime          *time.Time         `json:"entry_time"`
	StopLoss           *decimal.Decimal   `json:"stop_loss"`
	Target             *decimal.Decimal   `json:"target"`
	Commission         *decimal.Decimal   `json:"commission"`
	Fees               *decimal.Decimal   `json:"fees"`
	ContractMultiplier *decimal.Decimal   `json:"contract_multiplier"`
	Notes              *string            `json:"notes"`
	Tags               *[]string          `json:"tags"`
	Rating             *int               `json:"rating"`
	IsShared           *bool              `json:"is_shared"`
	// ClearStopLoss and ClearTarget remove the optional levels.
	ClearStopLoss bool `json:"clear_stop_loss"`
	ClearTarget   bool `json:"clear_target"`
}

func normalizeTags(tags []string) models.StringList {
	out := models.StringList{}
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (in TradeInput) trade(userID string) *models.Trade {
	mult := in.ContractMultiplier
	if mult.IsZero() {
		mult = decimal.NewFromInt(1)
	}
	marketType := in.MarketType
	if marketType == "" {
		marketType = models.MarketStocks
	}
	return &models.Trade{
		UserID:             userID,
		AccountID:          emptyToNil(in.AccountID),
		StrategyID:         emptyToNil(in.StrategyID),
		Instrument:         strings.ToUpper(strings.TrimSpace(in.Instrument)),
		MarketType:         marketType,
		Action:             models.Action(strings.ToLower(string(in.Action))),
		Quantity:           in.Quantity,
		EntryPrice:         in.EntryPrice,
		EntryTime:          in.EntryTime.UTC(),
		StopLoss:           in.StopLoss,
		Target:             in.Target,
		Commission:         in.Commission,
		Fees:               in.Fees,
		ContractMultiplier: mult,
		Status:             models.TradeOpen,
		Notes:              in.Notes,
		Tags:               normalizeTags(in.Tags),
		Rating:             in.Rating,
		IsShared:           in.IsShared,
	}
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// checkRefs verifies that the account and strategy of a trade belong to its owner.
func checkRefs(ctx context.Context, ds store.DataStore, t *models.Trade) error {
	if t.AccountID != nil {
		if _, err := ds.GetAccount(ctx, t.UserID, *t.AccountID); err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				return apperrors.NewValidationError("account_id", *t.AccountID, "unknown account")
			}
			return err
		}
	}
	if t.StrategyID != nil {
		if _, err := ds.GetStrategy(ctx, t.UserID, *t.StrategyID); err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				return apperrors.NewValidationError("strategy_id", *t.StrategyID, "unknown strategy")
			}
			return err
		}
	}
	return nil
}

// CreateTrade validates and books a trade together with its metrics.
func (s *Service) CreateTrade(ctx context.Context, userID string, in TradeInput) (*models.TradeWithMetrics, error) {
	trade := in.trade(userID)
	if err := pnl.ValidateTrade(trade); err != nil {
		return nil, err
	}

	var exit *models.PartialExit
	if in.ExitPrice != nil {
		exitTime := s.now().UTC()
		if in.ExitTime != nil {
			exitTime = in.ExitTime.UTC()
		}
		exit = &models.PartialExit{
			Quantity:   trade.Quantity,
			ExitPrice:  *in.ExitPrice,
			ExitTime:   exitTime,
			Commission: in.ExitCommission,
			Fees:       in.ExitFees,
		}
		if err := pnl.ValidateExit(trade, nil, exit); err != nil {
			return nil, err
		}
	}

	var out *models.TradeWithMetrics
	err := s.store.WithTx(ctx, func(tx store.DataStore) error {
		if err := checkRefs(ctx, tx, trade); err != nil {
			return err
		}
		if err := tx.CreateTrade(ctx, trade); err != nil {
			return err
		}
		if exit != nil {
			exit.TradeID = trade.ID
			if err := tx.AddExit(ctx, exit); err != nil {
				return err
			}
		}
		var err error
		out, err = s.recompute(ctx, tx, trade, models.TradeOpen)
		return err
	})
	if err != nil {
		return nil, err
	}

	logging.LogTrade(s.logger, trade.ID, trade.Instrument, "create", string(out.Trade.Status))
	s.invalidate(ctx, trade)
	return out, nil
}

// UpdateTrade applies a patch. The quantity may not drop below what has
// already been exited.
func (s *Service) UpdateTrade(ctx context.Context, userID, tradeID string, patch TradePatch) (*models.TradeWithMetrics, error) {
	var (
		out        *models.TradeWithMetrics
		oldAccount *string
	)
	err := s.store.WithTx(ctx, func(tx store.DataStore) error {
		trade, err := tx.GetTrade(ctx, userID, tradeID)
		if err != nil {
			return err
		}
		oldAccount = trade.AccountID
		prev := trade.Status
		applyPatch(trade, patch)
		if err := pnl.ValidateTrade(trade); err != nil {
			return err
		}
		if err := checkRefs(ctx, tx, trade); err != nil {
			return err
		}

		exits, err := tx.ListExits(ctx, trade.ID)
		if err != nil {
			return err
		}
		exited := pnl.ExitedQuantity(exits)
		if trade.Quantity.LessThan(exited) {
			return apperrors.NewTradeError(trade.ID, "update",
				"quantity "+trade.Quantity.String()+" is below exited "+exited.String(), apperrors.ErrOverExit)
		}
		for _, e := range exits {
			if e.ExitTime.Before(trade.EntryTime) {
				return apperrors.NewValidationError("entry_time", trade.EntryTime, "must not be after an exit")
			}
		}

		if err := tx.UpdateTrade(ctx, trade); err != nil {
			return err
		}
		out, err = s.recomputeWith(ctx, tx, trade, exits, prev)
		return err
	})
	if err != nil {
		return nil, err
	}

	logging.LogTrade(s.logger, tradeID, out.Trade.Instrument, "update", string(out.Trade.Status))
	s.invalidate(ctx, &out.Trade)
	if oldAccount != nil {
		s.invalidateAccount(ctx, userID, *oldAccount)
	}
	return out, nil
}

func applyPatch(t *models.Trade, p TradePatch) {
	if p.AccountID != nil {
		t.AccountID = emptyToNil(p.AccountID)
	}
	if p.StrategyID != nil {
		t.StrategyID = emptyToNil(p.StrategyID)
	}
	if p.Instrument != nil {
		t.Instrument = strings.ToUpper(strings.TrimSpace(*p.Instrument))
	}
	if p.MarketType != nil {
		t.MarketType = *p.MarketType
	}
	if p.Action != nil {
		t.Action = models.Action(strings.ToLower(string(*p.Action)))
	}
	if p.Quantity != nil {
		t.Quantity = *p.Quantity
	}
	if p.EntryPrice != nil {
		t.EntryPrice = *p.EntryPrice
	}
	if p.EntryTime != nil {
		t.EntryTime = p.EntryTime.UTC()
	}
	if p.StopLoss != nil {
		t.StopLoss = p.StopLoss
	}
	if p.ClearStopLoss {
		t.StopLoss = nil
	}
	if p.Target != nil {
		t.Target = p.Target
	}
	if p.ClearTarget {
		t.Target = nil
	}
	if p.Commission != nil {
		t.Commission = *p.Commission
	}
	if p.Fees != nil {
		t.Fees = *p.Fees
	}
	if p.ContractMultiplier != nil {
		t.ContractMultiplier = *p.ContractMultiplier
		if t.ContractMultiplier.IsZero() {
			t.ContractMultiplier = decimal.NewFromInt(1)
		}
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	if p.Tags != nil {
		t.Tags = normalizeTags(*p.Tags)
	}
	if p.Rating != nil {
		t.Rating = *p.Rating
	}
	if p.IsShared != nil {
		t.IsShared = *p.IsShared
	}
}

// DeleteTrade removes a trade with its exits, metrics and likes.
func (s *Service) DeleteTrade(ctx context.Context, userID, tradeID string) error {
	trade, err := s.store.GetTrade(ctx, userID, tradeID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTrade(ctx, userID, tradeID); err != nil {
		return err
	}
	logging.LogTrade(s.logger, tradeID, trade.Instrument, "delete", string(trade.Status))
	s.invalidate(ctx, trade)
	return nil
}

// GetTrade returns a trade with its exits and metrics.
func (s *Service) GetTrade(ctx context.Context, userID, tradeID string) (*models.TradeWithMetrics, error) {
	trade, err := s.store.GetTrade(ctx, userID, tradeID)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, s.store, trade)
}

func (s *Service) load(ctx context.Context, ds store.DataStore, trade *models.Trade) (*models.TradeWithMetrics, error) {
	exits, err := ds.ListExits(ctx, trade.ID)
	if err != nil {
		return nil, err
	}
	m, err := ds.GetMetrics(ctx, trade.ID)
	if err != nil {
		return nil, err
	}
	return &models.TradeWithMetrics{Trade: *trade, Exits: exits, Metrics: *m}, nil
}

// ListTrades returns the user's trades with metrics, newest entry first.
func (s *Service) ListTrades(ctx context.Context, userID string, filter models.TradeFilter) ([]models.TradeWithMetrics, error) {
	filter.UserID = userID
	return s.store.ListTradesWithMetrics(ctx, filter)
}

// recompute reloads the exits of trade and refreshes its metrics and status.
func (s *Service) recompute(ctx context.Context, tx store.DataStore, trade *models.Trade, prev models.TradeStatus) (*models.TradeWithMetrics, error) {
	exits, err := tx.ListExits(ctx, trade.ID)
	if err != nil {
		return nil, err
	}
	return s.recomputeWith(ctx, tx, trade, exits, prev)
}

// recomputeWith stores fresh metrics and the derived status. A transition into
// closed notifies the owner.
func (s *Service) recomputeWith(ctx context.Context, tx store.DataStore, trade *models.Trade, exits []models.PartialExit, prev models.TradeStatus) (*models.TradeWithMetrics, error) {
	m, err := pnl.Compute(*trade, exits, s.now())
	if err != nil {
		return nil, err
	}
	if err := tx.SaveMetrics(ctx, &m); err != nil {
		return nil, err
	}

	status := pnl.StatusFor(trade.Quantity, m.ExitedQuantity)
	if status != trade.Status {
		trade.Status = status
		if err := tx.UpdateTrade(ctx, trade); err != nil {
			return nil, err
		}
	}

	if status == models.TradeClosed && prev != models.TradeClosed {
		if err := s.notifier.Send(ctx, tx, notify.TradeClosed(trade, &m)); err != nil {
			return nil, err
		}
	}
	return &models.TradeWithMetrics{Trade: *trade, Exits: exits, Metrics: m}, nil
}

// RecalculateAll rebuilds the metrics of every trade of userID and returns the
// number of trades processed.
func (s *Service) RecalculateAll(ctx context.Context, userID string) (int, error) {
	list, err := s.store.ListTrades(ctx, models.TradeFilter{UserID: userID})
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range list {
		trade := &list[i]
		err := s.store.WithTx(ctx, func(tx store.DataStore) error {
			// Keep the stored status as prev so recalculation never re-notifies.
			_, err := s.recompute(ctx, tx, trade, trade.Status)
			return err
		})
		if err != nil {
			return count, apperrors.Wrapf(err, "recalculating trade %s", trade.ID)
		}
		count++
	}

	s.logger.Info().Str("user_id", userID).Int("trades", count).Msg("Trade metrics recalculated")
	s.invalidateUser(ctx, userID)
	return count, nil
}
