package trades

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/logging"
	"tradelens/internal/models"
	"tradelens/internal/pnl"
	"tradelens/internal/store"
)

// ExitInput is one exit leg. A zero ExitTime means now when booking a leg and
// the stored time when updating one.
type ExitInput struct {
	Quantity   decimal.Decimal `json:"quantity"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	ExitTime   time.Time       `json:"exit_time"`
	Commission decimal.Decimal `json:"commission"`
	Fees       decimal.Decimal `json:"fees"`
}

func (s *Service) exitFrom(tradeID string, in ExitInput) *models.PartialExit {
	at := in.ExitTime
	if at.IsZero() {
		at = s.now()
	}
	return &models.PartialExit{
		TradeID:    tradeID,
		Quantity:   in.Quantity,
		ExitPrice:  in.ExitPrice,
		ExitTime:   at.UTC(),
		Commission: in.Commission,
		Fees:       in.Fees,
	}
}

// AddPartialExit books an exit leg and refreshes the trade metrics.
func (s *Service) AddPartialExit(ctx context.Context, userID, tradeID string, in ExitInput) (*models.TradeWithMetrics, error) {
	var out *models.TradeWithMetrics
	err := s.store.WithTx(ctx, func(tx store.DataStore) error {
		trade, err := tx.GetTrade(ctx, userID, tradeID)
		if err != nil {
			return err
		}
		exits, err := tx.ListExits(ctx, trade.ID)
		if err != nil {
			return err
		}

		exit := s.exitFrom(trade.ID, in)
		if err := pnl.ValidateExit(trade, exits, exit); err != nil {
			return err
		}
		if err := tx.AddExit(ctx, exit); err != nil {
			return err
		}
		out, err = s.recomputeWith(ctx, tx, trade, append(exits, *exit), trade.Status)
		return err
	})
	if err != nil {
		return nil, err
	}

	logging.LogTrade(s.logger, tradeID, out.Trade.Instrument, "exit", string(out.Trade.Status))
	s.invalidate(ctx, &out.Trade)
	return out, nil
}

// UpdatePartialExit replaces the values of an exit leg.
func (s *Service) UpdatePartialExit(ctx context.Context, userID, tradeID, exitID string, in ExitInput) (*models.TradeWithMetrics, error) {
	var out *models.TradeWithMetrics
	err := s.store.WithTx(ctx, func(tx store.DataStore) error {
		trade, err := tx.GetTrade(ctx, userID, tradeID)
		if err != nil {
			return err
		}
		exits, err := tx.ListExits(ctx, trade.ID)
		if err != nil {
			return err
		}

		others, prev := withoutExit(exits, exitID)
		if prev == nil {
			return apperrors.NotFound("exit", exitID)
		}
		if in.ExitTime.IsZero() {
			in.ExitTime = prev.ExitTime
		}

		exit := s.exitFrom(trade.ID, in)
		exit.ID = exitID
		// Validate against the other legs only, as if the trade were reopened.
		if err := pnl.ValidateExit(trade, others, exit); err != nil {
			return err
		}
		if err := tx.UpdateExit(ctx, exit); err != nil {
			return err
		}
		out, err = s.recomputeWith(ctx, tx, trade, append(others, *exit), trade.Status)
		return err
	})
	if err != nil {
		return nil, err
	}

	logging.LogTrade(s.logger, tradeID, out.Trade.Instrument, "update_exit", string(out.Trade.Status))
	s.invalidate(ctx, &out.Trade)
	return out, nil
}

// DeletePartialExit removes an exit leg. Removing a leg of a closed trade
// reopens it.
func (s *Service) DeletePartialExit(ctx context.Context, userID, tradeID, exitID string) (*models.TradeWithMetrics, error) {
	var out *models.TradeWithMetrics
	err := s.store.WithTx(ctx, func(tx store.DataStore) error {
		trade, err := tx.GetTrade(ctx, userID, tradeID)
		if err != nil {
			return err
		}
		exits, err := tx.ListExits(ctx, trade.ID)
		if err != nil {
			return err
		}
		others, prev := withoutExit(exits, exitID)
		if prev == nil {
			return apperrors.NotFound("exit", exitID)
		}
		if err := tx.DeleteExit(ctx, trade.ID, exitID); err != nil {
			return err
		}
		out, err = s.recomputeWith(ctx, tx, trade, others, trade.Status)
		return err
	})
	if err != nil {
		return nil, err
	}

	logging.LogTrade(s.logger, tradeID, out.Trade.Instrument, "delete_exit", string(out.Trade.Status))
	s.invalidate(ctx, &out.Trade)
	return out, nil
}

// CloseInput closes the remaining quantity of a trade.
type CloseInput struct {
	ExitPrice  decimal.Decimal `json:"exit_price"`
	ExitTime   time.Time       `json:"exit_time"`
	Commission decimal.Decimal `json:"commission"`
	Fees       decimal.Decimal `json:"fees"`
}

// CloseTrade books a final exit leg for the remaining quantity.
func (s *Service) CloseTrade(ctx context.Context, userID, tradeID string, in CloseInput) (*models.TradeWithMetrics, error) {
	trade, err := s.store.GetTrade(ctx, userID, tradeID)
	if err != nil {
		return nil, err
	}
	exits, err := s.store.ListExits(ctx, trade.ID)
	if err != nil {
		return nil, err
	}
	remaining := pnl.Remaining(trade, exits)
	if !remaining.IsPositive() {
		return nil, apperrors.NewTradeError(trade.ID, "close", "no open quantity left", apperrors.ErrTradeClosed)
	}

	return s.AddPartialExit(ctx, userID, tradeID, ExitInput{
		Quantity:   remaining,
		ExitPrice:  in.ExitPrice,
		ExitTime:   in.ExitTime,
		Commission: in.Commission,
		Fees:       in.Fees,
	})
}

// withoutExit splits exits into the legs other than id and the leg itself,
// which is nil when id is unknown.
func withoutExit(exits []models.PartialExit, id string) ([]models.PartialExit, *models.PartialExit) {
	out := make([]models.PartialExit, 0, len(exits))
	var match *models.PartialExit
	for i := range exits {
		if exits[i].ID == id {
			match = &exits[i]
			continue
		}
		out = append(out, exits[i])
	}
	return out, match
}
