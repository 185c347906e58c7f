package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
)

var tradeColumns = []string{
	"id", "user_id", "account_id", "strategy_id", "instrument", "market_type", "action",
	"quantity", "entry_price", "entry_time", "stop_loss", "target", "commission", "fees",
	"contract_multiplier", "status", "notes", "tags", "rating", "is_shared", "created_at", "updated_at",
}

var metricsColumns = []string{
	"trade_id", "exited_quantity", "remaining_quantity", "avg_exit_price", "gross_pnl",
	"total_commission", "total_fees", "net_pnl", "percent_gain", "r_multiple", "result",
	"duration_seconds", "last_exit_time", "updated_at",
}

const exitColumns = "id, trade_id, quantity, exit_price, exit_time, commission, fees, created_at"

// prefixed renders table.col AS "prefix.col" pairs for nested struct scanning.
func prefixed(table, prefix string, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf(`%s.%s AS "%s.%s"`, table, c, prefix, c)
	}
	return strings.Join(parts, ", ")
}

// ============================================================================
// Trades
// ============================================================================

// CreateTrade inserts a new trade.
func (s *SQLStore) CreateTrade(ctx context.Context, t *models.Trade) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := utcNow()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Tags == nil {
		t.Tags = models.StringList{}
	}

	_, err := s.exec(ctx, `
		INSERT INTO trades (`+strings.Join(tradeColumns, ", ")+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.UserID, t.AccountID, t.StrategyID, t.Instrument, t.MarketType, t.Action,
		t.Quantity, t.EntryPrice, t.EntryTime.UTC(), t.StopLoss, t.Target, t.Commission, t.Fees,
		t.ContractMultiplier, t.Status, t.Notes, t.Tags, t.Rating, t.IsShared, t.CreatedAt.UTC(), t.UpdatedAt)
	return dbError("trade", t.ID, err)
}

// UpdateTrade overwrites the editable fields of a trade owned by t.UserID.
func (s *SQLStore) UpdateTrade(ctx context.Context, t *models.Trade) error {
	t.UpdatedAt = utcNow()
	return s.execOne(ctx, "trade", t.ID, `
		UPDATE trades SET
			account_id = ?, strategy_id = ?, instrument = ?, market_type = ?, action = ?,
			quantity = ?, entry_price = ?, entry_time = ?, stop_loss = ?, target = ?,
			commission = ?, fees = ?, contract_multiplier = ?, status = ?, notes = ?,
			tags = ?, rating = ?, is_shared = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, t.AccountID, t.StrategyID, t.Instrument, t.MarketType, t.Action,
		t.Quantity, t.EntryPrice, t.EntryTime.UTC(), t.StopLoss, t.Target,
		t.Commission, t.Fees, t.ContractMultiplier, t.Status, t.Notes,
		t.Tags, t.Rating, t.IsShared, t.UpdatedAt, t.ID, t.UserID)
}

// DeleteTrade removes a trade together with its exits, metrics and likes in
// one transaction.
func (s *SQLStore) DeleteTrade(ctx context.Context, userID, id string) error {
	return s.inTx(ctx, func(tx *SQLStore) error {
		var owner string
		if err := tx.get(ctx, &owner, "SELECT user_id FROM trades WHERE id = ?", id); err != nil {
			return dbError("trade", id, err)
		}
		if owner != userID {
			return apperrors.NotFound("trade", id)
		}
		for _, q := range []string{
			"DELETE FROM trade_likes WHERE trade_id = ?",
			"DELETE FROM partial_exits WHERE trade_id = ?",
			"DELETE FROM trade_metrics WHERE trade_id = ?",
		} {
			if _, err := tx.exec(ctx, q, id); err != nil {
				return dbError("trade", id, err)
			}
		}
		return tx.execOne(ctx, "trade", id, "DELETE FROM trades WHERE id = ? AND user_id = ?", id, userID)
	})
}

// GetTrade retrieves a trade owned by userID.
func (s *SQLStore) GetTrade(ctx context.Context, userID, id string) (*models.Trade, error) {
	var t models.Trade
	err := s.get(ctx, &t, "SELECT "+strings.Join(tradeColumns, ", ")+" FROM trades WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return nil, dbError("trade", id, err)
	}
	return &t, nil
}

// GetSharedTrade retrieves a trade regardless of owner, provided it is shared.
func (s *SQLStore) GetSharedTrade(ctx context.Context, id string) (*models.Trade, error) {
	var t models.Trade
	err := s.get(ctx, &t, "SELECT "+strings.Join(tradeColumns, ", ")+" FROM trades WHERE id = ? AND is_shared = ?", id, true)
	if err != nil {
		return nil, dbError("trade", id, err)
	}
	return &t, nil
}

// tradeWhere builds the WHERE clause for a trade filter against table alias a.
func tradeWhere(a string, f models.TradeFilter) (string, []interface{}) {
	where := " WHERE 1=1"
	args := []interface{}{}

	if f.UserID != "" {
		where += " AND " + a + ".user_id = ?"
		args = append(args, f.UserID)
	}
	if f.AccountID != "" {
		where += " AND " + a + ".account_id = ?"
		args = append(args, f.AccountID)
	}
	if f.StrategyID != "" {
		where += " AND " + a + ".strategy_id = ?"
		args = append(args, f.StrategyID)
	}
	if f.Instrument != "" {
		where += " AND UPPER(" + a + ".instrument) = ?"
		args = append(args, strings.ToUpper(f.Instrument))
	}
	if f.Status != "" {
		where += " AND " + a + ".status = ?"
		args = append(args, f.Status)
	}
	if f.Tag != "" {
		where += " AND " + a + ".tags LIKE ?"
		args = append(args, `%"`+f.Tag+`"%`)
	}
	if f.From != nil {
		where += " AND " + a + ".entry_time >= ?"
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where += " AND " + a + ".entry_time <= ?"
		args = append(args, f.To.UTC())
	}
	if f.SharedOnly {
		where += " AND " + a + ".is_shared = ?"
		args = append(args, true)
	}
	return where, args
}

// ListTrades returns trades matching the filter, newest entry first.
func (s *SQLStore) ListTrades(ctx context.Context, f models.TradeFilter) ([]models.Trade, error) {
	where, args := tradeWhere("t", f)
	query := "SELECT " + prefixedPlain("t", tradeColumns) + " FROM trades t" + where + " ORDER BY t.entry_time DESC, t.id"
	query, args = paginate(query, args, f.Limit, f.Offset)

	trades := []models.Trade{}
	if err := s.selectRows(ctx, &trades, query, args...); err != nil {
		return nil, dbError("trade", "", fmt.Errorf("failed to query trades: %w", err))
	}
	return trades, nil
}

// ListTradesWithMetrics returns trades joined with their metrics, newest entry first.
func (s *SQLStore) ListTradesWithMetrics(ctx context.Context, f models.TradeFilter) ([]models.TradeWithMetrics, error) {
	where, args := tradeWhere("t", f)
	query := "SELECT " + prefixed("t", "trade", tradeColumns) + ", " + prefixed("m", "metrics", metricsColumns) +
		" FROM trades t JOIN trade_metrics m ON m.trade_id = t.id" + where +
		" ORDER BY t.entry_time DESC, t.id"
	query, args = paginate(query, args, f.Limit, f.Offset)

	rows := []models.TradeWithMetrics{}
	if err := s.selectRows(ctx, &rows, query, args...); err != nil {
		return nil, dbError("trade", "", fmt.Errorf("failed to query trades: %w", err))
	}
	return rows, nil
}

// ListUserIDsWithTrades returns every user that has at least one trade.
func (s *SQLStore) ListUserIDsWithTrades(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.selectRows(ctx, &ids, "SELECT DISTINCT user_id FROM trades ORDER BY user_id"); err != nil {
		return nil, dbError("trade", "", err)
	}
	return ids, nil
}

func prefixedPlain(table string, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = table + "." + c
	}
	return strings.Join(parts, ", ")
}

// ============================================================================
// Partial exits
// ============================================================================

// AddExit inserts an exit leg.
func (s *SQLStore) AddExit(ctx context.Context, e *models.PartialExit) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = utcNow()
	}
	_, err := s.exec(ctx, `
		INSERT INTO partial_exits (`+exitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.TradeID, e.Quantity, e.ExitPrice, e.ExitTime.UTC(), e.Commission, e.Fees, e.CreatedAt.UTC())
	return dbError("partial_exit", e.ID, err)
}

// UpdateExit overwrites an exit leg.
func (s *SQLStore) UpdateExit(ctx context.Context, e *models.PartialExit) error {
	return s.execOne(ctx, "partial_exit", e.ID, `
		UPDATE partial_exits SET quantity = ?, exit_price = ?, exit_time = ?, commission = ?, fees = ?
		WHERE id = ? AND trade_id = ?
	`, e.Quantity, e.ExitPrice, e.ExitTime.UTC(), e.Commission, e.Fees, e.ID, e.TradeID)
}

// DeleteExit removes an exit leg.
func (s *SQLStore) DeleteExit(ctx context.Context, tradeID, exitID string) error {
	return s.execOne(ctx, "partial_exit", exitID, "DELETE FROM partial_exits WHERE id = ? AND trade_id = ?", exitID, tradeID)
}

// ListExits returns the exit legs of a trade in chronological order.
func (s *SQLStore) ListExits(ctx context.Context, tradeID string) ([]models.PartialExit, error) {
	exits := []models.PartialExit{}
	err := s.selectRows(ctx, &exits, "SELECT "+exitColumns+" FROM partial_exits WHERE trade_id = ? ORDER BY exit_time, created_at", tradeID)
	if err != nil {
		return nil, dbError("partial_exit", "", err)
	}
	return exits, nil
}

// ============================================================================
// Metrics
// ============================================================================

// SaveMetrics inserts or replaces the metrics row of a trade.
func (s *SQLStore) SaveMetrics(ctx context.Context, m *models.TradeMetrics) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = utcNow()
	}
	var lastExit interface{}
	if m.LastExitTime != nil {
		lastExit = m.LastExitTime.UTC()
	}

	_, err := s.exec(ctx, `
		INSERT INTO trade_metrics (`+strings.Join(metricsColumns, ", ")+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (trade_id) DO UPDATE SET
			exited_quantity = excluded.exited_quantity,
			remaining_quantity = excluded.remaining_quantity,
			avg_exit_price = excluded.avg_exit_price,
			gross_pnl = excluded.gross_pnl,
			total_commission = excluded.total_commission,
			total_fees = excluded.total_fees,
			net_pnl = excluded.net_pnl,
			percent_gain = excluded.percent_gain,
			r_multiple = excluded.r_multiple,
			result = excluded.result,
			duration_seconds = excluded.duration_seconds,
			last_exit_time = excluded.last_exit_time,
			updated_at = excluded.updated_at
	`, m.TradeID, m.ExitedQuantity, m.RemainingQuantity, m.AvgExitPrice, m.GrossPnL,
		m.TotalCommission, m.TotalFees, m.NetPnL, m.PercentGain, m.RMultiple, m.Result,
		m.DurationSeconds, lastExit, m.UpdatedAt.UTC())
	return dbError("trade_metrics", m.TradeID, err)
}

// GetMetrics retrieves the metrics of a trade.
func (s *SQLStore) GetMetrics(ctx context.Context, tradeID string) (*models.TradeMetrics, error) {
	var m models.TradeMetrics
	err := s.get(ctx, &m, "SELECT "+strings.Join(metricsColumns, ", ")+" FROM trade_metrics WHERE trade_id = ?", tradeID)
	if err != nil {
		return nil, dbError("trade_metrics", tradeID, err)
	}
	return &m, nil
}
