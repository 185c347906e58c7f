package trades

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelens/internal/cache"
	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
	"tradelens/internal/notify"
	"tradelens/internal/store"
)

type recordingNotifier struct {
	sent []notify.Notification
}

func (r *recordingNotifier) Send(_ context.Context, _ store.DataStore, n notify.Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) count(t models.NotificationType) int {
	n := 0
	for _, s := range r.sent {
		if s.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	svc      *Service
	store    *store.SQLStore
	cache    *cache.MemoryStore
	notifier *recordingNotifier
	now      time.Time
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ds, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "trades.db"), store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	ctx := context.Background()
	for _, id := range []string{"u1", "u2"} {
		_, err := ds.UpsertUser(ctx, &models.User{ID: id, Email: id + "@example.com"})
		require.NoError(t, err)
	}

	f := &fixture{
		store:    ds,
		cache:    cache.NewMemoryStore(),
		notifier: &recordingNotifier{},
		now:      time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(ds, f.cache, time.Minute, f.notifier, zerolog.Nop())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) longTrade() TradeInput {
	return TradeInput{
		Instrument: "aapl",
		Action:     models.ActionBuy,
		Quantity:   d("100"),
		EntryPrice: d("50"),
		EntryTime:  f.now.Add(-2 * time.Hour),
		StopLoss:   dp("48"),
		Commission: d("1"),
		Tags:       []string{"Breakout", "breakout", " earnings "},
	}
}

func TestCreateOpenTrade(t *testing.T) {
	f := newFixture(t)
	out, err := f.svc.CreateTrade(context.Background(), "u1", f.longTrade())
	require.NoError(t, err)

	assert.Equal(t, "AAPL", out.Trade.Instrument)
	assert.Equal(t, models.MarketStocks, out.Trade.MarketType)
	assert.Equal(t, models.TradeOpen, out.Trade.Status)
	assert.Equal(t, models.StringList{"breakout", "earnings"}, out.Trade.Tags)
	assert.True(t, out.Metrics.RemainingQuantity.Equal(d("100")))
	assert.Equal(t, models.ResultNone, out.Metrics.Result)
	assert.Empty(t, f.notifier.sent)
}

func TestCreateClosedTrade(t *testing.T) {
	f := newFixture(t)
	in := f.longTrade()
	in.ExitPrice = dp("55")
	in.ExitCommission = d("1")

	out, err := f.svc.CreateTrade(context.Background(), "u1", in)
	require.NoError(t, err)
	assert.Equal(t, models.TradeClosed, out.Trade.Status)
	require.Len(t, out.Exits, 1)
	// (55 - 50) * 100 - 2 commission
	assert.True(t, out.Metrics.NetPnL.Equal(d("498")), out.Metrics.NetPnL.String())
	assert.Equal(t, models.ResultWin, out.Metrics.Result)
	assert.Equal(t, 1, f.notifier.count(models.NotifyTradeClosed))
}

func TestCreateTradeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.longTrade()
	in.Quantity = d("0")
	_, err := f.svc.CreateTrade(ctx, "u1", in)
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	in = f.longTrade()
	exitTime := in.EntryTime.Add(-time.Minute)
	in.ExitPrice = dp("51")
	in.ExitTime = &exitTime
	_, err = f.svc.CreateTrade(ctx, "u1", in)
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	in = f.longTrade()
	missing := "nope"
	in.AccountID = &missing
	_, err = f.svc.CreateTrade(ctx, "u1", in)
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}

func TestPartialExitsCloseTrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateTrade(ctx, "u1", f.longTrade())
	require.NoError(t, err)
	id := created.Trade.ID

	out, err := f.svc.AddPartialExit(ctx, "u1", id, ExitInput{Quantity: d("40"), ExitPrice: d("52")})
	require.NoError(t, err)
	assert.Equal(t, models.TradePartiallyClosed, out.Trade.Status)
	assert.True(t, out.Metrics.RemainingQuantity.Equal(d("60")))

	_, err = f.svc.AddPartialExit(ctx, "u1", id, ExitInput{Quantity: d("61"), ExitPrice: d("52")})
	assert.ErrorIs(t, err, apperrors.ErrOverExit)

	out, err = f.svc.CloseTrade(ctx, "u1", id, CloseInput{ExitPrice: d("47")})
	require.NoError(t, err)
	assert.Equal(t, models.TradeClosed, out.Trade.Status)
	require.Len(t, out.Exits, 2)
	assert.True(t, out.Exits[1].Quantity.Equal(d("60")))
	// 40*2 + 60*(-3) - 1 = -101
	assert.True(t, out.Metrics.NetPnL.Equal(d("-101")), out.Metrics.NetPnL.String())
	assert.Equal(t, models.ResultLoss, out.Metrics.Result)
	assert.Equal(t, 1, f.notifier.count(models.NotifyTradeClosed))

	_, err = f.svc.AddPartialExit(ctx, "u1", id, ExitInput{Quantity: d("1"), ExitPrice: d("50")})
	assert.ErrorIs(t, err, apperrors.ErrTradeClosed)
	_, err = f.svc.CloseTrade(ctx, "u1", id, CloseInput{ExitPrice: d("50")})
	assert.ErrorIs(t, err, apperrors.ErrTradeClosed)

	stored, err := f.svc.GetTrade(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, models.TradeClosed, stored.Trade.Status)
	assert.True(t, stored.Metrics.NetPnL.Equal(d("-101")))
}

func TestDeleteExitReopensTrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.longTrade()
	in.ExitPrice = dp("55")
	created, err := f.svc.CreateTrade(ctx, "u1", in)
	require.NoError(t, err)
	exitID := created.Exits[0].ID

	out, err := f.svc.DeletePartialExit(ctx, "u1", created.Trade.ID, exitID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeOpen, out.Trade.Status)
	assert.Nil(t, out.Metrics.AvgExitPrice)
	assert.True(t, out.Metrics.NetPnL.Equal(d("-1")), "entry commission only")

	_, err = f.svc.DeletePartialExit(ctx, "u1", created.Trade.ID, exitID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// Closing again notifies again.
	_, err = f.svc.CloseTrade(ctx, "u1", created.Trade.ID, CloseInput{ExitPrice: d("56")})
	require.NoError(t, err)
	assert.Equal(t, 2, f.notifier.count(models.NotifyTradeClosed))
}

func TestUpdateExitRecomputes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateTrade(ctx, "u1", f.longTrade())
	require.NoError(t, err)
	out, err := f.svc.AddPartialExit(ctx, "u1", created.Trade.ID, ExitInput{Quantity: d("50"), ExitPrice: d("52")})
	require.NoError(t, err)
	exitID := out.Exits[0].ID

	out, err = f.svc.UpdatePartialExit(ctx, "u1", created.Trade.ID, exitID, ExitInput{Quantity: d("100"), ExitPrice: d("51")})
	require.NoError(t, err)
	assert.Equal(t, models.TradeClosed, out.Trade.Status)
	assert.True(t, out.Metrics.GrossPnL.Equal(d("100")))

	_, err = f.svc.UpdatePartialExit(ctx, "u1", created.Trade.ID, exitID, ExitInput{Quantity: d("101"), ExitPrice: d("51")})
	assert.ErrorIs(t, err, apperrors.ErrOverExit)
}

func TestUpdateExitKeepsStoredTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateTrade(ctx, "u1", f.longTrade())
	require.NoError(t, err)
	exitAt := f.now.Add(-time.Hour)
	out, err := f.svc.AddPartialExit(ctx, "u1", created.Trade.ID, ExitInput{Quantity: d("100"), ExitPrice: d("52"), ExitTime: exitAt})
	require.NoError(t, err)
	exitID := out.Exits[0].ID

	f.now = f.now.Add(72 * time.Hour)
	out, err = f.svc.UpdatePartialExit(ctx, "u1", created.Trade.ID, exitID, ExitInput{Quantity: d("100"), ExitPrice: d("53")})
	require.NoError(t, err)

	require.Len(t, out.Exits, 1)
	assert.True(t, exitAt.Equal(out.Exits[0].ExitTime), out.Exits[0].ExitTime.String())
	require.NotNil(t, out.Metrics.LastExitTime)
	assert.True(t, exitAt.Equal(*out.Metrics.LastExitTime))
	assert.Equal(t, int64(3600), out.Metrics.DurationSeconds)
	assert.True(t, out.Metrics.GrossPnL.Equal(d("300")))

	movedTo := exitAt.Add(30 * time.Minute)
	out, err = f.svc.UpdatePartialExit(ctx, "u1", created.Trade.ID, exitID, ExitInput{Quantity: d("100"), ExitPrice: d("53"), ExitTime: movedTo})
	require.NoError(t, err)
	assert.True(t, movedTo.Equal(out.Exits[0].ExitTime))
	assert.Equal(t, int64(5400), out.Metrics.DurationSeconds)
}

func TestUpdateTrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateTrade(ctx, "u1", f.longTrade())
	require.NoError(t, err)
	id := created.Trade.ID
	_, err = f.svc.AddPartialExit(ctx, "u1", id, ExitInput{Quantity: d("60"), ExitPrice: d("51")})
	require.NoError(t, err)

	_, err = f.svc.UpdateTrade(ctx, "u1", id, TradePatch{Quantity: dp("50")})
	assert.ErrorIs(t, err, apperrors.ErrOverExit)

	out, err := f.svc.UpdateTrade(ctx, "u1", id, TradePatch{Quantity: dp("60"), ClearStopLoss: true})
	require.NoError(t, err)
	assert.Equal(t, models.TradeClosed, out.Trade.Status, "shrinking to the exited quantity closes the trade")
	assert.Nil(t, out.Trade.StopLoss)
	assert.Nil(t, out.Metrics.RMultiple)

	notes := "sized down"
	out, err = f.svc.UpdateTrade(ctx, "u1", id, TradePatch{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "sized down", out.Trade.Notes)
	assert.Equal(t, 1, f.notifier.count(models.NotifyTradeClosed))
}

func TestShortTradePnL(t *testing.T) {
	f := newFixture(t)
	in := TradeInput{
		Instrument: "ES",
		MarketType: models.MarketFutures,
		Action:     models.ActionSell,
		Quantity:   d("2"),
		EntryPrice: d("5000"),
		EntryTime:  f.now.Add(-time.Hour),
		StopLoss:   dp("5010"),
		ExitPrice:  dp("4990"),
	}
	in.ContractMultiplier = d("50")
	out, err := f.svc.CreateTrade(context.Background(), "u1", in)
	require.NoError(t, err)
	assert.True(t, out.Metrics.NetPnL.Equal(d("1000")), out.Metrics.NetPnL.String())
	require.NotNil(t, out.Metrics.RMultiple)
	assert.True(t, out.Metrics.RMultiple.Equal(d("1")))
}

func TestTradesAreScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateTrade(ctx, "u1", f.longTrade())
	require.NoError(t, err)

	_, err = f.svc.GetTrade(ctx, "u2", created.Trade.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.svc.AddPartialExit(ctx, "u2", created.Trade.ID, ExitInput{Quantity: d("1"), ExitPrice: d("1")})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteTrade(ctx, "u2", created.Trade.ID), apperrors.ErrNotFound)

	list, err := f.svc.ListTrades(ctx, "u2", models.TradeFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, f.svc.DeleteTrade(ctx, "u1", created.Trade.ID))
	_, err = f.svc.GetTrade(ctx, "u1", created.Trade.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSummaryCacheInvalidatedOnMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.longTrade()
	in.ExitPrice = dp("55")
	_, err := f.svc.CreateTrade(ctx, "u1", in)
	require.NoError(t, err)

	sum, err := f.svc.Summary(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalTrades)
	_, found, err := f.cache.Get(ctx, cache.SummaryKey("u1", ""))
	require.NoError(t, err)
	assert.True(t, found)

	_, err = f.svc.CreateTrade(ctx, "u1", in)
	require.NoError(t, err)
	_, found, err = f.cache.Get(ctx, cache.SummaryKey("u1", ""))
	require.NoError(t, err)
	assert.False(t, found)

	sum, err = f.svc.Summary(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalTrades)
}

func TestAccountsAndBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateAccount(ctx, "u1", AccountInput{Name: " "})
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	acct, err := f.svc.CreateAccount(ctx, "u1", AccountInput{Name: "Main", Currency: "usd", StartingBalance: d("10000")})
	require.NoError(t, err)
	assert.Equal(t, "USD", acct.Currency)

	in := f.longTrade()
	in.AccountID = &acct.ID
	in.ExitPrice = dp("55")
	_, err = f.svc.CreateTrade(ctx, "u1", in)
	require.NoError(t, err)

	list, err := f.svc.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Balance.Equal(d("10499")), list[0].Balance.String())

	sum, err := f.svc.Summary(ctx, "u1", acct.ID)
	require.NoError(t, err)
	assert.True(t, sum.StartingBalance.Equal(d("10000")))

	_, err = f.svc.Summary(ctx, "u2", acct.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, f.svc.DeleteAccount(ctx, "u1", acct.ID))
	trades, err := f.svc.ListTrades(ctx, "u1", models.TradeFilter{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Nil(t, trades[0].Trade.AccountID)
}

func TestBreakdownUsesStrategyNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, err := f.svc.CreateStrategy(ctx, "u1", StrategyInput{Name: "Opening range"})
	require.NoError(t, err)

	in := f.longTrade()
	in.StrategyID = &st.ID
	in.ExitPrice = dp("55")
	_, err = f.svc.CreateTrade(ctx, "u1", in)
	require.NoError(t, err)

	groups, err := f.svc.Breakdown(ctx, "u1", "strategy", models.TradeFilter{})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Opening range", groups[0].Label)
}

func TestRecalculateAllDoesNotNotify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.longTrade()
	in.ExitPrice = dp("55")
	_, err := f.svc.CreateTrade(ctx, "u1", in)
	require.NoError(t, err)
	_, err = f.svc.CreateTrade(ctx, "u1", f.longTrade())
	require.NoError(t, err)

	n, err := f.svc.RecalculateAll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, f.notifier.count(models.NotifyTradeClosed))
}

func TestDigest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	win := f.longTrade()
	win.ExitPrice = dp("55")
	_, err := f.svc.CreateTrade(ctx, "u1", win)
	require.NoError(t, err)

	loss := f.longTrade()
	loss.ExitPrice = dp("45")
	_, err = f.svc.CreateTrade(ctx, "u1", loss)
	require.NoError(t, err)

	old := f.longTrade()
	old.EntryTime = f.now.AddDate(0, 0, -3)
	oldExit := f.now.AddDate(0, 0, -2)
	old.ExitPrice = dp("60")
	old.ExitTime = &oldExit
	_, err = f.svc.CreateTrade(ctx, "u1", old)
	require.NoError(t, err)

	from := f.now.Add(-24 * time.Hour)
	digest, err := f.svc.DigestFor(ctx, "u1", from, f.now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, digest.Count)
	assert.True(t, digest.WinRate.Equal(d("50")))
	assert.True(t, digest.NetPnL.Equal(d("-2")), digest.NetPnL.String())

	sent, err := f.svc.SendDigests(ctx, "today", from, f.now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, f.notifier.count(models.NotifyTradeDigest))
}
