package csvio

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
	"tradelens/internal/store"
	"tradelens/internal/trades"
)

func newService(t *testing.T) *trades.Service {
	t.Helper()
	ds, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "csv.db"), store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	for _, id := range []string{"u1", "u2"} {
		_, err := ds.UpsertUser(context.Background(), &models.User{ID: id, Email: id + "@example.com"})
		require.NoError(t, err)
	}
	return trades.NewService(ds, nil, 0, nil, zerolog.Nop())
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func TestExportImportRoundTrip(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	entry := time.Date(2024, 4, 2, 14, 30, 0, 0, time.UTC)
	exit := entry.Add(3 * time.Hour)

	_, err := svc.CreateTrade(ctx, "u1", trades.TradeInput{
		Instrument: "aapl", Action: models.ActionBuy, Quantity: d("100"), EntryPrice: d("50"),
		EntryTime: entry, StopLoss: dp("48"), Commission: d("1"), Tags: []string{"Breakout", "gap"},
		ExitPrice: dp("55"), ExitTime: &exit, ExitCommission: d("1"), Notes: "clean, textbook",
	})
	require.NoError(t, err)
	_, err = svc.CreateTrade(ctx, "u1", trades.TradeInput{
		Instrument: "ES", MarketType: models.MarketFutures, Action: models.ActionSell, Quantity: d("2"),
		EntryPrice: d("5000"), EntryTime: entry.Add(time.Hour), ContractMultiplier: d("50"),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := Export(ctx, &buf, svc, "u1", models.TradeFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	header := strings.SplitN(buf.String(), "\n", 2)[0]
	assert.Equal(t, strings.Join(Fields, ","), header)
	assert.Contains(t, buf.String(), `"clean, textbook"`)
	assert.Contains(t, buf.String(), "breakout;gap")

	res, err := Import(ctx, bytes.NewReader(buf.Bytes()), svc, "u2", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Empty(t, res.Errors)

	imported, err := svc.ListTrades(ctx, "u2", models.TradeFilter{})
	require.NoError(t, err)
	require.Len(t, imported, 2)
	for _, tr := range imported {
		switch tr.Trade.Instrument {
		case "AAPL":
			assert.Equal(t, models.TradeClosed, tr.Trade.Status)
			assert.True(t, tr.Metrics.NetPnL.Equal(d("498")), tr.Metrics.NetPnL.String())
			assert.Equal(t, models.StringList{"breakout", "gap"}, tr.Trade.Tags)
			assert.True(t, tr.Metrics.LastExitTime.Equal(exit))
		case "ES":
			assert.Equal(t, models.TradeOpen, tr.Trade.Status)
			assert.True(t, tr.Trade.ContractMultiplier.Equal(d("50")))
			assert.Equal(t, models.MarketFutures, tr.Trade.MarketType)
		default:
			t.Fatalf("unexpected instrument %s", tr.Trade.Instrument)
		}
	}
}

func TestImportReportsBadRows(t *testing.T) {
	svc := newService(t)
	input := strings.Join([]string{
		"instrument,action,quantity,entry_price,entry_time",
		"MSFT,buy,10,300,2024-01-05",
		"MSFT,buy,ten,300,2024-01-05",
		"MSFT,hold,10,300,2024-01-05",
		"MSFT,buy,10,300,yesterday",
		"NVDA,sell,5,900,2024-01-06 10:15",
	}, "\n")

	res, err := Import(context.Background(), strings.NewReader(input), svc, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	require.Len(t, res.Errors, 3)
	assert.Equal(t, []int{3, 4, 5}, []int{res.Errors[0].Line, res.Errors[1].Line, res.Errors[2].Line})
	assert.Contains(t, res.Errors[0].Message, "quantity")
	assert.Contains(t, res.Errors[2].Message, "entry_time")
}

func TestImportWithMapping(t *testing.T) {
	svc := newService(t)
	input := "Symbol,Side,Qty,Price,Date,Close Price\nTSLA,BUY,3,200,2024-02-01,210\n"

	mapping, err := ParseMapping("Symbol=instrument, Side=action,Qty=quantity,Price=entry_price,Date=entry_time,Close Price=exit_price")
	require.NoError(t, err)

	res, err := Import(context.Background(), strings.NewReader(input), svc, "u1", mapping)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Equal(t, 1, res.Imported)

	got, err := svc.GetTrade(context.Background(), "u1", res.TradeIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "TSLA", got.Trade.Instrument)
	assert.True(t, got.Metrics.NetPnL.Equal(d("30")))
}

func TestImportRejectsUnknownMappingTarget(t *testing.T) {
	svc := newService(t)
	_, err := Import(context.Background(), strings.NewReader("a\n1\n"), svc, "u1", map[string]string{"a": "ticker"})
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	_, err = ParseMapping("nonsense")
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}

func TestRowsAreGocsvCompatible(t *testing.T) {
	out, err := gocsv.MarshalString([]*Row{{Instrument: "AAPL", Notes: "line\nbreak"}})
	require.NoError(t, err)

	var rows []*Row
	require.NoError(t, gocsv.UnmarshalString(out, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "line\nbreak", rows[0].Notes)
}
