package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"tradelens/internal/models"
)

// Property: for any trade with decimal quantities and prices, saving it and
// reading it back yields the same values with no loss of precision.
func TestProperty_TradeRoundTripConsistency(t *testing.T) {
	store, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "property.db"), DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	instruments := []string{"AAPL", "MSFT", "ES", "NQ", "EURUSD", "BTCUSD", "TSLA", "NIFTY"}

	properties.Property("Trade round-trip: save then retrieve produces equivalent data", prop.ForAll(
		func(idx int, action string, qtyUnits int64, qtyExp int32, priceUnits int64, priceExp int32, minutes int) bool {
			ctx := context.Background()

			trade := &models.Trade{
				UserID:             "prop-user",
				Instrument:         instruments[idx%len(instruments)],
				MarketType:         models.MarketStocks,
				Action:             models.Action(action),
				Quantity:           decimal.New(qtyUnits, -qtyExp),
				EntryPrice:         decimal.New(priceUnits, -priceExp),
				EntryTime:          t0.Add(time.Duration(minutes) * time.Minute),
				Commission:         decimal.New(priceUnits%1000, -2),
				Fees:               decimal.Zero,
				ContractMultiplier: decimal.NewFromInt(1),
				Status:             models.TradeOpen,
				Tags:               models.StringList{},
			}
			if err := store.CreateTrade(ctx, trade); err != nil {
				t.Logf("Failed to save trade: %v", err)
				return false
			}

			got, err := store.GetTrade(ctx, trade.UserID, trade.ID)
			if err != nil {
				t.Logf("Failed to get trade: %v", err)
				return false
			}

			return got.Quantity.Equal(trade.Quantity) &&
				got.EntryPrice.Equal(trade.EntryPrice) &&
				got.Commission.Equal(trade.Commission) &&
				got.EntryTime.Equal(trade.EntryTime) &&
				got.Instrument == trade.Instrument &&
				got.Action == trade.Action
		},
		gen.IntRange(0, 100),
		gen.OneConstOf("buy", "sell"),
		gen.Int64Range(1, 1000000),
		gen.Int32Range(0, 4),
		gen.Int64Range(1, 100000000),
		gen.Int32Range(0, 8),
		gen.IntRange(0, 100000),
	))

	properties.TestingRun(t)
}
