package pnl

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"tradelens/internal/models"
)

func cents(v int) decimal.Decimal {
	return decimal.New(int64(v), -2)
}

// buildTrade creates a trade of qty units split into legs exits of equal size.
func buildTrade(action models.Action, qty, legs, entryCents, exitCents, commCents, feeCents int) (models.Trade, []models.PartialExit) {
	trade := models.Trade{
		ID:         "prop",
		Action:     action,
		Quantity:   decimal.NewFromInt(int64(qty * legs)),
		EntryPrice: cents(entryCents),
		EntryTime:  entry,
		Commission: cents(commCents),
		Fees:       cents(feeCents),
	}
	exits := make([]models.PartialExit, legs)
	for i := range exits {
		exits[i] = models.PartialExit{
			Quantity:   decimal.NewFromInt(int64(qty)),
			ExitPrice:  cents(exitCents + i),
			ExitTime:   entry.Add(time.Duration(i+1) * time.Minute),
			Commission: cents(commCents),
			Fees:       cents(feeCents),
		}
	}
	return trade, exits
}

// Property: net P&L always equals gross P&L minus total commission and total fees.
func TestProperty_NetEqualsGrossMinusCosts(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("net = gross - commission - fees", prop.ForAll(
		func(action string, qty, legs, entryCents, exitCents, commCents, feeCents int) bool {
			trade, exits := buildTrade(models.Action(action), qty, legs, entryCents, exitCents, commCents, feeCents)
			m, err := Compute(trade, exits, entry)
			if err != nil {
				return false
			}
			return m.NetPnL.Equal(m.GrossPnL.Sub(m.TotalCommission).Sub(m.TotalFees))
		},
		gen.OneConstOf("buy", "sell"),
		gen.IntRange(1, 500),
		gen.IntRange(1, 5),
		gen.IntRange(1, 1000000),
		gen.IntRange(1, 1000000),
		gen.IntRange(0, 2000),
		gen.IntRange(0, 2000),
	))

	properties.TestingRun(t)
}

// Property: exited plus remaining quantity equals the entered quantity, and the
// status and result agree with the remaining quantity.
func TestProperty_QuantityConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("exited + remaining = quantity", prop.ForAll(
		func(qty, legs, taken int) bool {
			trade, exits := buildTrade(models.ActionBuy, qty, legs, 10000, 10100, 0, 0)
			if taken > legs {
				taken = legs
			}
			exits = exits[:taken]

			m, err := Compute(trade, exits, entry.Add(time.Hour))
			if err != nil {
				return false
			}
			if !m.ExitedQuantity.Add(m.RemainingQuantity).Equal(trade.Quantity) {
				return false
			}
			closed := StatusFor(trade.Quantity, m.ExitedQuantity) == models.TradeClosed
			return closed == (m.Result != models.ResultNone) && closed == m.RemainingQuantity.IsZero()
		},
		gen.IntRange(1, 100),
		gen.IntRange(1, 6),
		gen.IntRange(0, 6),
	))

	properties.TestingRun(t)
}

// Property: flipping the side of a trade negates its gross P&L.
func TestProperty_DirectionSymmetry(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("gross(long) = -gross(short)", prop.ForAll(
		func(qty, legs, entryCents, exitCents int) bool {
			long, exits := buildTrade(models.ActionBuy, qty, legs, entryCents, exitCents, 0, 0)
			short := long
			short.Action = models.ActionSell

			ml, err1 := Compute(long, exits, entry)
			ms, err2 := Compute(short, exits, entry)
			if err1 != nil || err2 != nil {
				return false
			}
			return ml.GrossPnL.Equal(ms.GrossPnL.Neg())
		},
		gen.IntRange(1, 500),
		gen.IntRange(1, 5),
		gen.IntRange(1, 1000000),
		gen.IntRange(1, 1000000),
	))

	properties.TestingRun(t)
}
