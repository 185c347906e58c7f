package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
)

// BreakdownKey selects how trades are grouped.
type BreakdownKey string

const (
	ByStrategy   BreakdownKey = "strategy"
	ByInstrument BreakdownKey = "instrument"
	ByMarketType BreakdownKey = "market_type"
	ByWeekday    BreakdownKey = "weekday"
)

// ParseBreakdownKey validates a breakdown key.
func ParseBreakdownKey(s string) (BreakdownKey, error) {
	switch k := BreakdownKey(strings.ToLower(s)); k {
	case ByStrategy, ByInstrument, ByMarketType, ByWeekday:
		return k, nil
	}
	return "", apperrors.NewValidationError("group_by", s, "unknown breakdown key")
}

// Unassigned labels trades without a strategy.
const Unassigned = "unassigned"

// Group is the aggregate of one breakdown bucket.
type Group struct {
	Key          string           `json:"key"`
	Label        string           `json:"label"`
	Trades       int              `json:"trades"`
	Wins         int              `json:"wins"`
	Losses       int              `json:"losses"`
	WinRate      decimal.Decimal  `json:"win_rate"`
	NetPnL       decimal.Decimal  `json:"net_pnl"`
	ProfitFactor *decimal.Decimal `json:"profit_factor,omitempty"`
	order        int
}

// Breakdown groups closed trades by key. labels optionally maps raw keys (for
// example strategy ids) to display names.
func Breakdown(trades []models.TradeWithMetrics, key BreakdownKey, labels map[string]string) []Group {
	groups := make(map[string][]models.TradeWithMetrics)
	order := make(map[string]int)

	for _, t := range Closed(trades) {
		k, o := groupKey(t, key)
		groups[k] = append(groups[k], t)
		order[k] = o
	}

	result := make([]Group, 0, len(groups))
	for k, ts := range groups {
		s := Summarize(ts, decimal.Zero)
		g := Group{
			Key:          k,
			Label:        k,
			Trades:       s.TotalTrades,
			Wins:         s.Wins,
			Losses:       s.Losses,
			WinRate:      s.WinRate,
			NetPnL:       s.NetPnL,
			ProfitFactor: s.ProfitFactor,
			order:        order[k],
		}
		if l, ok := labels[k]; ok {
			g.Label = l
		}
		result = append(result, g)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].order != result[j].order {
			return result[i].order < result[j].order
		}
		return result[i].Key < result[j].Key
	})
	return result
}

func groupKey(t models.TradeWithMetrics, key BreakdownKey) (string, int) {
	switch key {
	case ByStrategy:
		if t.Trade.StrategyID == nil || *t.Trade.StrategyID == "" {
			return Unassigned, 0
		}
		return *t.Trade.StrategyID, 0
	case ByMarketType:
		if t.Trade.MarketType == "" {
			return string(models.MarketStocks), 0
		}
		return string(t.Trade.MarketType), 0
	case ByWeekday:
		wd := t.Trade.EntryTime.Weekday()
		// Monday first
		return wd.String(), (int(wd) + 6) % 7
	default:
		return strings.ToUpper(t.Trade.Instrument), 0
	}
}

// DayPnL is the realized result of one calendar day.
type DayPnL struct {
	Date   string          `json:"date"`
	NetPnL decimal.Decimal `json:"net_pnl"`
	Trades int             `json:"trades"`
	Wins   int             `json:"wins"`
}

// DailyPnL buckets closed trades by the calendar day of their last exit in loc.
func DailyPnL(trades []models.TradeWithMetrics, loc *time.Location) []DayPnL {
	if loc == nil {
		loc = time.UTC
	}

	days := make(map[string]*DayPnL)
	var keys []string
	for _, t := range Closed(trades) {
		day := exitTime(t).In(loc).Format("2006-01-02")
		d, ok := days[day]
		if !ok {
			d = &DayPnL{Date: day}
			days[day] = d
			keys = append(keys, day)
		}
		d.NetPnL = d.NetPnL.Add(t.Metrics.NetPnL)
		d.Trades++
		if t.Metrics.Result == models.ResultWin {
			d.Wins++
		}
	}

	sort.Strings(keys)
	result := make([]DayPnL, len(keys))
	for i, k := range keys {
		result[i] = *days[k]
	}
	return result
}

// EquityPoint is one step of the equity curve.
type EquityPoint struct {
	Time     time.Time       `json:"time"`
	TradeID  string          `json:"trade_id"`
	NetPnL   decimal.Decimal `json:"net_pnl"`
	Equity   decimal.Decimal `json:"equity"`
	Drawdown decimal.Decimal `json:"drawdown"`
}

// EquityCurve returns running equity after each closed trade, ordered by exit time.
func EquityCurve(trades []models.TradeWithMetrics, startingBalance decimal.Decimal) []EquityPoint {
	closed := Closed(trades)
	points := make([]EquityPoint, 0, len(closed))

	equity := startingBalance
	peak := startingBalance
	for _, t := range closed {
		equity = equity.Add(t.Metrics.NetPnL)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		points = append(points, EquityPoint{
			Time:     exitTime(t),
			TradeID:  t.Trade.ID,
			NetPnL:   t.Metrics.NetPnL,
			Equity:   equity,
			Drawdown: peak.Sub(equity),
		})
	}
	return points
}
