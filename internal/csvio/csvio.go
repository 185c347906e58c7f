// Package csvio exports trades to CSV and imports them back.
package csvio

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
	"tradelens/internal/trades"
)

// MaxImportRows bounds a single import.
const MaxImportRows = 5000

// Row is one CSV line. Header names are the csv tags.
type Row struct {
	ID                 string `csv:"id"`
	AccountID          string `csv:"account_id"`
	StrategyID         string `csv:"strategy_id"`
	Instrument         string `csv:"instrument"`
	MarketType         string `csv:"market_type"`
	Action             string `csv:"action"`
	Quantity           string `csv:"quantity"`
	EntryPrice         string `csv:"entry_price"`
	EntryTime          string `csv:"entry_time"`
	ExitPrice          string `csv:"exit_price"`
	ExitTime           string `csv:"exit_time"`
	StopLoss           string `csv:"stop_loss"`
	Target             string `csv:"target"`
	Commission         string `csv:"commission"`
	Fees               string `csv:"fees"`
	ExitCommission     string `csv:"exit_commission"`
	ExitFees           string `csv:"exit_fees"`
	ContractMultiplier string `csv:"contract_multiplier"`
	Status             string `csv:"status"`
	GrossPnL           string `csv:"gross_pnl"`
	NetPnL             string `csv:"net_pnl"`
	PercentGain        string `csv:"percent_gain"`
	RMultiple          string `csv:"r_multiple"`
	Result             string `csv:"result"`
	Tags               string `csv:"tags"`
	Rating             string `csv:"rating"`
	IsShared           string `csv:"is_shared"`
	Notes              string `csv:"notes"`
}

// Fields lists the column names understood by Import, in export order.
var Fields = []string{
	"id", "account_id", "strategy_id", "instrument", "market_type", "action",
	"quantity", "entry_price", "entry_time", "exit_price", "exit_time",
	"stop_loss", "target", "commission", "fees", "exit_commission", "exit_fees",
	"contract_multiplier", "status", "gross_pnl", "net_pnl", "percent_gain",
	"r_multiple", "result", "tags", "rating", "is_shared", "notes",
}

// TradeLister lists a user's trades with metrics.
type TradeLister interface {
	ListTrades(ctx context.Context, userID string, filter models.TradeFilter) ([]models.TradeWithMetrics, error)
}

// TradeCreator books a new trade.
type TradeCreator interface {
	CreateTrade(ctx context.Context, userID string, in trades.TradeInput) (*models.TradeWithMetrics, error)
}

// Export writes the trades of userID matching filter to w.
func Export(ctx context.Context, w io.Writer, src TradeLister, userID string, filter models.TradeFilter) (int, error) {
	list, err := src.ListTrades(ctx, userID, filter)
	if err != nil {
		return 0, err
	}
	rows := make([]*Row, 0, len(list))
	for i := range list {
		rows = append(rows, toRow(&list[i]))
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return 0, apperrors.Wrap(err, "writing csv")
	}
	return len(rows), nil
}

func toRow(t *models.TradeWithMetrics) *Row {
	m := t.Metrics
	r := &Row{
		ID:                 t.Trade.ID,
		AccountID:          deref(t.Trade.AccountID),
		StrategyID:         deref(t.Trade.StrategyID),
		Instrument:         t.Trade.Instrument,
		MarketType:         string(t.Trade.MarketType),
		Action:             string(t.Trade.Action),
		Quantity:           t.Trade.Quantity.String(),
		EntryPrice:         t.Trade.EntryPrice.String(),
		EntryTime:          t.Trade.EntryTime.UTC().Format(time.RFC3339),
		StopLoss:           decString(t.Trade.StopLoss),
		Target:             decString(t.Trade.Target),
		Commission:         t.Trade.Commission.String(),
		Fees:               t.Trade.Fees.String(),
		ContractMultiplier: t.Trade.Multiplier().String(),
		Status:             string(t.Trade.Status),
		GrossPnL:           m.GrossPnL.String(),
		NetPnL:             m.NetPnL.String(),
		PercentGain:        m.PercentGain.StringFixed(2),
		RMultiple:          decString(m.RMultiple),
		Result:             string(m.Result),
		Tags:               strings.Join(t.Trade.Tags, ";"),
		Rating:             strconv.Itoa(t.Trade.Rating),
		IsShared:           strconv.FormatBool(t.Trade.IsShared),
		Notes:              t.Trade.Notes,
	}
	// Exit columns round-trip through Import, which books a single full exit.
	if t.IsClosed() && m.AvgExitPrice != nil {
		r.ExitPrice = m.AvgExitPrice.String()
		r.ExitCommission = m.TotalCommission.Sub(t.Trade.Commission).String()
		r.ExitFees = m.TotalFees.Sub(t.Trade.Fees).String()
		if m.LastExitTime != nil {
			r.ExitTime = m.LastExitTime.UTC().Format(time.RFC3339)
		}
	}
	return r
}

// RowError reports why one line of an import was rejected. Line counts the
// header as line 1.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Imported int        `json:"imported"`
	TradeIDs []string   `json:"trade_ids"`
	Errors   []RowError `json:"errors"`
}

// Import reads trades from r and books them for userID. mapping renames input
// headers to Fields; nil means the input uses the export headers. Bad rows are
// reported in the result and do not stop the remaining rows.
func Import(ctx context.Context, r io.Reader, dst TradeCreator, userID string, mapping map[string]string) (*ImportResult, error) {
	normalized, err := applyMapping(r, mapping)
	if err != nil {
		return nil, err
	}

	var rows []*Row
	if err := gocsv.Unmarshal(normalized, &rows); err != nil {
		return nil, apperrors.NewValidationError("file", "", fmt.Sprintf("unreadable csv: %v", err))
	}
	if len(rows) > MaxImportRows {
		return nil, apperrors.NewValidationError("file", len(rows), fmt.Sprintf("at most %d rows per import", MaxImportRows))
	}

	res := &ImportResult{TradeIDs: []string{}, Errors: []RowError{}}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		line := i + 2
		in, err := row.input()
		if err == nil {
			var t *models.TradeWithMetrics
			if t, err = dst.CreateTrade(ctx, userID, in); err == nil {
				res.Imported++
				res.TradeIDs = append(res.TradeIDs, t.Trade.ID)
				continue
			}
		}
		if !apperrors.Is(err, apperrors.ErrInputValidation) && !apperrors.Is(err, apperrors.ErrOverExit) {
			return res, err
		}
		res.Errors = append(res.Errors, RowError{Line: line, Message: err.Error()})
	}
	return res, nil
}

// applyMapping rewrites the header line of the input according to mapping.
func applyMapping(r io.Reader, mapping map[string]string) (io.Reader, error) {
	if len(mapping) == 0 {
		return r, nil
	}
	known := make(map[string]bool, len(Fields))
	for _, f := range Fields {
		known[f] = true
	}
	for from, to := range mapping {
		if !known[to] {
			return nil, apperrors.NewValidationError("mapping", from+"="+to, "unknown target field")
		}
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, apperrors.NewValidationError("file", "", fmt.Sprintf("unreadable csv: %v", err))
	}
	if len(records) == 0 {
		return bytes.NewReader(nil), nil
	}
	for i, h := range records[0] {
		if to, ok := mapping[strings.TrimSpace(h)]; ok {
			records[0][i] = to
		}
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.WriteAll(records); err != nil {
		return nil, err
	}
	return &buf, nil
}

// ParseMapping parses "from=to,from2=to2".
func ParseMapping(s string) (map[string]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	out := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		from, to, ok := strings.Cut(pair, "=")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return nil, apperrors.NewValidationError("mapping", pair, "expected header=field")
		}
		out[from] = to
	}
	return out, nil
}

func (r *Row) input() (trades.TradeInput, error) {
	var (
		in  trades.TradeInput
		err error
	)
	in.Instrument = r.Instrument
	in.MarketType = models.MarketType(strings.ToLower(strings.TrimSpace(r.MarketType)))
	in.Action = models.Action(strings.ToLower(strings.TrimSpace(r.Action)))
	in.AccountID = optString(r.AccountID)
	in.StrategyID = optString(r.StrategyID)
	in.Notes = r.Notes

	if in.Quantity, err = requiredDecimal("quantity", r.Quantity); err != nil {
		return in, err
	}
	if in.EntryPrice, err = requiredDecimal("entry_price", r.EntryPrice); err != nil {
		return in, err
	}
	if in.EntryTime, err = ParseTime("entry_time", r.EntryTime); err != nil {
		return in, err
	}
	if in.StopLoss, err = optDecimal("stop_loss", r.StopLoss); err != nil {
		return in, err
	}
	if in.Target, err = optDecimal("target", r.Target); err != nil {
		return in, err
	}
	if in.Commission, err = zeroDecimal("commission", r.Commission); err != nil {
		return in, err
	}
	if in.Fees, err = zeroDecimal("fees", r.Fees); err != nil {
		return in, err
	}
	if in.ContractMultiplier, err = zeroDecimal("contract_multiplier", r.ContractMultiplier); err != nil {
		return in, err
	}

	if in.ExitPrice, err = optDecimal("exit_price", r.ExitPrice); err != nil {
		return in, err
	}
	if in.ExitPrice != nil {
		if strings.TrimSpace(r.ExitTime) != "" {
			t, err := ParseTime("exit_time", r.ExitTime)
			if err != nil {
				return in, err
			}
			in.ExitTime = &t
		}
		if in.ExitCommission, err = zeroDecimal("exit_commission", r.ExitCommission); err != nil {
			return in, err
		}
		if in.ExitFees, err = zeroDecimal("exit_fees", r.ExitFees); err != nil {
			return in, err
		}
	}

	if tags := strings.TrimSpace(r.Tags); tags != "" {
		in.Tags = strings.FieldsFunc(tags, func(c rune) bool { return c == ';' || c == ',' })
	}
	if s := strings.TrimSpace(r.Rating); s != "" {
		if in.Rating, err = strconv.Atoi(s); err != nil {
			return in, apperrors.NewValidationError("rating", s, "must be an integer")
		}
	}
	if s := strings.TrimSpace(r.IsShared); s != "" {
		if in.IsShared, err = strconv.ParseBool(s); err != nil {
			return in, apperrors.NewValidationError("is_shared", s, "must be true or false")
		}
	}
	return in, nil
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"}

// ParseTime parses the timestamp layouts accepted in imported files. Times
// without a zone are UTC.
func ParseTime(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperrors.NewValidationError(field, s, "unrecognized time format")
}

func requiredDecimal(field, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, apperrors.NewValidationError(field, s, "is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, apperrors.NewValidationError(field, s, "must be a number")
	}
	return d, nil
}

func zeroDecimal(field, s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return requiredDecimal(field, s)
}

func optDecimal(field, s string) (*decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := requiredDecimal(field, s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func decString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}
