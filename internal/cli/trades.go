package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tradelens/internal/analytics"
	"tradelens/internal/csvio"
	"tradelens/internal/models"
	"tradelens/internal/trades"
	"tradelens/pkg/utils"
)

func addTradeCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newTradeCmd(app))
	rootCmd.AddCommand(newAnalyticsCmd(app))
}

func newTradeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "trade",
		Aliases: []string{"trades"},
		Short:   "Record and inspect trades",
		Long:    "Record trades with partial exits and inspect their computed P&L.",
	}

	cmd.AddCommand(newTradeListCmd(app))
	cmd.AddCommand(newTradeShowCmd(app))
	cmd.AddCommand(newTradeAddCmd(app))
	cmd.AddCommand(newTradeExitCmd(app))
	cmd.AddCommand(newTradeCloseCmd(app))
	cmd.AddCommand(newTradeRecalcCmd(app))
	return cmd
}

func newTradeListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}
			loc, err := location(cmd)
			if err != nil {
				return err
			}
			filter, err := tradeFilterFlags(cmd)
			if err != nil {
				return err
			}
			svc, err := app.services()
			if err != nil {
				return err
			}

			list, err := svc.Trades.ListTrades(cmd.Context(), userID, filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(list)
			}
			if len(list) == 0 {
				output.Dim("No trades found")
				return nil
			}

			table := NewTable(output, "ID", "ENTRY", "INSTRUMENT", "SIDE", "PRICE", "STATUS", "NET P&L", "R")
			for _, t := range list {
				table.AddRow(
					TruncateString(t.Trade.ID, 8),
					FormatDateTime(t.Trade.EntryTime, loc),
					t.Trade.Instrument,
					FormatSide(t.Trade.Action, t.Trade.Quantity),
					t.Trade.EntryPrice.String(),
					statusLabel(output, t.Trade.Status),
					output.PnL(t.Metrics.NetPnL, ""),
					FormatRatio(t.Metrics.RMultiple),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().String("account", "", "filter by account id")
	cmd.Flags().String("strategy", "", "filter by strategy id")
	cmd.Flags().String("instrument", "", "filter by instrument")
	cmd.Flags().String("status", "", "filter by status (open, partially_closed, closed)")
	cmd.Flags().String("tag", "", "filter by tag")
	cmd.Flags().String("from", "", "entries at or after this time")
	cmd.Flags().String("to", "", "entries before this time")
	cmd.Flags().Int("limit", 50, "maximum number of trades (0 for all)")
	return cmd
}

func tradeFilterFlags(cmd *cobra.Command) (models.TradeFilter, error) {
	var f models.TradeFilter
	f.AccountID, _ = cmd.Flags().GetString("account")
	f.StrategyID, _ = cmd.Flags().GetString("strategy")
	f.Instrument, _ = cmd.Flags().GetString("instrument")
	f.Tag, _ = cmd.Flags().GetString("tag")
	f.Limit, _ = cmd.Flags().GetInt("limit")
	if status, _ := cmd.Flags().GetString("status"); status != "" {
		f.Status = models.TradeStatus(status)
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		s, _ := cmd.Flags().GetString(name)
		if s == "" {
			continue
		}
		t, err := csvio.ParseTime(name, s)
		if err != nil {
			return f, err
		}
		*dst = &t
	}
	return f, nil
}

func statusLabel(output *Output, status models.TradeStatus) string {
	switch status {
	case models.TradeClosed:
		return output.DimText("closed")
	case models.TradePartiallyClosed:
		return output.Yellow("partial")
	default:
		return output.Green("open")
	}
}

func newTradeShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <trade-id>",
		Short: "Show a trade with its exits and metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}
			loc, err := location(cmd)
			if err != nil {
				return err
			}
			svc, err := app.services()
			if err != nil {
				return err
			}

			t, err := svc.Trades.GetTrade(cmd.Context(), userID, args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(t)
			}
			printTrade(output, t, loc)
			return nil
		},
	}
}

func printTrade(output *Output, t *models.TradeWithMetrics, loc *time.Location) {
	tr, m := t.Trade, t.Metrics
	lines := []string{
		fmt.Sprintf("Side:        %s @ %s", FormatSide(tr.Action, tr.Quantity), tr.EntryPrice),
		fmt.Sprintf("Entered:     %s", FormatDateTime(tr.EntryTime, loc)),
		fmt.Sprintf("Market:      %s (x%s)", tr.MarketType, tr.Multiplier()),
		fmt.Sprintf("Stop/Target: %s / %s", utils.FormatOptional(tr.StopLoss, 2), utils.FormatOptional(tr.Target, 2)),
		fmt.Sprintf("Status:      %s", statusLabel(output, tr.Status)),
		fmt.Sprintf("Remaining:   %s of %s", utils.FormatQuantity(m.RemainingQuantity), utils.FormatQuantity(tr.Quantity)),
		fmt.Sprintf("Avg exit:    %s", utils.FormatOptional(m.AvgExitPrice, 4)),
		fmt.Sprintf("Gross P&L:   %s", output.PnL(m.GrossPnL, "")),
		fmt.Sprintf("Costs:       %s", utils.FormatMoney(m.TotalCommission.Add(m.TotalFees), "")),
		fmt.Sprintf("Net P&L:     %s (%s)", output.PnL(m.NetPnL, ""), output.Percent(m.PercentGain)),
		fmt.Sprintf("R multiple:  %s", FormatRatio(m.RMultiple)),
	}
	if t.IsClosed() {
		lines = append(lines, fmt.Sprintf("Held:        %s", utils.FormatDuration(m.Duration())))
	}
	if len(tr.Tags) > 0 {
		lines = append(lines, fmt.Sprintf("Tags:        %s", strings.Join(tr.Tags, ", ")))
	}
	output.Box(fmt.Sprintf("%s  %s", tr.Instrument, tr.ID), lines)

	if len(t.Exits) == 0 {
		return
	}
	output.Println()
	table := NewTable(output, "EXIT", "TIME", "QTY", "PRICE", "COMMISSION", "FEES")
	for _, e := range t.Exits {
		table.AddRow(
			TruncateString(e.ID, 8),
			FormatDateTime(e.ExitTime, loc),
			utils.FormatQuantity(e.Quantity),
			e.ExitPrice.String(),
			e.Commission.String(),
			e.Fees.String(),
		)
	}
	table.Render()
}

func newTradeAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new trade",
		Example: `  tradelens trade add --user u1 --instrument AAPL --action buy --qty 10 --price 150
  tradelens trade add --user u1 --instrument ES --market futures --multiplier 50 \
      --action sell --qty 1 --price 4500 --exit-price 4490`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}
			in, err := tradeInputFlags(cmd)
			if err != nil {
				return err
			}
			svc, err := app.services()
			if err != nil {
				return err
			}

			t, err := svc.Trades.CreateTrade(cmd.Context(), userID, in)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(t)
			}
			output.Success("✓ Trade %s recorded (%s)", t.Trade.ID, t.Trade.Status)
			if t.IsClosed() {
				output.Printf("  Net P&L: %s\n", output.PnL(t.Metrics.NetPnL, ""))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.String("instrument", "", "instrument symbol (required)")
	f.String("market", string(models.MarketStocks), "market type (stocks, options, futures, forex, crypto)")
	f.String("action", string(models.ActionBuy), "buy (long) or sell (short)")
	f.String("qty", "", "quantity (required)")
	f.String("price", "", "entry price (required)")
	f.String("time", "", "entry time (default: now)")
	f.String("stop", "", "stop loss")
	f.String("target", "", "profit target")
	f.String("commission", "0", "entry commission")
	f.String("fees", "0", "entry fees")
	f.String("multiplier", "1", "contract multiplier")
	f.String("account", "", "account id")
	f.String("strategy", "", "strategy id")
	f.StringSlice("tags", nil, "tags")
	f.String("notes", "", "notes")
	f.Int("rating", 0, "self rating 1-5")
	f.Bool("shared", false, "share the trade on the community feed")
	f.String("exit-price", "", "book a full exit at this price")
	f.String("exit-time", "", "time of the full exit (default: now)")
	f.String("exit-commission", "0", "exit commission")
	f.String("exit-fees", "0", "exit fees")
	_ = cmd.MarkFlagRequired("instrument")
	_ = cmd.MarkFlagRequired("qty")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func tradeInputFlags(cmd *cobra.Command) (trades.TradeInput, error) {
	f := cmd.Flags()
	var in trades.TradeInput
	var err error

	in.Instrument, _ = f.GetString("instrument")
	market, _ := f.GetString("market")
	in.MarketType = models.MarketType(market)
	action, _ := f.GetString("action")
	in.Action = models.Action(strings.ToLower(action))
	in.Notes, _ = f.GetString("notes")
	in.Tags, _ = f.GetStringSlice("tags")
	in.Rating, _ = f.GetInt("rating")
	in.IsShared, _ = f.GetBool("shared")
	if s, _ := f.GetString("account"); s != "" {
		in.AccountID = &s
	}
	if s, _ := f.GetString("strategy"); s != "" {
		in.StrategyID = &s
	}

	for name, dst := range map[string]*decimal.Decimal{
		"qty":             &in.Quantity,
		"price":           &in.EntryPrice,
		"commission":      &in.Commission,
		"fees":            &in.Fees,
		"multiplier":      &in.ContractMultiplier,
		"exit-commission": &in.ExitCommission,
		"exit-fees":       &in.ExitFees,
	} {
		if *dst, err = decimalFlag(cmd, name); err != nil {
			return in, err
		}
	}
	for name, dst := range map[string]**decimal.Decimal{
		"stop":       &in.StopLoss,
		"target":     &in.Target,
		"exit-price": &in.ExitPrice,
	} {
		if *dst, err = optionalDecimalFlag(cmd, name); err != nil {
			return in, err
		}
	}

	if in.EntryTime, err = timeFlag(cmd, "time"); err != nil {
		return in, err
	}
	if in.ExitPrice != nil {
		exitTime, err := timeFlag(cmd, "exit-time")
		if err != nil {
			return in, err
		}
		if !exitTime.IsZero() {
			in.ExitTime = &exitTime
		}
	}
	return in, nil
}

func decimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	s, _ := cmd.Flags().GetString(name)
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %q is not a number", name, s)
	}
	return d, nil
}

func optionalDecimalFlag(cmd *cobra.Command, name string) (*decimal.Decimal, error) {
	if s, _ := cmd.Flags().GetString(name); strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := decimalFlag(cmd, name)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// timeFlag parses a time flag; an empty flag yields the zero time, which the
// trade service replaces with now.
func timeFlag(cmd *cobra.Command, name string) (time.Time, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return time.Time{}, nil
	}
	return csvio.ParseTime(name, s)
}

func newTradeExitCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exit <trade-id>",
		Short: "Book a partial exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}

			var in trades.ExitInput
			if in.Quantity, err = decimalFlag(cmd, "qty"); err != nil {
				return err
			}
			if in.ExitPrice, err = decimalFlag(cmd, "price"); err != nil {
				return err
			}
			if in.Commission, err = decimalFlag(cmd, "commission"); err != nil {
				return err
			}
			if in.Fees, err = decimalFlag(cmd, "fees"); err != nil {
				return err
			}
			if in.ExitTime, err = timeFlag(cmd, "time"); err != nil {
				return err
			}

			svc, err := app.services()
			if err != nil {
				return err
			}
			t, err := svc.Trades.AddPartialExit(cmd.Context(), userID, args[0], in)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(t)
			}
			output.Success("✓ Exit booked, %s remaining (%s)", utils.FormatQuantity(t.Metrics.RemainingQuantity), t.Trade.Status)
			output.Printf("  Net P&L: %s\n", output.PnL(t.Metrics.NetPnL, ""))
			return nil
		},
	}

	cmd.Flags().String("qty", "", "exit quantity (required)")
	cmd.Flags().String("price", "", "exit price (required)")
	cmd.Flags().String("time", "", "exit time (default: now)")
	cmd.Flags().String("commission", "0", "exit commission")
	cmd.Flags().String("fees", "0", "exit fees")
	_ = cmd.MarkFlagRequired("qty")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newTradeCloseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <trade-id>",
		Short: "Close the remaining quantity of a trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}

			var in trades.CloseInput
			if in.ExitPrice, err = decimalFlag(cmd, "price"); err != nil {
				return err
			}
			if in.Commission, err = decimalFlag(cmd, "commission"); err != nil {
				return err
			}
			if in.Fees, err = decimalFlag(cmd, "fees"); err != nil {
				return err
			}
			if in.ExitTime, err = timeFlag(cmd, "time"); err != nil {
				return err
			}

			svc, err := app.services()
			if err != nil {
				return err
			}
			t, err := svc.Trades.CloseTrade(cmd.Context(), userID, args[0], in)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(t)
			}
			output.Success("✓ Trade %s closed", t.Trade.ID)
			output.Printf("  Net P&L: %s (%s)\n", output.PnL(t.Metrics.NetPnL, ""), output.Percent(t.Metrics.PercentGain))
			return nil
		},
	}

	cmd.Flags().String("price", "", "exit price (required)")
	cmd.Flags().String("time", "", "exit time (default: now)")
	cmd.Flags().String("commission", "0", "exit commission")
	cmd.Flags().String("fees", "0", "exit fees")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newTradeRecalcCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "recalc",
		Short: "Recompute stored metrics for every trade of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}
			svc, err := app.services()
			if err != nil {
				return err
			}

			n, err := svc.Trades.RecalculateAll(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int{"recalculated": n})
			}
			output.Success("✓ Recalculated %d trades", n)
			return nil
		},
	}
}

func newAnalyticsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Performance analytics",
	}

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the performance summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}
			accountID, _ := cmd.Flags().GetString("account")
			svc, err := app.services()
			if err != nil {
				return err
			}

			s, err := svc.Trades.Summary(cmd.Context(), userID, accountID)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(s)
			}
			printSummary(output, s)
			return nil
		},
	}
	summaryCmd.Flags().String("account", "", "limit to one account")

	breakdownCmd := &cobra.Command{
		Use:   "breakdown <strategy|instrument|market_type|weekday>",
		Short: "Group closed trades and compare their results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}
			key, err := analytics.ParseBreakdownKey(args[0])
			if err != nil {
				return err
			}
			svc, err := app.services()
			if err != nil {
				return err
			}

			groups, err := svc.Trades.Breakdown(cmd.Context(), userID, key, models.TradeFilter{})
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(groups)
			}
			table := NewTable(output, strings.ToUpper(string(key)), "TRADES", "WIN RATE", "NET P&L", "PF")
			for _, g := range groups {
				table.AddRow(g.Label, fmt.Sprint(g.Trades), FormatWinRate(g.WinRate), output.PnL(g.NetPnL, ""), FormatRatio(g.ProfitFactor))
			}
			table.Render()
			return nil
		},
	}

	cmd.AddCommand(summaryCmd, breakdownCmd)
	return cmd
}

func printSummary(output *Output, s *analytics.Summary) {
	profitFactor := FormatRatio(s.ProfitFactor)
	if s.ProfitFactor == nil && s.Wins > 0 {
		profitFactor = "∞"
	}
	output.Box("Performance Summary", []string{
		fmt.Sprintf("Closed trades:    %d (%d open)", s.TotalTrades, s.OpenTrades),
		fmt.Sprintf("Wins/Losses/BE:   %d / %d / %d", s.Wins, s.Losses, s.Breakeven),
		fmt.Sprintf("Win rate:         %s", FormatWinRate(s.WinRate)),
		fmt.Sprintf("Net P&L:          %s", output.PnL(s.NetPnL, "")),
		fmt.Sprintf("Profit factor:    %s", profitFactor),
		fmt.Sprintf("Expectancy:       %s", output.PnL(s.Expectancy, "")),
		fmt.Sprintf("Avg win / loss:   %s / %s", utils.FormatMoney(s.AverageWin, ""), utils.FormatMoney(s.AverageLoss, "")),
		fmt.Sprintf("Largest win/loss: %s / %s", utils.FormatMoney(s.LargestWin, ""), utils.FormatMoney(s.LargestLoss, "")),
		fmt.Sprintf("Max drawdown:     %s (%s%%)", utils.FormatMoney(s.MaxDrawdown, ""), s.MaxDrawdownPercent.StringFixed(2)),
		fmt.Sprintf("Streaks:          %dW / %dL", s.MaxConsecutiveWins, s.MaxConsecutiveLosses),
		fmt.Sprintf("Avg R:            %s", FormatRatio(s.AverageRMultiple)),
		fmt.Sprintf("Costs:            %s", utils.FormatMoney(s.TotalCommission.Add(s.TotalFees), "")),
		fmt.Sprintf("Avg holding:      %s", utils.FormatDuration(time.Duration(s.AverageHoldingSecs)*time.Second)),
	})
}
