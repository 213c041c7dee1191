package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"options-autotrader/internal/models"
	"options-autotrader/internal/risk"
	"options-autotrader/internal/store"
	"options-autotrader/pkg/utils"
)

// addJournalCommands adds the commands that read the trade journal.
// They work whether or not the engine is running.
func addJournalCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newOrdersCmd(app))
	rootCmd.AddCommand(newPositionsCmd(app))
}

func (app *App) openJournal() (*store.SQLiteStore, error) {
	journal, err := store.NewSQLiteStore(app.Config.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return journal, nil
}

// dayFlag parses --day (YYYY-MM-DD in IST), defaulting to today.
func dayFlag(cmd *cobra.Command) (time.Time, error) {
	raw, _ := cmd.Flags().GetString("day")
	if raw == "" {
		return utils.TradingDay(utils.Now()), nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, utils.IndiaLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("--day must be YYYY-MM-DD: %w", err)
	}
	return day, nil
}

type statusReport struct {
	Underlying string            `json:"underlying"`
	Mode       string            `json:"mode"`
	Risk       *risk.State       `json:"risk"`
	MaxTrades  int               `json:"max_trades"`
	MaxLoss    float64           `json:"max_loss"`
	Summary    store.DaySummary  `json:"summary"`
	Active     []models.Position `json:"active_positions"`
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show today's trading status from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			journal, err := app.openJournal()
			if err != nil {
				return err
			}
			defer journal.Close()

			now := utils.Now()
			state, err := risk.Recover(ctx, journal, now)
			if err != nil {
				return err
			}
			summary, err := daySummary(ctx, journal, state.Day)
			if err != nil {
				return err
			}
			active, err := journal.ActivePositions(ctx)
			if err != nil {
				return err
			}

			name, _ := app.Config.ActiveInstrument()
			report := statusReport{
				Underlying: name,
				Mode:       app.Config.Trading.Mode,
				Risk:       state,
				MaxTrades:  app.Config.Risk.MaxTradesPerDay,
				MaxLoss:    app.Config.Risk.MaxLossPerDay,
				Summary:    summary,
				Active:     active,
			}
			if output.IsJSON() {
				return output.JSON(report)
			}

			output.Bold("Trading Status - %s (%s)", FormatDate(state.Day), report.Underlying)
			output.Printf("  Mode:         %s\n", report.Mode)
			output.Printf("  Trades:       %d / %d\n", state.TradesToday, report.MaxTrades)
			output.Printf("  Daily Loss:   %s / %s\n", output.FormatPnL(-state.LossToday), FormatIndianCurrency(report.MaxLoss))
			output.Printf("  Last Order:   %s\n", FormatTime(state.LastOrderAt))
			output.Println()

			output.Bold("Today")
			output.Printf("  Closed:       %d (won %d, lost %d)\n", summary.Wins+summary.Losses, summary.Wins, summary.Losses)
			output.Printf("  Realized P&L: %s\n", output.FormatPnL(summary.RealizedPnL))
			if summary.Rejected > 0 {
				output.Warning("  Rejected orders: %d", summary.Rejected)
			}
			output.Println()

			renderActive(output, active)
			return nil
		},
	}
}

func daySummary(ctx context.Context, journal store.Journal, day time.Time) (store.DaySummary, error) {
	to := day.Add(24 * time.Hour)
	positions, err := journal.PositionsBetween(ctx, day, to)
	if err != nil {
		return store.DaySummary{}, err
	}
	orders, err := journal.OrdersBetween(ctx, day, to)
	if err != nil {
		return store.DaySummary{}, err
	}
	return store.Summarize(day, positions, orders), nil
}

func renderActive(output *Output, positions []models.Position) {
	if len(positions) == 0 {
		output.Dim("No active position")
		return
	}
	output.Bold("Active Position")
	for _, p := range positions {
		output.Printf("  %s x%d @ %s since %s\n", p.Symbol, p.Quantity, FormatPrice(p.EntryPrice), FormatTime(p.EntryTime))
		output.Printf("  SL %s  TP %s", FormatPrice(p.StopLoss), FormatPrice(p.TakeProfit))
		if p.TrailArmed {
			output.Printf("  TSL %s (high %s)", FormatPrice(p.TrailPrice), FormatPrice(p.HighWaterMark))
		}
		output.Println()
	}
}

func newOrdersCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List journaled orders of a day",
		Example: `  trader orders
  trader orders --day 2025-03-04 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			day, err := dayFlag(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			journal, err := app.openJournal()
			if err != nil {
				return err
			}
			defer journal.Close()

			orders, err := journal.OrdersBetween(ctx, day, day.Add(24*time.Hour))
			if err != nil {
				return err
			}
			if output.IsJSON() {
				if orders == nil {
					orders = []models.Order{}
				}
				return output.JSON(orders)
			}

			output.Bold("Orders - %s", FormatDate(day))
			if len(orders) == 0 {
				output.Info("No orders recorded.")
				return nil
			}

			table := NewTable(output, "Time", "Purpose", "Side", "Symbol", "Qty", "Price", "Avg", "Status", "Reason")
			for _, o := range orders {
				table.AddRow(
					FormatTime(o.SubmittedAt),
					string(o.Purpose),
					string(o.Side),
					o.Symbol,
					fmt.Sprintf("%d", o.Quantity),
					FormatPrice(o.RequestedPrice),
					FormatPrice(o.AveragePrice),
					output.FormatStatus(string(o.Status)),
					o.Reason,
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("day", "", "trading day YYYY-MM-DD (default: today)")
	return cmd
}

func newPositionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "List positions opened on a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			day, err := dayFlag(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			journal, err := app.openJournal()
			if err != nil {
				return err
			}
			defer journal.Close()

			positions, err := journal.PositionsBetween(ctx, day, day.Add(24*time.Hour))
			if err != nil {
				return err
			}
			if output.IsJSON() {
				if positions == nil {
					positions = []models.Position{}
				}
				return output.JSON(positions)
			}

			output.Bold("Positions - %s", FormatDate(day))
			if len(positions) == 0 {
				output.Info("No positions recorded.")
				return nil
			}

			var total float64
			table := NewTable(output, "Entry", "Symbol", "Qty", "Buy", "SL", "TP", "Exit", "Sell", "Reason", "P&L", "Status")
			for _, p := range positions {
				pnl := "-"
				if p.Status == models.PositionClosed {
					total += p.PnL
					pnl = output.FormatPnL(p.PnL)
				}
				table.AddRow(
					FormatTime(p.EntryTime),
					p.Symbol,
					fmt.Sprintf("%d", p.Quantity),
					FormatPrice(p.EntryPrice),
					FormatPrice(p.StopLoss),
					FormatPrice(p.TakeProfit),
					FormatTime(p.ExitTime),
					FormatPrice(p.ExitPrice),
					FormatExitReason(p.ExitReason),
					pnl,
					output.FormatStatus(string(p.Status)),
				)
			}
			table.Render()
			output.Println()
			output.Printf("Realized P&L: %s\n", output.FormatPnL(total))
			return nil
		},
	}
	cmd.Flags().String("day", "", "trading day YYYY-MM-DD (default: today)")
	return cmd
}
