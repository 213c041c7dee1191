package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"options-autotrader/internal/engine"
)

// newControlCmd talks to a running engine through its HTTP server.
func newControlCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "control",
		Short: "Control a running engine",
		Long: `Send requests to an engine started with the status server enabled.

Requests are applied by the engine at its next cycle boundary.`,
		Example: `  trader control start
  trader control squareoff
  trader control live --addr 127.0.0.1:8085`,
	}
	cmd.PersistentFlags().String("addr", "", "engine server address (default: server.addr)")

	for _, action := range []struct{ use, short string }{
		{"start", "Allow new entries"},
		{"stop", "Block new entries (open positions stay managed)"},
		{"squareoff", "Close the Active position at market now"},
	} {
		action := action
		cmd.AddCommand(&cobra.Command{
			Use:   action.use,
			Short: action.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				output := NewOutput(cmd)
				if err := app.postControl(cmd, action.use); err != nil {
					output.Error("Request failed: %v", err)
					return err
				}
				if output.IsJSON() {
					return output.JSON(map[string]string{"requested": action.use})
				}
				output.Success("✓ %s requested", action.use)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "live",
		Short: "Show the live engine status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			status, err := app.fetchStatus(cmd)
			if err != nil {
				output.Error("Request failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(status)
			}
			renderLiveStatus(output, status)
			return nil
		},
	})

	return cmd
}

func (app *App) serverURL(cmd *cobra.Command, path string) string {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = app.Config.Server.Addr
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return strings.TrimRight(addr, "/") + path
}

func (app *App) postControl(cmd *cobra.Command, action string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, app.serverURL(cmd, "/api/"+action), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("engine answered %s", resp.Status)
	}
	return nil
}

func (app *App) fetchStatus(cmd *cobra.Command) (engine.Status, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	var body struct {
		Data engine.Status `json:"data"`
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, app.serverURL(cmd, "/api/status"), nil)
	if err != nil {
		return body.Data, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return body.Data, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return body.Data, fmt.Errorf("engine answered %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return body.Data, fmt.Errorf("decoding status: %w", err)
	}
	return body.Data, nil
}

func renderLiveStatus(output *Output, s engine.Status) {
	output.Bold("Engine - %s (%s)", s.Underlying, s.Mode)
	if s.Running {
		output.Printf("  Status:     %s\n", output.Green("● RUNNING"))
	} else {
		output.Printf("  Status:     %s\n", output.Red("○ STOPPED"))
	}
	output.Printf("  Last Cycle: %s\n", FormatTime(s.LastCycle))
	output.Printf("  Trades:     %d / %d\n", s.TradesToday, s.MaxTrades)
	output.Printf("  Loss:       %s / %s\n", output.FormatPnL(-s.LossToday), FormatIndianCurrency(s.MaxLoss))
	if s.SquareOffDone {
		output.Printf("  Square-off: done\n")
	}
	output.Println()

	output.Bold("Signal")
	output.Printf("  %s %s\n", s.Signal.Direction, s.Signal.Qualifier)
	if s.Signal.Reason != "" {
		output.Dim("  %s", s.Signal.Reason)
	}
	output.Printf("  LTP %s  EMA %.2f/%.2f/%.2f  Stoch %.1f/%.1f\n",
		FormatPrice(s.Snapshot.LTP), s.Snapshot.EMAFast, s.Snapshot.EMAMedium, s.Snapshot.EMASlow,
		s.Snapshot.StochK, s.Snapshot.StochD)
	if s.GateReason != "" {
		output.Warning("  Entry blocked: %s", s.GateReason)
	}
	if s.PendingOrder != "" {
		output.Info("  Pending entry order: %s", s.PendingOrder)
	}
	output.Println()

	renderActive(output, s.ActivePositions())
}
