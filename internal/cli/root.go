// Package cli provides the command-line interface for the trading engine.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"options-autotrader/internal/config"
	"options-autotrader/internal/logging"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2025-03-01"
)

// App holds the application dependencies shared by every command.
type App struct {
	ConfigDir string
	Config    *config.Config
	Logger    zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Intraday options auto-trader for Zerodha Kite",
		Long: `Intraday options auto-trader for the Indian markets.

The engine watches an EMA/Stochastic signal on one underlying (BANKNIFTY,
NIFTY or CRUDEOIL), buys one out-of-the-money call or put at a time and
manages its exit with a stop loss, a target, a trailing stop and a forced
square-off before the close.

Use 'trader run' to start the engine and 'trader status' to inspect the day.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			app.ConfigDir = dir

			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			app.Config = cfg

			// Only the engine logs to the console; other commands keep
			// stdout for their own output.
			app.Logger = newLogger(cfg, cmd.Name() == "run")

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/options-autotrader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newControlCmd(app))
	rootCmd.AddCommand(newResolveCmd(app))
	addJournalCommands(rootCmd, app)

	return rootCmd
}

func newLogger(cfg *config.Config, console bool) zerolog.Logger {
	lc := logging.DefaultLogConfig()
	lc.Level = cfg.Logging.Level
	lc.Console = console && cfg.Logging.Console
	lc.File = cfg.Logging.File
	if cfg.Logging.FilePath != "" {
		lc.FilePath = cfg.Logging.FilePath
	}
	if !lc.Console && !lc.File {
		return zerolog.Nop()
	}
	return logging.NewLoggerWithConfig(lc)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Version does not need a configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Options Auto-Trader v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the engine configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.ConfigDir})
			} else {
				output.Println(app.ConfigDir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	name, inst := cfg.ActiveInstrument()

	output.Bold("Trading")
	output.Printf("  Mode:            %s\n", cfg.Trading.Mode)
	output.Printf("  Underlying:      %s (%s)\n", name, inst.Exchange)
	output.Printf("  Tick Interval:   %s\n", cfg.Trading.TickInterval)
	output.Printf("  Auto Start:      %v\n", cfg.Trading.AutoStart)
	output.Printf("  Window:          %s - %s, square-off %s\n", inst.EntryStart, inst.LastEntry, inst.SquareOff)
	output.Println()

	s := cfg.Strategy
	output.Bold("Strategy")
	output.Printf("  OTM Distance:    %d\n", s.OTMDistance)
	if s.OverrideQuantity {
		output.Printf("  Quantity:        %d\n", s.Quantity)
	} else {
		output.Printf("  Lots:            %d\n", s.Lots)
	}
	output.Printf("  Stop Loss:       %.2f pts\n", s.StopLossPoints)
	output.Printf("  Target:          %.2f pts\n", s.TakeProfitPoints)
	if s.TrailingStop.Enabled {
		output.Printf("  Trailing Stop:   trigger %.2f, step %.2f\n", s.TrailingStop.Trigger, s.TrailingStop.Step)
	} else {
		output.Printf("  Trailing Stop:   disabled\n")
	}
	output.Printf("  Bars:            %s over %s\n", s.BarInterval, s.Lookback)
	output.Println()

	output.Bold("Risk")
	output.Printf("  Max Trades/Day:  %d\n", cfg.Risk.MaxTradesPerDay)
	output.Printf("  Max Loss/Day:    %s\n", FormatIndianCurrency(cfg.Risk.MaxLossPerDay))
	output.Printf("  Order Cooldown:  %s\n", cfg.Risk.OrderCooldown)
	output.Printf("  Signal Cooldown: %s\n", cfg.Risk.SignalCooldown)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:         %v\n", cfg.Notifications.Enabled)
	output.Printf("  Level:           %s\n", cfg.Notifications.Level)
	output.Printf("  Telegram:        %v\n", cfg.Notifications.Telegram.Enabled)
	output.Println()

	output.Bold("Server")
	output.Printf("  Enabled:         %v\n", cfg.Server.Enabled)
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	output.Dim("Journal: %s", cfg.Storage.DBPath)

	return nil
}
