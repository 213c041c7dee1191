package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"options-autotrader/internal/api"
	"options-autotrader/internal/broker"
	"options-autotrader/internal/engine"
	"options-autotrader/internal/errors"
	"options-autotrader/internal/instruments"
	"options-autotrader/internal/notify"
	"options-autotrader/internal/store"
)

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading engine",
		Long: `Run the trading engine in the foreground until interrupted.

The engine recovers today's trade count, realized loss and any Active
position from the journal, then evaluates the signal on every tick.
SIGUSR1 requests an immediate square-off of the Active position.`,
		Example: `  trader run
  trader run --paper --start
  trader run --underlying NIFTY --serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config

			if paper, _ := cmd.Flags().GetBool("paper"); paper {
				cfg.Trading.Mode = "paper"
			}
			if start, _ := cmd.Flags().GetBool("start"); start {
				cfg.Trading.AutoStart = true
			}
			if serve, _ := cmd.Flags().GetBool("serve"); serve {
				cfg.Server.Enabled = true
			}
			if underlying, _ := cmd.Flags().GetString("underlying"); underlying != "" {
				cfg.Trading.Underlying = underlying
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			name, _ := cfg.ActiveInstrument()
			output.Bold("Starting engine: %s (%s mode)", name, cfg.Trading.Mode)
			if cfg.IsPaperMode() {
				output.Warning("📝 PAPER TRADING MODE")
			}
			if !cfg.Trading.AutoStart {
				output.Dim("Entries are off until 'trader control start'")
			}

			return app.runEngine(ctx)
		},
	}

	cmd.Flags().Bool("paper", false, "force paper trading")
	cmd.Flags().Bool("start", false, "allow entries immediately")
	cmd.Flags().Bool("serve", false, "enable the status/control HTTP server")
	cmd.Flags().String("underlying", "", "underlying to trade (overrides trading.underlying)")

	return cmd
}

// runEngine wires the collaborators and runs the engine until ctx is done.
func (app *App) runEngine(ctx context.Context) error {
	cfg := app.Config
	logger := app.Logger

	reg, err := instruments.NewRegistry(cfg.Instruments)
	if err != nil {
		return err
	}
	name, _ := cfg.ActiveInstrument()
	spec, err := reg.Lookup(name)
	if err != nil {
		return err
	}

	journal, err := store.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer journal.Close()

	brk, err := app.newBroker()
	if err != nil {
		return err
	}

	cache := instruments.NewCache(brk, cfg.Storage.CacheDir, logger)
	resolver := instruments.NewResolver(cache, cfg.Strategy.OTMDistance)
	notifier := notify.NewMultiNotifier(cfg.Notifications, notify.NewLogChannel(logger))

	eng, err := engine.New(ctx, cfg, spec, engine.Deps{
		Broker:   brk,
		Journal:  journal,
		Resolver: resolver,
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	if cfg.Server.Enabled {
		srv := api.NewServer(cfg.Server.Addr, eng, journal, 3*cfg.Trading.TickInterval, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error().Err(err).Msg("Status server stopped")
			}
		}()
		defer func() {
			if err := srv.Shutdown(); err != nil {
				logger.Warn().Err(err).Msg("Status server shutdown")
			}
		}()
	}

	squareOff := make(chan os.Signal, 1)
	signal.Notify(squareOff, syscall.SIGUSR1)
	defer signal.Stop(squareOff)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-squareOff:
				logger.Warn().Msg("Square-off requested by signal")
				eng.RequestSquareOff()
			}
		}
	}()

	logger.Info().
		Str("underlying", spec.Name).
		Str("mode", cfg.Trading.Mode).
		Strs("notify", notifier.Channels()).
		Msg("Engine starting")

	err = eng.Run(ctx)
	logger.Info().Msg("Engine stopped")
	return err
}

// newBroker returns the live Kite adapter, or a paper broker that reads
// market data from Kite when credentials are present.
func (app *App) newBroker() (broker.Broker, error) {
	creds := app.Config.Credentials.Zerodha

	var kite *broker.ZerodhaBroker
	if creds.APIKey != "" {
		kite = broker.NewZerodhaBroker(broker.ZerodhaConfig{
			APIKey:      creds.APIKey,
			AccessToken: creds.AccessToken,
		})
	}

	if !app.Config.IsPaperMode() {
		if kite == nil || !kite.IsAuthenticated() {
			return nil, errors.Wrap(errors.ErrNotAuthenticated, "live mode needs zerodha api_key and access_token")
		}
		return kite, nil
	}

	pcfg := broker.PaperBrokerConfig{}
	if kite != nil && kite.IsAuthenticated() {
		pcfg.DataBroker = kite
	} else {
		app.Logger.Warn().Msg("No Kite access token, paper broker has no market data")
	}
	return broker.NewPaperBroker(pcfg), nil
}
