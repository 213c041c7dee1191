package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"options-autotrader/internal/instruments"
	"options-autotrader/internal/models"
)

type resolveResult struct {
	Underlying string                `json:"underlying"`
	Reference  float64               `json:"reference_price"`
	ATMStrike  float64               `json:"atm_strike"`
	Target     float64               `json:"target_strike"`
	Contract   models.OptionContract `json:"contract"`
	LotSize    int                   `json:"lot_size"`
}

// newResolveCmd shows the contract the engine would buy for a signal.
func newResolveCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [CE|PE]",
		Short: "Show the option contract the engine would trade",
		Long: `Resolve the option contract for a call (CE) or put (PE) entry.

Without --price the reference price is read from the broker.`,
		Example: `  trader resolve CE
  trader resolve PE --underlying NIFTY --price 22480`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			optType := models.InstrumentType(strings.ToUpper(args[0]))
			if !optType.IsOption() {
				return fmt.Errorf("option type must be CE or PE, got %q", args[0])
			}

			reg, err := instruments.NewRegistry(app.Config.Instruments)
			if err != nil {
				return err
			}
			name, _ := app.Config.ActiveInstrument()
			if u, _ := cmd.Flags().GetString("underlying"); u != "" {
				name = u
			}
			spec, err := reg.Lookup(name)
			if err != nil {
				return fmt.Errorf("%w (configured: %s)", err, strings.Join(reg.Names(), ", "))
			}

			brk, err := app.newBroker()
			if err != nil {
				return err
			}
			cache := instruments.NewCache(brk, app.Config.Storage.CacheDir, app.Logger)
			resolver := instruments.NewResolver(cache, app.Config.Strategy.OTMDistance)

			price, _ := cmd.Flags().GetFloat64("price")
			if price <= 0 {
				ref, err := resolver.Reference(ctx, spec)
				if err != nil {
					return err
				}
				if price, err = brk.GetLastPrice(ctx, ref.QuoteKey); err != nil {
					return fmt.Errorf("reading %s: %w", ref.QuoteKey, err)
				}
			}

			contract, err := resolver.Resolve(ctx, spec, price, optType)
			if err != nil {
				output.Error("No contract: %v", err)
				return err
			}

			result := resolveResult{
				Underlying: spec.Name,
				Reference:  price,
				ATMStrike:  instruments.ATMStrike(price, spec.StrikeStep),
				Target:     instruments.TargetStrike(price, spec.StrikeStep, app.Config.Strategy.OTMDistance, optType == models.InstrumentCE),
				Contract:   contract,
				LotSize:    resolver.LotSize(ctx, spec),
			}
			if output.IsJSON() {
				return output.JSON(result)
			}

			output.Bold("%s %s", spec.Name, optType)
			output.Printf("  Reference: %s\n", FormatPrice(result.Reference))
			output.Printf("  ATM:       %.0f\n", result.ATMStrike)
			output.Printf("  Target:    %.0f (%d OTM)\n", result.Target, app.Config.Strategy.OTMDistance)
			output.Println()
			output.Success("%s", contract.Symbol)
			output.Printf("  Strike %.0f, expiry %s, lot %d, tick %.2f\n",
				contract.Strike, FormatDate(contract.Expiry), contract.LotSize, contract.TickSize)
			return nil
		},
	}
	cmd.Flags().String("underlying", "", "underlying (default: trading.underlying)")
	cmd.Flags().Float64("price", 0, "reference price instead of the live quote")
	return cmd
}
