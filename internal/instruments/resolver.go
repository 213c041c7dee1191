package instruments

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"options-autotrader/internal/errors"
	"options-autotrader/internal/models"
)

// Universe supplies the instrument list of an exchange.
type Universe interface {
	Instruments(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error)
}

// Resolver picks option contracts out of the instrument universe.
type Resolver struct {
	universe    Universe
	otmDistance int
}

// NewResolver creates a resolver that targets otmDistance strikes away from ATM.
func NewResolver(universe Universe, otmDistance int) *Resolver {
	return &Resolver{universe: universe, otmDistance: otmDistance}
}

// Reference identifies where the underlying's price and bars come from.
type Reference struct {
	Token    uint32 // historical bars
	QuoteKey string // last price, "EXCHANGE:SYMBOL"
}

// Resolve returns the contract of optType on the nearest expiry whose strike
// is closest to the OTM target. Ties keep the first contract in universe order.
func (r *Resolver) Resolve(ctx context.Context, spec models.InstrumentSpec, referencePrice float64, optType models.InstrumentType) (models.OptionContract, error) {
	if !optType.IsOption() {
		return models.OptionContract{}, errors.NewValidationError("option_type", optType, "must be CE or PE")
	}

	universe, err := r.universe.Instruments(ctx, spec.Exchange)
	if err != nil {
		return models.OptionContract{}, fmt.Errorf("%w: %s %s universe unavailable: %v", errors.ErrContractNotFound, spec.Name, optType, err)
	}

	options := filter(universe, spec, func(inst models.Instrument) bool { return inst.Type.IsOption() })
	if len(options) == 0 {
		return models.OptionContract{}, fmt.Errorf("%w: no options listed for %s", errors.ErrContractNotFound, spec.Name)
	}

	expiry := nearestExpiry(options)
	target := TargetStrike(referencePrice, spec.StrikeStep, r.otmDistance, optType == models.InstrumentCE)

	var (
		best     models.Instrument
		bestDiff = math.Inf(1)
		found    bool
	)
	for _, inst := range options {
		if inst.Type != optType || !sameDay(inst.Expiry, expiry) {
			continue
		}
		diff := math.Abs(inst.Strike - target)
		if diff < bestDiff {
			best, bestDiff, found = inst, diff, true
		}
	}
	if !found {
		return models.OptionContract{}, fmt.Errorf("%w: no %s for %s expiring %s", errors.ErrContractNotFound,
			optType, spec.Name, expiry.Format("2006-01-02"))
	}

	return models.OptionContract{
		Symbol:     best.Symbol,
		Underlying: spec.Name,
		Token:      best.Token,
		Exchange:   spec.Exchange,
		Type:       best.Type,
		Strike:     best.Strike,
		Expiry:     best.Expiry,
		TickSize:   spec.TickSize,
		LotSize:    best.LotSize,
	}, nil
}

// LotSize returns the exchange lot size of the underlying's derivatives,
// falling back to the configured default when the universe has none.
func (r *Resolver) LotSize(ctx context.Context, spec models.InstrumentSpec) int {
	universe, err := r.universe.Instruments(ctx, spec.Exchange)
	if err != nil {
		return spec.DefaultLotSize
	}

	if spec.Commodity {
		for _, inst := range filter(universe, spec, func(i models.Instrument) bool { return i.Type.IsOption() }) {
			if inst.LotSize > 0 {
				return inst.LotSize
			}
		}
	}
	for _, inst := range filter(universe, spec, func(i models.Instrument) bool { return i.Type == models.InstrumentFUT }) {
		if inst.LotSize > 0 {
			return inst.LotSize
		}
	}
	return spec.DefaultLotSize
}

// Reference returns the bar token and quote key for the underlying. Commodity
// underlyings use their nearest future; indices use the spot instrument.
func (r *Resolver) Reference(ctx context.Context, spec models.InstrumentSpec) (Reference, error) {
	if !spec.Commodity {
		return Reference{Token: spec.SpotToken, QuoteKey: spec.QuoteSymbol}, nil
	}

	universe, err := r.universe.Instruments(ctx, spec.Exchange)
	if err != nil {
		return Reference{}, errors.NewDataError("instruments", spec.Name, "universe unavailable", err)
	}

	futures := filter(universe, spec, func(i models.Instrument) bool { return i.Type == models.InstrumentFUT })
	if len(futures) == 0 {
		return Reference{}, errors.NewDataError("instruments", spec.Name, "no futures listed", errors.ErrSymbolNotFound)
	}

	nearest := futures[0]
	for _, f := range futures[1:] {
		if f.Expiry.Before(nearest.Expiry) {
			nearest = f
		}
	}
	return Reference{Token: nearest.Token, QuoteKey: string(spec.Exchange) + ":" + nearest.Symbol}, nil
}

// filter keeps rows of the underlying matching keep. Index names must match
// exactly; commodity names match by substring so CRUDEOILM rows are included.
func filter(universe []models.Instrument, spec models.InstrumentSpec, keep func(models.Instrument) bool) []models.Instrument {
	var out []models.Instrument
	for _, inst := range universe {
		if !matchesUnderlying(inst, spec) || !keep(inst) {
			continue
		}
		out = append(out, inst)
	}
	return out
}

func matchesUnderlying(inst models.Instrument, spec models.InstrumentSpec) bool {
	if spec.Commodity {
		return strings.Contains(strings.ToUpper(inst.Name), spec.Name)
	}
	return inst.Name == spec.Name
}

func nearestExpiry(options []models.Instrument) time.Time {
	nearest := options[0].Expiry
	for _, o := range options[1:] {
		if o.Expiry.Before(nearest) {
			nearest = o.Expiry
		}
	}
	return nearest
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
