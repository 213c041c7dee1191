// Package instruments maps reference prices to tradable option contracts.
package instruments

import (
	"fmt"
	"sort"
	"strings"

	"options-autotrader/internal/config"
	"options-autotrader/internal/errors"
	"options-autotrader/internal/models"
)

// Registry holds the immutable spec of every configured underlying.
type Registry struct {
	specs map[string]models.InstrumentSpec
}

// NewRegistry parses every instrument definition once.
func NewRegistry(defs map[string]config.InstrumentConfig) (*Registry, error) {
	r := &Registry{specs: make(map[string]models.InstrumentSpec, len(defs))}
	for name, def := range defs {
		spec, err := ParseSpec(name, def)
		if err != nil {
			return nil, err
		}
		r.specs[spec.Name] = spec
	}
	return r, nil
}

// Lookup returns the spec for an underlying, case-insensitively.
func (r *Registry) Lookup(name string) (models.InstrumentSpec, error) {
	spec, ok := r.specs[strings.ToUpper(name)]
	if !ok {
		return models.InstrumentSpec{}, errors.Wrapf(errors.ErrUnknownUnderlying, "%s", name)
	}
	return spec, nil
}

// Names returns the registered underlyings in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseSpec converts a config definition into a validated InstrumentSpec.
func ParseSpec(name string, def config.InstrumentConfig) (models.InstrumentSpec, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return models.InstrumentSpec{}, errors.NewValidationError("instrument.name", name, "must not be empty")
	}

	exchange := models.Exchange(strings.ToUpper(def.Exchange))
	switch exchange {
	case models.NFO, models.MCX:
	default:
		return models.InstrumentSpec{}, errors.NewValidationError(name+".exchange", def.Exchange, "must be NFO or MCX")
	}

	if def.StrikeStep <= 0 {
		return models.InstrumentSpec{}, errors.NewValidationError(name+".strike_step", def.StrikeStep, "must be positive")
	}
	if def.TickSize <= 0 {
		return models.InstrumentSpec{}, errors.NewValidationError(name+".tick_size", def.TickSize, "must be positive")
	}
	if def.LotSize <= 0 {
		return models.InstrumentSpec{}, errors.NewValidationError(name+".lot_size", def.LotSize, "must be positive")
	}
	if !def.Commodity && (def.SpotToken == 0 || def.QuoteSymbol == "") {
		return models.InstrumentSpec{}, errors.NewValidationError(name+".spot_token", def.SpotToken, "index underlyings need a spot token and quote symbol")
	}

	window, err := parseWindow(def)
	if err != nil {
		return models.InstrumentSpec{}, fmt.Errorf("%s: %w", name, err)
	}

	return models.InstrumentSpec{
		Name:           name,
		Exchange:       exchange,
		QuoteSymbol:    def.QuoteSymbol,
		SpotToken:      def.SpotToken,
		StrikeStep:     def.StrikeStep,
		TickSize:       def.TickSize,
		DefaultLotSize: def.LotSize,
		Commodity:      def.Commodity,
		Window:         window,
	}, nil
}

func parseWindow(def config.InstrumentConfig) (models.TradingWindow, error) {
	start, err := models.ParseClockTime(def.EntryStart)
	if err != nil {
		return models.TradingWindow{}, err
	}
	last, err := models.ParseClockTime(def.LastEntry)
	if err != nil {
		return models.TradingWindow{}, err
	}
	sqoff, err := models.ParseClockTime(def.SquareOff)
	if err != nil {
		return models.TradingWindow{}, err
	}

	minutes := func(c models.ClockTime) int { return c.Hour*60 + c.Minute }
	if minutes(start) > minutes(last) || minutes(last) > minutes(sqoff) {
		return models.TradingWindow{}, errors.NewValidationError("window", def.EntryStart+"-"+def.LastEntry+"-"+def.SquareOff,
			"entry_start <= last_entry <= square_off required")
	}

	return models.TradingWindow{EntryStart: start, LastEntry: last, SquareOff: sqoff}, nil
}
