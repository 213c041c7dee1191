// Package lifecycle owns open positions: entry levels, the trailing stop
// ratchet, exit evaluation and the forced square-off.
package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"options-autotrader/internal/config"
	"options-autotrader/internal/instruments"
	"options-autotrader/internal/models"
)

// Params are the exit levels applied to every new position.
type Params struct {
	StopLossPoints   float64
	TakeProfitPoints float64
	Trail            config.TrailingStop
}

// ParamsFromConfig extracts the exit parameters from the strategy section.
func ParamsFromConfig(cfg config.StrategyConfig) Params {
	return Params{
		StopLossPoints:   cfg.StopLossPoints,
		TakeProfitPoints: cfg.TakeProfitPoints,
		Trail:            cfg.TrailingStop,
	}
}

// Open creates an Active position from a filled entry order.
// The entry price is the broker's average price when reported, else the requested price.
func Open(order models.Order, contract models.OptionContract, params Params, now time.Time) *models.Position {
	tick := contract.TickSize
	entry := order.AveragePrice
	if entry <= 0 {
		entry = order.RequestedPrice
	}
	entry = instruments.RoundToTick(entry, tick)

	return &models.Position{
		ID:            uuid.NewString(),
		EntryOrderID:  order.BrokerID,
		Underlying:    contract.Underlying,
		Symbol:        contract.Symbol,
		Exchange:      contract.Exchange,
		OptionType:    contract.Type,
		Strike:        contract.Strike,
		TickSize:      tick,
		Quantity:      order.Quantity,
		EntryPrice:    entry,
		EntryTime:     now,
		StopLoss:      instruments.RoundToTick(entry-params.StopLossPoints, tick),
		TakeProfit:    instruments.RoundToTick(entry+params.TakeProfitPoints, tick),
		HighWaterMark: entry,
		TrailEnabled:  params.Trail.Enabled,
		Status:        models.PositionActive,
	}
}

// Observe applies one price observation to an Active position and reports
// the exit it triggers, if any. Stops are checked before the target.
func Observe(pos *models.Position, price float64, params Params) (models.ExitReason, bool) {
	if price > pos.HighWaterMark {
		pos.HighWaterMark = price
	}

	if pos.TrailEnabled {
		candidate := instruments.RoundToTick(price-params.Trail.Step, pos.TickSize)
		switch {
		case !pos.TrailArmed && price-pos.EntryPrice >= params.Trail.Trigger:
			pos.TrailArmed = true
			pos.TrailPrice = candidate
		case pos.TrailArmed && candidate > pos.TrailPrice:
			// ratchet up only
			pos.TrailPrice = candidate
		}
	}

	if price <= pos.EffectiveStop() {
		if pos.TrailEnabled && pos.TrailArmed {
			return models.ExitTrailingStop, true
		}
		return models.ExitStopLoss, true
	}
	if price >= pos.TakeProfit {
		return models.ExitTakeProfit, true
	}
	return "", false
}

// Close marks the position Closed at the trigger price.
func Close(pos *models.Position, price float64, reason models.ExitReason, now time.Time) {
	pos.Status = models.PositionClosed
	pos.ExitPrice = price
	pos.ExitTime = now
	pos.ExitReason = reason
	pos.PnL = pos.UnrealizedPnL(price)
}

// Book is the engine's set of positions for the session.
type Book struct {
	positions []*models.Position
}

// NewBook creates a book seeded with recovered positions.
func NewBook(positions ...models.Position) *Book {
	b := &Book{}
	for i := range positions {
		p := positions[i]
		b.positions = append(b.positions, &p)
	}
	return b
}

// Add appends a position to the book.
func (b *Book) Add(pos *models.Position) {
	b.positions = append(b.positions, pos)
}

// Active returns the Active positions.
func (b *Book) Active() []*models.Position {
	var out []*models.Position
	for _, p := range b.positions {
		if p.IsActive() {
			out = append(out, p)
		}
	}
	return out
}

// Snapshot returns copies of every position in the book.
func (b *Book) Snapshot() []models.Position {
	out := make([]models.Position, len(b.positions))
	for i, p := range b.positions {
		out[i] = *p
	}
	return out
}

// Prune drops Closed positions from previous trading days.
func (b *Book) Prune(day time.Time) {
	kept := b.positions[:0]
	for _, p := range b.positions {
		if p.IsActive() || !p.EntryTime.Before(day) {
			kept = append(kept, p)
		}
	}
	b.positions = kept
}
