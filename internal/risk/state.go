// Package risk decides whether a new entry may be placed.
package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"options-autotrader/internal/models"
	"options-autotrader/pkg/utils"
)

// State holds the daily counters and cooldown stamps. It is owned by the
// engine cycle and must not be shared with other goroutines.
type State struct {
	Day           time.Time `json:"day"`
	TradesToday   int       `json:"trades_today"`
	LossToday     float64   `json:"loss_today"`
	LastOrderAt   time.Time `json:"last_order_at"`
	LastSignalAt  time.Time `json:"last_signal_at"`
	SquareOffDone bool      `json:"square_off_done"`
}

// NewState returns an empty state for the trading day of now.
func NewState(now time.Time) *State {
	return &State{Day: utils.TradingDay(now)}
}

// Rollover resets the daily counters and the square-off flag when now falls
// on a later day than the state. It reports whether a reset happened.
func (s *State) Rollover(now time.Time) bool {
	if !s.Day.IsZero() && utils.SameTradingDay(s.Day, now) {
		return false
	}
	s.Day = utils.TradingDay(now)
	s.TradesToday = 0
	s.LossToday = 0
	s.SquareOffDone = false
	return true
}

// RecordOrder stamps a successful entry submission.
func (s *State) RecordOrder(at time.Time) {
	s.LastOrderAt = at
}

// RecordSignal stamps a directional signal.
func (s *State) RecordSignal(at time.Time) {
	s.LastSignalAt = at
}

// RecordEntry counts a filled entry.
func (s *State) RecordEntry() {
	s.TradesToday++
}

// RecordClose books the realized P&L of a closed position.
func (s *State) RecordClose(pnl float64) {
	if pnl < 0 {
		s.LossToday += math.Abs(pnl)
	}
}

// Journal is the read side of the trade journal used for recovery.
type Journal interface {
	PositionsBetween(ctx context.Context, from, to time.Time) ([]models.Position, error)
	LastOrderTime(ctx context.Context) (time.Time, error)
}

// Recover rebuilds today's state from the journal so a restart keeps the
// trade count, the realized loss and the order cooldown.
func Recover(ctx context.Context, journal Journal, now time.Time) (*State, error) {
	state := NewState(now)
	from := state.Day
	to := from.Add(24 * time.Hour)

	positions, err := journal.PositionsBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("loading today's positions: %w", err)
	}
	for _, p := range positions {
		state.RecordEntry()
		if p.Status == models.PositionClosed {
			state.RecordClose(p.PnL)
		}
	}

	last, err := journal.LastOrderTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading last order time: %w", err)
	}
	state.LastOrderAt = last

	return state, nil
}
