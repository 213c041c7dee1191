package risk

import (
	"fmt"
	"math"
	"time"

	"options-autotrader/internal/config"
	"options-autotrader/internal/errors"
	"options-autotrader/internal/models"
	"options-autotrader/pkg/utils"
)

// Check names, in evaluation order.
const (
	CheckRunSwitch      = "run_switch"
	CheckEntryWindow    = "entry_window"
	CheckOrderCooldown  = "order_cooldown"
	CheckSignalCooldown = "signal_cooldown"
	CheckMaxTrades      = "max_trades"
	CheckMaxLoss        = "max_loss"
	CheckSinglePosition = "single_position"
)

// Limits are the configured caps and cooldowns.
type Limits struct {
	MaxTradesPerDay int
	MaxLossPerDay   float64
	OrderCooldown   time.Duration
	SignalCooldown  time.Duration
}

// LimitsFromConfig extracts the gate limits from the risk section.
func LimitsFromConfig(cfg config.RiskConfig) Limits {
	return Limits{
		MaxTradesPerDay: cfg.MaxTradesPerDay,
		MaxLossPerDay:   cfg.MaxLossPerDay,
		OrderCooldown:   cfg.OrderCooldown,
		SignalCooldown:  cfg.SignalCooldown,
	}
}

// Decision is the outcome of an entry check.
type Decision struct {
	Allowed bool    `json:"allowed"`
	Check   string  `json:"check,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	Current float64 `json:"current,omitempty"`
	Limit   float64 `json:"limit,omitempty"`
}

// Err returns the refusal as a RiskError, or nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return errors.NewRiskError(d.Check, d.Current, d.Limit, d.Reason)
}

// Gate evaluates entry eligibility for one underlying.
type Gate struct {
	limits Limits
	window models.TradingWindow
}

// NewGate creates a gate for the given limits and trading window.
func NewGate(limits Limits, window models.TradingWindow) *Gate {
	return &Gate{limits: limits, window: window}
}

// Limits returns the configured limits.
func (g *Gate) Limits() Limits {
	return g.limits
}

// CanEnter runs the checks in order and returns the first failure.
func (g *Gate) CanEnter(now time.Time, running bool, state *State, positions []models.Position) Decision {
	now = now.In(utils.IndiaLocation)

	if !running {
		return deny(CheckRunSwitch, "Bot stopped", 0, 0)
	}

	start := g.window.EntryStart.On(now)
	last := g.window.LastEntry.On(now)
	if now.Before(start) || now.After(last) {
		return deny(CheckEntryWindow,
			fmt.Sprintf("Outside entry hours (%s-%s)", g.window.EntryStart, g.window.LastEntry), 0, 0)
	}

	if remaining, active := cooldownRemaining(now, state.LastOrderAt, g.limits.OrderCooldown); active {
		return deny(CheckOrderCooldown,
			fmt.Sprintf("Order cooldown active: %ds remaining", ceilSeconds(remaining)),
			remaining.Seconds(), g.limits.OrderCooldown.Seconds())
	}

	if remaining, active := cooldownRemaining(now, state.LastSignalAt, g.limits.SignalCooldown); active {
		return deny(CheckSignalCooldown,
			fmt.Sprintf("Signal cooldown active: %ds remaining", ceilSeconds(remaining)),
			remaining.Seconds(), g.limits.SignalCooldown.Seconds())
	}

	if state.TradesToday >= g.limits.MaxTradesPerDay {
		return deny(CheckMaxTrades,
			fmt.Sprintf("Max trades reached (%d/%d)", state.TradesToday, g.limits.MaxTradesPerDay),
			float64(state.TradesToday), float64(g.limits.MaxTradesPerDay))
	}

	if state.LossToday >= g.limits.MaxLossPerDay {
		return deny(CheckMaxLoss,
			fmt.Sprintf("Max loss reached (%.2f/%.2f)", state.LossToday, g.limits.MaxLossPerDay),
			state.LossToday, g.limits.MaxLossPerDay)
	}

	if n := countActive(positions); n > 0 {
		return deny(CheckSinglePosition, "Active position exists", float64(n), 1)
	}

	return Decision{Allowed: true}
}

// cooldownRemaining is active strictly while now < last+d.
func cooldownRemaining(now, last time.Time, d time.Duration) (time.Duration, bool) {
	if last.IsZero() || d <= 0 {
		return 0, false
	}
	until := last.Add(d)
	if now.Before(until) {
		return until.Sub(now), true
	}
	return 0, false
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

func countActive(positions []models.Position) int {
	n := 0
	for i := range positions {
		if positions[i].IsActive() {
			n++
		}
	}
	return n
}

func deny(check, reason string, current, limit float64) Decision {
	return Decision{Check: check, Reason: reason, Current: current, Limit: limit}
}
