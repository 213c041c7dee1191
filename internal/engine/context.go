package engine

import (
	"time"

	"options-autotrader/internal/config"
	"options-autotrader/internal/lifecycle"
	"options-autotrader/internal/models"
	"options-autotrader/internal/risk"
)

// EngineContext is the session state of one underlying. It is owned by the
// cycle goroutine and threaded through every component call.
type EngineContext struct {
	Config *config.Config
	Spec   models.InstrumentSpec

	Running  bool
	Risk     *risk.State
	Book     *lifecycle.Book
	Pending  *PendingEntry
	Signal   models.Signal
	Snapshot models.MarketSnapshot
	Gate     risk.Decision

	LastCycle time.Time
}

// PendingEntry is an entry order the broker has accepted but not yet filled.
type PendingEntry struct {
	Order    models.Order
	Contract models.OptionContract
}

// Status is an immutable copy of the engine state for readers outside the cycle.
type Status struct {
	Underlying    string                `json:"underlying"`
	Mode          string                `json:"mode"`
	Running       bool                  `json:"running"`
	Day           time.Time             `json:"day"`
	TradesToday   int                   `json:"trades_today"`
	MaxTrades     int                   `json:"max_trades"`
	LossToday     float64               `json:"loss_today"`
	MaxLoss       float64               `json:"max_loss"`
	SquareOffDone bool                  `json:"square_off_done"`
	Signal        models.Signal         `json:"signal"`
	Snapshot      models.MarketSnapshot `json:"snapshot"`
	GateReason    string                `json:"gate_reason,omitempty"`
	PendingOrder  string                `json:"pending_order,omitempty"`
	Positions     []models.Position     `json:"positions"`
	LastCycle     time.Time             `json:"last_cycle"`
}

// ActivePositions returns the Active positions of the snapshot.
func (s Status) ActivePositions() []models.Position {
	var out []models.Position
	for _, p := range s.Positions {
		if p.IsActive() {
			out = append(out, p)
		}
	}
	return out
}

func (c *EngineContext) status() Status {
	s := Status{
		Underlying:    c.Spec.Name,
		Mode:          c.Config.Trading.Mode,
		Running:       c.Running,
		Day:           c.Risk.Day,
		TradesToday:   c.Risk.TradesToday,
		MaxTrades:     c.Config.Risk.MaxTradesPerDay,
		LossToday:     c.Risk.LossToday,
		MaxLoss:       c.Config.Risk.MaxLossPerDay,
		SquareOffDone: c.Risk.SquareOffDone,
		Signal:        c.Signal,
		Snapshot:      c.Snapshot,
		Positions:     c.Book.Snapshot(),
		LastCycle:     c.LastCycle,
	}
	if !c.Gate.Allowed {
		s.GateReason = c.Gate.Reason
	}
	if c.Pending != nil {
		s.PendingOrder = c.Pending.Order.BrokerID
	}
	return s
}
