package models

import "time"

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionActive PositionStatus = "ACTIVE"
	PositionClosed PositionStatus = "CLOSED"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "SL"
	ExitTakeProfit   ExitReason = "TP"
	ExitTrailingStop ExitReason = "TSL"
	ExitSquareOff    ExitReason = "SquareOff"
)

// Position is a long option position opened from a filled entry order.
type Position struct {
	ID            string         `json:"id"`
	EntryOrderID  string         `json:"entry_order_id"`
	ExitOrderID   string         `json:"exit_order_id,omitempty"`
	Underlying    string         `json:"underlying"`
	Symbol        string         `json:"symbol"`
	Exchange      Exchange       `json:"exchange"`
	OptionType    InstrumentType `json:"option_type"`
	Strike        float64        `json:"strike"`
	TickSize      float64        `json:"tick_size"`
	Quantity      int            `json:"quantity"`
	EntryPrice    float64        `json:"entry_price"`
	EntryTime     time.Time      `json:"entry_time"`
	StopLoss      float64        `json:"stop_loss"`
	TakeProfit    float64        `json:"take_profit"`
	HighWaterMark float64        `json:"high_water_mark"`
	TrailEnabled  bool           `json:"trail_enabled"`
	TrailArmed    bool           `json:"trail_armed"`
	TrailPrice    float64        `json:"trail_price"`
	Status        PositionStatus `json:"status"`
	ExitPrice     float64        `json:"exit_price,omitempty"`
	ExitTime      time.Time      `json:"exit_time,omitempty"`
	ExitReason    ExitReason     `json:"exit_reason,omitempty"`
	PnL           float64        `json:"pnl"`
}

// IsActive reports whether the position is still open.
func (p *Position) IsActive() bool {
	return p.Status == PositionActive
}

// EffectiveStop is the trailing price once armed, the static stop otherwise.
func (p *Position) EffectiveStop() float64 {
	if p.TrailEnabled && p.TrailArmed {
		return p.TrailPrice
	}
	return p.StopLoss
}

// QuoteKey returns the "EXCHANGE:SYMBOL" key used for price lookups.
func (p *Position) QuoteKey() string {
	return string(p.Exchange) + ":" + p.Symbol
}

// UnrealizedPnL values the position at price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return (price - p.EntryPrice) * float64(p.Quantity)
}
