// Package store provides the durable order and position journal.
package store

import (
	"context"
	"time"

	"options-autotrader/internal/models"
)

// Journal defines the interface for trade journal persistence.
// Orders are append-only; only status, reason and average price change.
// Positions are upserted after every mutation.
type Journal interface {
	// Orders
	AppendOrder(ctx context.Context, order models.Order) error
	UpdateOrderStatus(ctx context.Context, recordID string, state models.OrderState, at time.Time) error
	OrdersBetween(ctx context.Context, from, to time.Time) ([]models.Order, error)
	PendingOrders(ctx context.Context) ([]models.Order, error)
	LastOrderTime(ctx context.Context) (time.Time, error)

	// Positions
	SavePosition(ctx context.Context, pos models.Position) error
	ActivePositions(ctx context.Context) ([]models.Position, error)
	PositionsBetween(ctx context.Context, from, to time.Time) ([]models.Position, error)

	// Lifecycle
	Close() error
}

// DaySummary aggregates one trading day of the journal.
type DaySummary struct {
	Day         time.Time `json:"day"`
	Trades      int       `json:"trades"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	RealizedPnL float64   `json:"realized_pnl"`
	Loss        float64   `json:"loss"`
	Rejected    int       `json:"rejected_orders"`
}

// Summarize builds the day summary from the day's positions and orders.
func Summarize(day time.Time, positions []models.Position, orders []models.Order) DaySummary {
	s := DaySummary{Day: day, Trades: len(positions)}
	for _, p := range positions {
		if p.Status != models.PositionClosed {
			continue
		}
		s.RealizedPnL += p.PnL
		switch {
		case p.PnL > 0:
			s.Wins++
		case p.PnL < 0:
			s.Losses++
			s.Loss -= p.PnL
		}
	}
	for _, o := range orders {
		if o.Status == models.OrderStatusRejected {
			s.Rejected++
		}
	}
	return s
}
