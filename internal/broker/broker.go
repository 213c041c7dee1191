// Package broker provides broker integration interfaces and implementations.
package broker

import (
	"context"
	"fmt"
	"time"

	"options-autotrader/internal/errors"
	"options-autotrader/internal/models"
)

// Broker defines the market data and order operations the engine consumes.
// Every call is synchronous; errors are returned to the caller, never retried.
type Broker interface {
	// Market Data
	GetHistoricalBars(ctx context.Context, token uint32, from, to time.Time, interval string) ([]models.Candle, error)
	GetLastPrice(ctx context.Context, quoteKey string) (float64, error)
	ListOptionUniverse(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error)

	// Orders
	SubmitOrder(ctx context.Context, req models.OrderRequest) (string, error)
	GetOrderStatus(ctx context.Context, orderID string) (models.OrderState, error)
}

// ValidateOrder checks an order request before it is sent.
func ValidateOrder(req models.OrderRequest) error {
	switch req.Exchange {
	case models.NFO, models.MCX, models.NSE:
	default:
		return invalid("unsupported exchange %q", req.Exchange)
	}
	if req.Symbol == "" {
		return invalid("symbol is required")
	}
	if req.Side != models.OrderSideBuy && req.Side != models.OrderSideSell {
		return invalid("unsupported side %q", req.Side)
	}
	if req.Quantity <= 0 {
		return invalid("quantity must be positive, got %d", req.Quantity)
	}
	switch req.Type {
	case models.OrderTypeMarket:
	case models.OrderTypeLimit:
		if req.Price <= 0 {
			return invalid("limit order requires a positive price")
		}
	default:
		return invalid("unsupported order type %q", req.Type)
	}
	if req.Product != "" && req.Product != models.ProductMIS {
		return invalid("unsupported product %q", req.Product)
	}
	if len(req.Tag) > 20 {
		return invalid("tag %q longer than 20 characters", req.Tag)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errors.ErrInvalidOrder, fmt.Sprintf(format, args...))
}
