package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"options-autotrader/internal/errors"
	"options-autotrader/internal/models"
)

// PaperBroker implements Broker for paper trading. Market data comes from
// a real data broker; orders are filled locally against its last price.
type PaperBroker struct {
	// Real broker for market data
	dataBroker Broker

	// Simulated state
	orders        map[string]*paperOrder
	availableCash float64

	// Order tracking
	orderCounter int

	// Price cache for simulation
	priceCache map[string]float64

	now func() time.Time
	mu  sync.RWMutex
}

type paperOrder struct {
	req      models.OrderRequest
	state    models.OrderState
	placedAt time.Time
}

// PaperBrokerConfig holds configuration for paper broker.
type PaperBrokerConfig struct {
	DataBroker     Broker
	InitialBalance float64
}

// NewPaperBroker creates a new paper trading broker.
func NewPaperBroker(cfg PaperBrokerConfig) *PaperBroker {
	initialBalance := cfg.InitialBalance
	if initialBalance == 0 {
		initialBalance = 1000000 // 10 lakhs default
	}

	return &PaperBroker{
		dataBroker:    cfg.DataBroker,
		orders:        make(map[string]*paperOrder),
		availableCash: initialBalance,
		priceCache:    make(map[string]float64),
		now:           time.Now,
	}
}

var _ Broker = (*PaperBroker)(nil)

// GetHistoricalBars fetches historical data from the data broker.
func (p *PaperBroker) GetHistoricalBars(ctx context.Context, token uint32, from, to time.Time, interval string) ([]models.Candle, error) {
	if p.dataBroker == nil {
		return nil, errors.ErrNoDataSource
	}
	return p.dataBroker.GetHistoricalBars(ctx, token, from, to, interval)
}

// GetLastPrice fetches the price from the data broker and caches it for fills.
// Without a data broker the cached price set by UpdatePrice is used.
func (p *PaperBroker) GetLastPrice(ctx context.Context, quoteKey string) (float64, error) {
	if p.dataBroker != nil {
		price, err := p.dataBroker.GetLastPrice(ctx, quoteKey)
		if err == nil {
			p.UpdatePrice(quoteKey, price)
		}
		return price, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if price, ok := p.priceCache[quoteKey]; ok {
		return price, nil
	}
	return 0, fmt.Errorf("quote %s: %w", quoteKey, errors.ErrNoDataSource)
}

// ListOptionUniverse fetches instruments from the data broker.
func (p *PaperBroker) ListOptionUniverse(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error) {
	if p.dataBroker == nil {
		return nil, errors.ErrNoDataSource
	}
	return p.dataBroker.ListOptionUniverse(ctx, exchange)
}

// SubmitOrder simulates order placement. MARKET orders fill at the last
// price; LIMIT orders fill at their price when marketable and stay OPEN otherwise.
func (p *PaperBroker) SubmitOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	if err := ValidateOrder(req); err != nil {
		return "", err
	}

	key := quoteKey(req.Exchange, req.Symbol)
	price, err := p.GetLastPrice(ctx, key)
	if err != nil {
		return "", errors.NewOrderError("place", "", req.Symbol, fmt.Errorf("no price for paper fill: %w", err))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Generate order ID
	p.orderCounter++
	orderID := fmt.Sprintf("PAPER_%d_%d", p.now().Unix(), p.orderCounter)

	order := &paperOrder{
		req:      req,
		placedAt: p.now(),
		state:    models.OrderState{OrderID: orderID, Status: models.OrderStatusOpen},
	}
	p.orders[orderID] = order
	p.tryFillLocked(order, price)

	return orderID, nil
}

// GetOrderStatus returns the simulated order state, re-checking open
// LIMIT orders against the latest cached price.
func (p *PaperBroker) GetOrderStatus(ctx context.Context, orderID string) (models.OrderState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return models.OrderState{}, fmt.Errorf("paper order %s: %w", orderID, errors.ErrDataNotFound)
	}
	if order.state.Status == models.OrderStatusOpen {
		if price, ok := p.priceCache[quoteKey(order.req.Exchange, order.req.Symbol)]; ok {
			p.tryFillLocked(order, price)
		}
	}
	return order.state, nil
}

// tryFillLocked fills order at price when possible (must hold write lock).
func (p *PaperBroker) tryFillLocked(order *paperOrder, price float64) {
	req := order.req

	execPrice := price
	canFill := true
	if req.Type == models.OrderTypeLimit {
		execPrice = req.Price
		if req.Side == models.OrderSideBuy && price > req.Price {
			canFill = false
		}
		if req.Side == models.OrderSideSell && price < req.Price {
			canFill = false
		}
	}
	if !canFill {
		return
	}

	orderValue := execPrice * float64(req.Quantity)
	if req.Side == models.OrderSideBuy && p.availableCash < orderValue {
		order.state.Status = models.OrderStatusRejected
		order.state.Reason = fmt.Sprintf("insufficient funds: need %.2f, have %.2f", orderValue, p.availableCash)
		return
	}

	order.state.Status = models.OrderStatusComplete
	order.state.AveragePrice = execPrice
	order.state.FilledQty = req.Quantity

	if req.Side == models.OrderSideBuy {
		p.availableCash -= orderValue
	} else {
		p.availableCash += orderValue
	}
}

// UpdatePrice updates the cached price for a quote key.
func (p *PaperBroker) UpdatePrice(quoteKey string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priceCache[quoteKey] = price
}

// AvailableCash returns the simulated cash balance.
func (p *PaperBroker) AvailableCash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.availableCash
}

func quoteKey(exchange models.Exchange, symbol string) string {
	return string(exchange) + ":" + symbol
}
