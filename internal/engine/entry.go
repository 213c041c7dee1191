package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"options-autotrader/internal/instruments"
	"options-autotrader/internal/lifecycle"
	"options-autotrader/internal/logging"
	"options-autotrader/internal/models"
)

// EntryTag marks entry orders at the broker.
const EntryTag = "entry"

// enter resolves the contract for the current signal and submits the entry.
// Every failure, including a contract that cannot be resolved, is journaled
// as a rejected order; the broker ID stays empty when nothing reached it.
func (e *Engine) enter(ctx context.Context, now time.Time) {
	c := e.ectx
	optType, _ := c.Signal.Direction.OptionType()

	order := models.Order{
		RecordID:    uuid.NewString(),
		Underlying:  c.Spec.Name,
		Exchange:    c.Spec.Exchange,
		OptionType:  optType,
		Side:        models.OrderSideBuy,
		Purpose:     models.PurposeEntry,
		Type:        models.OrderTypeMarket,
		Status:      models.OrderStatusPending,
		SubmittedAt: now,
		UpdatedAt:   now,
	}

	contract, err := e.resolver.Resolve(ctx, c.Spec, c.Snapshot.LTP, optType)
	if err != nil {
		e.logger.Warn().Err(err).Float64("reference", c.Snapshot.LTP).Msg("No contract for signal")
		e.reject(ctx, order, err)
		return
	}
	logger := logging.WithSymbol(e.logger, contract.Symbol)

	order.Symbol = contract.Symbol
	order.Exchange = contract.Exchange
	order.Strike = contract.Strike
	order.Quantity = e.quantity(ctx, contract)

	price, err := e.broker.GetLastPrice(ctx, contract.QuoteKey())
	if err != nil {
		e.reject(ctx, order, err)
		return
	}
	order.RequestedPrice = instruments.RoundToTick(price, contract.TickSize)

	req := models.OrderRequest{
		Exchange: contract.Exchange,
		Symbol:   contract.Symbol,
		Side:     order.Side,
		Type:     models.OrderTypeMarket,
		Product:  models.ProductMIS,
		Quantity: order.Quantity,
		Tag:      EntryTag,
	}
	if contract.Exchange == models.MCX {
		req.Type = models.OrderTypeLimit
		req.Price = order.RequestedPrice
		order.Type = models.OrderTypeLimit
	}

	orderID, err := e.broker.SubmitOrder(ctx, req)
	if err != nil {
		e.reject(ctx, order, err)
		return
	}
	order.BrokerID = orderID
	c.Risk.RecordOrder(now)

	if err := e.journal.AppendOrder(ctx, order); err != nil {
		logger.Error().Err(err).Str("record_id", order.RecordID).Msg("Failed to journal entry order")
	}
	logging.LogOrder(logger, orderID, order.Symbol, string(order.Side), string(order.Status), "")

	c.Pending = &PendingEntry{Order: order, Contract: contract}

	if err := e.sleep(ctx, c.Config.Trading.StatusCheckDelay); err != nil {
		return
	}
	e.resolvePending(ctx, e.now())
}

// quantity is the configured override or lots times the contract's lot size.
func (e *Engine) quantity(ctx context.Context, contract models.OptionContract) int {
	s := e.ectx.Config.Strategy
	if s.OverrideQuantity {
		return s.Quantity
	}
	lot := contract.LotSize
	if lot <= 0 {
		lot = e.resolver.LotSize(ctx, e.ectx.Spec)
	}
	return s.Lots * lot
}

func (e *Engine) reject(ctx context.Context, order models.Order, cause error) {
	order.Status = models.OrderStatusRejected
	order.Reason = fmt.Sprintf("Order failed: %v", cause)

	logging.LogOrder(e.logger, order.BrokerID, order.Symbol, string(order.Side), string(order.Status), order.Reason)
	if err := e.journal.AppendOrder(ctx, order); err != nil {
		e.logger.Error().Err(err).Str("record_id", order.RecordID).Msg("Failed to journal rejected order")
	}
	if err := e.notifier.SendRejection(ctx, order); err != nil {
		e.logger.Warn().Err(err).Msg("Rejection notification failed")
	}
}

// resolvePending checks the tracked entry order once. A fill opens the
// position; a terminal refusal drops the entry; anything else waits for the
// next cycle.
func (e *Engine) resolvePending(ctx context.Context, now time.Time) {
	c := e.ectx
	if c.Pending == nil {
		return
	}
	order, contract := c.Pending.Order, c.Pending.Contract

	state, err := e.broker.GetOrderStatus(ctx, order.BrokerID)
	if err != nil {
		e.logger.Warn().Err(err).Str("order_id", order.BrokerID).Msg("Entry status check failed")
		return
	}

	if state.Status != order.Status {
		if err := e.journal.UpdateOrderStatus(ctx, order.RecordID, state, now); err != nil {
			e.logger.Error().Err(err).Str("record_id", order.RecordID).Msg("Failed to journal order status")
		}
		order.Status = state.Status
		order.Reason = state.Reason
		order.AveragePrice = state.AveragePrice
		order.UpdatedAt = now
		c.Pending.Order = order
		logging.LogOrder(e.logger, order.BrokerID, order.Symbol, string(order.Side), string(order.Status), order.Reason)
	}

	switch state.Status {
	case models.OrderStatusComplete:
		c.Pending = nil
		if len(c.Book.Active()) > 0 {
			e.logger.Error().Str("order_id", order.BrokerID).Msg("Entry filled while a position is active, not tracked")
			return
		}
		e.open(ctx, order, contract, now)
	case models.OrderStatusRejected, models.OrderStatusCancelled:
		c.Pending = nil
		if err := e.notifier.SendRejection(ctx, order); err != nil {
			e.logger.Warn().Err(err).Msg("Rejection notification failed")
		}
	}
}

func (e *Engine) open(ctx context.Context, order models.Order, contract models.OptionContract, now time.Time) {
	c := e.ectx
	pos := lifecycle.Open(order, contract, e.manager.Params(), now)
	c.Book.Add(pos)
	c.Risk.RecordEntry()

	if err := e.journal.SavePosition(ctx, *pos); err != nil {
		e.logger.Error().Err(err).Str("position_id", pos.ID).Msg("Failed to journal position")
	}
	logging.LogEntry(e.logger, pos.Symbol, pos.Quantity, pos.EntryPrice, pos.StopLoss, pos.TakeProfit)

	if err := e.notifier.SendEntry(ctx, *pos); err != nil {
		e.logger.Warn().Err(err).Msg("Entry notification failed")
	}
}
