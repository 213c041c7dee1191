package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"options-autotrader/internal/instruments"
	"options-autotrader/internal/logging"
	"options-autotrader/internal/models"
	"options-autotrader/internal/risk"
	"options-autotrader/pkg/utils"
)

// SquareOffLead is how long before the square-off time the forced exit window opens.
const SquareOffLead = 5 * time.Minute

// Broker is the subset of the broker the lifecycle needs.
type Broker interface {
	GetLastPrice(ctx context.Context, quoteKey string) (float64, error)
	SubmitOrder(ctx context.Context, req models.OrderRequest) (string, error)
}

// Journal persists order and position records.
type Journal interface {
	AppendOrder(ctx context.Context, order models.Order) error
	SavePosition(ctx context.Context, pos models.Position) error
}

// Closed describes one exit performed by the manager.
type Closed struct {
	Position models.Position
	Order    models.Order
}

// Manager monitors Active positions and performs exits.
type Manager struct {
	broker  Broker
	journal Journal
	spec    models.InstrumentSpec
	params  Params
	logger  zerolog.Logger
}

// NewManager creates a lifecycle manager for one underlying.
func NewManager(b Broker, journal Journal, spec models.InstrumentSpec, params Params, logger zerolog.Logger) *Manager {
	return &Manager{
		broker:  b,
		journal: journal,
		spec:    spec,
		params:  params,
		logger:  logger.With().Str("component", "lifecycle").Logger(),
	}
}

// Params returns the exit parameters applied to new positions.
func (m *Manager) Params() Params {
	return m.params
}

// SquareOffDue reports whether now is inside [SquareOff-5m, SquareOff].
func (m *Manager) SquareOffDue(now time.Time) bool {
	now = now.In(utils.IndiaLocation)
	end := m.spec.Window.SquareOff.On(now)
	start := end.Add(-SquareOffLead)
	return !now.Before(start) && !now.After(end)
}

// SquareOffStarted reports whether today's square-off window has opened,
// including any time after it closed.
func (m *Manager) SquareOffStarted(now time.Time) bool {
	now = now.In(utils.IndiaLocation)
	return !now.Before(m.spec.Window.SquareOff.On(now).Add(-SquareOffLead))
}

// Monitor runs one monitoring pass. From the start of the square-off window
// the forced exit runs first; once the day is flat it only runs again for a
// position opened late, such as an entry order that filled after square-off.
func (m *Manager) Monitor(ctx context.Context, now time.Time, book *Book, state *risk.State) []Closed {
	var closed []Closed

	if m.SquareOffStarted(now) && (!state.SquareOffDone || len(book.Active()) > 0) {
		closed = append(closed, m.SquareOffAll(ctx, now, book, state)...)
	}

	for _, pos := range book.Active() {
		price, err := m.broker.GetLastPrice(ctx, pos.QuoteKey())
		if err != nil {
			m.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Quote failed, position skipped this tick")
			continue
		}

		before := *pos
		reason, exit := Observe(pos, price, m.params)
		if exit {
			closed = append(closed, m.Exit(ctx, pos, price, reason, now, state))
			continue
		}
		if pos.HighWaterMark != before.HighWaterMark || pos.TrailPrice != before.TrailPrice || pos.TrailArmed != before.TrailArmed {
			m.save(ctx, pos)
		}
	}

	return closed
}

// SquareOffAll closes every Active position with reason SquareOff and sets
// the daily flag once none remain.
func (m *Manager) SquareOffAll(ctx context.Context, now time.Time, book *Book, state *risk.State) []Closed {
	closed := m.CloseAll(ctx, now, book, state)
	if len(book.Active()) == 0 {
		state.SquareOffDone = true
		m.logger.Info().Int("closed", len(closed)).Msg("Square-off complete")
	}
	return closed
}

// CloseAll closes every Active position with reason SquareOff without
// touching the daily flag. A position whose quote fails stays Active.
func (m *Manager) CloseAll(ctx context.Context, now time.Time, book *Book, state *risk.State) []Closed {
	var closed []Closed
	for _, pos := range book.Active() {
		price, err := m.broker.GetLastPrice(ctx, pos.QuoteKey())
		if err != nil {
			m.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Quote failed during square-off")
			continue
		}
		closed = append(closed, m.Exit(ctx, pos, price, models.ExitSquareOff, now, state))
	}
	return closed
}

// Exit submits the closing order and closes the position at the trigger
// price regardless of the order outcome.
func (m *Manager) Exit(ctx context.Context, pos *models.Position, price float64, reason models.ExitReason, now time.Time, state *risk.State) Closed {
	req := models.OrderRequest{
		Exchange: pos.Exchange,
		Symbol:   pos.Symbol,
		Side:     models.OrderSideSell,
		Type:     models.OrderTypeMarket,
		Product:  models.ProductMIS,
		Quantity: pos.Quantity,
		Tag:      fmt.Sprintf("exit_%s", reason),
	}
	if pos.Exchange == models.MCX {
		req.Type = models.OrderTypeLimit
		req.Price = instruments.RoundToTick(price, pos.TickSize)
	}

	order := models.Order{
		RecordID:       uuid.NewString(),
		Underlying:     pos.Underlying,
		Symbol:         pos.Symbol,
		Exchange:       pos.Exchange,
		OptionType:     pos.OptionType,
		Strike:         pos.Strike,
		Side:           req.Side,
		Purpose:        models.PurposeExit,
		Type:           req.Type,
		Quantity:       req.Quantity,
		RequestedPrice: price,
		Status:         models.OrderStatusPending,
		Reason:         string(reason),
		SubmittedAt:    now,
		UpdatedAt:      now,
	}

	orderID, err := m.broker.SubmitOrder(ctx, req)
	if err != nil {
		order.Status = models.OrderStatusRejected
		order.Reason = fmt.Sprintf("Exit failed: %v", err)
	} else {
		order.BrokerID = orderID
	}
	logging.LogOrder(m.logger, order.BrokerID, order.Symbol, string(order.Side), string(order.Status), order.Reason)

	if err := m.journal.AppendOrder(ctx, order); err != nil {
		m.logger.Error().Err(err).Str("record_id", order.RecordID).Msg("Failed to journal exit order")
	}

	Close(pos, price, reason, now)
	pos.ExitOrderID = order.BrokerID
	state.RecordClose(pos.PnL)
	m.save(ctx, pos)

	logging.LogExit(m.logger, pos.Symbol, string(reason), pos.Quantity, price, pos.PnL)

	return Closed{Position: *pos, Order: order}
}

func (m *Manager) save(ctx context.Context, pos *models.Position) {
	if err := m.journal.SavePosition(ctx, *pos); err != nil {
		m.logger.Error().Err(err).Str("position_id", pos.ID).Msg("Failed to journal position")
	}
}
