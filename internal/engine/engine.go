// Package engine drives the trading cycle: it sequences the signal
// classifier, the risk gate, the entry flow and position monitoring for
// one underlying on a fixed tick.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"options-autotrader/internal/broker"
	"options-autotrader/internal/config"
	"options-autotrader/internal/instruments"
	"options-autotrader/internal/lifecycle"
	"options-autotrader/internal/logging"
	"options-autotrader/internal/models"
	"options-autotrader/internal/notify"
	"options-autotrader/internal/risk"
	"options-autotrader/internal/signal"
	"options-autotrader/internal/store"
	"options-autotrader/pkg/utils"
)

// Resolver picks contracts and reference instruments for an underlying.
type Resolver interface {
	Resolve(ctx context.Context, spec models.InstrumentSpec, referencePrice float64, optType models.InstrumentType) (models.OptionContract, error)
	LotSize(ctx context.Context, spec models.InstrumentSpec) int
	Reference(ctx context.Context, spec models.InstrumentSpec) (instruments.Reference, error)
}

// Deps are the collaborators of the engine.
type Deps struct {
	Broker   broker.Broker
	Journal  store.Journal
	Resolver Resolver
	Notifier notify.Notifier
	Logger   zerolog.Logger
	Clock    func() time.Time
}

// Command is an operator request applied at the next cycle boundary.
type Command int

const (
	CommandStart Command = iota
	CommandStop
	CommandSquareOff
)

func (c Command) String() string {
	switch c {
	case CommandStart:
		return "start"
	case CommandStop:
		return "stop"
	case CommandSquareOff:
		return "squareoff"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Engine runs the trading cycle for one underlying.
type Engine struct {
	ectx *EngineContext

	broker   broker.Broker
	journal  store.Journal
	resolver Resolver
	notifier notify.Notifier
	gate     *risk.Gate
	manager  *lifecycle.Manager
	logger   zerolog.Logger

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	classify func(bars []models.Candle) (models.MarketSnapshot, models.Signal)

	reqMu    sync.Mutex
	requests []Command

	statusMu sync.RWMutex
	status   Status
	hub      *Hub
}

// New creates an engine and recovers today's risk state, Active positions
// and any unfilled entry order from the journal.
func New(ctx context.Context, cfg *config.Config, spec models.InstrumentSpec, deps Deps) (*Engine, error) {
	clock := deps.Clock
	if clock == nil {
		clock = utils.Now
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NoOpNotifier{}
	}
	logger := logging.WithUnderlying(deps.Logger.With().Str("component", "engine").Logger(), spec.Name)

	now := clock()
	state, err := risk.Recover(ctx, deps.Journal, now)
	if err != nil {
		return nil, fmt.Errorf("recovering risk state: %w", err)
	}

	active, err := deps.Journal.ActivePositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active positions: %w", err)
	}

	e := &Engine{
		ectx: &EngineContext{
			Config:  cfg,
			Spec:    spec,
			Running: cfg.Trading.AutoStart,
			Risk:    state,
			Book:    lifecycle.NewBook(active...),
			Gate:    risk.Decision{Allowed: true},
		},
		broker:   deps.Broker,
		journal:  deps.Journal,
		resolver: deps.Resolver,
		notifier: notifier,
		gate:     risk.NewGate(risk.LimitsFromConfig(cfg.Risk), spec.Window),
		manager:  lifecycle.NewManager(deps.Broker, deps.Journal, spec, lifecycle.ParamsFromConfig(cfg.Strategy), deps.Logger),
		logger:   logger,
		now:      clock,
		sleep:    sleepContext,
		classify: classifyBars,
		hub:      NewHub(),
	}

	if err := e.recoverPending(ctx, now); err != nil {
		return nil, err
	}

	e.publish()

	logger.Info().
		Int("trades_today", state.TradesToday).
		Float64("loss_today", state.LossToday).
		Int("active_positions", len(e.ectx.Book.Active())).
		Bool("running", e.ectx.Running).
		Msg("Engine state recovered")

	return e, nil
}

// recoverPending restores today's unfilled entry order, if any.
func (e *Engine) recoverPending(ctx context.Context, now time.Time) error {
	pending, err := e.journal.PendingOrders(ctx)
	if err != nil {
		return fmt.Errorf("loading pending orders: %w", err)
	}
	for _, o := range pending {
		if o.Purpose != models.PurposeEntry || o.Underlying != e.ectx.Spec.Name || !utils.SameTradingDay(o.SubmittedAt, now) {
			continue
		}
		e.ectx.Pending = &PendingEntry{
			Order: o,
			Contract: models.OptionContract{
				Symbol:     o.Symbol,
				Underlying: o.Underlying,
				Exchange:   o.Exchange,
				Type:       o.OptionType,
				Strike:     o.Strike,
				TickSize:   e.ectx.Spec.TickSize,
			},
		}
	}
	return nil
}

// Run executes cycles on the configured interval until ctx is cancelled.
// Cycles never overlap; an in-flight cycle always completes.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.ectx.Config.Trading.TickInterval
	e.logger.Info().Dur("interval", interval).Msg("Engine loop started")

	defer e.hub.Close()

	e.RunCycle(ctx, e.now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Engine loop stopped")
			return nil
		case <-ticker.C:
			e.RunCycle(ctx, e.now())
		}
	}
}

// RunCycle performs one full cycle at now.
func (e *Engine) RunCycle(ctx context.Context, now time.Time) {
	c := e.ectx
	ctx = logging.WithLogger(ctx, e.logger)

	if c.Risk.Rollover(now) {
		c.Book.Prune(c.Risk.Day)
		e.logger.Info().Str("day", c.Risk.Day.Format("2006-01-02")).Msg("New trading day")
	}
	squaredOff := c.Risk.SquareOffDone

	e.applyRequests(ctx, now)
	e.resolvePending(ctx, now)

	prev := c.Signal.Direction
	if err := e.refreshSnapshot(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("Market snapshot unavailable")
		c.Signal = models.Signal{Direction: models.NoTrade, Reason: signal.ReasonInsufficientData, At: now}
	}
	logging.LogSignal(e.logger, string(c.Signal.Direction), c.Signal.Qualifier, c.Signal.Reason, c.Snapshot.Close)

	c.Gate = e.gate.CanEnter(now, c.Running, c.Risk, c.Book.Snapshot())
	if c.Gate.Allowed && c.Pending != nil {
		c.Gate = risk.Decision{Check: risk.CheckSinglePosition, Reason: "Entry order pending", Current: 1, Limit: 1}
	}
	if c.Signal.IsDirectional() {
		// The signal cooldown runs from when a direction first appears, not
		// from every cycle that repeats it.
		if c.Signal.Direction != prev {
			c.Risk.RecordSignal(now)
		}
		if c.Gate.Allowed {
			e.enter(ctx, now)
		} else {
			logging.LogGate(e.logger, c.Gate.Check, c.Gate.Reason)
		}
	}

	for _, closed := range e.manager.Monitor(ctx, now, c.Book, c.Risk) {
		e.announceExit(ctx, closed)
	}
	if !squaredOff && c.Risk.SquareOffDone {
		e.sendSummary(ctx, now)
	}

	e.refreshOrders(ctx, now)

	c.LastCycle = now
	e.publish()
}

func (e *Engine) refreshSnapshot(ctx context.Context) error {
	c := e.ectx
	ref, err := e.resolver.Reference(ctx, c.Spec)
	if err != nil {
		return err
	}

	to := e.now()
	from := to.Add(-c.Config.Strategy.Lookback)
	bars, err := e.broker.GetHistoricalBars(ctx, ref.Token, from, to, c.Config.Strategy.BarInterval)
	if err != nil {
		return err
	}

	snap, sig := e.classify(bars)
	snap.LTP = snap.Close
	if ref.QuoteKey != "" {
		ltp, err := e.broker.GetLastPrice(ctx, ref.QuoteKey)
		if err != nil {
			e.logger.Warn().Err(err).Str("quote", ref.QuoteKey).Msg("Reference quote failed, using last close")
		} else {
			snap.LTP = ltp
		}
	}

	c.Snapshot = snap
	c.Signal = sig
	return nil
}

func classifyBars(bars []models.Candle) (models.MarketSnapshot, models.Signal) {
	snap, err := signal.BuildSnapshot(bars)
	if err != nil {
		return snap, models.Signal{Direction: models.NoTrade, Reason: signal.ReasonInsufficientData, At: snap.AsOf}
	}
	return snap, signal.Evaluate(snap)
}

func (e *Engine) applyRequests(ctx context.Context, now time.Time) {
	e.reqMu.Lock()
	requests := e.requests
	e.requests = nil
	e.reqMu.Unlock()

	c := e.ectx
	for _, cmd := range requests {
		switch cmd {
		case CommandStart:
			c.Running = true
		case CommandStop:
			c.Running = false
		case CommandSquareOff:
			for _, closed := range e.manager.CloseAll(ctx, now, c.Book, c.Risk) {
				e.announceExit(ctx, closed)
			}
		}
		e.logger.Info().Str("command", cmd.String()).Bool("running", c.Running).Msg("Operator command applied")
	}
}

func (e *Engine) announceExit(ctx context.Context, closed lifecycle.Closed) {
	if err := e.notifier.SendExit(ctx, closed.Position); err != nil {
		e.logger.Warn().Err(err).Msg("Exit notification failed")
	}
	if closed.Order.Status == models.OrderStatusRejected {
		if err := e.notifier.SendRejection(ctx, closed.Order); err != nil {
			e.logger.Warn().Err(err).Msg("Rejection notification failed")
		}
	}
}

func (e *Engine) sendSummary(ctx context.Context, now time.Time) {
	day := utils.TradingDay(now)
	next := day.Add(24 * time.Hour)

	positions, err := e.journal.PositionsBetween(ctx, day, next)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Daily summary unavailable")
		return
	}
	orders, err := e.journal.OrdersBetween(ctx, day, next)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Daily summary unavailable")
		return
	}
	if err := e.notifier.SendDailySummary(ctx, store.Summarize(day, positions, orders)); err != nil {
		e.logger.Warn().Err(err).Msg("Summary notification failed")
	}
}

// refreshOrders re-queries every non-terminal journaled order except the
// tracked entry, which resolvePending owns.
func (e *Engine) refreshOrders(ctx context.Context, now time.Time) {
	pending, err := e.journal.PendingOrders(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Pending order refresh failed")
		return
	}

	for _, o := range pending {
		if e.ectx.Pending != nil && o.RecordID == e.ectx.Pending.Order.RecordID {
			continue
		}
		state, err := e.broker.GetOrderStatus(ctx, o.BrokerID)
		if err != nil {
			e.logger.Debug().Err(err).Str("order_id", o.BrokerID).Msg("Order status unavailable")
			continue
		}
		if state.Status == o.Status {
			continue
		}
		if err := e.journal.UpdateOrderStatus(ctx, o.RecordID, state, now); err != nil {
			e.logger.Error().Err(err).Str("record_id", o.RecordID).Msg("Failed to journal order status")
			continue
		}
		logging.LogOrder(e.logger, o.BrokerID, o.Symbol, string(o.Side), string(state.Status), state.Reason)
	}
}

// Start asks the engine to allow entries from the next cycle.
func (e *Engine) Start() { e.request(CommandStart) }

// Stop asks the engine to block entries from the next cycle. Open
// positions keep being monitored.
func (e *Engine) Stop() { e.request(CommandStop) }

// RequestSquareOff asks the engine to close every Active position at the next cycle.
func (e *Engine) RequestSquareOff() { e.request(CommandSquareOff) }

func (e *Engine) request(cmd Command) {
	e.reqMu.Lock()
	defer e.reqMu.Unlock()
	e.requests = append(e.requests, cmd)
}

// Status returns the snapshot published by the last cycle.
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

// Hub returns the status hub.
func (e *Engine) Hub() *Hub {
	return e.hub
}

func (e *Engine) publish() {
	s := e.ectx.status()

	e.statusMu.Lock()
	e.status = s
	e.statusMu.Unlock()

	e.hub.Publish(s)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
