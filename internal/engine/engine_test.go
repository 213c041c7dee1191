package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"options-autotrader/internal/config"
	"options-autotrader/internal/instruments"
	"options-autotrader/internal/models"
	"options-autotrader/internal/notify"
	"options-autotrader/internal/store"
	"options-autotrader/pkg/utils"
)

const spotKey = "NSE:NIFTY BANK"

type fakeBroker struct {
	mu        sync.Mutex
	prices    map[string]float64
	quoteErr  error
	submitErr error
	fillAs    models.OrderStatus
	orders    map[string]models.OrderState
	submitted []models.OrderRequest
	seq       int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		prices: map[string]float64{spotKey: 48213},
		fillAs: models.OrderStatusComplete,
		orders: make(map[string]models.OrderState),
	}
}

func (f *fakeBroker) GetHistoricalBars(context.Context, uint32, time.Time, time.Time, string) ([]models.Candle, error) {
	return nil, nil
}

func (f *fakeBroker) GetLastPrice(_ context.Context, key string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quoteErr != nil && key != spotKey {
		return 0, f.quoteErr
	}
	price, ok := f.prices[key]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", key)
	}
	return price, nil
}

func (f *fakeBroker) ListOptionUniverse(context.Context, models.Exchange) ([]models.Instrument, error) {
	return nil, nil
}

func (f *fakeBroker) SubmitOrder(_ context.Context, req models.OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.seq++
	id := fmt.Sprintf("25030400%04d", f.seq)
	f.submitted = append(f.submitted, req)
	state := models.OrderState{OrderID: id, Status: f.fillAs, FilledQty: req.Quantity}
	if f.fillAs == models.OrderStatusComplete {
		state.AveragePrice = f.prices[string(req.Exchange)+":"+req.Symbol]
	}
	f.orders[id] = state
	return id, nil
}

func (f *fakeBroker) GetOrderStatus(_ context.Context, id string) (models.OrderState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.orders[id]
	if !ok {
		return models.OrderState{}, fmt.Errorf("order %s not found", id)
	}
	return state, nil
}

func (f *fakeBroker) fillAll(price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, state := range f.orders {
		if !state.Status.IsTerminal() {
			state.Status = models.OrderStatusComplete
			state.AveragePrice = price
			f.orders[id] = state
		}
	}
}

func (f *fakeBroker) setPrice(key string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[key] = price
}

type staticUniverse []models.Instrument

func (u staticUniverse) Instruments(context.Context, models.Exchange) ([]models.Instrument, error) {
	return u, nil
}

func bankNiftyUniverse() staticUniverse {
	expiry := time.Date(2025, 3, 26, 0, 0, 0, 0, utils.IndiaLocation)
	var u staticUniverse
	for strike := 47800.0; strike <= 48600; strike += 100 {
		for _, typ := range []models.InstrumentType{models.InstrumentCE, models.InstrumentPE} {
			u = append(u, models.Instrument{
				Token:    uint32(strike) * 10,
				Symbol:   fmt.Sprintf("BANKNIFTY25MAR%.0f%s", strike, typ),
				Name:     "BANKNIFTY",
				Exchange: models.NFO,
				Type:     typ,
				Strike:   strike,
				Expiry:   expiry,
				TickSize: 0.05,
				LotSize:  30,
			})
		}
	}
	return u
}

type countingNotifier struct {
	entries, exits, rejections, summaries int
}

func (n *countingNotifier) Send(context.Context, notify.Notification) error { return nil }
func (n *countingNotifier) SendEntry(context.Context, models.Position) error {
	n.entries++
	return nil
}
func (n *countingNotifier) SendExit(context.Context, models.Position) error {
	n.exits++
	return nil
}
func (n *countingNotifier) SendRejection(context.Context, models.Order) error {
	n.rejections++
	return nil
}
func (n *countingNotifier) SendDailySummary(context.Context, store.DaySummary) error {
	n.summaries++
	return nil
}
func (n *countingNotifier) SendError(context.Context, error, string) error { return nil }

type testEnv struct {
	engine   *Engine
	broker   *fakeBroker
	journal  *store.SQLiteStore
	notifier *countingNotifier
	now      time.Time
	signal   models.Direction
}

func ist(h, m, s int) time.Time {
	return time.Date(2025, 3, 4, h, m, s, 0, utils.IndiaLocation)
}

func newTestEnv(t *testing.T, dbPath string, mutate func(*config.Config)) *testEnv {
	t.Helper()

	journal, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	return newEnvWithJournal(t, journal, mutate)
}

func newEnvWithJournal(t *testing.T, journal *store.SQLiteStore, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Trading.StatusCheckDelay = 0
	if mutate != nil {
		mutate(cfg)
	}
	_, def := cfg.ActiveInstrument()
	spec, err := instruments.ParseSpec("BANKNIFTY", def)
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}

	env := &testEnv{
		broker:   newFakeBroker(),
		journal:  journal,
		notifier: &countingNotifier{},
		now:      ist(10, 0, 0),
		signal:   models.NoTrade,
	}

	e, err := New(context.Background(), cfg, spec, Deps{
		Broker:   env.broker,
		Journal:  journal,
		Resolver: instruments.NewResolver(bankNiftyUniverse(), cfg.Strategy.OTMDistance),
		Notifier: env.notifier,
		Logger:   zerolog.Nop(),
		Clock:    func() time.Time { return env.now },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.classify = func([]models.Candle) (models.MarketSnapshot, models.Signal) {
		return models.MarketSnapshot{Close: 48210, ValidBars: 60}, models.Signal{Direction: env.signal, Reason: "test", At: env.now}
	}
	env.engine = e
	return env
}

func (env *testEnv) cycle(d models.Direction) Status {
	env.signal = d
	env.engine.RunCycle(context.Background(), env.now)
	return env.engine.Status()
}

func (env *testEnv) advance(d time.Duration) {
	env.now = env.now.Add(d)
}

func TestStoppedEngineDoesNotEnter(t *testing.T) {
	env := newTestEnv(t, filepath.Join(t.TempDir(), "engine.db"), nil)

	st := env.cycle(models.Bullish)
	if st.Running || st.GateReason != "Bot stopped" {
		t.Errorf("status = %+v, want stopped gate", st)
	}
	if len(env.broker.submitted) != 0 {
		t.Errorf("submitted %d orders while stopped", len(env.broker.submitted))
	}
}

func TestEntryOpensPosition(t *testing.T) {
	env := newTestEnv(t, filepath.Join(t.TempDir(), "engine.db"), nil)
	env.broker.setPrice("NFO:BANKNIFTY25MAR48300CE", 212.4)

	env.engine.Start()
	st := env.cycle(models.Bullish)

	if len(env.broker.submitted) != 1 {
		t.Fatalf("submitted %d orders, want 1", len(env.broker.submitted))
	}
	req := env.broker.submitted[0]
	if req.Symbol != "BANKNIFTY25MAR48300CE" || req.Side != models.OrderSideBuy || req.Type != models.OrderTypeMarket ||
		req.Quantity != 30 || req.Tag != EntryTag {
		t.Errorf("entry request = %+v", req)
	}

	active := st.ActivePositions()
	if len(active) != 1 {
		t.Fatalf("active positions = %d, want 1", len(active))
	}
	pos := active[0]
	if pos.EntryPrice != 212.4 || pos.StopLoss != 187.4 || pos.TakeProfit != 312.4 {
		t.Errorf("position levels = %+v", pos)
	}
	if st.TradesToday != 1 || env.notifier.entries != 1 {
		t.Errorf("trades = %d, entry notifications = %d", st.TradesToday, env.notifier.entries)
	}

	ctx := context.Background()
	orders, _ := env.journal.OrdersBetween(ctx, utils.TradingDay(env.now), utils.TradingDay(env.now).Add(24*time.Hour))
	if len(orders) != 1 || orders[0].Status != models.OrderStatusComplete || orders[0].AveragePrice != 212.4 {
		t.Errorf("journaled orders = %+v", orders)
	}
	saved, _ := env.journal.ActivePositions(ctx)
	if len(saved) != 1 || saved[0].ID != pos.ID {
		t.Errorf("journaled positions = %+v", saved)
	}
}

func TestBearishSignalBuysPut(t *testing.T) {
	env := newTestEnv(t, filepath.Join(t.TempDir(), "engine.db"), func(c *config.Config) {
		c.Strategy.Lots = 2
	})
	env.broker.setPrice("NFO:BANKNIFTY25MAR48100PE", 180)

	env.engine.Start()
	env.cycle(models.Bearish)

	if len(env.broker.submitted) != 1 {
		t.Fatalf("submitted %d orders", len(env.broker.submitted))
	}
	if req := env.broker.submitted[0]; req.Symbol != "BANKNIFTY25MAR48100PE" || req.Quantity != 60 {
		t.Errorf("entry request = %+v", req)
	}
}

func TestSubmitFailureJournalsRejection(t *testing.T) {
	env := newTestEnv(t, filepath.Join(t.TempDir(), "engine.db"), nil)
	env.broker.setPrice("NFO:BANKNIFTY25MAR48300CE", 212.4)
	env.broker.submitErr = stderrors.New("connection reset")

	env.engine.Start()
	st := env.cycle(models.Bullish)

	if len(st.ActivePositions()) != 0 || st.TradesToday != 0 {
		t.Errorf("status = %+v", st)
	}
	if env.notifier.rejections != 1 {
		t.Errorf("rejection notifications = %d", env.notifier.rejections)
	}

	ctx := context.Background()
	day := utils.TradingDay(env.now)
	orders, _ := env.journal.OrdersBetween(ctx, day, day.Add(24*time.Hour))
	if len(orders) != 1 || orders[0].Status != models.OrderStatusRejected ||
		orders[0].Reason != "Order failed: connection reset" || orders[0].BrokerID != "" {
		t.Fatalf("journaled orders = %+v", orders)
	}

	// The order cooldown is not stamped by a failed submission.
	env.broker.submitErr = nil
	env.advance(15 * time.Second)
	env.cycle(models.Bullish)
	if len(env.broker.submitted) != 1 {
		t.Errorf("retry after rejection submitted %d orders, want 1", len(env.broker.submitted))
	}
}

func TestQuoteFailureIsRejectedOrder(t *testing.T) {
	env := newTestEnv(t, filepath.Join(t.TempDir(), "engine.db"), nil)
	env.broker.quoteErr = stderrors.New("timeout")

	env.engine.Start()
	env.cycle(models.Bullish)

	if len(env.broker.submitted) != 0 {
		t.Errorf("order submitted without a quote")
	}
	ctx := context.Background()
	day := utils.TradingDay(env.now)
	orders, _ := env.journal.OrdersBetween(ctx, day, day.Add(24*time.Hour))
	if len(orders) != 1 || !strings.HasPrefix(orders[0].Reason, "Order failed:") {
		t.Errorf("journaled orders = %+v", orders)
	}
}

func TestUnresolvedContractIsRejectedOrder(t *testing.T) {
	env := newTestEnv(t, filepath.Join(t.TempDir(), "engine.db"), nil)
	env.engine.resolver = instruments.NewResolver(staticUniverse{}, 1)

	env.engine.Start()
	env.cycle(models.Bullish)

	if len(env.broker.submitted) != 0 {
		t.Errorf("order submitted without a contract")
	}
	if env.notifier.rejections != 1 {
		t.Errorf("rejection notifications = %d, want 1", env.notifier.rejections)
	}

	ctx := context.Background()
	day := utils.TradingDay(env.now)
	orders, _ := env.journal.OrdersBetween(ctx, day, day.Add(24*time.Hour))
	if len(orders) != 1 {
		t.Fatalf("journaled orders = %+v", orders)
	}
	o := orders[0]
	if o.Status != models.OrderStatusRejected || o.BrokerID != "" || o.Symbol != "" ||
		o.Underlying != "BANKNIFTY" || o.OptionType != models.InstrumentCE ||
		!strings.Contains(o.Reason, "no options listed") {
		t.Errorf("rejected order = %+v", o)
	}
}

func TestPersistentSignalEntersWhenWindowOpens(t *testing.T) {
	env := newTestEnv(t, filepath.Join(t.TempDir(), "engine.db"), nil)
	env.broker.setPrice("NFO:BANKNIFTY25MAR48300CE", 212.4)
	env.now = ist(9, 19, 30)

	env.engine.Start()
	var st Status
	for i := 0; i < 6 && len(env.broker.submitted) == 0; i++ {
		st = env.cycle(models.Bullish)
		env.advance(9999 * time.Millisecond)
	}

	if len(env.broker.submitted) != 1 {
		t.Fatalf("submitted %d orders, last gate %q", len(env.broker.submitted), st.GateReason)
	}
	if len(st.ActivePositions()) != 1 {
		t.Errorf("active positions = %d, want 1", len(st.ActivePositions()))
	}
}

func TestEntryFilledAfterSquareOffIsClosed(t *testing.T) {
	env := newTestEnv(t, filepath.Join(t.TempDir(), "engine.db"), nil)
	env.broker.setPrice("NFO:BANKNIFTY25MAR48300CE", 212.4)
	env.broker.fillAs = models.OrderStatusOpen
	env.now = ist(14, 44, 0)

	env.engine.Start()
	if st := env.cycle(models.Bullish); st.PendingOrder == "" {
		t.Fatalf("entry not pending: %+v", st)
	}

	env.now = ist(15, 6, 0)
	if st := env.cycle(models.NoTrade); !st.SquareOffDone || st.PendingOrder == "" {
		t.Fatalf("status at square-off = %+v", st)
	}

	env.broker.fillAll(213)
	for _, at := range []time.Time{ist(15, 7, 0), ist(15, 20, 0), ist(16, 0, 0)} {
		env.now = at
		st := env.cycle(models.NoTrade)
		if n := len(st.ActivePositions()); n != 0 {
			t.Fatalf("active positions at %s = %d", at.Format("15:04"), n)
		}
	}

	ctx := context.Background()
	positions, _ := env.journal.PositionsBetween(ctx, utils.TradingDay(env.now), utils.TradingDay(env.now).Add(24*time.Hour))
	if len(positions) != 1 || positions[0].ExitReason != models.ExitSquareOff || positions[0].EntryPrice != 213 {
		t.Errorf("journaled positions = %+v", positions)
	}
	if env.notifier.exits != 1 || env.notifier.summaries != 1 {
		t.Errorf("exits = %d, summaries = %d", env.notifier.exits, env.notifier.summaries)
	}
}

func TestPendingEntryFillsOnLaterCycle(t *testing.T) {
	env := newTestEnv(t, filepath.Join(t.TempDir(), "engine.db"), nil)
	env.broker.setPrice("NFO:BANKNIFTY25MAR48300CE", 212.4)
	env.broker.fillAs = models.OrderStatusOpen

	env.engine.Start()
	st := env.cycle(models.Bullish)
	if len(st.ActivePositions()) != 0 || st.PendingOrder == "" {
		t.Fatalf("status after open order = %+v", st)
	}

	// A pending entry blocks further entries even after the cooldowns.
	env.advance(time.Minute)
	st = env.cycle(models.Bullish)
	if len(env.broker.submitted) != 1 || st.GateReason != "Entry order pending" {
		t.Fatalf("second entry submitted or gate = %q", st.GateReason)
	}

	env.broker.fillAll(213)
	env.advance(10 * time.Second)
	st = env.cycle(models.NoTrade)
	active := st.ActivePositions()
	if len(active) != 1 || active[0].EntryPrice != 213 || st.PendingOrder != "" {
		t.Errorf("status after fill = %+v", st)
	}
}

func TestCooldownsBlockReentry(t *testing.T) {
	env := newTestEnv(t, filepath.Join(t.TempDir(), "engine.db"), nil)
	key := "NFO:BANKNIFTY25MAR48300CE"
	env.broker.setPrice(key, 212.4)

	env.engine.Start()
	env.cycle(models.Bullish)

	// Price falls through the stop, position closes.
	env.broker.setPrice(key, 180)
	env.advance(10 * time.Second)
	st := env.cycle(models.Bullish)
	if len(st.ActivePositions()) != 0 {
		t.Fatalf("position not stopped out")
	}
	if !strings.HasPrefix(st.GateReason, "Order cooldown active") {
		t.Errorf("gate = %q, want order cooldown", st.GateReason)
	}

	env.advance(20 * time.Second)
	env.cycle(models.Bullish)
	if len(env.broker.submitted) != 3 {
		t.Errorf("submitted %d orders, want entry, exit, entry", len(env.broker.submitted))
	}
}

func TestStopRequestAppliesAtBoundary(t *testing.T) {
	env := newTestEnv(t, filepath.Join(t.TempDir(), "engine.db"), nil)

	env.engine.Start()
	if env.engine.Status().Running {
		t.Error("start applied before the cycle boundary")
	}
	env.cycle(models.NoTrade)
	if !env.engine.Status().Running {
		t.Error("start not applied at the cycle boundary")
	}

	env.engine.Stop()
	env.advance(10 * time.Second)
	if st := env.cycle(models.NoTrade); st.Running {
		t.Error("stop not applied")
	}
}

func TestManualSquareOff(t *testing.T) {
	env := newTestEnv(t, filepath.Join(t.TempDir(), "engine.db"), nil)
	key := "NFO:BANKNIFTY25MAR48300CE"
	env.broker.setPrice(key, 212.4)

	env.engine.Start()
	env.cycle(models.Bullish)

	entry, exit := 212.4, 220.0
	env.broker.setPrice(key, exit)
	env.engine.RequestSquareOff()
	env.advance(10 * time.Second)
	st := env.cycle(models.NoTrade)

	if len(st.ActivePositions()) != 0 {
		t.Fatal("position still active after manual square-off")
	}
	closed := st.Positions[0]
	if closed.ExitReason != models.ExitSquareOff || closed.PnL != (exit-entry)*30 {
		t.Errorf("closed position = %+v", closed)
	}
	if st.SquareOffDone {
		t.Error("manual square-off set the daily flag")
	}
	if env.notifier.exits != 1 {
		t.Errorf("exit notifications = %d", env.notifier.exits)
	}
}

func TestScheduledSquareOffSendsSummaryOnce(t *testing.T) {
	env := newTestEnv(t, filepath.Join(t.TempDir(), "engine.db"), nil)
	env.broker.setPrice("NFO:BANKNIFTY25MAR48300CE", 212.4)

	env.engine.Start()
	env.cycle(models.Bullish)

	env.now = ist(15, 6, 0)
	st := env.cycle(models.NoTrade)
	if !st.SquareOffDone || len(st.ActivePositions()) != 0 {
		t.Fatalf("status = %+v", st)
	}

	env.advance(10 * time.Second)
	env.cycle(models.NoTrade)
	if env.notifier.exits != 1 || env.notifier.summaries != 1 {
		t.Errorf("exits = %d, summaries = %d; want 1 each", env.notifier.exits, env.notifier.summaries)
	}
}

func TestRestartRecoversState(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "engine.db")
	env := newTestEnv(t, dbPath, nil)
	env.broker.setPrice("NFO:BANKNIFTY25MAR48300CE", 212.4)
	env.engine.Start()
	env.cycle(models.Bullish)

	restarted := newEnvWithJournal(t, env.journal, func(c *config.Config) { c.Trading.AutoStart = true })
	restarted.now = env.now.Add(time.Minute)
	st := restarted.engine.Status()

	if st.TradesToday != 1 || len(st.ActivePositions()) != 1 || !st.Running {
		t.Errorf("recovered status = %+v", st)
	}

	// The recovered position still blocks new entries.
	restarted.broker.setPrice("NFO:BANKNIFTY25MAR48300CE", 215)
	st = restarted.cycle(models.Bullish)
	if st.GateReason != "Active position exists" || len(restarted.broker.submitted) != 0 {
		t.Errorf("gate = %q, submitted = %d", st.GateReason, len(restarted.broker.submitted))
	}
}

func TestStatusPublishedToHub(t *testing.T) {
	env := newTestEnv(t, filepath.Join(t.TempDir(), "engine.db"), nil)
	ch := env.engine.Hub().Subscribe("test")

	env.cycle(models.Bearish)

	select {
	case st := <-ch:
		if st.Signal.Direction != models.Bearish || !st.LastCycle.Equal(env.now) {
			t.Errorf("published status = %+v", st)
		}
	default:
		t.Fatal("no status published")
	}
}

// Property: whatever the sequence of signals, fills and prices, the engine
// never holds more than one Active position.
func TestProperty_SinglePosition(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25

	properties := gopter.NewProperties(parameters)
	dir := t.TempDir()
	run := 0

	properties.Property("at most one Active position", prop.ForAll(
		func(steps []int, prices []float64) bool {
			run++
			env := newTestEnv(t, filepath.Join(dir, fmt.Sprintf("run%d.db", run)), func(c *config.Config) {
				c.Risk.MaxTradesPerDay = 100
				c.Risk.MaxLossPerDay = 1e9
			})
			env.engine.Start()

			for i, step := range steps {
				price := prices[i%len(prices)]
				for _, sym := range []string{"BANKNIFTY25MAR48300CE", "BANKNIFTY25MAR48100PE"} {
					env.broker.setPrice("NFO:"+sym, price)
				}
				if step/3 == 1 {
					env.broker.fillAs = models.OrderStatusOpen
				} else {
					env.broker.fillAs = models.OrderStatusComplete
					env.broker.fillAll(price)
				}

				st := env.cycle([]models.Direction{models.NoTrade, models.Bullish, models.Bearish}[step%3])
				if len(st.ActivePositions()) > 1 {
					return false
				}
				env.advance(31 * time.Second)
			}
			return true
		},
		gen.SliceOfN(30, gen.IntRange(0, 5)),
		gen.SliceOfN(5, gen.Float64Range(60, 240)),
	))

	properties.TestingRun(t)
}
