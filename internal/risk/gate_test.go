package risk

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"options-autotrader/internal/errors"
	"options-autotrader/internal/models"
	"options-autotrader/pkg/utils"
)

var indexWindow = models.TradingWindow{
	EntryStart: models.ClockTime{Hour: 9, Minute: 20},
	LastEntry:  models.ClockTime{Hour: 14, Minute: 45},
	SquareOff:  models.ClockTime{Hour: 15, Minute: 10},
}

func testLimits() Limits {
	return Limits{
		MaxTradesPerDay: 5,
		MaxLossPerDay:   3000,
		OrderCooldown:   30 * time.Second,
		SignalCooldown:  10 * time.Second,
	}
}

func ist(h, m, s int) time.Time {
	return time.Date(2025, 3, 4, h, m, s, 0, utils.IndiaLocation)
}

func TestCanEnterOrder(t *testing.T) {
	gate := NewGate(testLimits(), indexWindow)
	noon := ist(12, 0, 0)
	active := []models.Position{{Status: models.PositionActive}}

	tests := []struct {
		name      string
		now       time.Time
		running   bool
		state     State
		positions []models.Position
		check     string
		reason    string
	}{
		{"stopped beats everything", ist(8, 0, 0), false, State{TradesToday: 9}, active, CheckRunSwitch, "Bot stopped"},
		{"before entry start", ist(9, 19, 59), true, State{}, nil, CheckEntryWindow, "Outside entry hours (09:20-14:45)"},
		{"after last entry", ist(14, 45, 1), true, State{}, nil, CheckEntryWindow, "Outside entry hours (09:20-14:45)"},
		{"order cooldown", noon, true, State{LastOrderAt: noon.Add(-10 * time.Second), TradesToday: 9}, nil, CheckOrderCooldown, "Order cooldown active: 20s remaining"},
		{"signal cooldown", noon, true, State{LastSignalAt: noon.Add(-4 * time.Second), TradesToday: 9}, nil, CheckSignalCooldown, "Signal cooldown active: 6s remaining"},
		{"trade cap", noon, true, State{TradesToday: 5, LossToday: 9000}, active, CheckMaxTrades, "Max trades reached (5/5)"},
		{"loss cap", noon, true, State{TradesToday: 4, LossToday: 3000}, active, CheckMaxLoss, "Max loss reached (3000.00/3000.00)"},
		{"single position", noon, true, State{}, active, CheckSinglePosition, "Active position exists"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := tt.state
			d := gate.CanEnter(tt.now, tt.running, &state, tt.positions)
			if d.Allowed {
				t.Fatal("expected refusal")
			}
			if d.Check != tt.check || d.Reason != tt.reason {
				t.Errorf("got %s %q, want %s %q", d.Check, d.Reason, tt.check, tt.reason)
			}
		})
	}
}

func TestCanEnterAllowsAtWindowEdges(t *testing.T) {
	gate := NewGate(testLimits(), indexWindow)
	closed := []models.Position{{Status: models.PositionClosed}}

	for _, now := range []time.Time{ist(9, 20, 0), ist(14, 45, 0)} {
		d := gate.CanEnter(now, true, NewState(now), closed)
		if !d.Allowed {
			t.Errorf("%s: refused with %q", now.Format("15:04:05"), d.Reason)
		}
		if d.Err() != nil {
			t.Errorf("Err() = %v on allowed decision", d.Err())
		}
	}
}

func TestCanEnterEvaluatesInIST(t *testing.T) {
	gate := NewGate(testLimits(), indexWindow)
	// 06:30 UTC is 12:00 IST.
	now := time.Date(2025, 3, 4, 6, 30, 0, 0, time.UTC)
	if d := gate.CanEnter(now, true, NewState(now), nil); !d.Allowed {
		t.Errorf("refused with %q", d.Reason)
	}
}

func TestDecisionErr(t *testing.T) {
	gate := NewGate(testLimits(), indexWindow)
	now := ist(12, 0, 0)
	d := gate.CanEnter(now, true, &State{TradesToday: 5}, nil)

	var riskErr *errors.RiskError
	if !stderrors.As(d.Err(), &riskErr) {
		t.Fatalf("Err() = %v, want *RiskError", d.Err())
	}
	if riskErr.Rule != CheckMaxTrades || riskErr.Current != 5 || riskErr.Limit != 5 {
		t.Errorf("unexpected RiskError %+v", riskErr)
	}
	if !strings.Contains(riskErr.Error(), "Max trades reached") {
		t.Errorf("Error() = %q", riskErr.Error())
	}
}

// Property: the order cooldown is active strictly while now < last + duration.
func TestProperty_OrderCooldownBoundary(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	gate := NewGate(testLimits(), indexWindow)
	last := ist(11, 0, 0)
	cooldown := testLimits().OrderCooldown

	properties.Property("refused iff elapsed < cooldown", prop.ForAll(
		func(elapsedMs int64) bool {
			now := last.Add(time.Duration(elapsedMs) * time.Millisecond)
			d := gate.CanEnter(now, true, &State{Day: utils.TradingDay(now), LastOrderAt: last}, nil)
			inCooldown := now.Sub(last) < cooldown
			if inCooldown {
				return !d.Allowed && d.Check == CheckOrderCooldown
			}
			return d.Allowed
		},
		gen.Int64Range(0, 60_000),
	))

	properties.TestingRun(t)
}

func TestRolloverResetsDailyCounters(t *testing.T) {
	day1 := ist(15, 0, 0)
	state := NewState(day1)
	state.TradesToday = 3
	state.LossToday = 1200
	state.SquareOffDone = true
	state.RecordOrder(day1)

	if state.Rollover(day1.Add(8 * time.Hour)) {
		t.Fatal("rolled over before midnight IST")
	}
	if !state.Rollover(day1.Add(9*time.Hour + time.Minute)) {
		t.Fatal("did not roll over after midnight IST")
	}
	if state.TradesToday != 0 || state.LossToday != 0 || state.SquareOffDone {
		t.Errorf("counters not reset: %+v", state)
	}
	if !state.LastOrderAt.Equal(day1) {
		t.Error("rollover must not clear the cooldown stamp")
	}
}

func TestRecordClose(t *testing.T) {
	state := NewState(ist(10, 0, 0))
	state.RecordClose(450)
	state.RecordClose(-300)
	state.RecordClose(-125.5)
	if state.LossToday != 425.5 {
		t.Errorf("LossToday = %v, want 425.5", state.LossToday)
	}
}

type fakeJournal struct {
	positions []models.Position
	lastOrder time.Time
	err       error
}

func (f fakeJournal) PositionsBetween(ctx context.Context, from, to time.Time) ([]models.Position, error) {
	var out []models.Position
	for _, p := range f.positions {
		if !p.EntryTime.Before(from) && p.EntryTime.Before(to) {
			out = append(out, p)
		}
	}
	return out, f.err
}

func (f fakeJournal) LastOrderTime(ctx context.Context) (time.Time, error) {
	return f.lastOrder, f.err
}

func TestRecoverRebuildsToday(t *testing.T) {
	now := ist(13, 0, 0)
	journal := fakeJournal{
		positions: []models.Position{
			{Status: models.PositionClosed, EntryTime: now.Add(-26 * time.Hour), PnL: -999},
			{Status: models.PositionClosed, EntryTime: ist(9, 30, 0), PnL: -750},
			{Status: models.PositionClosed, EntryTime: ist(10, 30, 0), PnL: 1200},
			{Status: models.PositionActive, EntryTime: ist(12, 30, 0)},
		},
		lastOrder: ist(12, 29, 55),
	}

	state, err := Recover(context.Background(), journal, now)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if state.TradesToday != 3 {
		t.Errorf("TradesToday = %d, want 3", state.TradesToday)
	}
	if state.LossToday != 750 {
		t.Errorf("LossToday = %v, want 750", state.LossToday)
	}
	if !state.LastOrderAt.Equal(journal.lastOrder) {
		t.Errorf("LastOrderAt = %v", state.LastOrderAt)
	}
}

func TestRecoverPropagatesJournalError(t *testing.T) {
	_, err := Recover(context.Background(), fakeJournal{err: stderrors.New("disk gone")}, ist(10, 0, 0))
	if err == nil {
		t.Fatal("expected error")
	}
}
