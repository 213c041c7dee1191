package signal

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"options-autotrader/internal/models"
)

func flatBars(n int, price float64) []models.Candle {
	base := time.Date(2025, 1, 6, 9, 15, 0, 0, time.UTC)
	bars := make([]models.Candle, n)
	for i := range bars {
		bars[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
		}
	}
	return bars
}

func TestClassifyInsufficientData(t *testing.T) {
	for _, n := range []int{0, 10, SlowPeriod + MinValidBars - 1, stochParams.Warmup() + MinValidBars - 2} {
		sig := Classify(flatBars(n, 100))
		if sig.Direction != models.NoTrade || sig.Reason != ReasonInsufficientData {
			t.Errorf("n=%d: got %s, want NoTrade insufficient data", n, sig)
		}
	}
}

func TestClassifyFlatMarketHasNoSignal(t *testing.T) {
	bars := flatBars(stochParams.Warmup()+MinValidBars-1, 100)

	snap, err := BuildSnapshot(bars)
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}
	if snap.ValidBars != MinValidBars {
		t.Errorf("ValidBars = %d, want %d", snap.ValidBars, MinValidBars)
	}

	sig := Classify(bars)
	if sig.Direction != models.NoTrade || sig.Reason != ReasonNoSignal {
		t.Errorf("got %s, want NoTrade", sig)
	}
	if !sig.At.Equal(bars[len(bars)-1].Timestamp) {
		t.Errorf("At = %v, want last bar time", sig.At)
	}
}

func TestEvaluatePrecedence(t *testing.T) {
	bull := models.MarketSnapshot{Close: 110, EMAFast: 108, EMAMedium: 106, EMASlow: 104}
	bear := models.MarketSnapshot{Close: 90, EMAFast: 92, EMAMedium: 94, EMASlow: 96}
	flat := models.MarketSnapshot{Close: 100, EMAFast: 100, EMAMedium: 100, EMASlow: 100}

	with := func(s models.MarketSnapshot, k, d float64) models.MarketSnapshot {
		s.StochK, s.StochD = k, d
		return s
	}

	tests := []struct {
		name      string
		snap      models.MarketSnapshot
		direction models.Direction
		qualifier string
		reason    string
	}{
		{"ema bull + oversold beats oversold alone", with(bull, 15, 10), models.Bullish, QualifierCombined, "EMA alignment + Stochastic favorable"},
		{"ema bull + bull cross", with(bull, 60, 55), models.Bullish, QualifierCombined, "EMA alignment + Stochastic favorable"},
		{"ema bear + overbought", with(bear, 85, 90), models.Bearish, QualifierCombined, "EMA alignment + Stochastic favorable"},
		{"ema bear + bear cross", with(bear, 40, 45), models.Bearish, QualifierCombined, "EMA alignment + Stochastic favorable"},
		{"oversold alone", with(flat, 15, 10), models.Bullish, QualifierStochOnly, "Stochastic oversold"},
		{"overbought alone", with(flat, 85, 90), models.Bearish, QualifierStochOnly, "Stochastic overbought"},
		{"ema bear with oversold falls to stochastic", with(bear, 15, 10), models.Bullish, QualifierStochOnly, "Stochastic oversold"},
		{"bull cross alone", with(flat, 60, 55), models.Bullish, QualifierStochOnly, "Stochastic bullish cross"},
		{"bear cross alone", with(flat, 40, 45), models.Bearish, QualifierStochOnly, "Stochastic bearish cross"},
		{"ema bull only", with(bull, 55, 60), models.Bullish, QualifierEMAOnly, "EMA alignment only"},
		{"ema bear only", with(bear, 45, 40), models.Bearish, QualifierEMAOnly, "EMA alignment only"},
		{"nothing", with(flat, 50, 50), models.NoTrade, "", ReasonNoSignal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Evaluate(tt.snap)
			if sig.Direction != tt.direction || sig.Qualifier != tt.qualifier || sig.Reason != tt.reason {
				t.Errorf("got %s, want %s [%s] (%s)", sig, tt.direction, tt.qualifier, tt.reason)
			}
		})
	}
}

func TestRulesReturnsCopy(t *testing.T) {
	table := Rules()
	if len(table) != 8 {
		t.Fatalf("len(Rules()) = %d, want 8", len(table))
	}
	table[0].Reason = "mutated"
	if Rules()[0].Reason == "mutated" {
		t.Error("Rules exposed the internal table")
	}
}

// Property: an aligned bullish EMA stack with an oversold stochastic is always the combined bullish rule.
func TestProperty_CombinedRuleWinsOverStochasticOnly(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("EMA bull + oversold => combined Bullish", prop.ForAll(
		func(slow, gap, k, d float64) bool {
			snap := models.MarketSnapshot{
				EMASlow:   slow,
				EMAMedium: slow + gap,
				EMAFast:   slow + 2*gap,
				Close:     slow + 3*gap,
				StochK:    k,
				StochD:    d,
			}
			sig := Evaluate(snap)
			return sig.Direction == models.Bullish && sig.Qualifier == QualifierCombined
		},
		gen.Float64Range(1000, 50000),
		gen.Float64Range(0.5, 50),
		gen.Float64Range(0, 19.99),
		gen.Float64Range(0, 19.99),
	))

	properties.Property("NoTrade only when no rule matches", prop.ForAll(
		func(close, fast, medium, slow, k, d float64) bool {
			snap := models.MarketSnapshot{Close: close, EMAFast: fast, EMAMedium: medium, EMASlow: slow, StochK: k, StochD: d}
			matched := false
			for _, r := range Rules() {
				if r.Match(snap) {
					matched = true
					break
				}
			}
			return matched == Evaluate(snap).IsDirectional()
		},
		gen.Float64Range(90, 110),
		gen.Float64Range(90, 110),
		gen.Float64Range(90, 110),
		gen.Float64Range(90, 110),
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}
