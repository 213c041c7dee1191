package instruments

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: rounding an already rounded price changes nothing.
func TestProperty_RoundToTickIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	tickGen := gen.OneConstOf(0.05, 0.1, 1.0)
	priceGen := gen.Float64Range(0.01, 100000)

	properties.Property("roundToTick(roundToTick(p)) == roundToTick(p)", prop.ForAll(
		func(price float64, tick float64) bool {
			once := RoundToTick(price, tick)
			return RoundToTick(once, tick) == once
		},
		priceGen,
		tickGen,
	))

	properties.Property("rounded price lies within half a tick", prop.ForAll(
		func(price float64, tick float64) bool {
			return math.Abs(RoundToTick(price, tick)-price) <= tick/2+1e-9
		},
		priceGen,
		tickGen,
	))

	properties.TestingRun(t)
}

// Property: a reference price that is an exact strike multiple is its own ATM.
func TestProperty_ATMExactOnStrikeMultiples(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("ATM(k*step) == k*step", prop.ForAll(
		func(k int, step float64) bool {
			ref := float64(k) * step
			return ATMStrike(ref, step) == ref
		},
		gen.IntRange(1, 2000),
		gen.OneConstOf(50.0, 100.0),
	))

	properties.Property("call target sits above put target by 2*otm*step", prop.ForAll(
		func(ref float64, otm int) bool {
			step := 100.0
			call := TargetStrike(ref, step, otm, true)
			put := TargetStrike(ref, step, otm, false)
			return call-put == float64(2*otm)*step
		},
		gen.Float64Range(1000, 60000),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}

func TestRoundToTickExamples(t *testing.T) {
	tests := []struct {
		price, tick, want float64
	}{
		{129.97, 0.05, 129.95},
		{116.03, 0.05, 116.05},
		{6412.34, 0.1, 6412.3},
		{101.5, 1, 102},
		{42.42, 0, 42.42},
	}
	for _, tt := range tests {
		if got := RoundToTick(tt.price, tt.tick); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("RoundToTick(%v, %v) = %v, want %v", tt.price, tt.tick, got, tt.want)
		}
	}
}
