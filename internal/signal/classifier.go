// Package signal turns a window of bars into a directional trade signal.
package signal

import (
	"errors"
	"math"

	"options-autotrader/internal/analysis/indicators"
	"options-autotrader/internal/models"
)

// MinValidBars is the number of post warm-up bars required to classify.
const MinValidBars = 50

// Indicator parameters.
const (
	FastPeriod   = 5
	MediumPeriod = 8
	SlowPeriod   = 13

	StochK      = 14
	StochD      = 3
	StochSmooth = 3
)

// Stochastic thresholds.
const (
	Oversold     = 20.0
	Overbought   = 80.0
	CrossPivot   = 50.0
	NeutralStoch = 50.0
)

// Qualifiers shown to the operator.
const (
	QualifierCombined  = "EMA+Stochastic"
	QualifierStochOnly = "Stochastic-only"
	QualifierEMAOnly   = "EMA-only"
)

// ReasonInsufficientData is reported when the window is too short.
const ReasonInsufficientData = "insufficient data"

// ErrTooFewBars is returned by BuildSnapshot when fewer than MinValidBars remain after warm-up.
var ErrTooFewBars = errors.New("too few valid bars")

var stochParams = indicators.StochParams{KPeriod: StochK, DPeriod: StochD, Smooth: StochSmooth}

// BuildSnapshot computes the indicator values of the last bar.
// A bar counts as valid once both the slow EMA and %D are defined on it.
func BuildSnapshot(bars []models.Candle) (models.MarketSnapshot, error) {
	if len(bars) < SlowPeriod {
		return models.MarketSnapshot{ValidBars: 0}, ErrTooFewBars
	}

	closes := indicators.Closes(bars)
	fast, err := indicators.EMA(closes, FastPeriod)
	if err != nil {
		return models.MarketSnapshot{}, err
	}
	medium, err := indicators.EMA(closes, MediumPeriod)
	if err != nil {
		return models.MarketSnapshot{}, err
	}
	slow, err := indicators.EMA(closes, SlowPeriod)
	if err != nil {
		return models.MarketSnapshot{}, err
	}

	k, d := math.NaN(), math.NaN()
	valid := 0
	if stoch, err := indicators.Stochastic(bars, stochParams); err == nil {
		k, d = stoch.K[len(bars)-1], stoch.D[len(bars)-1]
		for i := range slow {
			if !indicators.Undefined(slow[i]) && !indicators.Undefined(stoch.D[i]) {
				valid++
			}
		}
	}

	last := len(bars) - 1
	snap := models.MarketSnapshot{
		AsOf:      bars[last].Timestamp,
		Close:     bars[last].Close,
		EMAFast:   fast[last],
		EMAMedium: medium[last],
		EMASlow:   slow[last],
		StochK:    neutral(k),
		StochD:    neutral(d),
		ValidBars: valid,
	}
	if valid < MinValidBars {
		return snap, ErrTooFewBars
	}
	return snap, nil
}

func neutral(v float64) float64 {
	if indicators.Undefined(v) {
		return NeutralStoch
	}
	return v
}

// Classify builds the snapshot for bars and evaluates the rule table.
func Classify(bars []models.Candle) models.Signal {
	snap, err := BuildSnapshot(bars)
	if err != nil {
		return models.Signal{
			Direction: models.NoTrade,
			Reason:    ReasonInsufficientData,
			At:        snap.AsOf,
		}
	}
	return Evaluate(snap)
}

// Evaluate returns the signal of the first matching rule.
func Evaluate(snap models.MarketSnapshot) models.Signal {
	for _, rule := range rules {
		if rule.Match(snap) {
			return models.Signal{
				Direction: rule.Direction,
				Qualifier: rule.Qualifier,
				Reason:    rule.Reason,
				At:        snap.AsOf,
			}
		}
	}
	return models.Signal{Direction: models.NoTrade, Reason: ReasonNoSignal, At: snap.AsOf}
}
