// Package indicators computes the EMA and Stochastic series read by the
// signal classifier. Every series has one value per bar; bars before an
// indicator's warm-up completes hold NaN.
package indicators

import (
	"errors"
	"math"

	"options-autotrader/internal/models"
)

var (
	ErrInsufficientData = errors.New("insufficient data for calculation")
	ErrInvalidPeriod    = errors.New("invalid period")
)

// Undefined reports whether v is a warm-up placeholder.
func Undefined(v float64) bool {
	return math.IsNaN(v)
}

// Closes returns the close of every bar.
func Closes(bars []models.Candle) []float64 {
	return pick(bars, func(c models.Candle) float64 { return c.Close })
}

func pick(bars []models.Candle, field func(models.Candle) float64) []float64 {
	out := make([]float64, len(bars))
	for i, c := range bars {
		out[i] = field(c)
	}
	return out
}

func undefinedSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// span returns the highest high and the lowest low of bars.
func span(bars []models.Candle) (hi, lo float64) {
	hi, lo = math.Inf(-1), math.Inf(1)
	for _, b := range bars {
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	return hi, lo
}
