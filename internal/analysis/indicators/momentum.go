package indicators

import "options-autotrader/internal/models"

// StochParams configures the slow stochastic: raw %K over KPeriod bars,
// smoothed by an SMA of Smooth, and %D as an SMA of DPeriod over %K.
type StochParams struct {
	KPeriod int
	DPeriod int
	Smooth  int
}

// Warmup is the number of bars before %D is first defined.
func (p StochParams) Warmup() int {
	return p.KPeriod + p.smoothing() - 1 + p.DPeriod - 1
}

func (p StochParams) smoothing() int {
	if p.Smooth < 1 {
		return 1
	}
	return p.Smooth
}

// StochSeries holds the %K and %D lines.
type StochSeries struct {
	K []float64
	D []float64
}

// Stochastic computes the slow stochastic of bars. A window whose high
// equals its low has a raw %K of 50.
func Stochastic(bars []models.Candle, p StochParams) (StochSeries, error) {
	if p.KPeriod <= 0 || p.DPeriod <= 0 {
		return StochSeries{}, ErrInvalidPeriod
	}
	if len(bars) < p.KPeriod {
		return StochSeries{}, ErrInsufficientData
	}

	n := len(bars)
	smooth := p.smoothing()
	raw := undefinedSeries(n)
	s := StochSeries{K: undefinedSeries(n), D: undefinedSeries(n)}

	for i := p.KPeriod - 1; i < n; i++ {
		hi, lo := span(bars[i-p.KPeriod+1 : i+1])
		if hi == lo {
			raw[i] = 50
			continue
		}
		raw[i] = 100 * (bars[i].Close - lo) / (hi - lo)
	}

	firstK := p.KPeriod + smooth - 2
	for i := firstK; i < n; i++ {
		s.K[i] = average(raw[i-smooth+1 : i+1])
	}
	for i := firstK + p.DPeriod - 1; i < n; i++ {
		s.D[i] = average(s.K[i-p.DPeriod+1 : i+1])
	}
	return s, nil
}
