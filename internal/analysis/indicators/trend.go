package indicators

// EMA returns the exponential moving average of values. The first value is
// the simple average of the first period values, placed at index period-1.
func EMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(values) < period {
		return nil, ErrInsufficientData
	}

	out := undefinedSeries(len(values))
	alpha := 2 / float64(period+1)

	prev := average(values[:period])
	out[period-1] = prev
	for i := period; i < len(values); i++ {
		prev += alpha * (values[i] - prev)
		out[i] = prev
	}
	return out, nil
}
