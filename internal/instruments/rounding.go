package instruments

import "math"

// RoundToTick rounds price to the nearest multiple of tick. Sub-unit ticks are
// rounded through the reciprocal so 0.05 and 0.1 multiples come out exact.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	if tick >= 1 {
		return math.Round(price/tick) * tick
	}
	multiplier := math.Round(1 / tick)
	return math.Round(price*multiplier) / multiplier
}

// ATMStrike is the strike nearest the reference price.
func ATMStrike(referencePrice, step float64) float64 {
	return math.Round(referencePrice/step) * step
}

// TargetStrike moves otm strikes away from ATM: up for calls, down for puts.
func TargetStrike(referencePrice, step float64, otm int, call bool) float64 {
	atm := ATMStrike(referencePrice, step)
	offset := float64(otm) * step
	if call {
		return atm + offset
	}
	return atm - offset
}
