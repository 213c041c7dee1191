package utils

import (
	"time"
)

// IndiaLocation is the timezone for Indian markets. Every trading window,
// cooldown and daily reset is evaluated in it.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// Now returns the current time in IST.
func Now() time.Time {
	return time.Now().In(IndiaLocation)
}

// TradingDay returns midnight IST of the day t falls on.
func TradingDay(t time.Time) time.Time {
	t = t.In(IndiaLocation)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, IndiaLocation)
}

// SameTradingDay reports whether a and b fall on the same IST calendar day.
func SameTradingDay(a, b time.Time) bool {
	return TradingDay(a).Equal(TradingDay(b))
}
