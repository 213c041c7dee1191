package models

import (
	"fmt"
	"time"
)

// ClockTime is a wall-clock time of day, interpreted in the exchange timezone.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// On returns the instant of the clock time on the calendar day of ref, in ref's location.
func (c ClockTime) On(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), c.Hour, c.Minute, 0, 0, ref.Location())
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// TradingWindow bounds new entries and schedules the forced square-off.
type TradingWindow struct {
	EntryStart ClockTime
	LastEntry  ClockTime
	SquareOff  ClockTime
}

// InstrumentSpec describes one tradable underlying. Immutable once loaded.
type InstrumentSpec struct {
	Name           string
	Exchange       Exchange // exchange the options trade on
	QuoteSymbol    string   // "NSE:NIFTY BANK"; empty when the nearest future is the reference
	SpotToken      uint32
	StrikeStep     float64
	TickSize       float64
	DefaultLotSize int
	Commodity      bool // reference price and bars come from the nearest future
	Window         TradingWindow
}
