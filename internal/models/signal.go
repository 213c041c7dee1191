package models

import (
	"fmt"
	"time"
)

// Direction is the trade bias produced by the classifier.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
	NoTrade Direction = "NO_TRADE"
)

// OptionType returns the option bought for the direction.
func (d Direction) OptionType() (InstrumentType, bool) {
	switch d {
	case Bullish:
		return InstrumentCE, true
	case Bearish:
		return InstrumentPE, true
	}
	return "", false
}

// Signal is one classification result. Qualifier is informational only.
type Signal struct {
	Direction Direction `json:"direction"`
	Qualifier string    `json:"qualifier,omitempty"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// IsDirectional reports whether the signal asks for an entry.
func (s Signal) IsDirectional() bool {
	return s.Direction == Bullish || s.Direction == Bearish
}

func (s Signal) String() string {
	if s.Qualifier == "" {
		return fmt.Sprintf("%s (%s)", s.Direction, s.Reason)
	}
	return fmt.Sprintf("%s [%s] (%s)", s.Direction, s.Qualifier, s.Reason)
}

// MarketSnapshot holds the indicator values of the latest bar of a window.
type MarketSnapshot struct {
	AsOf      time.Time `json:"as_of"`
	Close     float64   `json:"close"`
	LTP       float64   `json:"ltp"`
	EMAFast   float64   `json:"ema_fast"`
	EMAMedium float64   `json:"ema_medium"`
	EMASlow   float64   `json:"ema_slow"`
	StochK    float64   `json:"stoch_k"`
	StochD    float64   `json:"stoch_d"`
	ValidBars int       `json:"valid_bars"`
}
