// Package models provides domain models for the options trading engine.
package models

import (
	"time"
)

// Exchange represents a derivatives exchange segment.
type Exchange string

const (
	NSE Exchange = "NSE"
	NFO Exchange = "NFO" // F&O
	MCX Exchange = "MCX" // Commodity
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductMIS ProductType = "MIS" // Intraday
)

// InstrumentType is the contract type column of the instrument universe.
type InstrumentType string

const (
	InstrumentCE  InstrumentType = "CE"
	InstrumentPE  InstrumentType = "PE"
	InstrumentFUT InstrumentType = "FUT"
	InstrumentEQ  InstrumentType = "EQ"
)

// IsOption reports whether the instrument type is a call or a put.
func (t InstrumentType) IsOption() bool {
	return t == InstrumentCE || t == InstrumentPE
}

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Instrument is one typed row of the broker's instrument universe.
type Instrument struct {
	Token    uint32         `json:"instrument_token"`
	Symbol   string         `json:"tradingsymbol"`
	Name     string         `json:"name"`
	Exchange Exchange       `json:"exchange"`
	Segment  string         `json:"segment"`
	Type     InstrumentType `json:"instrument_type"`
	Strike   float64        `json:"strike"`
	Expiry   time.Time      `json:"expiry"`
	TickSize float64        `json:"tick_size"`
	LotSize  int            `json:"lot_size"`
}

// OptionContract is a resolved option ready for order submission.
type OptionContract struct {
	Symbol     string         `json:"symbol"`
	Underlying string         `json:"underlying"`
	Token      uint32         `json:"token"`
	Exchange   Exchange       `json:"exchange"`
	Type       InstrumentType `json:"option_type"`
	Strike     float64        `json:"strike"`
	Expiry     time.Time      `json:"expiry"`
	TickSize   float64        `json:"tick_size"`
	LotSize    int            `json:"lot_size"`
}

// QuoteKey returns the "EXCHANGE:SYMBOL" key used for price lookups.
func (c OptionContract) QuoteKey() string {
	return string(c.Exchange) + ":" + c.Symbol
}
