package models

import "time"

// OrderStatus is the lifecycle state of a submitted order as reported by the broker.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusComplete  OrderStatus = "COMPLETE"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// IsTerminal reports whether the broker will not change the status again.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusComplete, OrderStatusRejected, OrderStatusCancelled:
		return true
	}
	return false
}

// NormalizeOrderStatus maps a raw broker status string onto OrderStatus.
// Kite reports transitional states such as "TRIGGER PENDING" or
// "AMO REQ RECEIVED"; everything not recognised is treated as open.
func NormalizeOrderStatus(raw string) OrderStatus {
	switch raw {
	case "COMPLETE":
		return OrderStatusComplete
	case "REJECTED":
		return OrderStatusRejected
	case "CANCELLED":
		return OrderStatusCancelled
	case "", "PENDING", "PUT ORDER REQ RECEIVED", "VALIDATION PENDING", "OPEN PENDING":
		return OrderStatusPending
	default:
		return OrderStatusOpen
	}
}

// OrderPurpose distinguishes entry orders from closing orders.
type OrderPurpose string

const (
	PurposeEntry OrderPurpose = "ENTRY"
	PurposeExit  OrderPurpose = "EXIT"
)

// Order is an append-only journal record of one order attempt.
// BrokerID is empty when the attempt failed before reaching the broker.
type Order struct {
	RecordID       string         `json:"record_id"`
	BrokerID       string         `json:"order_id,omitempty"`
	Underlying     string         `json:"underlying"`
	Symbol         string         `json:"symbol,omitempty"`
	Exchange       Exchange       `json:"exchange,omitempty"`
	OptionType     InstrumentType `json:"option_type,omitempty"`
	Strike         float64        `json:"strike,omitempty"`
	Side           OrderSide      `json:"side"`
	Purpose        OrderPurpose   `json:"purpose"`
	Type           OrderType      `json:"order_type"`
	Quantity       int            `json:"quantity"`
	RequestedPrice float64        `json:"requested_price"`
	AveragePrice   float64        `json:"average_price"`
	Status         OrderStatus    `json:"status"`
	Reason         string         `json:"reason"`
	SubmittedAt    time.Time      `json:"submitted_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// OrderRequest is what the engine asks the broker to place.
type OrderRequest struct {
	Exchange Exchange
	Symbol   string
	Side     OrderSide
	Type     OrderType
	Product  ProductType
	Quantity int
	Price    float64 // LIMIT orders only
	Tag      string
}

// OrderState is the broker's answer to a status query.
type OrderState struct {
	OrderID      string
	Status       OrderStatus
	Reason       string
	AveragePrice float64
	FilledQty    int
}
