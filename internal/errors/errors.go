// Package errors defines the error taxonomy shared by the engine packages.
// Collaborator failures are wrapped in typed errors that keep the cause
// reachable through errors.Is and errors.As.
package errors

import (
	"errors"
	"fmt"
)

// Sentinels
var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrSymbolNotFound    = errors.New("symbol not found")
	ErrContractNotFound  = fmt.Errorf("option contract %w", ErrSymbolNotFound)
	ErrUnknownUnderlying = errors.New("unknown underlying")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrDataNotFound      = errors.New("data not found")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrNoDataSource      = errors.New("no market data source configured")
)

// BrokerError is a failed market-data or reference-data call.
type BrokerError struct {
	Op     string // HISTORICAL, LTP, INSTRUMENTS
	Target string
	Err    error
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker %s %s: %v", e.Op, e.Target, e.Err)
}

func (e *BrokerError) Unwrap() error { return e.Err }

// NewBrokerError creates a new BrokerError.
func NewBrokerError(op, target string, err error) *BrokerError {
	return &BrokerError{Op: op, Target: target, Err: err}
}

// OrderError is a failed order placement or status lookup. Its text ends
// up in the Reason of journaled rejections, so it carries the broker's
// message once and nothing else.
type OrderError struct {
	Op      string // place, status
	OrderID string
	Symbol  string
	Err     error
}

func (e *OrderError) Error() string {
	subject := e.Symbol
	if e.OrderID != "" {
		subject = e.OrderID
	}
	return fmt.Sprintf("%s %s: %v", e.Op, subject, e.Err)
}

func (e *OrderError) Unwrap() error { return e.Err }

// NewOrderError creates a new OrderError.
func NewOrderError(op, orderID, symbol string, err error) *OrderError {
	return &OrderError{Op: op, OrderID: orderID, Symbol: symbol, Err: err}
}

// ValidationError is a rejected configuration or request field. It matches
// ErrConfigInvalid.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrConfigInvalid }

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// DataError is missing or unusable market or reference data.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.DataType, e.Symbol, e.Message)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{DataType: dataType, Symbol: symbol, Message: message, Err: err}
}

// RiskError is an entry refused by a gate check.
type RiskError struct {
	Rule    string
	Current float64
	Limit   float64
	Message string
}

func (e *RiskError) Error() string {
	if e.Limit == 0 {
		return fmt.Sprintf("entry refused [%s]: %s", e.Rule, e.Message)
	}
	return fmt.Sprintf("entry refused [%s]: %s (%.2f of %.2f)", e.Rule, e.Message, e.Current, e.Limit)
}

// NewRiskError creates a new RiskError.
func NewRiskError(rule string, current, limit float64, message string) *RiskError {
	return &RiskError{Rule: rule, Current: current, Limit: limit, Message: message}
}

// Wrap adds context to err, keeping it matchable.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
