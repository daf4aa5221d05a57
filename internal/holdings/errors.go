package holdings

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation marks input that must never reach aggregation.
	ErrValidation = errors.New("validation error")
	// ErrOversold marks a sell that would drive the held quantity below zero.
	ErrOversold = errors.New("sell exceeds held quantity")
	ErrNotFound = errors.New("not found")
)

// ValidationError names the offending field so callers can surface it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// OversoldError is both an ErrOversold and an ErrValidation: the offending
// transaction is rejected at write time.
type OversoldError struct {
	TransactionID string
	Held          decimal.Decimal
	Requested     decimal.Decimal
}

func (e *OversoldError) Error() string {
	return fmt.Sprintf("cannot sell %s: only %s held", e.Requested.String(), e.Held.String())
}

func (e *OversoldError) Unwrap() []error {
	return []error{ErrOversold, ErrValidation}
}
