package game

import (
	"errors"
	"fmt"
	"math"
)

const (
	MicrosPerUnit = int64(1_000_000)

	// OwnershipTolerance is how far ownership percentages may drift from 100.
	OwnershipTolerance = 5.0

	PasswordLength = 6

	// Flat monthly stipend credited to every player by the default inflation mode.
	FlatInflationCoin   = int64(2000)
	FlatInflationLumber = int64(500)

	taxRate = 0.06
)

var (
	ErrNotFound             = errors.New("not found")
	ErrValidationMismatch   = errors.New("validation mismatch")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrAuthFailure          = errors.New("auth failure")
	ErrStateConflict        = errors.New("state conflict")
	ErrMissingConfig        = errors.New("missing config")
	ErrTxConflict           = errors.New("transaction conflict, retry")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrInvalidInput         = errors.New("invalid input")
)

// Error is a domain failure carrying a user-facing message and its kind.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func UnitsToMicros(v float64) int64 {
	return int64(math.Round(v * float64(MicrosPerUnit)))
}

func MicrosToUnits(v int64) float64 {
	return float64(v) / float64(MicrosPerUnit)
}

// TaxAmount is the monthly tax in whole units owed on amount, given the
// asset's upper bound: floor(0.06 * sqrt(amount/upperBound) * amount).
func TaxAmount(amount, upperBound float64) float64 {
	if amount <= 0 || upperBound <= 0 {
		return 0
	}
	return math.Floor(taxRate * math.Sqrt(amount/upperBound) * amount)
}
