/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers inspect them with errors.Is / errors.As; the HTTP layer maps
  them to status codes through the helpers at the bottom of this file.

ERROR CATEGORIES:
  1. Store errors - not found, already exists, version conflict, outage
  2. Validation errors - malformed input, rejected before any read
  3. Ledger errors - business rule violations (stock, credit)

USAGE:
  if errors.Is(err, ledger.ErrInsufficientStock) {
      var ise *ledger.InsufficientStockError
      errors.As(err, &ise)
      ...
  }

SEE ALSO:
  - stock.go, credit.go: return the ledger errors
  - api/handlers.go: maps errors to HTTP responses
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned by a Store when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrAlreadyExists is returned when a Create write hits an existing id.
	ErrAlreadyExists = errors.New("document already exists")

	// ErrConcurrentModification is returned when a version precondition fails.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrStoreUnavailable is returned while the store is considered down.
	ErrStoreUnavailable = errors.New("ledger store unavailable")

	ErrValidation = errors.New("validation failed")

	ErrEmptySale           = fmt.Errorf("%w: sale must contain at least one item", ErrValidation)
	ErrInvalidQuantity     = fmt.Errorf("%w: quantity must be a positive integer", ErrValidation)
	ErrInvalidAmount       = fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	ErrInvalidMovementType = fmt.Errorf("%w: invalid movement type", ErrValidation)

	// Messages match what the mobile client displays.
	ErrInsufficientStock = errors.New("Insufficient stock")
	ErrExcessPayment     = errors.New("Payment amount exceeds current due")

	ErrShopNotFound     = fmt.Errorf("shop %w", ErrNotFound)
	ErrProductNotFound  = fmt.Errorf("product %w", ErrNotFound)
	ErrCustomerNotFound = fmt.Errorf("customer %w", ErrNotFound)
	ErrSupplierNotFound = fmt.Errorf("supplier %w", ErrNotFound)
	ErrSaleNotFound     = fmt.Errorf("sale %w", ErrNotFound)

	// ErrDuplicateSale is returned when a sale id was already committed.
	ErrDuplicateSale = errors.New("sale already recorded")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStockError provides details about a stock shortage.
type InsufficientStockError struct {
	ProductID string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock: product %s has %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ExcessPaymentError provides details about a payment larger than the due.
type ExcessPaymentError struct {
	CustomerID string
	Due        decimal.Decimal
	Amount     decimal.Decimal
}

func (e *ExcessPaymentError) Error() string {
	return fmt.Sprintf("Payment amount exceeds current due: due %s, payment %s",
		e.Due.String(), e.Amount.String())
}

func (e *ExcessPaymentError) Unwrap() error {
	return ErrExcessPayment
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrExcessPayment)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the request clashes with stored state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateSale) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrConcurrentModification)
}
