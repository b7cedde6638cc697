/*
errors.go - Centralized error types for the billing engines

PURPOSE:
  All error categories in one place so callers can map them (HTTP status,
  CLI exit code) without sniffing message strings.

ERROR CATEGORIES:
  1. NotFound       - A referenced client, invoice or entry is absent
  2. Conflict       - Duplicate invoice number, already-claimed entries
  3. InvalidInput   - Malformed dates, inverted ranges, non-positive amounts
  4. EmptyResult    - Nothing to invoice; a domain-specific not-found
  5. Invariant      - Money failed to reconcile before persisting
  6. Storage        - Anything else; passed through untouched

USAGE:
  Domain code returns the structured errors; callers classify with KindOf:

    switch generic.KindOf(err) {
    case generic.KindNotFound, generic.KindEmptyResult:
        // 404
    }

SEE ALSO:
  - billing/errors.go: Domain sentinels built on these categories
  - api/errors.go: Kind to HTTP status mapping
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write collides with existing state.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput is returned for malformed or out-of-range arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyResult is returned when an operation that needs data finds none.
	ErrEmptyResult = errors.New("empty result")

	// ErrInvariantViolation is returned when computed money fails to reconcile.
	ErrInvariantViolation = errors.New("invariant violation")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing record.
type NotFoundError struct {
	Resource string
	ID       any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ConflictError describes a rejected write.
type ConflictError struct {
	Resource string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Resource, e.Reason)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// InvalidInputError points at the offending field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}

// InvariantError reports two money figures that should agree but don't.
type InvariantError struct {
	Check    string
	Expected Cents
	Actual   Cents
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Check, e.Expected, e.Actual)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Kind is the category of an error as seen by callers.
type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindConflict
	KindInvalidInput
	KindEmptyResult
	KindInvariant
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidInput:
		return "invalid_input"
	case KindEmptyResult:
		return "empty_result"
	case KindInvariant:
		return "invariant_violation"
	default:
		return "storage"
	}
}

// KindOf classifies err. Unknown errors are storage failures.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrEmptyResult):
		return KindEmptyResult
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrInvariantViolation):
		return KindInvariant
	default:
		return KindStorage
	}
}

// IsNotFound returns true for a missing record or an empty domain result.
func IsNotFound(err error) bool {
	k := KindOf(err)
	return k == KindNotFound || k == KindEmptyResult
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindConflict, KindInvalidInput, KindEmptyResult:
		return true
	}
	return false
}
