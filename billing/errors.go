package billing

import (
	"errors"
	"fmt"

	"github.com/warp/billing-engine/generic"
)

// ErrNoUninvoicedEntries is returned when an invoice run finds nothing to bill.
// It matches generic.ErrEmptyResult, so callers treat it as a domain not-found.
var ErrNoUninvoicedEntries = fmt.Errorf("no uninvoiced time entries: %w", generic.ErrEmptyResult)

// ErrTimeEntryInvoiced is returned when editing or deleting a claimed entry.
var ErrTimeEntryInvoiced = &generic.ConflictError{Resource: "time entry", Reason: "already invoiced"}

func workTypeNotFound(id WorkTypeID) error {
	return &generic.NotFoundError{Resource: "work type", ID: id}
}

func invalid(field, reason string) error {
	return &generic.InvalidInputError{Field: field, Reason: reason}
}

// parseDateField parses a YYYY-MM-DD argument, naming the field on failure.
func parseDateField(field, value string) (generic.Date, error) {
	if value == "" {
		return generic.Date{}, invalid(field, "is required")
	}
	d, err := generic.ParseDate(value)
	if errors.Is(err, generic.ErrReservedDate) {
		return generic.Date{}, invalid(field, "must be later than 0001-01-01")
	}
	if err != nil {
		return generic.Date{}, invalid(field, "must be in YYYY-MM-DD form")
	}
	return d, nil
}
