package generic_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/billing-engine/generic"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want generic.Kind
	}{
		{"nil", nil, generic.KindNone},
		{"not found", &generic.NotFoundError{Resource: "client", ID: 7}, generic.KindNotFound},
		{"conflict", &generic.ConflictError{Resource: "invoice", Reason: "duplicate"}, generic.KindConflict},
		{"invalid", &generic.InvalidInputError{Field: "start_date", Reason: "is required"}, generic.KindInvalidInput},
		{"empty result wrapped", fmt.Errorf("nothing to bill: %w", generic.ErrEmptyResult), generic.KindEmptyResult},
		{"invariant", &generic.InvariantError{Check: "total", Expected: 1, Actual: 2}, generic.KindInvariant},
		{"anything else", errors.New("disk full"), generic.KindStorage},
		{"wrapped conflict", fmt.Errorf("tx: %w", &generic.ConflictError{Resource: "payment"}), generic.KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, generic.KindOf(tt.err))
		})
	}
}

func TestIsClientError(t *testing.T) {
	assert.True(t, generic.IsClientError(&generic.NotFoundError{Resource: "invoice", ID: 1}))
	assert.True(t, generic.IsClientError(generic.ErrEmptyResult))
	assert.False(t, generic.IsClientError(&generic.InvariantError{Check: "total"}))
	assert.False(t, generic.IsClientError(errors.New("boom")))
	assert.True(t, generic.IsNotFound(generic.ErrEmptyResult))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "client 7 not found", (&generic.NotFoundError{Resource: "client", ID: 7}).Error())
	assert.Equal(t, "start_date is required", (&generic.InvalidInputError{Field: "start_date", Reason: "is required"}).Error())
	assert.Equal(t, "total: expected 1.00, got 2.00",
		(&generic.InvariantError{Check: "total", Expected: 100, Actual: 200}).Error())
}
