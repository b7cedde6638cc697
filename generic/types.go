/*
Package generic provides the money, date and error primitives shared by the
billing engines.

PURPOSE:
  Everything in this package is domain-agnostic and pure. The aggregation
  engine and the statement engine both derive cents through the functions
  in this file, so rounding is identical wherever money comes from a ratio.

KEY CONCEPTS IN THIS FILE (types.go):
  - Cents: Integer minor-currency units. Money never travels as a float.
  - RoundCents: The single rounding rule (half away from zero).
  - LineAmount: minutes x hourly rate / 60, rounded once.
  - DiscountAmount: subtotal x percent / 100, rounded once.
  - Allocate: Splits a total across weights so the parts sum exactly.

DESIGN PRINCIPLES:
  1. Precision: Ratios are computed in decimal.Decimal, never float64
  2. One rounding step: Multiply first, divide second, round last
  3. Exactness: Allocations always reconcile to the cent

USAGE:
  amount := generic.LineAmount(90, 10000)          // 15000
  discount := generic.DiscountAmount(52500, 10)    // 5250

SEE ALSO:
  - time.go: Calendar dates
  - ledger.go: Running balances over dated events
  - errors.go: Error taxonomy
*/
package generic

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CENTS - Integer minor currency units
// =============================================================================

// Cents is an amount of money in minor currency units.
type Cents int64

var (
	minutesPerHour = decimal.NewFromInt(60)
	hundred        = decimal.NewFromInt(100)
)

// Decimal converts to a currency amount, e.g. 12345 -> 123.45.
func (c Cents) Decimal() decimal.Decimal { return decimal.New(int64(c), -2) }

func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

func (c Cents) Neg() Cents       { return -c }
func (c Cents) IsNegative() bool { return c < 0 }
func (c Cents) IsZero() bool     { return c == 0 }
func (c Cents) IsPositive() bool { return c > 0 }

// String renders the amount with two fixed decimals, e.g. "-1234.50".
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// Sum adds up a list of amounts.
func Sum(amounts ...Cents) Cents {
	var total Cents
	for _, a := range amounts {
		total += a
	}
	return total
}

// =============================================================================
// ROUNDING - The only place cents are derived from a fraction
// =============================================================================

// RoundCents rounds a fractional amount of cents to a whole number of cents,
// half away from zero.
func RoundCents(d decimal.Decimal) Cents {
	return Cents(d.Round(0).IntPart())
}

// LineAmount prices a number of minutes at an hourly rate.
func LineAmount(minutes int64, hourlyRate Cents) Cents {
	return RoundCents(decimal.NewFromInt(minutes).
		Mul(decimal.NewFromInt(int64(hourlyRate))).
		Div(minutesPerHour))
}

// DiscountAmount applies a percentage (0-100) to a subtotal.
func DiscountAmount(subtotal Cents, percent float64) Cents {
	return RoundCents(decimal.NewFromInt(int64(subtotal)).
		Mul(decimal.NewFromFloat(percent)).
		Div(hundred))
}

// ValidPercent reports whether p lies in [0, 100].
func ValidPercent(p float64) bool {
	return p >= 0 && p <= 100
}

// =============================================================================
// ALLOCATION - Split a total proportionally, exactly
// =============================================================================

// Allocate splits total across the given non-negative weights in proportion
// to each weight. Every part is floored first and the leftover cents go to
// the largest remainders (earlier index wins ties), so the parts always sum
// to total. A zero weight sum yields all zeros.
func Allocate(total Cents, weights []Cents) []Cents {
	parts := make([]Cents, len(weights))
	weightSum := Sum(weights...)
	if weightSum <= 0 || total == 0 {
		return parts
	}

	type remainder struct {
		index int
		rest  int64
	}
	rests := make([]remainder, len(weights))
	var allocated Cents
	for i, w := range weights {
		num := int64(total) * int64(w)
		parts[i] = Cents(num / int64(weightSum))
		rests[i] = remainder{index: i, rest: num % int64(weightSum)}
		allocated += parts[i]
	}

	sort.SliceStable(rests, func(a, b int) bool { return rests[a].rest > rests[b].rest })
	for i := 0; allocated < total && i < len(rests); i++ {
		parts[rests[i].index]++
		allocated++
	}
	return parts
}
