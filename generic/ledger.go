/*
ledger.go - Running balance over dated events

PURPOSE:
  A statement is a prefix sum: start from the balance carried in, walk the
  events in order, and attach the balance after each one. Timeline holds
  that walk so the statement engine never recomputes a window on its own.

CRITICAL INVARIANTS:
  1. ORDERED: Events are replayed in the order given; callers sort first.
  2. PREFIX SUM: Balance after event i = opening + sum(delta[0..i]).
  3. NO ROUNDING: Deltas are already whole cents, so replay is exact.

EXAMPLE FLOW:
  opening 0, invoice +50000, payment -50000
  running balances: 50000, 0
  closing: 0

SEE ALSO:
  - billing/statement.go: Builds and sorts the events
*/
package generic

// =============================================================================
// TIMELINE - Ordered deltas with running balance
// =============================================================================

type TimelineEvent struct {
	At    Date
	Delta Cents
	Ref   string
}

// Timeline is a list of events already in replay order.
type Timeline struct {
	Events []TimelineEvent
}

// Append adds an event at the end of the timeline.
func (t *Timeline) Append(at Date, delta Cents, ref string) {
	t.Events = append(t.Events, TimelineEvent{At: at, Delta: delta, Ref: ref})
}

// Running returns the balance after each event, starting from opening.
func (t *Timeline) Running(opening Cents) []Cents {
	balances := make([]Cents, len(t.Events))
	balance := opening
	for i, e := range t.Events {
		balance += e.Delta
		balances[i] = balance
	}
	return balances
}

// Closing returns the balance after the last event.
func (t *Timeline) Closing(opening Cents) Cents {
	balance := opening
	for _, e := range t.Events {
		balance += e.Delta
	}
	return balance
}
