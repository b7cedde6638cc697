package generic

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is an inclusive range of calendar days. A zero Start or End leaves
// that side open, which is how "everything before the statement" is asked for.
type Period struct {
	Start Date
	End   Date
}

// Between builds a closed period.
func Between(start, end Date) Period {
	return Period{Start: start, End: end}
}

// Before builds the open-ended period of every day strictly before d.
func Before(d Date) Period {
	return Period{End: d.AddDays(-1)}
}

// Contains returns true if d is within [Start, End], honouring open sides.
func (p Period) Contains(d Date) bool {
	if !p.Start.IsZero() && d.Before(p.Start) {
		return false
	}
	if !p.End.IsZero() && d.After(p.End) {
		return false
	}
	return true
}

// IsInverted reports a closed period whose end precedes its start. Such a
// period contains no day.
func (p Period) IsInverted() bool {
	return !p.Start.IsZero() && !p.End.IsZero() && p.End.Before(p.Start)
}

// Validate rejects a missing bound or an inverted range.
func (p Period) Validate() error {
	if p.Start.IsZero() {
		return &InvalidInputError{Field: "start_date", Reason: "is required"}
	}
	if p.End.IsZero() {
		return &InvalidInputError{Field: "end_date", Reason: "is required"}
	}
	if p.IsInverted() {
		return &InvalidInputError{Field: "end_date", Reason: "must not be before start_date"}
	}
	return nil
}

// SplitAt cuts the period after day mid: [Start, mid] and [mid+1, End].
// ok is false when mid does not leave both halves non-empty.
func (p Period) SplitAt(mid Date) (head, tail Period, ok bool) {
	if mid.Before(p.Start) || !mid.Before(p.End) {
		return Period{}, Period{}, false
	}
	return Between(p.Start, mid), Between(mid.AddDays(1), p.End), true
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
