package domain

import (
	"time"

	dErrors "creaturegrc/pkg/domain-errors"
)

// Period is a closed time window [Start, End]. Evidence validity and reporting
// windows are always expressed as periods; a period is part of the evidence
// dedup key so its textual form must be stable.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewPeriod validates and normalizes a period to UTC.
func NewPeriod(start, end time.Time) (Period, error) {
	if start.IsZero() || end.IsZero() {
		return Period{}, dErrors.New(dErrors.CodeValidation, "period start and end are required")
	}
	if end.Before(start) {
		return Period{}, dErrors.New(dErrors.CodeValidation, "period end must not precede start")
	}
	return Period{Start: start.UTC(), End: end.UTC()}, nil
}

// Overlaps reports whether two periods share at least one instant.
func (p Period) Overlaps(other Period) bool {
	return !p.End.Before(other.Start) && !other.End.Before(p.Start)
}

// Contains reports whether t falls inside the period, boundaries included.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// Key returns the canonical textual form used in uniqueness keys.
func (p Period) Key() string {
	return p.Start.UTC().Format(time.RFC3339) + "/" + p.End.UTC().Format(time.RFC3339)
}

func (p Period) IsZero() bool {
	return p.Start.IsZero() && p.End.IsZero()
}
