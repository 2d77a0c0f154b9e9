package reporting

import (
	"math"
	"time"

	id "creaturegrc/pkg/domain"
)

// GapReason says why a control is not satisfied. When several apply, the
// most fundamental wins: no implementation record at all beats a record in
// the wrong status, which beats missing evidence.
type GapReason string

const (
	ReasonNoImplementation     GapReason = "no_implementation"
	ReasonNotImplementedStatus GapReason = "not_implemented_status"
	ReasonNoApprovedEvidence   GapReason = "no_approved_evidence"
)

// CoverageReport summarizes how much of a framework is satisfied over a
// reporting period.
type CoverageReport struct {
	Framework   string    `json:"framework"`
	Period      id.Period `json:"period"`
	Total       int       `json:"total_controls"`
	Satisfied   int       `json:"satisfied_controls"`
	Percentage  float64   `json:"coverage_percentage"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Gap is one unsatisfied control.
type Gap struct {
	ControlCode string    `json:"control_code"`
	ControlName string    `json:"control_name"`
	DomainCode  string    `json:"domain_code"`
	Reason      GapReason `json:"reason"`
}

// CoveragePercentage rounds to two decimals so 1/3 reports as 33.33, not a
// float artifact.
func CoveragePercentage(satisfied, total int) float64 {
	if total == 0 {
		return 0
	}
	ratio := float64(satisfied) / float64(total)
	return math.Round(ratio*10000) / 100
}
