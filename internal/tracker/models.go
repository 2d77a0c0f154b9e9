package tracker

import (
	"time"

	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
)

// ImplementationStatus is the maturity of a control implementation.
type ImplementationStatus string

const (
	StatusNotImplemented       ImplementationStatus = "not_implemented"
	StatusPlanned              ImplementationStatus = "planned"
	StatusPartiallyImplemented ImplementationStatus = "partially_implemented"
	StatusImplemented          ImplementationStatus = "implemented"
	StatusNotApplicable        ImplementationStatus = "not_applicable"
)

func (s ImplementationStatus) Valid() bool {
	switch s {
	case StatusNotImplemented, StatusPlanned, StatusPartiallyImplemented,
		StatusImplemented, StatusNotApplicable:
		return true
	}
	return false
}

// AutomationLevel records how the control is operated.
type AutomationLevel string

const (
	AutomationManual         AutomationLevel = "manual"
	AutomationSemiAutomated  AutomationLevel = "semi_automated"
	AutomationFullyAutomated AutomationLevel = "fully_automated"
)

func (a AutomationLevel) Valid() bool {
	switch a {
	case AutomationManual, AutomationSemiAutomated, AutomationFullyAutomated:
		return true
	}
	return false
}

// TestingFrequency is the cadence at which a control must be re-tested.
type TestingFrequency string

const (
	FrequencyContinuous TestingFrequency = "continuous"
	FrequencyDaily      TestingFrequency = "daily"
	FrequencyWeekly     TestingFrequency = "weekly"
	FrequencyMonthly    TestingFrequency = "monthly"
	FrequencyQuarterly  TestingFrequency = "quarterly"
	FrequencySemiAnnual TestingFrequency = "semi_annual"
	FrequencyAnnual     TestingFrequency = "annual"
)

func (f TestingFrequency) Valid() bool {
	switch f {
	case FrequencyContinuous, FrequencyDaily, FrequencyWeekly, FrequencyMonthly,
		FrequencyQuarterly, FrequencySemiAnnual, FrequencyAnnual:
		return true
	}
	return false
}

// Interval is the duration until the next test is due. Continuous controls
// are always due, so their interval is zero.
func (f TestingFrequency) Interval() time.Duration {
	switch f {
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	case FrequencyQuarterly:
		return 91 * 24 * time.Hour
	case FrequencySemiAnnual:
		return 182 * 24 * time.Hour
	case FrequencyAnnual:
		return 365 * 24 * time.Hour
	default:
		return 0
	}
}

// Implementation binds one control to the creatures and policies that
// realize it. Implementations are never hard-deleted; retirement is the
// not_applicable status.
//
// Invariants:
//   - belongs to exactly one control
//   - Status moves only through transitions permitted by CanTransition
//   - entering or leaving not_applicable requires an explicit override
type Implementation struct {
	ID              id.ImplementationID  `json:"id"`
	ControlID       id.ControlID         `json:"control_id"`
	Status          ImplementationStatus `json:"status"`
	Automation      AutomationLevel      `json:"automation"`
	Frequency       TestingFrequency     `json:"testing_frequency"`
	CreatureIDs     []id.CreatureID      `json:"creature_ids,omitempty"`
	PolicyRefs      []string             `json:"policy_refs,omitempty"`
	Narrative       string               `json:"narrative,omitempty"`
	LastTestDate    *time.Time           `json:"last_test_date,omitempty"`
	NextTestDate    *time.Time           `json:"next_test_date,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func NewImplementation(implementationID id.ImplementationID, controlID id.ControlID, automation AutomationLevel, frequency TestingFrequency, now time.Time) (*Implementation, error) {
	if controlID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "control id is required")
	}
	if !automation.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown automation level: "+string(automation))
	}
	if !frequency.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown testing frequency: "+string(frequency))
	}
	return &Implementation{
		ID:         implementationID,
		ControlID:  controlID,
		Status:     StatusNotImplemented,
		Automation: automation,
		Frequency:  frequency,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// CanTransition checks whether the status change is allowed. Moves between
// the four maturity statuses are free; not_applicable is a fence in both
// directions, crossed only with override set.
// Use with ApplyTransition in Execute callbacks.
func (i *Implementation) CanTransition(to ImplementationStatus, override bool) error {
	if !to.Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown status: "+string(to))
	}
	if to == i.Status {
		return dErrors.New(dErrors.CodeInvariantViolation, "implementation is already "+string(to))
	}
	if (to == StatusNotApplicable || i.Status == StatusNotApplicable) && !override {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"transition involving not_applicable requires an explicit override")
	}
	return nil
}

// ApplyTransition performs the status change. Entering implemented sets
// next_test_date from the testing frequency when unset.
// Call CanTransition first to validate.
func (i *Implementation) ApplyTransition(to ImplementationStatus, now time.Time) {
	i.Status = to
	i.UpdatedAt = now
	if to == StatusImplemented && i.NextTestDate == nil {
		next := now.Add(i.Frequency.Interval())
		i.NextTestDate = &next
	}
}

// RecordTest marks a completed control test and schedules the next one.
func (i *Implementation) RecordTest(at time.Time) {
	i.LastTestDate = &at
	next := at.Add(i.Frequency.Interval())
	i.NextTestDate = &next
	i.UpdatedAt = at
}

// Transition is one logged status change.
type Transition struct {
	ImplementationID id.ImplementationID  `json:"implementation_id"`
	From             ImplementationStatus `json:"from"`
	To               ImplementationStatus `json:"to"`
	Actor            string               `json:"actor"`
	Note             string               `json:"note,omitempty"`
	Override         bool                 `json:"override"`
	At               time.Time            `json:"at"`
}
