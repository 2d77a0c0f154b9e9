package tracker

import (
	"time"

	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
)

// FindingSeverity ranks how bad a discovered gap is.
type FindingSeverity string

const (
	SeverityCritical FindingSeverity = "critical"
	SeverityHigh     FindingSeverity = "high"
	SeverityMedium   FindingSeverity = "medium"
	SeverityLow      FindingSeverity = "low"
)

func (s FindingSeverity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// FindingStatus is the remediation lifecycle of a finding.
type FindingStatus string

const (
	FindingOpen          FindingStatus = "open"
	FindingInProgress    FindingStatus = "in_progress"
	FindingResolved      FindingStatus = "resolved"
	FindingRiskAccepted  FindingStatus = "risk_accepted"
	FindingFalsePositive FindingStatus = "false_positive"
)

func (s FindingStatus) Valid() bool {
	switch s {
	case FindingOpen, FindingInProgress, FindingResolved, FindingRiskAccepted, FindingFalsePositive:
		return true
	}
	return false
}

// Terminal reports whether no further status change is allowed.
func (s FindingStatus) Terminal() bool {
	switch s {
	case FindingResolved, FindingRiskAccepted, FindingFalsePositive:
		return true
	}
	return false
}

// Finding is a discovered gap or defect in a control implementation,
// optionally pinned to the evidence row that revealed it.
type Finding struct {
	ID               id.FindingID        `json:"id"`
	ImplementationID id.ImplementationID `json:"implementation_id"`
	EvidenceID       *id.EvidenceID      `json:"evidence_id,omitempty"`
	Title            string              `json:"title"`
	Description      string              `json:"description,omitempty"`
	Severity         FindingSeverity     `json:"severity"`
	Status           FindingStatus       `json:"status"`
	DueDate          *time.Time          `json:"due_date,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func NewFinding(findingID id.FindingID, implementationID id.ImplementationID, title string, severity FindingSeverity, now time.Time) (*Finding, error) {
	if implementationID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "implementation id is required")
	}
	if title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "finding title is required")
	}
	if !severity.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown severity: "+string(severity))
	}
	return &Finding{
		ID:               findingID,
		ImplementationID: implementationID,
		Title:            title,
		Severity:         severity,
		Status:           FindingOpen,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// CanAdvance checks the lifecycle move. Open findings may go anywhere;
// in-progress findings may only close; closed findings are immutable.
// Use with ApplyAdvance in Execute callbacks.
func (f *Finding) CanAdvance(to FindingStatus) error {
	if !to.Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown finding status: "+string(to))
	}
	if f.Status.Terminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "finding is already closed as "+string(f.Status))
	}
	if to == f.Status {
		return dErrors.New(dErrors.CodeInvariantViolation, "finding is already "+string(to))
	}
	if f.Status == FindingInProgress && !to.Terminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "an in-progress finding may only be closed")
	}
	return nil
}

// ApplyAdvance performs the lifecycle move. Call CanAdvance first.
func (f *Finding) ApplyAdvance(to FindingStatus, now time.Time) {
	f.Status = to
	f.UpdatedAt = now
}
