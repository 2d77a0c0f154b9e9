// Package domain holds typed identifiers and small value objects shared by
// every module. IDs are distinct types over uuid.UUID so the compiler rejects
// cross-entity mixups; ParseXxxID enforces validity at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "creaturegrc/pkg/domain-errors"
)

type (
	// FrameworkID identifies a compliance framework.
	FrameworkID uuid.UUID
	// ControlDomainID identifies a grouping of controls within a framework.
	ControlDomainID uuid.UUID
	// ControlID identifies a single testable requirement.
	ControlID uuid.UUID
	// CreatureID identifies a tracked asset or identity.
	CreatureID uuid.UUID
	// ImplementationID identifies the binding of a control to entities.
	ImplementationID uuid.UUID
	// EvidenceID identifies a proof artifact.
	EvidenceID uuid.UUID
	// RiskID identifies a threat/impact pairing.
	RiskID uuid.UUID
	// MappingID identifies a risk-control mitigation mapping.
	MappingID uuid.UUID
	// JobID identifies a scheduled collection job.
	JobID uuid.UUID
	// FindingID identifies a discovered gap or defect.
	FindingID uuid.UUID
)

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "id is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "id must not be the nil UUID")
	}
	return u, nil
}

func ParseFrameworkID(s string) (FrameworkID, error) {
	u, err := parseUUID(s)
	return FrameworkID(u), err
}

func ParseControlDomainID(s string) (ControlDomainID, error) {
	u, err := parseUUID(s)
	return ControlDomainID(u), err
}

func ParseControlID(s string) (ControlID, error) {
	u, err := parseUUID(s)
	return ControlID(u), err
}

func ParseCreatureID(s string) (CreatureID, error) {
	u, err := parseUUID(s)
	return CreatureID(u), err
}

func ParseImplementationID(s string) (ImplementationID, error) {
	u, err := parseUUID(s)
	return ImplementationID(u), err
}

func ParseEvidenceID(s string) (EvidenceID, error) {
	u, err := parseUUID(s)
	return EvidenceID(u), err
}

func ParseRiskID(s string) (RiskID, error) {
	u, err := parseUUID(s)
	return RiskID(u), err
}

func ParseJobID(s string) (JobID, error) {
	u, err := parseUUID(s)
	return JobID(u), err
}

func ParseFindingID(s string) (FindingID, error) {
	u, err := parseUUID(s)
	return FindingID(u), err
}

func (id FrameworkID) String() string      { return uuid.UUID(id).String() }
func (id ControlDomainID) String() string  { return uuid.UUID(id).String() }
func (id ControlID) String() string        { return uuid.UUID(id).String() }
func (id CreatureID) String() string       { return uuid.UUID(id).String() }
func (id ImplementationID) String() string { return uuid.UUID(id).String() }
func (id EvidenceID) String() string       { return uuid.UUID(id).String() }
func (id RiskID) String() string           { return uuid.UUID(id).String() }
func (id MappingID) String() string        { return uuid.UUID(id).String() }
func (id JobID) String() string            { return uuid.UUID(id).String() }
func (id FindingID) String() string        { return uuid.UUID(id).String() }

// IDs marshal as canonical UUID strings, not raw byte arrays.

func (id FrameworkID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id ControlDomainID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id ControlID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id CreatureID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id ImplementationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EvidenceID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id RiskID) MarshalText() ([]byte, error)           { return uuid.UUID(id).MarshalText() }
func (id MappingID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id JobID) MarshalText() ([]byte, error)            { return uuid.UUID(id).MarshalText() }
func (id FindingID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }

func unmarshalUUID(dst *uuid.UUID, text []byte) error {
	u, err := uuid.ParseBytes(text)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "id is not a valid UUID")
	}
	*dst = u
	return nil
}

func (id *FrameworkID) UnmarshalText(text []byte) error {
	return unmarshalUUID((*uuid.UUID)(id), text)
}

func (id *ControlDomainID) UnmarshalText(text []byte) error {
	return unmarshalUUID((*uuid.UUID)(id), text)
}

func (id *ControlID) UnmarshalText(text []byte) error {
	return unmarshalUUID((*uuid.UUID)(id), text)
}

func (id *CreatureID) UnmarshalText(text []byte) error {
	return unmarshalUUID((*uuid.UUID)(id), text)
}

func (id *ImplementationID) UnmarshalText(text []byte) error {
	return unmarshalUUID((*uuid.UUID)(id), text)
}

func (id *EvidenceID) UnmarshalText(text []byte) error {
	return unmarshalUUID((*uuid.UUID)(id), text)
}

func (id *RiskID) UnmarshalText(text []byte) error {
	return unmarshalUUID((*uuid.UUID)(id), text)
}

func (id *MappingID) UnmarshalText(text []byte) error {
	return unmarshalUUID((*uuid.UUID)(id), text)
}

func (id *JobID) UnmarshalText(text []byte) error {
	return unmarshalUUID((*uuid.UUID)(id), text)
}

func (id *FindingID) UnmarshalText(text []byte) error {
	return unmarshalUUID((*uuid.UUID)(id), text)
}

func (id FrameworkID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ControlDomainID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ControlID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id CreatureID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ImplementationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EvidenceID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id RiskID) IsNil() bool           { return uuid.UUID(id) == uuid.Nil }
func (id MappingID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id JobID) IsNil() bool            { return uuid.UUID(id) == uuid.Nil }
func (id FindingID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
