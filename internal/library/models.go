package library

import (
	"time"

	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
)

// ControlType classifies how a control acts on risk.
type ControlType string

const (
	ControlTypePreventive ControlType = "preventive"
	ControlTypeDetective  ControlType = "detective"
	ControlTypeCorrective ControlType = "corrective"
	ControlTypeDirective  ControlType = "directive"
)

func (t ControlType) Valid() bool {
	switch t {
	case ControlTypePreventive, ControlTypeDetective, ControlTypeCorrective, ControlTypeDirective:
		return true
	}
	return false
}

// Framework is a named compliance standard and version.
//
// Invariants:
//   - Name is unique across active frameworks
//   - Name and Version are non-empty
type Framework struct {
	ID          id.FrameworkID `json:"id"`
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Source      string         `json:"source"`
	Description string         `json:"description,omitempty"`
	Active      bool           `json:"active"`
	CreatedAt   time.Time      `json:"created_at"`
}

func NewFramework(frameworkID id.FrameworkID, name, version, source string, now time.Time) (*Framework, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "framework name is required")
	}
	if version == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "framework version is required")
	}
	return &Framework{
		ID:        frameworkID,
		Name:      name,
		Version:   version,
		Source:    source,
		Active:    true,
		CreatedAt: now,
	}, nil
}

// ControlDomain groups controls within a framework. Code is unique per
// framework.
type ControlDomain struct {
	ID          id.ControlDomainID `json:"id"`
	FrameworkID id.FrameworkID     `json:"framework_id"`
	Code        string             `json:"code"`
	Name        string             `json:"name"`
}

// Control is a single testable requirement. Code is unique within its domain.
type Control struct {
	ID                id.ControlID       `json:"id"`
	DomainID          id.ControlDomainID `json:"domain_id"`
	Code              string             `json:"code"`
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	Type              ControlType        `json:"type"`
	TestingProcedures string             `json:"testing_procedures,omitempty"`
}

// Equivalence declares that two controls from different frameworks satisfy
// the same requirement. The pair is unique regardless of order; stores
// normalize so ControlID sorts before PeerControlID.
type Equivalence struct {
	ControlID     id.ControlID `json:"control_id"`
	PeerControlID id.ControlID `json:"peer_control_id"`
	Note          string       `json:"note,omitempty"`
}

// ControlRef is a control joined with its domain and framework context, the
// shape reporting and audit packaging consume.
type ControlRef struct {
	Control       Control
	DomainCode    string
	DomainName    string
	FrameworkName string
}
