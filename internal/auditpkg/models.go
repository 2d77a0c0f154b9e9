package auditpkg

import (
	"fmt"
	"time"

	"creaturegrc/internal/reporting"
	id "creaturegrc/pkg/domain"
)

// PackageName builds the deterministic archive name for a client, framework,
// and period: {client}-{framework}-evidence-{period_end:YYYYMMDD}.
func PackageName(client, framework string, period id.Period) string {
	return fmt.Sprintf("%s-%s-evidence-%s", client, framework, period.End.UTC().Format("20060102"))
}

// FileEntry is one archive member with its content hash for tamper
// detection.
type FileEntry struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	Size   int    `json:"size"`
}

// Manifest is the package table of contents. GeneratedAt is the only field
// allowed to differ between two assemblies over unchanged data.
type Manifest struct {
	PackageName string      `json:"package_name"`
	Client      string      `json:"client"`
	Framework   string      `json:"framework"`
	Period      id.Period   `json:"period"`
	Coverage    float64     `json:"coverage_percentage"`
	Satisfied   int         `json:"satisfied_controls"`
	Total       int         `json:"total_controls"`
	Files       []FileEntry `json:"files"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// MatrixRow is one control in the control matrix: its implementation state
// and the approved evidence backing it for the period.
type MatrixRow struct {
	ControlCode          string              `json:"control_code"`
	ControlName          string              `json:"control_name"`
	DomainCode           string              `json:"domain_code"`
	ImplementationStatus string              `json:"implementation_status"`
	Satisfied            bool                `json:"satisfied"`
	GapReason            reporting.GapReason `json:"gap_reason,omitempty"`
	EvidenceRefs         []EvidenceRef       `json:"evidence_refs,omitempty"`
}

// EvidenceRef points at one approved evidence row without embedding the
// payload.
type EvidenceRef struct {
	EvidenceID   string    `json:"evidence_id"`
	SourceSystem string    `json:"source_system"`
	Type         string    `json:"type"`
	PayloadRef   string    `json:"payload_ref"`
	ContentHash  string    `json:"content_hash"`
	Period       id.Period `json:"period"`
}

// RiskSnapshot is one register row as of package generation.
type RiskSnapshot struct {
	RiskID        string `json:"risk_id"`
	Title         string `json:"title"`
	Likelihood    string `json:"likelihood"`
	Impact        string `json:"impact"`
	InherentScore int    `json:"inherent_score"`
	ResidualScore int    `json:"residual_score"`
}
