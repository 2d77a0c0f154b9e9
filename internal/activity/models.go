package activity

import "time"

// Action names the kind of domain activity being recorded.
type Action string

const (
	ActionImplementationStatusChanged Action = "implementation.status_changed"
	ActionEvidenceSubmitted           Action = "evidence.submitted"
	ActionEvidenceReviewed            Action = "evidence.reviewed"
	ActionJobRunRecorded              Action = "collection_job.run_recorded"
	ActionRiskRecomputed              Action = "risk.recomputed"
	ActionPackageGenerated            Action = "audit_package.generated"
	ActionFindingOpened               Action = "finding.opened"
	ActionCatalogImported             Action = "catalog.imported"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    Action    `json:"action"`
	Subject   string    `json:"subject"`
	Detail    string    `json:"detail,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}
