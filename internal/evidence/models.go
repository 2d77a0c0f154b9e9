package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
)

// Type classifies what kind of artifact the payload is.
type Type string

const (
	TypeLog        Type = "log"
	TypeConfig     Type = "config"
	TypeScreenshot Type = "screenshot"
	TypeDocument   Type = "document"
	TypeScanResult Type = "scan_result"
	TypeAuditTrail Type = "audit_trail"
	TypePolicy     Type = "policy"
	TypeProcedure  Type = "procedure"
)

func (t Type) Valid() bool {
	switch t {
	case TypeLog, TypeConfig, TypeScreenshot, TypeDocument,
		TypeScanResult, TypeAuditTrail, TypePolicy, TypeProcedure:
		return true
	}
	return false
}

// ReviewStatus is the human review state of one evidence row.
type ReviewStatus string

const (
	ReviewPending            ReviewStatus = "pending"
	ReviewApproved           ReviewStatus = "approved"
	ReviewRejected           ReviewStatus = "rejected"
	ReviewNeedsClarification ReviewStatus = "needs_clarification"
)

func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewRejected, ReviewNeedsClarification:
		return true
	}
	return false
}

// Reviewable reports whether review fields may still change.
func (s ReviewStatus) Reviewable() bool {
	return s == ReviewPending || s == ReviewNeedsClarification
}

// Evidence is one content-addressed proof artifact. Rows are append-only;
// after insertion only the review fields may change.
//
// Invariants:
//   - (implementation_id, content_hash, period) is unique
//   - review fields change only via CanReview/ApplyReview
type Evidence struct {
	ID               id.EvidenceID       `json:"id"`
	ImplementationID id.ImplementationID `json:"implementation_id"`
	SourceSystem     string              `json:"source_system"`
	Type             Type                `json:"type"`
	PayloadRef       string              `json:"payload_ref"`
	ContentHash      string              `json:"content_hash"`
	CollectedAt      time.Time           `json:"collected_at"`
	Period           id.Period           `json:"period"`
	ReviewStatus     ReviewStatus        `json:"review_status"`
	ReviewedBy       string              `json:"reviewed_by,omitempty"`
	ReviewNotes      string              `json:"review_notes,omitempty"`
	ReviewedAt       *time.Time          `json:"reviewed_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

// HashPayload is the canonical content hash: lowercase hex SHA-256.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// CanReview is split from ApplyReview for the Execute callback pattern.
func (e *Evidence) CanReview(to ReviewStatus) error {
	if !to.Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown review status: "+string(to))
	}
	if to == ReviewPending {
		return dErrors.New(dErrors.CodeValidation, "evidence cannot be reviewed back to pending")
	}
	if !e.ReviewStatus.Reviewable() {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"evidence review is already final: "+string(e.ReviewStatus))
	}
	return nil
}

// ApplyReview sets the review outcome. Call CanReview first.
func (e *Evidence) ApplyReview(to ReviewStatus, reviewer, notes string, now time.Time) {
	e.ReviewStatus = to
	e.ReviewedBy = reviewer
	e.ReviewNotes = notes
	e.ReviewedAt = &now
}
