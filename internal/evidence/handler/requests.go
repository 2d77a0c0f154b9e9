package handler

import (
	"time"

	"creaturegrc/internal/evidence"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
)

// SubmitRequest is the wire form of the collector submission contract.
type SubmitRequest struct {
	ImplementationID string `json:"implementation_id,omitempty"`
	Framework        string `json:"framework,omitempty"`
	ControlCode      string `json:"control_code,omitempty"`
	Type             string `json:"type"`
	PayloadRef       string `json:"payload_ref"`
	Payload          []byte `json:"payload,omitempty"`
	PayloadHash      string `json:"payload_hash,omitempty"`
	CollectedAt      string `json:"collected_at,omitempty"`
	PeriodStart      string `json:"period_start"`
	PeriodEnd        string `json:"period_end"`
}

// ToDomain validates wire fields and builds the service request. The source
// system comes from the authenticated collector identity, not the body.
func (r SubmitRequest) ToDomain(sourceSystem string) (evidence.SubmitRequest, error) {
	var req evidence.SubmitRequest

	if r.ImplementationID != "" {
		implementationID, err := id.ParseImplementationID(r.ImplementationID)
		if err != nil {
			return req, err
		}
		req.ImplementationID = implementationID
	}

	start, err := time.Parse(time.RFC3339, r.PeriodStart)
	if err != nil {
		return req, dErrors.New(dErrors.CodeValidation, "period_start must be RFC 3339")
	}
	end, err := time.Parse(time.RFC3339, r.PeriodEnd)
	if err != nil {
		return req, dErrors.New(dErrors.CodeValidation, "period_end must be RFC 3339")
	}
	period, err := id.NewPeriod(start, end)
	if err != nil {
		return req, err
	}
	req.Period = period

	if r.CollectedAt != "" {
		collectedAt, err := time.Parse(time.RFC3339, r.CollectedAt)
		if err != nil {
			return req, dErrors.New(dErrors.CodeValidation, "collected_at must be RFC 3339")
		}
		req.CollectedAt = collectedAt
	}

	req.Framework = r.Framework
	req.ControlCode = r.ControlCode
	req.SourceSystem = sourceSystem
	req.Type = evidence.Type(r.Type)
	req.PayloadRef = r.PayloadRef
	req.Payload = r.Payload
	req.PayloadHash = r.PayloadHash
	return req, nil
}

// ReviewRequest is the wire form of a review decision.
type ReviewRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}
