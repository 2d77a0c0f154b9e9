package evidence

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"creaturegrc/internal/activity"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
	"creaturegrc/pkg/platform/sentinel"
	"creaturegrc/pkg/requestcontext"
)

// ImplementationLookup resolves a submission addressed by control code
// instead of implementation id.
type ImplementationLookup interface {
	ByControlCode(ctx context.Context, framework, controlCode string) (id.ImplementationID, error)
}

// Service owns evidence intake and review.
type Service struct {
	store     Store
	lookup    ImplementationLookup
	publisher *activity.Publisher
	metrics   *Metrics
	logger    *slog.Logger
}

func NewService(store Store, lookup ImplementationLookup, publisher *activity.Publisher, metrics *Metrics, logger *slog.Logger) *Service {
	return &Service{store: store, lookup: lookup, publisher: publisher, metrics: metrics, logger: logger}
}

// SubmitRequest is the collector contract. Exactly one of ImplementationID
// or (Framework, ControlCode) must address the target. Payload carries the
// artifact bytes; PayloadHash may accompany or replace them. When both are
// present the hash must match the payload.
type SubmitRequest struct {
	ImplementationID id.ImplementationID
	Framework        string
	ControlCode      string
	SourceSystem     string
	Type             Type
	PayloadRef       string
	Payload          []byte
	PayloadHash      string
	CollectedAt      time.Time
	Period           id.Period
}

// SubmitResult reports the stored row and whether this call created it.
type SubmitResult struct {
	EvidenceID id.EvidenceID `json:"evidence_id"`
	Created    bool          `json:"created"`
}

// Submit stores one proof artifact. Resubmitting the same
// (implementation, content, period) is a successful no-op returning the
// existing id, so collectors can replay windows freely.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.SourceSystem == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "source system is required")
	}
	if !req.Type.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown evidence type: "+string(req.Type))
	}
	if req.Period.IsZero() || req.Period.End.Before(req.Period.Start) {
		return nil, dErrors.New(dErrors.CodeValidation, "malformed period")
	}

	hash, err := resolveHash(req)
	if err != nil {
		return nil, err
	}

	implementationID := req.ImplementationID
	if implementationID.IsNil() {
		if req.ControlCode == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "implementation id or control code is required")
		}
		implementationID, err = s.lookup.ByControlCode(ctx, req.Framework, req.ControlCode)
		if err != nil {
			return nil, err
		}
	}

	now := requestcontext.Now(ctx)
	collectedAt := req.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = now
	}

	candidate := &Evidence{
		ID:               id.EvidenceID(uuid.New()),
		ImplementationID: implementationID,
		SourceSystem:     req.SourceSystem,
		Type:             req.Type,
		PayloadRef:       req.PayloadRef,
		ContentHash:      hash,
		CollectedAt:      collectedAt,
		Period:           req.Period,
		ReviewStatus:     ReviewPending,
		CreatedAt:        now,
	}

	stored, created, err := s.store.CreateIfAbsent(ctx, candidate)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "implementation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store evidence")
	}

	if s.metrics != nil {
		outcome := "deduplicated"
		if created {
			outcome = "created"
		}
		s.metrics.Submissions.WithLabelValues(outcome, req.SourceSystem).Inc()
	}

	if created {
		if err := s.publisher.Emit(ctx, activity.Event{
			Actor:     requestcontext.Actor(ctx),
			Action:    activity.ActionEvidenceSubmitted,
			Subject:   stored.ID.String(),
			Detail:    req.SourceSystem + "/" + string(req.Type),
			RequestID: requestcontext.RequestID(ctx),
		}); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record submission")
		}
	}
	return &SubmitResult{EvidenceID: stored.ID, Created: created}, nil
}

func resolveHash(req SubmitRequest) (string, error) {
	supplied := strings.ToLower(strings.TrimSpace(req.PayloadHash))
	if len(req.Payload) == 0 {
		if supplied == "" {
			return "", dErrors.New(dErrors.CodeValidation, "payload or payload hash is required")
		}
		return supplied, nil
	}
	computed := HashPayload(req.Payload)
	if supplied != "" && supplied != computed {
		return "", dErrors.New(dErrors.CodeValidation, "supplied hash does not match payload")
	}
	return computed, nil
}

// Review records a human review outcome. Only pending and
// needs_clarification rows accept review changes.
//
// Uses the Execute callback pattern for atomic validate-then-mutate.
func (s *Service) Review(ctx context.Context, evidenceID id.EvidenceID, to ReviewStatus, notes string) (*Evidence, error) {
	now := requestcontext.Now(ctx)
	reviewer := requestcontext.Actor(ctx)

	e, err := s.store.Execute(ctx, evidenceID,
		func(e *Evidence) error { return e.CanReview(to) },
		func(e *Evidence) { e.ApplyReview(to, reviewer, notes, now) },
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "evidence not found")
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Reviews.WithLabelValues(string(to)).Inc()
	}
	if err := s.publisher.Emit(ctx, activity.Event{
		Actor:     reviewer,
		Action:    activity.ActionEvidenceReviewed,
		Subject:   e.ID.String(),
		Detail:    string(to),
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record review")
	}
	return e, nil
}

// Get returns one evidence row.
func (s *Service) Get(ctx context.Context, evidenceID id.EvidenceID) (*Evidence, error) {
	e, err := s.store.Find(ctx, evidenceID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "evidence not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load evidence")
	}
	return e, nil
}
