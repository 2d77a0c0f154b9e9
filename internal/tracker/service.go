package tracker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"creaturegrc/internal/activity"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
	"creaturegrc/pkg/platform/sentinel"
	"creaturegrc/pkg/requestcontext"
)

// Service owns the implementation status machine and the finding lifecycle.
type Service struct {
	store     Store
	findings  FindingStore
	publisher *activity.Publisher
	metrics   *Metrics
	logger    *slog.Logger
}

func NewService(store Store, findings FindingStore, publisher *activity.Publisher, metrics *Metrics, logger *slog.Logger) *Service {
	return &Service{store: store, findings: findings, publisher: publisher, metrics: metrics, logger: logger}
}

// CreateImplementation binds a control to the registry. One implementation
// per control; a second create is a conflict.
func (s *Service) CreateImplementation(ctx context.Context, controlID id.ControlID, automation AutomationLevel, frequency TestingFrequency) (*Implementation, error) {
	implementation, err := NewImplementation(id.ImplementationID(uuid.New()), controlID, automation, frequency, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, implementation); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "control already has an implementation")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown control")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create implementation")
	}
	return implementation, nil
}

// TransitionRequest asks for one status change. Override must be set when
// the change enters or leaves not_applicable.
type TransitionRequest struct {
	ImplementationID id.ImplementationID
	To               ImplementationStatus
	Override         bool
	Note             string
}

// Transition moves an implementation to a new status, logs the change, and
// emits an activity event.
//
// Uses the Execute callback pattern for atomic validate-then-mutate.
// The store's Execute method holds the lock (mutex or FOR UPDATE) during both validation and mutation.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (*Implementation, error) {
	if req.ImplementationID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "implementation id is required")
	}

	now := requestcontext.Now(ctx)
	var from ImplementationStatus
	implementation, err := s.store.Execute(ctx, req.ImplementationID,
		func(i *Implementation) error {
			from = i.Status
			return i.CanTransition(req.To, req.Override)
		},
		func(i *Implementation) {
			i.ApplyTransition(req.To, now)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "implementation not found")
		}
		return nil, err
	}

	if err := s.store.AppendTransition(ctx, Transition{
		ImplementationID: implementation.ID,
		From:             from,
		To:               req.To,
		Actor:            requestcontext.Actor(ctx),
		Note:             req.Note,
		Override:         req.Override,
		At:               now,
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to log transition")
	}

	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(string(req.To)).Inc()
		if req.Override {
			s.metrics.OverridesUsed.Inc()
		}
	}

	if err := s.publisher.Emit(ctx, activity.Event{
		Actor:     requestcontext.Actor(ctx),
		Action:    activity.ActionImplementationStatusChanged,
		Subject:   implementation.ID.String(),
		Detail:    string(from) + " -> " + string(req.To),
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record transition activity")
	}
	return implementation, nil
}

// BindCreature attaches a creature to the implementation.
func (s *Service) BindCreature(ctx context.Context, implementationID id.ImplementationID, creatureID id.CreatureID) (*Implementation, error) {
	if creatureID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "creature id is required")
	}
	now := requestcontext.Now(ctx)
	implementation, err := s.store.Execute(ctx, implementationID,
		func(i *Implementation) error {
			for _, bound := range i.CreatureIDs {
				if bound == creatureID {
					return dErrors.New(dErrors.CodeConflict, "creature already bound")
				}
			}
			return nil
		},
		func(i *Implementation) {
			i.CreatureIDs = append(i.CreatureIDs, creatureID)
			i.UpdatedAt = now
		},
	)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "implementation not found")
	}
	return implementation, err
}

// BindPolicy attaches a policy reference to the implementation.
func (s *Service) BindPolicy(ctx context.Context, implementationID id.ImplementationID, policyRef string) (*Implementation, error) {
	if policyRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "policy ref is required")
	}
	now := requestcontext.Now(ctx)
	implementation, err := s.store.Execute(ctx, implementationID,
		func(i *Implementation) error {
			for _, bound := range i.PolicyRefs {
				if bound == policyRef {
					return dErrors.New(dErrors.CodeConflict, "policy already bound")
				}
			}
			return nil
		},
		func(i *Implementation) {
			i.PolicyRefs = append(i.PolicyRefs, policyRef)
			i.UpdatedAt = now
		},
	)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "implementation not found")
	}
	return implementation, err
}

// RecordTest marks a completed test and rolls the next test date forward.
func (s *Service) RecordTest(ctx context.Context, implementationID id.ImplementationID, at time.Time) (*Implementation, error) {
	if at.IsZero() {
		at = requestcontext.Now(ctx)
	}
	implementation, err := s.store.Execute(ctx, implementationID,
		func(*Implementation) error { return nil },
		func(i *Implementation) { i.RecordTest(at) },
	)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "implementation not found")
	}
	return implementation, err
}

// Get returns one implementation.
func (s *Service) Get(ctx context.Context, implementationID id.ImplementationID) (*Implementation, error) {
	implementation, err := s.store.Find(ctx, implementationID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "implementation not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load implementation")
	}
	return implementation, nil
}

// History returns the ordered transition log of one implementation.
func (s *Service) History(ctx context.Context, implementationID id.ImplementationID) ([]Transition, error) {
	transitions, err := s.store.ListTransitions(ctx, implementationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load transitions")
	}
	return transitions, nil
}

// OpenFinding records a discovered gap against an implementation.
func (s *Service) OpenFinding(ctx context.Context, implementationID id.ImplementationID, evidenceID *id.EvidenceID, title, description string, severity FindingSeverity, dueDate *time.Time) (*Finding, error) {
	now := requestcontext.Now(ctx)
	finding, err := NewFinding(id.FindingID(uuid.New()), implementationID, title, severity, now)
	if err != nil {
		return nil, err
	}
	finding.EvidenceID = evidenceID
	finding.Description = description
	finding.DueDate = dueDate

	if _, err := s.store.Find(ctx, implementationID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "implementation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load implementation")
	}
	if err := s.findings.Create(ctx, finding); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown implementation or evidence")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create finding")
	}

	if s.metrics != nil {
		s.metrics.FindingsOpen.Inc()
	}
	if err := s.publisher.Emit(ctx, activity.Event{
		Actor:     requestcontext.Actor(ctx),
		Action:    activity.ActionFindingOpened,
		Subject:   finding.ID.String(),
		Detail:    string(severity) + ": " + title,
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record finding activity")
	}
	return finding, nil
}

// AdvanceFinding moves a finding through its remediation lifecycle.
func (s *Service) AdvanceFinding(ctx context.Context, findingID id.FindingID, to FindingStatus) (*Finding, error) {
	now := requestcontext.Now(ctx)
	finding, err := s.findings.Execute(ctx, findingID,
		func(f *Finding) error { return f.CanAdvance(to) },
		func(f *Finding) { f.ApplyAdvance(to, now) },
	)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "finding not found")
	}
	if err != nil {
		return nil, err
	}
	if s.metrics != nil && to.Terminal() {
		s.metrics.FindingsOpen.Dec()
	}
	return finding, nil
}
