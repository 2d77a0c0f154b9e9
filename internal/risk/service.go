package risk

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"creaturegrc/internal/activity"
	"creaturegrc/internal/tracker"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
	"creaturegrc/pkg/platform/sentinel"
	"creaturegrc/pkg/requestcontext"
)

// StatusResolver reports implementation state for mapped controls. The
// tracker's store satisfies it.
type StatusResolver interface {
	ListByControls(ctx context.Context, controlIDs []id.ControlID) (map[id.ControlID]*tracker.Implementation, error)
}

// Service owns risk scoring.
type Service struct {
	store     Store
	resolver  StatusResolver
	publisher *activity.Publisher
	metrics   *Metrics
	logger    *slog.Logger
}

func NewService(store Store, resolver StatusResolver, publisher *activity.Publisher, metrics *Metrics, logger *slog.Logger) *Service {
	return &Service{store: store, resolver: resolver, publisher: publisher, metrics: metrics, logger: logger}
}

// CreateRisk records a new risk with residual equal to inherent until a
// mapping grants mitigation credit.
func (s *Service) CreateRisk(ctx context.Context, title, description string, likelihood, impact Rating) (*Risk, error) {
	risk, err := NewRisk(id.RiskID(uuid.New()), title, likelihood, impact, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	risk.Description = description
	if err := s.store.CreateRisk(ctx, risk); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "risk already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create risk")
	}
	return risk, nil
}

// UpsertMapping declares (or re-rates) a mitigation and recomputes the
// risk's residual score in the same transaction. A scoring failure, for
// example a mapped control with no implementation record, rolls back the
// mapping change so the stored score stays consistent.
func (s *Service) UpsertMapping(ctx context.Context, mapping Mapping) (*Risk, error) {
	if mapping.RiskID.IsNil() || mapping.ControlID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "risk id and control id are required")
	}
	if !mapping.Effectiveness.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown effectiveness: "+string(mapping.Effectiveness))
	}

	now := requestcontext.Now(ctx)
	risk, err := s.store.UpsertMappingAndScore(ctx, mapping,
		func(ctx context.Context, risk *Risk, mappings []Mapping) (int, error) {
			weights, err := s.implementedWeights(ctx, mappings)
			if err != nil {
				return 0, err
			}
			risk.UpdatedAt = now
			return ResidualScore(risk.InherentScore, weights), nil
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "risk or control not found")
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Recomputations.Inc()
		s.metrics.ResidualScore.WithLabelValues(risk.Title).Set(float64(risk.ResidualScore))
	}
	if err := s.publisher.Emit(ctx, activity.Event{
		Actor:     requestcontext.Actor(ctx),
		Action:    activity.ActionRiskRecomputed,
		Subject:   risk.ID.String(),
		Detail:    risk.Title,
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record recomputation")
	}
	return risk, nil
}

// implementedWeights collects effectiveness weights for mappings whose
// control is implemented. A mapped control with no implementation at all is
// inconsistent mapping data and aborts the recomputation.
func (s *Service) implementedWeights(ctx context.Context, mappings []Mapping) ([]float64, error) {
	controlIDs := make([]id.ControlID, len(mappings))
	for i, mapping := range mappings {
		controlIDs[i] = mapping.ControlID
	}
	implementations, err := s.resolver.ListByControls(ctx, controlIDs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve implementations")
	}

	var weights []float64
	for _, mapping := range mappings {
		implementation, ok := implementations[mapping.ControlID]
		if !ok {
			return nil, dErrors.New(dErrors.CodeInvariantViolation,
				"mapped control has no implementation: "+mapping.ControlID.String())
		}
		if implementation.Status == tracker.StatusImplemented {
			weights = append(weights, mapping.Effectiveness.Weight())
		}
	}
	return weights, nil
}

// Get returns one risk.
func (s *Service) Get(ctx context.Context, riskID id.RiskID) (*Risk, error) {
	risk, err := s.store.Find(ctx, riskID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "risk not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load risk")
	}
	return risk, nil
}

// Register returns all risks with current scores.
func (s *Service) Register(ctx context.Context) ([]*Risk, error) {
	risks, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list risks")
	}
	return risks, nil
}
