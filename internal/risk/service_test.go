package risk

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"creaturegrc/internal/activity"
	"creaturegrc/internal/tracker"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
)

// =============================================================================
// Risk Service Test Suite
// =============================================================================
// Justification for unit tests: residual scoring is a cross-module computation
// (mappings joined with implementation statuses) whose rollback-on-failure
// behavior only shows at the service/store seam.

type RiskServiceSuite struct {
	suite.Suite
	store          *InMemoryStore
	trackerStore   *tracker.InMemoryStore
	events         *activity.InMemoryStore
	service        *Service
	trackerService *tracker.Service
}

func TestRiskServiceSuite(t *testing.T) {
	suite.Run(t, new(RiskServiceSuite))
}

func (s *RiskServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.trackerStore = tracker.NewInMemoryStore()
	s.events = activity.NewInMemoryStore()
	logger := slog.New(slog.DiscardHandler)
	publisher := activity.NewPublisher(s.events, logger)
	// Nil metrics: the suite runs many times and promauto registration is global.
	s.trackerService = tracker.NewService(s.trackerStore, tracker.NewInMemoryFindingStore(), publisher, nil, logger)
	s.service = NewService(s.store, s.trackerStore, publisher, nil, logger)
}

// addImplementation seeds a control implementation in the given status.
func (s *RiskServiceSuite) addImplementation(controlID id.ControlID, status tracker.ImplementationStatus) *tracker.Implementation {
	implementation, err := tracker.NewImplementation(
		id.ImplementationID(uuid.New()), controlID,
		tracker.AutomationManual, tracker.FrequencyQuarterly, time.Now().UTC())
	s.Require().NoError(err)
	implementation.Status = status
	s.Require().NoError(s.trackerStore.Create(context.Background(), implementation))
	return implementation
}

func (s *RiskServiceSuite) createRisk(likelihood, impact Rating) *Risk {
	risk, err := s.service.CreateRisk(context.Background(), "Credential stuffing", "", likelihood, impact)
	s.Require().NoError(err)
	return risk
}

// =============================================================================
// Inherent Score Tests
// =============================================================================

func (s *RiskServiceSuite) TestInherentScoreIsLikelihoodTimesImpact() {
	cases := []struct {
		likelihood Rating
		impact     Rating
		want       int
	}{
		{RatingVeryLow, RatingVeryLow, 1},
		{RatingLow, RatingHigh, 8},
		{RatingHigh, RatingHigh, 16},
		{RatingVeryHigh, RatingVeryHigh, 25},
	}
	for _, tc := range cases {
		s.Run(string(tc.likelihood)+"_x_"+string(tc.impact), func() {
			risk := s.createRisk(tc.likelihood, tc.impact)
			s.Equal(tc.want, risk.InherentScore)
			s.Equal(tc.want, risk.ResidualScore, "residual starts equal to inherent")
		})
	}
}

func (s *RiskServiceSuite) TestCreateRejectsUnknownRating() {
	_, err := s.service.CreateRisk(context.Background(), "Bad rating", "", Rating("extreme"), RatingLow)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

// =============================================================================
// Residual Score Tests
// =============================================================================

func (s *RiskServiceSuite) TestResidualUnchangedWhenNothingImplemented() {
	risk := s.createRisk(RatingHigh, RatingHigh)
	implementation := s.addImplementation(id.ControlID(uuid.New()), tracker.StatusPlanned)

	updated, err := s.service.UpsertMapping(context.Background(), Mapping{
		RiskID: risk.ID, ControlID: implementation.ControlID, Effectiveness: EffectivenessHigh,
	})
	s.Require().NoError(err)
	s.Equal(16, updated.ResidualScore, "a planned control earns no mitigation credit")
}

func (s *RiskServiceSuite) TestHighEffectivenessImplementedControl() {
	risk := s.createRisk(RatingHigh, RatingHigh)
	implementation := s.addImplementation(id.ControlID(uuid.New()), tracker.StatusImplemented)

	updated, err := s.service.UpsertMapping(context.Background(), Mapping{
		RiskID: risk.ID, ControlID: implementation.ControlID, Effectiveness: EffectivenessHigh,
	})
	s.Require().NoError(err)
	// ceil(16 * (1 - 0.9)) = 2
	s.Equal(2, updated.ResidualScore)
	s.Equal(16, updated.InherentScore, "inherent never changes")
}

func (s *RiskServiceSuite) TestMediumEffectivenessImplementedControl() {
	risk := s.createRisk(RatingVeryHigh, RatingHigh) // inherent 20
	implementation := s.addImplementation(id.ControlID(uuid.New()), tracker.StatusImplemented)

	updated, err := s.service.UpsertMapping(context.Background(), Mapping{
		RiskID: risk.ID, ControlID: implementation.ControlID, Effectiveness: EffectivenessMedium,
	})
	s.Require().NoError(err)
	// ceil(20 * (1 - 0.6)) = 8
	s.Equal(8, updated.ResidualScore)
}

func (s *RiskServiceSuite) TestMeanOverImplementedMappingsOnly() {
	risk := s.createRisk(RatingHigh, RatingHigh)
	implemented := s.addImplementation(id.ControlID(uuid.New()), tracker.StatusImplemented)
	planned := s.addImplementation(id.ControlID(uuid.New()), tracker.StatusPlanned)

	_, err := s.service.UpsertMapping(context.Background(), Mapping{
		RiskID: risk.ID, ControlID: implemented.ControlID, Effectiveness: EffectivenessLow,
	})
	s.Require().NoError(err)
	updated, err := s.service.UpsertMapping(context.Background(), Mapping{
		RiskID: risk.ID, ControlID: planned.ControlID, Effectiveness: EffectivenessHigh,
	})
	s.Require().NoError(err)
	// Only the low implemented mapping counts: ceil(16 * (1 - 0.3)) = 12.
	s.Equal(12, updated.ResidualScore)
}

func (s *RiskServiceSuite) TestReRatingMappingReplacesInPlace() {
	risk := s.createRisk(RatingHigh, RatingHigh)
	implementation := s.addImplementation(id.ControlID(uuid.New()), tracker.StatusImplemented)

	_, err := s.service.UpsertMapping(context.Background(), Mapping{
		RiskID: risk.ID, ControlID: implementation.ControlID, Effectiveness: EffectivenessLow,
	})
	s.Require().NoError(err)
	updated, err := s.service.UpsertMapping(context.Background(), Mapping{
		RiskID: risk.ID, ControlID: implementation.ControlID, Effectiveness: EffectivenessHigh,
	})
	s.Require().NoError(err)

	mappings, err := s.store.ListMappings(context.Background(), risk.ID)
	s.Require().NoError(err)
	s.Len(mappings, 1, "re-rating the same control must not add a second mapping")
	s.Equal(EffectivenessHigh, mappings[0].Effectiveness)
	s.Equal(2, updated.ResidualScore)
}

func (s *RiskServiceSuite) TestResidualNeverBelowOne() {
	risk := s.createRisk(RatingVeryLow, RatingVeryLow) // inherent 1
	implementation := s.addImplementation(id.ControlID(uuid.New()), tracker.StatusImplemented)

	updated, err := s.service.UpsertMapping(context.Background(), Mapping{
		RiskID: risk.ID, ControlID: implementation.ControlID, Effectiveness: EffectivenessHigh,
	})
	s.Require().NoError(err)
	s.Equal(1, updated.ResidualScore)
}

// =============================================================================
// Rollback Tests
// =============================================================================

func (s *RiskServiceSuite) TestMappingToControlWithoutImplementationRollsBack() {
	risk := s.createRisk(RatingHigh, RatingHigh)
	implementation := s.addImplementation(id.ControlID(uuid.New()), tracker.StatusImplemented)

	_, err := s.service.UpsertMapping(context.Background(), Mapping{
		RiskID: risk.ID, ControlID: implementation.ControlID, Effectiveness: EffectivenessHigh,
	})
	s.Require().NoError(err)

	_, err = s.service.UpsertMapping(context.Background(), Mapping{
		RiskID: risk.ID, ControlID: id.ControlID(uuid.New()), Effectiveness: EffectivenessHigh,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	mappings, err := s.store.ListMappings(context.Background(), risk.ID)
	s.Require().NoError(err)
	s.Len(mappings, 1, "the failed mapping must not be persisted")

	current, err := s.service.Get(context.Background(), risk.ID)
	s.Require().NoError(err)
	s.Equal(2, current.ResidualScore, "score from the last successful recomputation survives")
}

func (s *RiskServiceSuite) TestMappingUnknownRiskRejected() {
	implementation := s.addImplementation(id.ControlID(uuid.New()), tracker.StatusImplemented)
	_, err := s.service.UpsertMapping(context.Background(), Mapping{
		RiskID: id.RiskID(uuid.New()), ControlID: implementation.ControlID, Effectiveness: EffectivenessLow,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RiskServiceSuite) TestMappingUnknownEffectivenessRejected() {
	risk := s.createRisk(RatingLow, RatingLow)
	_, err := s.service.UpsertMapping(context.Background(), Mapping{
		RiskID: risk.ID, ControlID: id.ControlID(uuid.New()), Effectiveness: Effectiveness("total"),
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

// =============================================================================
// Status Change Recomputation Tests
// =============================================================================

func (s *RiskServiceSuite) TestRecomputeReflectsLaterStatusChange() {
	risk := s.createRisk(RatingHigh, RatingHigh)
	implementation := s.addImplementation(id.ControlID(uuid.New()), tracker.StatusPlanned)

	_, err := s.service.UpsertMapping(context.Background(), Mapping{
		RiskID: risk.ID, ControlID: implementation.ControlID, Effectiveness: EffectivenessHigh,
	})
	s.Require().NoError(err)

	_, err = s.trackerService.Transition(context.Background(), tracker.TransitionRequest{
		ImplementationID: implementation.ID, To: tracker.StatusImplemented,
	})
	s.Require().NoError(err)

	// Re-rating with the same effectiveness triggers a fresh recomputation.
	updated, err := s.service.UpsertMapping(context.Background(), Mapping{
		RiskID: risk.ID, ControlID: implementation.ControlID, Effectiveness: EffectivenessHigh,
	})
	s.Require().NoError(err)
	s.Equal(2, updated.ResidualScore)
}

func (s *RiskServiceSuite) TestRecomputationEmitsActivity() {
	risk := s.createRisk(RatingLow, RatingLow)
	implementation := s.addImplementation(id.ControlID(uuid.New()), tracker.StatusImplemented)

	_, err := s.service.UpsertMapping(context.Background(), Mapping{
		RiskID: risk.ID, ControlID: implementation.ControlID, Effectiveness: EffectivenessLow,
	})
	s.Require().NoError(err)

	events, err := s.events.ListRecent(context.Background(), 10)
	s.Require().NoError(err)
	s.Require().NotEmpty(events)
	s.Equal(activity.ActionRiskRecomputed, events[0].Action)
	s.Equal(risk.ID.String(), events[0].Subject)
}
