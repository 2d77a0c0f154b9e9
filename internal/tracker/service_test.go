package tracker

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"creaturegrc/internal/activity"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
	"creaturegrc/pkg/requestcontext"
)

// =============================================================================
// Tracker Service Test Suite
// =============================================================================
// Justification for unit tests: every transition must leave a log row and an
// activity event; that bookkeeping is invisible to handler tests.

type TrackerServiceSuite struct {
	suite.Suite
	store   *InMemoryStore
	events  *activity.InMemoryStore
	service *Service
}

func TestTrackerServiceSuite(t *testing.T) {
	suite.Run(t, new(TrackerServiceSuite))
}

func (s *TrackerServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.events = activity.NewInMemoryStore()
	logger := slog.New(slog.DiscardHandler)
	s.service = NewService(s.store, NewInMemoryFindingStore(),
		activity.NewPublisher(s.events, logger), nil, logger)
}

func (s *TrackerServiceSuite) createImplementation() *Implementation {
	implementation, err := s.service.CreateImplementation(context.Background(),
		id.ControlID(uuid.New()), AutomationSemiAutomated, FrequencyMonthly)
	s.Require().NoError(err)
	return implementation
}

func (s *TrackerServiceSuite) TestCreateImplementation() {
	ctx := context.Background()

	s.Run("starts at not_implemented", func() {
		implementation := s.createImplementation()
		s.Equal(StatusNotImplemented, implementation.Status)
		s.Nil(implementation.NextTestDate)
	})

	s.Run("second implementation for the same control conflicts", func() {
		implementation := s.createImplementation()
		_, err := s.service.CreateImplementation(ctx, implementation.ControlID,
			AutomationManual, FrequencyAnnual)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("nil control id is rejected", func() {
		_, err := s.service.CreateImplementation(ctx, id.ControlID{}, AutomationManual, FrequencyAnnual)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *TrackerServiceSuite) TestTransition() {
	ctx := requestcontext.WithActor(context.Background(), "compliance-lead")

	s.Run("logs every hop with the acting party", func() {
		implementation := s.createImplementation()
		for _, to := range []ImplementationStatus{
			StatusPlanned, StatusPartiallyImplemented, StatusImplemented,
		} {
			_, err := s.service.Transition(ctx, TransitionRequest{
				ImplementationID: implementation.ID, To: to,
			})
			s.Require().NoError(err)
		}

		history, err := s.service.History(ctx, implementation.ID)
		s.Require().NoError(err)
		s.Require().Len(history, 3)
		s.Equal(StatusNotImplemented, history[0].From)
		s.Equal(StatusPlanned, history[0].To)
		s.Equal(StatusImplemented, history[2].To)
		for _, transition := range history {
			s.Equal("compliance-lead", transition.Actor)
		}

		events, err := s.events.ListRecent(ctx, 10)
		s.Require().NoError(err)
		s.Len(events, 3)
		s.Equal(activity.ActionImplementationStatusChanged, events[0].Action)
	})

	s.Run("rejected transition leaves no log row", func() {
		implementation := s.createImplementation()
		_, err := s.service.Transition(ctx, TransitionRequest{
			ImplementationID: implementation.ID, To: StatusNotApplicable,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

		history, err := s.service.History(ctx, implementation.ID)
		s.Require().NoError(err)
		s.Empty(history)
	})

	s.Run("override crossing is recorded on the log row", func() {
		implementation := s.createImplementation()
		_, err := s.service.Transition(ctx, TransitionRequest{
			ImplementationID: implementation.ID, To: StatusNotApplicable,
			Override: true, Note: "control does not apply to this environment",
		})
		s.Require().NoError(err)

		history, err := s.service.History(ctx, implementation.ID)
		s.Require().NoError(err)
		s.Require().Len(history, 1)
		s.True(history[0].Override)
		s.NotEmpty(history[0].Note)
	})

	s.Run("unknown implementation returns not found", func() {
		_, err := s.service.Transition(ctx, TransitionRequest{
			ImplementationID: id.ImplementationID(uuid.New()), To: StatusPlanned,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *TrackerServiceSuite) TestBindings() {
	ctx := context.Background()
	implementation := s.createImplementation()
	creatureID := id.CreatureID(uuid.New())

	s.Run("binds a creature once", func() {
		updated, err := s.service.BindCreature(ctx, implementation.ID, creatureID)
		s.Require().NoError(err)
		s.Len(updated.CreatureIDs, 1)

		_, err = s.service.BindCreature(ctx, implementation.ID, creatureID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("binds a policy once", func() {
		updated, err := s.service.BindPolicy(ctx, implementation.ID, "POL-007 access control policy")
		s.Require().NoError(err)
		s.Len(updated.PolicyRefs, 1)

		_, err = s.service.BindPolicy(ctx, implementation.ID, "POL-007 access control policy")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *TrackerServiceSuite) TestFindings() {
	ctx := context.Background()
	implementation := s.createImplementation()

	s.Run("opens and advances a finding", func() {
		finding, err := s.service.OpenFinding(ctx, implementation.ID, nil,
			"quarterly review missing", "no review evidence for Q2", SeverityMedium, nil)
		s.Require().NoError(err)
		s.Equal(FindingOpen, finding.Status)

		finding, err = s.service.AdvanceFinding(ctx, finding.ID, FindingInProgress)
		s.Require().NoError(err)
		s.Equal(FindingInProgress, finding.Status)

		finding, err = s.service.AdvanceFinding(ctx, finding.ID, FindingResolved)
		s.Require().NoError(err)
		s.Equal(FindingResolved, finding.Status)

		_, err = s.service.AdvanceFinding(ctx, finding.ID, FindingOpen)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("finding against unknown implementation is rejected", func() {
		_, err := s.service.OpenFinding(ctx, id.ImplementationID(uuid.New()), nil,
			"orphan", "", SeverityLow, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
