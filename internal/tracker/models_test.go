package tracker

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
)

// =============================================================================
// Implementation Status Machine Test Suite
// =============================================================================

type ImplementationModelSuite struct {
	suite.Suite
	now time.Time
}

func TestImplementationModelSuite(t *testing.T) {
	suite.Run(t, new(ImplementationModelSuite))
}

func (s *ImplementationModelSuite) SetupTest() {
	s.now = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
}

func (s *ImplementationModelSuite) newImplementation(frequency TestingFrequency) *Implementation {
	implementation, err := NewImplementation(
		id.ImplementationID(uuid.New()), id.ControlID(uuid.New()),
		AutomationManual, frequency, s.now)
	s.Require().NoError(err)
	return implementation
}

func (s *ImplementationModelSuite) TestCanTransition() {
	s.Run("maturity statuses move freely", func() {
		implementation := s.newImplementation(FrequencyMonthly)
		for _, to := range []ImplementationStatus{
			StatusPlanned, StatusPartiallyImplemented, StatusImplemented, StatusPartiallyImplemented,
		} {
			s.Require().NoError(implementation.CanTransition(to, false))
			implementation.ApplyTransition(to, s.now)
		}
	})

	s.Run("no-op transition is rejected", func() {
		implementation := s.newImplementation(FrequencyMonthly)
		err := implementation.CanTransition(StatusNotImplemented, false)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("entering not_applicable requires override", func() {
		implementation := s.newImplementation(FrequencyMonthly)
		err := implementation.CanTransition(StatusNotApplicable, false)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		s.NoError(implementation.CanTransition(StatusNotApplicable, true))
	})

	s.Run("leaving not_applicable requires override", func() {
		implementation := s.newImplementation(FrequencyMonthly)
		implementation.ApplyTransition(StatusNotApplicable, s.now)

		err := implementation.CanTransition(StatusImplemented, false)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		s.NoError(implementation.CanTransition(StatusImplemented, true))
	})

	s.Run("unknown status is rejected", func() {
		implementation := s.newImplementation(FrequencyMonthly)
		err := implementation.CanTransition(ImplementationStatus("done"), false)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ImplementationModelSuite) TestApplyTransition() {
	s.Run("entering implemented schedules the first test", func() {
		implementation := s.newImplementation(FrequencyQuarterly)
		implementation.ApplyTransition(StatusImplemented, s.now)

		s.Require().NotNil(implementation.NextTestDate)
		s.Equal(s.now.Add(91*24*time.Hour), *implementation.NextTestDate)
	})

	s.Run("an existing next test date is preserved", func() {
		implementation := s.newImplementation(FrequencyQuarterly)
		scheduled := s.now.Add(48 * time.Hour)
		implementation.NextTestDate = &scheduled

		implementation.ApplyTransition(StatusImplemented, s.now)
		s.Equal(scheduled, *implementation.NextTestDate)
	})

	s.Run("continuous controls are due immediately", func() {
		implementation := s.newImplementation(FrequencyContinuous)
		implementation.ApplyTransition(StatusImplemented, s.now)

		s.Require().NotNil(implementation.NextTestDate)
		s.Equal(s.now, *implementation.NextTestDate)
	})
}

func (s *ImplementationModelSuite) TestRecordTest() {
	implementation := s.newImplementation(FrequencyWeekly)
	tested := s.now.Add(2 * time.Hour)
	implementation.RecordTest(tested)

	s.Require().NotNil(implementation.LastTestDate)
	s.Equal(tested, *implementation.LastTestDate)
	s.Require().NotNil(implementation.NextTestDate)
	s.Equal(tested.Add(7*24*time.Hour), *implementation.NextTestDate)
}

// =============================================================================
// Finding Lifecycle Tests
// =============================================================================

type FindingModelSuite struct {
	suite.Suite
	now time.Time
}

func TestFindingModelSuite(t *testing.T) {
	suite.Run(t, new(FindingModelSuite))
}

func (s *FindingModelSuite) SetupTest() {
	s.now = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
}

func (s *FindingModelSuite) newFinding() *Finding {
	finding, err := NewFinding(id.FindingID(uuid.New()), id.ImplementationID(uuid.New()),
		"stale access review", SeverityHigh, s.now)
	s.Require().NoError(err)
	return finding
}

func (s *FindingModelSuite) TestCanAdvance() {
	s.Run("open finding may move to any other status", func() {
		for _, to := range []FindingStatus{
			FindingInProgress, FindingResolved, FindingRiskAccepted, FindingFalsePositive,
		} {
			s.NoError(s.newFinding().CanAdvance(to))
		}
	})

	s.Run("in-progress finding may only close", func() {
		finding := s.newFinding()
		finding.ApplyAdvance(FindingInProgress, s.now)

		err := finding.CanAdvance(FindingOpen)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		s.NoError(finding.CanAdvance(FindingResolved))
	})

	s.Run("closed finding is immutable", func() {
		finding := s.newFinding()
		finding.ApplyAdvance(FindingRiskAccepted, s.now)

		err := finding.CanAdvance(FindingOpen)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		err = finding.CanAdvance(FindingResolved)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}
