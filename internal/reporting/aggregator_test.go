package reporting

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"creaturegrc/internal/activity"
	"creaturegrc/internal/evidence"
	"creaturegrc/internal/library"
	"creaturegrc/internal/risk"
	"creaturegrc/internal/tracker"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
	"creaturegrc/pkg/requestcontext"
)

const reportCatalog = `
framework:
  name: F
  version: "1"
  source: internal
domains:
  - code: D1
    name: Access
    controls:
      - code: C1
        name: Access provisioning
        type: preventive
      - code: C2
        name: Access review
        type: detective
`

// =============================================================================
// Aggregator Test Suite
// =============================================================================
// Justification for unit tests: coverage and gap classification join three
// stores; the rounding, reason precedence, and period-overlap rules need
// direct assertion against known fixtures.

type AggregatorSuite struct {
	suite.Suite
	libraryStore  *library.InMemoryStore
	trackerStore  *tracker.InMemoryStore
	evidenceStore *evidence.InMemoryStore
	riskStore     *risk.InMemoryStore
	aggregator    *Aggregator
	period        id.Period
	controls      map[string]id.ControlID
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorSuite))
}

func (s *AggregatorSuite) SetupTest() {
	s.libraryStore = library.NewInMemoryStore()
	s.trackerStore = tracker.NewInMemoryStore()
	s.evidenceStore = evidence.NewInMemoryStore()
	s.riskStore = risk.NewInMemoryStore()
	logger := slog.New(slog.DiscardHandler)
	// No cache in unit tests; nil is the documented bypass.
	s.aggregator = NewAggregator(s.libraryStore, s.trackerStore, s.evidenceStore, s.riskStore, nil, logger)

	libraryService := library.NewService(s.libraryStore,
		activity.NewPublisher(activity.NewInMemoryStore(), logger), logger)
	_, err := libraryService.ImportCatalog(context.Background(), strings.NewReader(reportCatalog))
	s.Require().NoError(err)

	framework, err := s.libraryStore.FindFrameworkByName(context.Background(), "F")
	s.Require().NoError(err)
	refs, err := s.libraryStore.ListControls(context.Background(), framework.ID)
	s.Require().NoError(err)
	s.controls = make(map[string]id.ControlID, len(refs))
	for _, ref := range refs {
		s.controls[ref.Control.Code] = ref.Control.ID
	}

	start := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	s.period, err = id.NewPeriod(start, start.AddDate(0, 3, 0))
	s.Require().NoError(err)
}

// implement creates an implementation for a control code in the given status.
func (s *AggregatorSuite) implement(code string, status tracker.ImplementationStatus) *tracker.Implementation {
	implementation, err := tracker.NewImplementation(
		id.ImplementationID(uuid.New()), s.controls[code],
		tracker.AutomationManual, tracker.FrequencyQuarterly, time.Now().UTC())
	s.Require().NoError(err)
	implementation.Status = status
	s.Require().NoError(s.trackerStore.Create(context.Background(), implementation))
	return implementation
}

// approve stores one approved evidence row covering the given period.
func (s *AggregatorSuite) approve(implementationID id.ImplementationID, period id.Period) {
	payload := []byte(uuid.NewString())
	_, created, err := s.evidenceStore.CreateIfAbsent(context.Background(), &evidence.Evidence{
		ID:               id.EvidenceID(uuid.New()),
		ImplementationID: implementationID,
		SourceSystem:     "wazuh",
		Type:             evidence.TypeScanResult,
		PayloadRef:       "s3://evidence/" + uuid.NewString(),
		ContentHash:      evidence.HashPayload(payload),
		CollectedAt:      period.Start,
		Period:           period,
		ReviewStatus:     evidence.ReviewApproved,
		CreatedAt:        period.Start,
	})
	s.Require().NoError(err)
	s.Require().True(created)
}

// =============================================================================
// Coverage Tests
// =============================================================================

func (s *AggregatorSuite) TestHalfCovered() {
	implementation := s.implement("C1", tracker.StatusImplemented)
	s.approve(implementation.ID, s.period)
	// C2 has no implementation at all.

	report, err := s.aggregator.Coverage(context.Background(), "F", s.period)
	s.Require().NoError(err)
	s.Equal(2, report.Total)
	s.Equal(1, report.Satisfied)
	s.Equal(50.00, report.Percentage)

	gaps, err := s.aggregator.Gaps(context.Background(), "F", s.period)
	s.Require().NoError(err)
	s.Require().Len(gaps, 1)
	s.Equal("C2", gaps[0].ControlCode)
	s.Equal(ReasonNoImplementation, gaps[0].Reason)
}

func (s *AggregatorSuite) TestFullCoverageMeansNoGaps() {
	for _, code := range []string{"C1", "C2"} {
		implementation := s.implement(code, tracker.StatusImplemented)
		s.approve(implementation.ID, s.period)
	}

	report, err := s.aggregator.Coverage(context.Background(), "F", s.period)
	s.Require().NoError(err)
	s.Equal(100.00, report.Percentage)

	gaps, err := s.aggregator.Gaps(context.Background(), "F", s.period)
	s.Require().NoError(err)
	s.Empty(gaps)
}

func (s *AggregatorSuite) TestNothingImplemented() {
	report, err := s.aggregator.Coverage(context.Background(), "F", s.period)
	s.Require().NoError(err)
	s.Equal(0.00, report.Percentage)
	s.Equal(0, report.Satisfied)

	gaps, err := s.aggregator.Gaps(context.Background(), "F", s.period)
	s.Require().NoError(err)
	s.Len(gaps, 2)
}

func (s *AggregatorSuite) TestUnknownFramework() {
	_, err := s.aggregator.Coverage(context.Background(), "HIPAA", s.period)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// =============================================================================
// Gap Reason Tests
// =============================================================================

func (s *AggregatorSuite) TestReasonPrecedence() {
	// C1: implementation exists but is still planned.
	s.implement("C1", tracker.StatusPlanned)
	// C2: implemented but no approved evidence in period.
	s.implement("C2", tracker.StatusImplemented)

	gaps, err := s.aggregator.Gaps(context.Background(), "F", s.period)
	s.Require().NoError(err)
	s.Require().Len(gaps, 2)
	s.Equal("C1", gaps[0].ControlCode)
	s.Equal(ReasonNotImplementedStatus, gaps[0].Reason)
	s.Equal("C2", gaps[1].ControlCode)
	s.Equal(ReasonNoApprovedEvidence, gaps[1].Reason)
}

func (s *AggregatorSuite) TestEvidenceOutsidePeriodDoesNotSatisfy() {
	implementation := s.implement("C1", tracker.StatusImplemented)
	s.implement("C2", tracker.StatusImplemented)

	before, err := id.NewPeriod(
		s.period.Start.AddDate(-1, 0, 0), s.period.Start.AddDate(0, -1, 0))
	s.Require().NoError(err)
	s.approve(implementation.ID, before)

	gaps, err := s.aggregator.Gaps(context.Background(), "F", s.period)
	s.Require().NoError(err)
	s.Require().Len(gaps, 2)
	s.Equal(ReasonNoApprovedEvidence, gaps[0].Reason)
}

func (s *AggregatorSuite) TestGapOrderIsStableAcrossRuns() {
	s.implement("C2", tracker.StatusPartiallyImplemented)

	first, err := s.aggregator.Gaps(context.Background(), "F", s.period)
	s.Require().NoError(err)
	second, err := s.aggregator.Gaps(context.Background(), "F", s.period)
	s.Require().NoError(err)
	s.Equal(first, second)
}

// =============================================================================
// Rounding Tests
// =============================================================================

func (s *AggregatorSuite) TestPercentageRoundsToTwoDecimals() {
	s.Equal(33.33, CoveragePercentage(1, 3))
	s.Equal(66.67, CoveragePercentage(2, 3))
	s.Equal(0.00, CoveragePercentage(0, 0))
	s.Equal(100.00, CoveragePercentage(7, 7))
}

// =============================================================================
// Risk Register Tests
// =============================================================================

func (s *AggregatorSuite) TestRiskRegisterListsAllRisks() {
	now := time.Now().UTC()
	for _, title := range []string{"Credential stuffing", "Unpatched hosts"} {
		r, err := risk.NewRisk(id.RiskID(uuid.New()), title, risk.RatingHigh, risk.RatingMedium, now)
		s.Require().NoError(err)
		s.Require().NoError(s.riskStore.CreateRisk(context.Background(), r))
	}

	risks, err := s.aggregator.RiskRegister(context.Background())
	s.Require().NoError(err)
	s.Len(risks, 2)
}

// =============================================================================
// Cache Consistency Tests
// =============================================================================

// mapBackend is an in-process stand-in for redis in cache tests.
type mapBackend struct {
	values map[string]string
}

func (m *mapBackend) Get(_ context.Context, key string) *redis.StringCmd {
	value, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (m *mapBackend) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	m.values[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

// A cached percentage must never pair with a gap list computed from newer
// data: the gap list is empty exactly when coverage is 100.00, even while
// the cache entry is live.
func (s *AggregatorSuite) TestCachedCoverageAndGapsDescribeTheSameState() {
	logger := slog.New(slog.DiscardHandler)
	cache := NewCoverageCache(&mapBackend{values: map[string]string{}}, time.Minute, logger)
	aggregator := NewAggregator(s.libraryStore, s.trackerStore, s.evidenceStore, s.riskStore, cache, logger)

	implementation := s.implement("C1", tracker.StatusImplemented)
	s.approve(implementation.ID, s.period)

	ctx := requestcontext.WithTime(context.Background(),
		time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC))
	report, err := aggregator.Coverage(ctx, "F", s.period)
	s.Require().NoError(err)
	s.Equal(50.00, report.Percentage)

	// Close the remaining gap. The cache entry is still live, so both views
	// keep serving the earlier state together.
	implementation = s.implement("C2", tracker.StatusImplemented)
	s.approve(implementation.ID, s.period)

	cached, err := aggregator.Coverage(context.Background(), "F", s.period)
	s.Require().NoError(err)
	s.Equal(50.00, cached.Percentage)
	s.True(report.GeneratedAt.Equal(cached.GeneratedAt))

	gaps, err := aggregator.Gaps(context.Background(), "F", s.period)
	s.Require().NoError(err)
	s.Require().Len(gaps, 1)
	s.Equal("C2", gaps[0].ControlCode)

	// An uncached aggregator sees the new state in both views at once.
	fresh := NewAggregator(s.libraryStore, s.trackerStore, s.evidenceStore, s.riskStore, nil, logger)
	freshReport, err := fresh.Coverage(context.Background(), "F", s.period)
	s.Require().NoError(err)
	s.Equal(100.00, freshReport.Percentage)
	freshGaps, err := fresh.Gaps(context.Background(), "F", s.period)
	s.Require().NoError(err)
	s.Empty(freshGaps)
}
