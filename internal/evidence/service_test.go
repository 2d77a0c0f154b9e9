package evidence

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"creaturegrc/internal/activity"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
)

type stubLookup struct {
	implementationID id.ImplementationID
	err              error
}

func (l stubLookup) ByControlCode(context.Context, string, string) (id.ImplementationID, error) {
	return l.implementationID, l.err
}

// =============================================================================
// Evidence Service Test Suite
// =============================================================================
// Justification for unit tests: idempotent submission is the contract every
// collector relies on; the dedup key behavior must hold regardless of store
// backend, and the in-memory store exercises it without a database.

type EvidenceServiceSuite struct {
	suite.Suite
	store            *InMemoryStore
	events           *activity.InMemoryStore
	service          *Service
	implementationID id.ImplementationID
	period           id.Period
}

func TestEvidenceServiceSuite(t *testing.T) {
	suite.Run(t, new(EvidenceServiceSuite))
}

func (s *EvidenceServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.events = activity.NewInMemoryStore()
	logger := slog.New(slog.DiscardHandler)
	s.implementationID = id.ImplementationID(uuid.New())
	s.service = NewService(s.store, stubLookup{implementationID: s.implementationID},
		activity.NewPublisher(s.events, logger), nil, logger)

	var err error
	s.period, err = id.NewPeriod(
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
}

func (s *EvidenceServiceSuite) submitRequest(payload string) SubmitRequest {
	return SubmitRequest{
		ImplementationID: s.implementationID,
		SourceSystem:     "keycloak",
		Type:             TypeLog,
		PayloadRef:       "s3://evidence/keycloak/q2.json",
		Payload:          []byte(payload),
		Period:           s.period,
	}
}

// =============================================================================
// Submit Tests
// =============================================================================

func (s *EvidenceServiceSuite) TestSubmit() {
	ctx := context.Background()

	s.Run("first submission creates a pending row", func() {
		result, err := s.service.Submit(ctx, s.submitRequest(`{"events":42}`))
		s.Require().NoError(err)
		s.True(result.Created)

		stored, err := s.store.Find(ctx, result.EvidenceID)
		s.Require().NoError(err)
		s.Equal(ReviewPending, stored.ReviewStatus)
		s.Equal(HashPayload([]byte(`{"events":42}`)), stored.ContentHash)
	})

	s.Run("identical resubmission is a no-op returning the same id", func() {
		first, err := s.service.Submit(ctx, s.submitRequest(`{"events":7}`))
		s.Require().NoError(err)
		s.True(first.Created)

		second, err := s.service.Submit(ctx, s.submitRequest(`{"events":7}`))
		s.Require().NoError(err)
		s.False(second.Created)
		s.Equal(first.EvidenceID, second.EvidenceID)

		rows, err := s.store.ListByImplementation(ctx, s.implementationID)
		s.Require().NoError(err)
		s.Len(rows, 2) // the row from the previous subtest plus this one
	})

	s.Run("same payload in a different period is a new row", func() {
		req := s.submitRequest(`{"events":7}`)
		later, err := id.NewPeriod(
			time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC))
		s.Require().NoError(err)
		req.Period = later

		result, err := s.service.Submit(ctx, req)
		s.Require().NoError(err)
		s.True(result.Created)
	})

	s.Run("hash-only submission is accepted", func() {
		req := s.submitRequest("")
		req.Payload = nil
		req.PayloadHash = "AB12CD" // normalized to lowercase
		result, err := s.service.Submit(ctx, req)
		s.Require().NoError(err)
		s.True(result.Created)

		stored, err := s.store.Find(ctx, result.EvidenceID)
		s.Require().NoError(err)
		s.Equal("ab12cd", stored.ContentHash)
	})

	s.Run("mismatched supplied hash is rejected", func() {
		req := s.submitRequest(`{"events":1}`)
		req.PayloadHash = HashPayload([]byte("something else"))
		_, err := s.service.Submit(ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("matching supplied hash is accepted", func() {
		req := s.submitRequest(`{"events":2}`)
		req.PayloadHash = HashPayload([]byte(`{"events":2}`))
		_, err := s.service.Submit(ctx, req)
		s.NoError(err)
	})

	s.Run("control code addressing resolves through the lookup", func() {
		req := s.submitRequest(`{"events":3}`)
		req.ImplementationID = id.ImplementationID{}
		req.Framework = "SOC 2"
		req.ControlCode = "CC6.1"
		result, err := s.service.Submit(ctx, req)
		s.Require().NoError(err)
		s.True(result.Created)
	})

	s.Run("missing addressing is rejected", func() {
		req := s.submitRequest(`{"events":4}`)
		req.ImplementationID = id.ImplementationID{}
		_, err := s.service.Submit(ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing payload and hash is rejected", func() {
		req := s.submitRequest("")
		req.Payload = nil
		_, err := s.service.Submit(ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("only created submissions emit activity", func() {
		before, err := s.events.ListRecent(ctx, 100)
		s.Require().NoError(err)

		_, err = s.service.Submit(ctx, s.submitRequest(`{"events":7}`)) // duplicate
		s.Require().NoError(err)

		after, err := s.events.ListRecent(ctx, 100)
		s.Require().NoError(err)
		s.Len(after, len(before))
	})
}

// =============================================================================
// Review Tests
// =============================================================================

func (s *EvidenceServiceSuite) TestReview() {
	ctx := context.Background()
	result, err := s.service.Submit(ctx, s.submitRequest(`{"review":"me"}`))
	s.Require().NoError(err)

	s.Run("pending evidence accepts a review", func() {
		reviewed, err := s.service.Review(ctx, result.EvidenceID, ReviewNeedsClarification, "which realm?")
		s.Require().NoError(err)
		s.Equal(ReviewNeedsClarification, reviewed.ReviewStatus)
		s.NotNil(reviewed.ReviewedAt)
	})

	s.Run("needs_clarification accepts a second review", func() {
		reviewed, err := s.service.Review(ctx, result.EvidenceID, ReviewApproved, "realm confirmed")
		s.Require().NoError(err)
		s.Equal(ReviewApproved, reviewed.ReviewStatus)
	})

	s.Run("final review status is immutable", func() {
		_, err := s.service.Review(ctx, result.EvidenceID, ReviewRejected, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("reviewing back to pending is rejected", func() {
		fresh, err := s.service.Submit(ctx, s.submitRequest(`{"another":"row"}`))
		s.Require().NoError(err)
		_, err = s.service.Review(ctx, fresh.EvidenceID, ReviewPending, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown evidence returns not found", func() {
		_, err := s.service.Review(ctx, id.EvidenceID(uuid.New()), ReviewApproved, "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
