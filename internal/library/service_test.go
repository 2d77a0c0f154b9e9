package library

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"creaturegrc/internal/activity"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
)

const sampleCatalog = `
framework:
  name: SOC 2
  version: "2017"
  source: AICPA
domains:
  - code: CC6
    name: Logical and Physical Access
    controls:
      - code: CC6.1
        name: Access provisioning
        description: Logical access is provisioned through approved requests.
        type: preventive
      - code: CC6.2
        name: Access review
        description: Access rights are reviewed quarterly.
        type: detective
  - code: CC7
    name: System Operations
    controls:
      - code: CC7.1
        name: Vulnerability monitoring
        type: detective
`

// =============================================================================
// Library Service Test Suite
// =============================================================================
// Justification for unit tests: the importer's idempotency (re-import updates
// in place, never duplicates) and per-row validation cannot be exercised
// meaningfully through handler tests.

type LibraryServiceSuite struct {
	suite.Suite
	store   *InMemoryStore
	events  *activity.InMemoryStore
	service *Service
}

func TestLibraryServiceSuite(t *testing.T) {
	suite.Run(t, new(LibraryServiceSuite))
}

func (s *LibraryServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.events = activity.NewInMemoryStore()
	logger := slog.New(slog.DiscardHandler)
	s.service = NewService(s.store, activity.NewPublisher(s.events, logger), logger)
}

// =============================================================================
// ImportCatalog Tests
// =============================================================================

func (s *LibraryServiceSuite) TestImportCatalog() {
	ctx := context.Background()

	s.Run("first import creates framework, domains and controls", func() {
		summary, err := s.service.ImportCatalog(ctx, strings.NewReader(sampleCatalog))
		s.Require().NoError(err)
		s.True(summary.FrameworkCreated)
		s.Equal(2, summary.DomainsCreated)
		s.Equal(3, summary.ControlsCreated)
		s.Equal(0, summary.ControlsUpdated)

		events, err := s.events.ListRecent(ctx, 10)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(activity.ActionCatalogImported, events[0].Action)
		s.Equal("SOC 2", events[0].Subject)
	})

	s.Run("re-import is idempotent", func() {
		summary, err := s.service.ImportCatalog(ctx, strings.NewReader(sampleCatalog))
		s.Require().NoError(err)
		s.False(summary.FrameworkCreated)
		s.Equal(0, summary.DomainsCreated)
		s.Equal(0, summary.ControlsCreated)
		s.Equal(3, summary.ControlsUpdated)

		framework, err := s.store.FindFrameworkByName(ctx, "SOC 2")
		s.Require().NoError(err)
		controls, err := s.store.ListControls(ctx, framework.ID)
		s.Require().NoError(err)
		s.Len(controls, 3)
	})

	s.Run("re-import picks up revised control text", func() {
		revised := strings.Replace(sampleCatalog,
			"Access rights are reviewed quarterly.",
			"Access rights are reviewed monthly.", 1)
		_, err := s.service.ImportCatalog(ctx, strings.NewReader(revised))
		s.Require().NoError(err)

		framework, err := s.store.FindFrameworkByName(ctx, "SOC 2")
		s.Require().NoError(err)
		ref, err := s.store.FindControlByCode(ctx, framework.ID, "CC6.2")
		s.Require().NoError(err)
		s.Equal("Access rights are reviewed monthly.", ref.Control.Description)
	})

	s.Run("unknown control type is rejected", func() {
		bad := strings.Replace(sampleCatalog, "type: preventive", "type: proactive", 1)
		_, err := s.service.ImportCatalog(ctx, strings.NewReader(bad))
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "CC6.1")
	})

	s.Run("missing framework name is rejected", func() {
		_, err := s.service.ImportCatalog(ctx, strings.NewReader("framework:\n  version: \"1\"\n"))
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("malformed yaml is rejected", func() {
		_, err := s.service.ImportCatalog(ctx, strings.NewReader("framework: [nope"))
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// ResolveControl Tests
// =============================================================================

func (s *LibraryServiceSuite) TestResolveControl() {
	ctx := context.Background()
	_, err := s.service.ImportCatalog(ctx, strings.NewReader(sampleCatalog))
	s.Require().NoError(err)

	s.Run("resolves control within named framework", func() {
		ref, err := s.service.ResolveControl(ctx, "SOC 2", "CC7.1")
		s.Require().NoError(err)
		s.Equal("CC7.1", ref.Control.Code)
		s.Equal("CC7", ref.DomainCode)
		s.Equal("SOC 2", ref.FrameworkName)
	})

	s.Run("unknown framework returns not found", func() {
		_, err := s.service.ResolveControl(ctx, "ISO 27001", "CC7.1")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown code returns not found", func() {
		_, err := s.service.ResolveControl(ctx, "SOC 2", "CC9.9")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// DeclareEquivalence Tests
// =============================================================================

func (s *LibraryServiceSuite) TestDeclareEquivalence() {
	ctx := context.Background()
	_, err := s.service.ImportCatalog(ctx, strings.NewReader(sampleCatalog))
	s.Require().NoError(err)

	framework, err := s.store.FindFrameworkByName(ctx, "SOC 2")
	s.Require().NoError(err)
	access, err := s.store.FindControlByCode(ctx, framework.ID, "CC6.1")
	s.Require().NoError(err)
	review, err := s.store.FindControlByCode(ctx, framework.ID, "CC6.2")
	s.Require().NoError(err)

	s.Run("records a pair once regardless of order", func() {
		err := s.service.DeclareEquivalence(ctx, access.Control.ID, review.Control.ID, "same requirement")
		s.Require().NoError(err)

		err = s.service.DeclareEquivalence(ctx, review.Control.ID, access.Control.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		peers, err := s.store.ListEquivalents(ctx, review.Control.ID)
		s.Require().NoError(err)
		s.Len(peers, 1)
	})

	s.Run("self equivalence is rejected", func() {
		err := s.service.DeclareEquivalence(ctx, access.Control.ID, access.Control.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown control is rejected", func() {
		err := s.service.DeclareEquivalence(ctx, id.ControlID(uuid.New()), access.Control.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
