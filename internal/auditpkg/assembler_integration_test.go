//go:build integration

package auditpkg_test

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"creaturegrc/internal/activity"
	"creaturegrc/internal/auditpkg"
	"creaturegrc/internal/evidence"
	"creaturegrc/internal/library"
	"creaturegrc/internal/risk"
	"creaturegrc/internal/tracker"
	id "creaturegrc/pkg/domain"
	"creaturegrc/pkg/testutil/containers"
)

// regressingEvidenceStore delegates to the postgres store but lands one
// direct autocommit write before the first evidence read: the first control
// regresses out of implemented status while the second control's pending
// evidence becomes approved. Without snapshot reads the assembler would see
// a mix of both states.
type regressingEvidenceStore struct {
	*evidence.PostgresStore
	db              *sql.DB
	regressImpl     id.ImplementationID
	approveEvidence id.EvidenceID
	once            sync.Once
	writeErr        error
}

func (s *regressingEvidenceStore) ListApprovedOverlapping(ctx context.Context, implementationID id.ImplementationID, period id.Period) ([]*evidence.Evidence, error) {
	s.once.Do(func() {
		if _, err := s.db.Exec(
			`UPDATE control_implementations SET status = $1 WHERE id = $2`,
			string(tracker.StatusPlanned), uuid.UUID(s.regressImpl)); err != nil {
			s.writeErr = err
			return
		}
		_, s.writeErr = s.db.Exec(
			`UPDATE evidence SET review_status = $1 WHERE id = $2`,
			string(evidence.ReviewApproved), uuid.UUID(s.approveEvidence))
	})
	return s.PostgresStore.ListApprovedOverlapping(ctx, implementationID, period)
}

// The assembler promises one consistent moment per package; only a real
// database can exercise the repeatable-read isolation behind that.
type AssemblerPostgresSuite struct {
	suite.Suite
	pg              *containers.PostgresContainer
	period          id.Period
	implemented     id.ImplementationID
	pendingEvidence id.EvidenceID
}

func TestAssemblerPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AssemblerPostgresSuite))
}

func (s *AssemblerPostgresSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T(), "../../migrations/schema.sql")
}

func (s *AssemblerPostgresSuite) SetupTest() {
	ctx := context.Background()
	for _, table := range []string{"evidence", "control_implementations", "controls", "control_domains", "compliance_frameworks"} {
		_, err := s.pg.DB.ExecContext(ctx, "DELETE FROM "+table)
		s.Require().NoError(err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	var err error
	s.period, err = id.NewPeriod(now.AddDate(0, -3, 0), now)
	s.Require().NoError(err)

	libraryStore := library.NewPostgres(s.pg.DB)
	framework, err := library.NewFramework(id.FrameworkID(uuid.New()), "SOC 2", "2017", "AICPA", now)
	s.Require().NoError(err)
	s.Require().NoError(libraryStore.CreateFramework(ctx, framework))
	domain := &library.ControlDomain{ID: id.ControlDomainID(uuid.New()), FrameworkID: framework.ID, Code: "CC6", Name: "Access"}
	s.Require().NoError(libraryStore.CreateDomain(ctx, domain))

	trackerStore := tracker.NewPostgres(s.pg.DB)
	evidenceStore := evidence.NewPostgres(s.pg.DB)

	// CC6.1: implemented with approved evidence. CC6.2: implemented with
	// evidence still pending review.
	for i, spec := range []struct {
		code   string
		name   string
		review evidence.ReviewStatus
	}{
		{"CC6.1", "Access provisioning", evidence.ReviewApproved},
		{"CC6.2", "Access review", evidence.ReviewPending},
	} {
		control := &library.Control{ID: id.ControlID(uuid.New()), DomainID: domain.ID,
			Code: spec.code, Name: spec.name, Type: library.ControlTypePreventive}
		s.Require().NoError(libraryStore.CreateControl(ctx, control))

		implementation, err := tracker.NewImplementation(id.ImplementationID(uuid.New()), control.ID,
			tracker.AutomationManual, tracker.FrequencyQuarterly, now)
		s.Require().NoError(err)
		implementation.Status = tracker.StatusImplemented
		s.Require().NoError(trackerStore.Create(ctx, implementation))

		payload := []byte(spec.code + " scan output")
		row := &evidence.Evidence{
			ID:               id.EvidenceID(uuid.New()),
			ImplementationID: implementation.ID,
			SourceSystem:     "wazuh",
			Type:             evidence.TypeScanResult,
			PayloadRef:       "s3://evidence/" + spec.code,
			ContentHash:      evidence.HashPayload(payload),
			CollectedAt:      now,
			Period:           s.period,
			ReviewStatus:     spec.review,
			CreatedAt:        now,
		}
		_, created, err := evidenceStore.CreateIfAbsent(ctx, row)
		s.Require().NoError(err)
		s.Require().True(created)

		if i == 0 {
			s.implemented = implementation.ID
		} else {
			s.pendingEvidence = row.ID
		}
	}
}

func (s *AssemblerPostgresSuite) TestConcurrentWriteDoesNotTearThePackage() {
	ctx := context.Background()
	store := &regressingEvidenceStore{
		PostgresStore:   evidence.NewPostgres(s.pg.DB),
		db:              s.pg.DB,
		regressImpl:     s.implemented,
		approveEvidence: s.pendingEvidence,
	}
	logger := slog.New(slog.DiscardHandler)
	publisher := activity.NewPublisher(activity.NewInMemoryStore(), logger)
	assembler := auditpkg.NewAssembler(library.NewPostgres(s.pg.DB), tracker.NewPostgres(s.pg.DB),
		store, risk.NewPostgres(s.pg.DB), publisher, logger,
		auditpkg.WithSnapshotReads(s.pg.DB))

	var buf bytes.Buffer
	manifest, err := assembler.Assemble(ctx, "acme", "SOC 2", s.period, &buf)
	s.Require().NoError(err)
	s.Require().NoError(store.writeErr)

	// The write landed mid-assembly: CC6.1 regressed and CC6.2's evidence
	// was approved. The package must reflect the state before the write,
	// where only CC6.1 is satisfied, never a blend of both states.
	s.Equal(2, manifest.Total)
	s.Equal(1, manifest.Satisfied)

	// The write itself committed and is visible to later reads.
	var status string
	s.Require().NoError(s.pg.DB.QueryRowContext(ctx,
		`SELECT status FROM control_implementations WHERE id = $1`,
		uuid.UUID(s.implemented)).Scan(&status))
	s.Equal(string(tracker.StatusPlanned), status)
}
