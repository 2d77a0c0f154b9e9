package auditpkg

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"creaturegrc/internal/activity"
	"creaturegrc/internal/evidence"
	"creaturegrc/internal/library"
	"creaturegrc/internal/reporting"
	"creaturegrc/internal/risk"
	"creaturegrc/internal/tracker"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
	"creaturegrc/pkg/platform/sentinel"
	txcontext "creaturegrc/pkg/platform/tx"
	"creaturegrc/pkg/requestcontext"
)

var tracer = otel.Tracer("creaturegrc/auditpkg")

// Archive member names.
const (
	fileControlMatrix    = "control_matrix.json"
	fileGapReport        = "gap_report.json"
	fileRiskRegister     = "risk_register.json"
	fileEvidenceManifest = "evidence_manifest.json"
	fileManifest         = "manifest.json"
)

// zipEpoch is the fixed modification time for every archive member, so the
// zip bytes depend only on content.
var zipEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Assembler builds audit packages: a zip of the control matrix, gap report,
// risk register snapshot, and evidence manifest, plus a hashed table of
// contents. All member files are rendered in memory before any byte reaches
// the writer, so a failed or cancelled assembly produces no partial output.
type Assembler struct {
	library   library.Store
	tracker   tracker.Store
	evidence  evidence.Store
	risks     risk.Store
	publisher *activity.Publisher
	db        *sql.DB
	logger    *slog.Logger
}

// Option customizes the assembler.
type Option func(*Assembler)

// WithSnapshotReads makes each assembly read under one repeatable-read
// transaction, so a package never mixes states from before and after a
// concurrent write. Only meaningful with the postgres stores.
func WithSnapshotReads(db *sql.DB) Option {
	return func(a *Assembler) { a.db = db }
}

func NewAssembler(lib library.Store, trk tracker.Store, ev evidence.Store, risks risk.Store, publisher *activity.Publisher, logger *slog.Logger, opts ...Option) *Assembler {
	a := &Assembler{library: lib, tracker: trk, evidence: ev, risks: risks, publisher: publisher, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// snapshot wraps fn in a read-only repeatable-read transaction when snapshot
// reads are configured; the stores join it through the context.
func (a *Assembler) snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	if a.db == nil {
		return fn(ctx)
	}
	tx, err := a.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin snapshot read")
	}
	defer tx.Rollback()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

type member struct {
	name string
	data []byte
}

// Assemble writes the package archive to w and returns its manifest.
func (a *Assembler) Assemble(ctx context.Context, client, framework string, period id.Period, w io.Writer) (*Manifest, error) {
	ctx, span := tracer.Start(ctx, "auditpkg.Assemble")
	defer span.End()
	span.SetAttributes(
		attribute.String("client", client),
		attribute.String("framework", framework),
		attribute.String("period", period.Key()),
	)

	if client == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "client is required")
	}
	if period.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "period is required")
	}

	// Every read happens under one snapshot so the matrix, gaps, and risk
	// register describe the same moment.
	var (
		matrix    []MatrixRow
		satisfied int
		register  []RiskSnapshot
	)
	err := a.snapshot(ctx, func(ctx context.Context) error {
		var err error
		matrix, satisfied, err = a.buildMatrix(ctx, framework, period)
		if err != nil {
			return err
		}
		register, err = a.snapshotRisks(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("controls", len(matrix)))

	gaps := make([]reporting.Gap, 0)
	refs := make([]EvidenceRef, 0)
	for _, row := range matrix {
		if row.Satisfied {
			refs = append(refs, row.EvidenceRefs...)
			continue
		}
		gaps = append(gaps, reporting.Gap{
			ControlCode: row.ControlCode,
			ControlName: row.ControlName,
			DomainCode:  row.DomainCode,
			Reason:      row.GapReason,
		})
	}

	members, err := renderMembers(matrix, gaps, register, refs)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{
		PackageName: PackageName(client, framework, period),
		Client:      client,
		Framework:   framework,
		Period:      period,
		Coverage:    reporting.CoveragePercentage(satisfied, len(matrix)),
		Satisfied:   satisfied,
		Total:       len(matrix),
		Files:       fileEntries(members),
		GeneratedAt: requestcontext.Now(ctx),
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode manifest")
	}
	members = append(members, member{name: fileManifest, data: manifestJSON})

	if err := writeArchive(w, members); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write archive")
	}

	if err := a.publisher.Emit(ctx, activity.Event{
		Actor:     requestcontext.Actor(ctx),
		Action:    activity.ActionPackageGenerated,
		Subject:   manifest.PackageName,
		Detail:    framework,
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		a.logger.WarnContext(ctx, "failed to record package activity", "package", manifest.PackageName, "error", err)
	}

	a.logger.InfoContext(ctx, "audit package assembled",
		"package", manifest.PackageName,
		"controls", manifest.Total,
		"satisfied", manifest.Satisfied,
		"evidence_refs", len(refs),
	)
	return manifest, nil
}

// buildMatrix walks the framework's controls in library order, classifying
// each and collecting approved evidence for the satisfied ones. Cancellation
// is honored between controls.
func (a *Assembler) buildMatrix(ctx context.Context, framework string, period id.Period) ([]MatrixRow, int, error) {
	fw, err := a.library.FindFrameworkByName(ctx, framework)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, 0, dErrors.New(dErrors.CodeNotFound, "framework not found: "+framework)
	}
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load framework")
	}
	controls, err := a.library.ListControls(ctx, fw.ID)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list controls")
	}
	controlIDs := make([]id.ControlID, len(controls))
	for i, control := range controls {
		controlIDs[i] = control.Control.ID
	}
	implementations, err := a.tracker.ListByControls(ctx, controlIDs)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list implementations")
	}

	matrix := make([]MatrixRow, 0, len(controls))
	satisfied := 0
	for _, control := range controls {
		if err := ctx.Err(); err != nil {
			return nil, 0, dErrors.Wrap(err, dErrors.CodeTimeout, "assembly cancelled")
		}
		row := MatrixRow{
			ControlCode: control.Control.Code,
			ControlName: control.Control.Name,
			DomainCode:  control.DomainCode,
		}
		implementation, ok := implementations[control.Control.ID]
		switch {
		case !ok:
			row.ImplementationStatus = string(tracker.StatusNotImplemented)
			row.GapReason = reporting.ReasonNoImplementation
		case implementation.Status != tracker.StatusImplemented:
			row.ImplementationStatus = string(implementation.Status)
			row.GapReason = reporting.ReasonNotImplementedStatus
		default:
			row.ImplementationStatus = string(implementation.Status)
			rows, err := a.evidence.ListApprovedOverlapping(ctx, implementation.ID, period)
			if err != nil {
				return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list evidence")
			}
			if len(rows) == 0 {
				row.GapReason = reporting.ReasonNoApprovedEvidence
			} else {
				row.Satisfied = true
				row.EvidenceRefs = evidenceRefs(rows)
				satisfied++
			}
		}
		matrix = append(matrix, row)
	}
	return matrix, satisfied, nil
}

func (a *Assembler) snapshotRisks(ctx context.Context) ([]RiskSnapshot, error) {
	risks, err := a.risks.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list risks")
	}
	register := make([]RiskSnapshot, 0, len(risks))
	for _, r := range risks {
		register = append(register, RiskSnapshot{
			RiskID:        r.ID.String(),
			Title:         r.Title,
			Likelihood:    string(r.Likelihood),
			Impact:        string(r.Impact),
			InherentScore: r.InherentScore,
			ResidualScore: r.ResidualScore,
		})
	}
	return register, nil
}

func evidenceRefs(rows []*evidence.Evidence) []EvidenceRef {
	refs := make([]EvidenceRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, EvidenceRef{
			EvidenceID:   row.ID.String(),
			SourceSystem: row.SourceSystem,
			Type:         string(row.Type),
			PayloadRef:   row.PayloadRef,
			ContentHash:  row.ContentHash,
			Period:       row.Period,
		})
	}
	return refs
}

// renderMembers serializes the content files. The manifest is rendered later
// because it hashes these.
func renderMembers(matrix []MatrixRow, gaps []reporting.Gap, register []RiskSnapshot, refs []EvidenceRef) ([]member, error) {
	members := make([]member, 0, 5)
	for _, part := range []struct {
		name string
		v    any
	}{
		{fileControlMatrix, matrix},
		{fileGapReport, gaps},
		{fileRiskRegister, register},
		{fileEvidenceManifest, refs},
	} {
		data, err := json.MarshalIndent(part.v, "", "  ")
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode "+part.name)
		}
		members = append(members, member{name: part.name, data: data})
	}
	return members, nil
}

func fileEntries(members []member) []FileEntry {
	entries := make([]FileEntry, 0, len(members))
	for _, m := range members {
		sum := sha256.Sum256(m.data)
		entries = append(entries, FileEntry{
			Name:   m.name,
			SHA256: hex.EncodeToString(sum[:]),
			Size:   len(m.data),
		})
	}
	return entries
}

func writeArchive(w io.Writer, members []member) error {
	zw := zip.NewWriter(w)
	for _, m := range members {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     m.name,
			Method:   zip.Deflate,
			Modified: zipEpoch,
		})
		if err != nil {
			return err
		}
		if _, err := fw.Write(m.data); err != nil {
			return err
		}
	}
	return zw.Close()
}
