package reporting

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"creaturegrc/internal/evidence"
	"creaturegrc/internal/library"
	"creaturegrc/internal/risk"
	"creaturegrc/internal/tracker"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
	"creaturegrc/pkg/platform/sentinel"
	txcontext "creaturegrc/pkg/platform/tx"
	"creaturegrc/pkg/requestcontext"
)

var tracer = otel.Tracer("creaturegrc/reporting")

// Aggregator joins the control library, the implementation tracker, and the
// evidence store into read-only compliance views. It writes nothing.
type Aggregator struct {
	library  library.Store
	tracker  tracker.Store
	evidence evidence.Store
	risks    risk.Store
	cache    *CoverageCache
	db       *sql.DB
	logger   *slog.Logger
}

// Option customizes the aggregator.
type Option func(*Aggregator)

// WithSnapshotReads makes each report read under one repeatable-read
// transaction, so a report never mixes states from before and after a
// concurrent write. Only meaningful with the postgres stores.
func WithSnapshotReads(db *sql.DB) Option {
	return func(a *Aggregator) { a.db = db }
}

func NewAggregator(lib library.Store, trk tracker.Store, ev evidence.Store, risks risk.Store, cache *CoverageCache, logger *slog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{library: lib, tracker: trk, evidence: ev, risks: risks, cache: cache, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// snapshot wraps fn in a read-only repeatable-read transaction when snapshot
// reads are configured; the stores join it through the context.
func (a *Aggregator) snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
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

// Coverage reports what fraction of a framework's controls is satisfied over
// the period. A control counts as satisfied only when its implementation is
// in implemented status and at least one approved evidence row overlaps the
// period.
func (a *Aggregator) Coverage(ctx context.Context, framework string, period id.Period) (*CoverageReport, error) {
	ctx, span := tracer.Start(ctx, "reporting.Coverage")
	defer span.End()
	span.SetAttributes(
		attribute.String("framework", framework),
		attribute.String("period", period.Key()),
	)

	report, _, hit, err := a.view(ctx, framework, period)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("cache_hit", hit))
	return report, nil
}

// Gaps lists every unsatisfied control with the dominant reason, in the
// library's control order so consecutive reports diff cleanly.
func (a *Aggregator) Gaps(ctx context.Context, framework string, period id.Period) ([]Gap, error) {
	ctx, span := tracer.Start(ctx, "reporting.Gaps")
	defer span.End()
	span.SetAttributes(attribute.String("framework", framework))

	_, gaps, hit, err := a.view(ctx, framework, period)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("cache_hit", hit))
	return gaps, nil
}

// view computes the coverage report and gap list in one pass over one
// snapshot, and caches them as one unit, so the served percentage and gap
// list always describe the same state: the gap list is empty exactly when
// coverage is 100.00.
func (a *Aggregator) view(ctx context.Context, framework string, period id.Period) (*CoverageReport, []Gap, bool, error) {
	if report, gaps, ok := a.cache.Get(ctx, framework, period); ok {
		return report, gaps, true, nil
	}

	var report *CoverageReport
	gaps := make([]Gap, 0)
	err := a.snapshot(ctx, func(ctx context.Context) error {
		controls, implementations, err := a.frameworkState(ctx, framework)
		if err != nil {
			return err
		}

		satisfied := 0
		for _, control := range controls {
			reason, err := a.classify(ctx, control, implementations, period)
			if err != nil {
				return err
			}
			if reason == "" {
				satisfied++
				continue
			}
			gaps = append(gaps, Gap{
				ControlCode: control.Control.Code,
				ControlName: control.Control.Name,
				DomainCode:  control.DomainCode,
				Reason:      reason,
			})
		}

		report = &CoverageReport{
			Framework:   framework,
			Period:      period,
			Total:       len(controls),
			Satisfied:   satisfied,
			Percentage:  CoveragePercentage(satisfied, len(controls)),
			GeneratedAt: requestcontext.Now(ctx),
		}
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	a.cache.Put(ctx, framework, period, report, gaps)
	return report, gaps, false, nil
}

// RiskRegister returns all risks with their current scores.
func (a *Aggregator) RiskRegister(ctx context.Context) ([]*risk.Risk, error) {
	risks, err := a.risks.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list risks")
	}
	return risks, nil
}

// frameworkState loads a framework's controls and their implementations in
// one pass.
func (a *Aggregator) frameworkState(ctx context.Context, framework string) ([]*library.ControlRef, map[id.ControlID]*tracker.Implementation, error) {
	fw, err := a.library.FindFrameworkByName(ctx, framework)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil, dErrors.New(dErrors.CodeNotFound, "framework not found: "+framework)
	}
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load framework")
	}

	controls, err := a.library.ListControls(ctx, fw.ID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list controls")
	}

	controlIDs := make([]id.ControlID, len(controls))
	for i, control := range controls {
		controlIDs[i] = control.Control.ID
	}
	implementations, err := a.tracker.ListByControls(ctx, controlIDs)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list implementations")
	}
	return controls, implementations, nil
}

// classify returns the gap reason for a control, or "" when satisfied.
func (a *Aggregator) classify(ctx context.Context, control *library.ControlRef,
	implementations map[id.ControlID]*tracker.Implementation, period id.Period) (GapReason, error) {

	implementation, ok := implementations[control.Control.ID]
	if !ok {
		return ReasonNoImplementation, nil
	}
	if implementation.Status != tracker.StatusImplemented {
		return ReasonNotImplementedStatus, nil
	}
	approved, err := a.evidence.ListApprovedOverlapping(ctx, implementation.ID, period)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to list evidence")
	}
	if len(approved) == 0 {
		return ReasonNoApprovedEvidence, nil
	}
	return "", nil
}
