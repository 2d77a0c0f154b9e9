package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"creaturegrc/internal/activity"
	"creaturegrc/internal/evidence"
	id "creaturegrc/pkg/domain"
	"creaturegrc/pkg/requestcontext"
)

// Submitter is the slice of the evidence service the runner needs.
type Submitter interface {
	Submit(ctx context.Context, req evidence.SubmitRequest) (*evidence.SubmitResult, error)
}

const defaultMaxParallel = 4

// Runner executes due collection jobs. Jobs run concurrently up to
// MaxParallel; one job's failure never affects another. The runner retries a
// flaky source a few times within the run, then folds persistent failure
// into the job's next-run backoff instead of retrying in-process forever.
type Runner struct {
	store       Store
	registry    *Registry
	submitter   Submitter
	publisher   *activity.Publisher
	metrics     *Metrics
	logger      *slog.Logger
	maxParallel int
	retry       RetryPolicy
}

// RunnerOption configures the Runner.
type RunnerOption func(*Runner)

// WithMaxParallel caps concurrent job executions.
func WithMaxParallel(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxParallel = n
		}
	}
}

// WithRetryPolicy sets the failure backoff applied when a run is recorded.
func WithRetryPolicy(base, limit time.Duration) RunnerOption {
	return func(r *Runner) {
		r.retry = RetryPolicy{Base: base, Cap: limit}
	}
}

func NewRunner(store Store, registry *Registry, submitter Submitter, publisher *activity.Publisher, metrics *Metrics, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:       store,
		registry:    registry,
		submitter:   submitter,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger,
		maxParallel: defaultMaxParallel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunDue executes every enabled job whose next run is at or before now.
// Returns the number of jobs executed.
func (r *Runner) RunDue(ctx context.Context, now time.Time) (int, error) {
	due, err := r.store.ListDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due jobs: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxParallel)
	for _, job := range due {
		g.Go(func() error {
			r.RunJob(gctx, job.ID, now)
			// Job outcomes are recorded on the job row, never bubbled up,
			// so one failure cannot cancel sibling jobs through the group.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return len(due), err
	}
	return len(due), nil
}

// RunJob executes one job immediately. The window covers one interval
// ending at now.
func (r *Runner) RunJob(ctx context.Context, jobID id.JobID, now time.Time) {
	job, err := r.store.Find(ctx, jobID)
	if err != nil {
		r.logger.ErrorContext(ctx, "collection job vanished before run", "job_id", jobID.String(), "error", err)
		return
	}
	if !job.Enabled {
		r.finishRun(ctx, job, RunSkipped, "job disabled", now)
		return
	}

	window, err := id.NewPeriod(now.Add(-job.Interval), now)
	if err != nil {
		r.finishRun(ctx, job, RunFailed, "invalid window: "+err.Error(), now)
		return
	}

	source, err := r.registry.Resolve(job.SourceSystem)
	if err != nil {
		r.finishRun(ctx, job, RunFailed, err.Error(), now)
		return
	}

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	payloads, produceErr := produceWithRetry(runCtx, source, window)
	if errors.Is(produceErr, context.DeadlineExceeded) {
		produceErr = fmt.Errorf("collection timed out after %s", job.Timeout)
	}

	submitted, failed := 0, 0
	for _, payload := range payloads {
		if _, err := r.submitter.Submit(runCtx, evidence.SubmitRequest{
			Framework:    payload.Framework,
			ControlCode:  payload.ControlCode,
			SourceSystem: job.SourceSystem,
			Type:         payload.Type,
			PayloadRef:   payload.PayloadRef,
			Payload:      payload.Payload,
			CollectedAt:  payload.CollectedAt,
			Period:       window,
		}); err != nil {
			failed++
			r.logger.WarnContext(ctx, "payload submission failed",
				"job", job.Name, "payload_ref", payload.PayloadRef, "error", err)
			continue
		}
		submitted++
	}

	if r.metrics != nil {
		r.metrics.RunDuration.Observe(time.Since(start).Seconds())
		r.metrics.Payloads.WithLabelValues("submitted").Add(float64(submitted))
		r.metrics.Payloads.WithLabelValues("failed").Add(float64(failed))
	}

	status, runErr := outcome(submitted, failed, produceErr)
	r.finishRun(ctx, job, status, runErr, now)
}

// outcome classifies a run: success when everything submitted cleanly,
// failed when nothing was stored, partial in between.
func outcome(submitted, failed int, produceErr error) (RunStatus, string) {
	switch {
	case produceErr == nil && failed == 0:
		return RunSuccess, ""
	case submitted == 0:
		if produceErr != nil {
			return RunFailed, produceErr.Error()
		}
		return RunFailed, "all payload submissions failed"
	default:
		if produceErr != nil {
			return RunPartial, produceErr.Error()
		}
		return RunPartial, fmt.Sprintf("%d of %d payload submissions failed", failed, submitted+failed)
	}
}

func produceWithRetry(ctx context.Context, source Source, window id.Period) ([]Payload, error) {
	var payloads []Payload
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	err := backoff.Retry(func() error {
		var err error
		payloads, err = source.ProduceEvidence(ctx, window)
		if err != nil && len(payloads) > 0 {
			// Partial result: keep what we got rather than retrying the
			// whole window.
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	return payloads, err
}

func (r *Runner) finishRun(ctx context.Context, job *Job, status RunStatus, runErr string, now time.Time) {
	job.RecordRun(status, runErr, now, r.retry)
	if err := r.store.Update(ctx, job); err != nil {
		r.logger.ErrorContext(ctx, "failed to record job run", "job", job.Name, "error", err)
		return
	}
	if r.metrics != nil {
		r.metrics.Runs.WithLabelValues(string(status), job.SourceSystem).Inc()
	}
	if err := r.publisher.Emit(ctx, activity.Event{
		Actor:     requestcontext.Actor(ctx),
		Action:    activity.ActionJobRunRecorded,
		Subject:   job.Name,
		Detail:    string(status),
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		r.logger.WarnContext(ctx, "failed to record run activity", "job", job.Name, "error", err)
	}

	level := slog.LevelInfo
	if status == RunFailed {
		level = slog.LevelWarn
	}
	r.logger.Log(ctx, level, "collection run recorded",
		"job", job.Name,
		"status", string(status),
		"next_run", job.NextRun,
		"error", runErr,
	)
}
