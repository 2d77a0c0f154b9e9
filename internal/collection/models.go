package collection

import (
	"time"

	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
)

// RunStatus is the outcome of one collection run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
	RunSkipped RunStatus = "skipped"
)

// Job is one recurring evidence-producing task. Source names a registered
// collector; Interval is the nominal cadence between runs.
type Job struct {
	ID                  id.JobID      `json:"id"`
	Name                string        `json:"name"`
	JobType             string        `json:"job_type"`
	SourceSystem        string        `json:"source_system"`
	Interval            time.Duration `json:"interval"`
	Timeout             time.Duration `json:"timeout"`
	Enabled             bool          `json:"enabled"`
	NextRun             time.Time     `json:"next_run"`
	LastRun             *time.Time    `json:"last_run,omitempty"`
	LastRunStatus       RunStatus     `json:"last_run_status,omitempty"`
	LastRunError        string        `json:"last_run_error,omitempty"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
}

func NewJob(jobID id.JobID, name, jobType, sourceSystem string, interval, timeout time.Duration, now time.Time) (*Job, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "job name is required")
	}
	if sourceSystem == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "source system is required")
	}
	if interval <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "interval must be positive")
	}
	if timeout <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "timeout must be positive")
	}
	return &Job{
		ID:           jobID,
		Name:         name,
		JobType:      jobType,
		SourceSystem: sourceSystem,
		Interval:     interval,
		Timeout:      timeout,
		Enabled:      true,
		NextRun:      now,
	}, nil
}

// Due reports whether the job should run now.
func (j *Job) Due(now time.Time) bool {
	return !j.NextRun.After(now)
}

// RetryPolicy shapes the failure backoff. Base is the delay after the first
// failed run; delays double per consecutive failure up to Cap. A zero value
// falls back to the job's own interval with a four-interval cap.
type RetryPolicy struct {
	Base time.Duration
	Cap  time.Duration
}

func (p RetryPolicy) delay(interval time.Duration, failures int) time.Duration {
	base, limit := p.Base, p.Cap
	if base <= 0 {
		base = interval
	}
	if limit <= 0 {
		limit = 4 * interval
	}
	delay := base
	for i := 1; i < failures && delay < limit; i++ {
		delay *= 2
	}
	if delay > limit {
		delay = limit
	}
	return delay
}

// RecordRun folds one outcome into the schedule. Successful runs return to
// the nominal cadence; failures back off per the retry policy, so a flapping
// source cannot pile retries onto itself and a healthy one is retried
// promptly.
func (j *Job) RecordRun(status RunStatus, runErr string, at time.Time, retry RetryPolicy) {
	j.LastRun = &at
	j.LastRunStatus = status
	j.LastRunError = runErr

	switch status {
	case RunSuccess, RunSkipped:
		j.ConsecutiveFailures = 0
		j.NextRun = at.Add(j.Interval)
	default:
		j.ConsecutiveFailures++
		j.NextRun = at.Add(retry.delay(j.Interval, j.ConsecutiveFailures))
	}
}
