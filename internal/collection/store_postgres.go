package collection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "creaturegrc/pkg/domain"
	"creaturegrc/pkg/platform/pgerr"
	"creaturegrc/pkg/platform/sentinel"
	txcontext "creaturegrc/pkg/platform/tx"
)

// PostgresStore persists collection jobs. Intervals and timeouts are stored
// as bigint nanoseconds.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const jobColumns = `id, name, job_type, source_system, interval_ns, timeout_ns, enabled,
	next_run, last_run, last_run_status, last_run_error, consecutive_failures`

func (s *PostgresStore) Create(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO collection_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(job.ID), job.Name, job.JobType, job.SourceSystem,
		int64(job.Interval), int64(job.Timeout), job.Enabled,
		job.NextRun, job.LastRun, nullableStatus(job.LastRunStatus),
		job.LastRunError, job.ConsecutiveFailures)
	if pgerr.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, jobID id.JobID) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM collection_jobs WHERE id = $1`
	return scanJob(s.querier(ctx).QueryRowContext(ctx, query, uuid.UUID(jobID)))
}

func (s *PostgresStore) ListDue(ctx context.Context, now time.Time) ([]*Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM collection_jobs
		WHERE enabled AND next_run <= $1
		ORDER BY name
	`
	return s.queryJobs(ctx, query, now)
}

func (s *PostgresStore) List(ctx context.Context) ([]*Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM collection_jobs ORDER BY name`)
}

func (s *PostgresStore) Update(ctx context.Context, job *Job) error {
	query := `
		UPDATE collection_jobs
		SET next_run = $2, last_run = $3, last_run_status = $4, last_run_error = $5,
		    consecutive_failures = $6, enabled = $7
		WHERE id = $1
	`
	res, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(job.ID), job.NextRun, job.LastRun, nullableStatus(job.LastRunStatus),
		job.LastRunError, job.ConsecutiveFailures, job.Enabled)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetEnabled(ctx context.Context, jobID id.JobID, enabled bool) error {
	res, err := s.querier(ctx).ExecContext(ctx,
		`UPDATE collection_jobs SET enabled = $2 WHERE id = $1`, uuid.UUID(jobID), enabled)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set enabled: rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func nullableStatus(status RunStatus) any {
	if status == "" {
		return nil
	}
	return string(status)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var jobID uuid.UUID
	var intervalNs, timeoutNs int64
	var status sql.NullString
	err := row.Scan(&jobID, &job.Name, &job.JobType, &job.SourceSystem,
		&intervalNs, &timeoutNs, &job.Enabled, &job.NextRun, &job.LastRun,
		&status, &job.LastRunError, &job.ConsecutiveFailures)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	job.ID = id.JobID(jobID)
	job.Interval = time.Duration(intervalNs)
	job.Timeout = time.Duration(timeoutNs)
	if status.Valid {
		job.LastRunStatus = RunStatus(status.String)
	}
	return &job, nil
}
