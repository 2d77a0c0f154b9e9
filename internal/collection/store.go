package collection

import (
	"context"
	"time"

	id "creaturegrc/pkg/domain"
)

// Store persists collection jobs.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Find(ctx context.Context, jobID id.JobID) (*Job, error)
	ListDue(ctx context.Context, now time.Time) ([]*Job, error)
	List(ctx context.Context) ([]*Job, error)
	Update(ctx context.Context, job *Job) error
	SetEnabled(ctx context.Context, jobID id.JobID, enabled bool) error
}
