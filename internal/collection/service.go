package collection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
	"creaturegrc/pkg/platform/sentinel"
	"creaturegrc/pkg/requestcontext"
)

// Service manages the collection job inventory.
type Service struct {
	store          Store
	registry       *Registry
	logger         *slog.Logger
	defaultTimeout time.Duration
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithDefaultTimeout sets the per-run timeout applied when a create request
// omits one.
func WithDefaultTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.defaultTimeout = d
		}
	}
}

func NewService(store Store, registry *Registry, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{store: store, registry: registry, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob registers a recurring collection task. The source system must be
// present in the registry so a misconfigured job fails at creation, not at
// its first run. A zero timeout takes the configured default.
func (s *Service) CreateJob(ctx context.Context, name, jobType, sourceSystem string, interval, timeout time.Duration) (*Job, error) {
	if _, err := s.registry.Resolve(sourceSystem); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	job, err := NewJob(id.JobID(uuid.New()), name, jobType, sourceSystem, interval, timeout, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, job); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "job name already in use")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create job")
	}
	s.logger.Info("collection job created", "job", name, "source_system", sourceSystem, "interval", interval)
	return job, nil
}

// SetEnabled turns a job on or off. Disabled jobs are skipped, never run.
func (s *Service) SetEnabled(ctx context.Context, jobID id.JobID, enabled bool) error {
	err := s.store.SetEnabled(ctx, jobID, enabled)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "job not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update job")
	}
	return nil
}

// List returns all jobs ordered by name.
func (s *Service) List(ctx context.Context) ([]*Job, error) {
	jobs, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list jobs")
	}
	return jobs, nil
}
