package collection

import (
	"context"
	"sort"
	"sync"
	"time"

	id "creaturegrc/pkg/domain"
	"creaturegrc/pkg/platform/sentinel"
)

// InMemoryStore keeps jobs in a map for tests and database-less deployments.
type InMemoryStore struct {
	mu   sync.RWMutex
	jobs map[id.JobID]*Job
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{jobs: make(map[id.JobID]*Job)}
}

func (s *InMemoryStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.jobs {
		if existing.Name == job.Name {
			return sentinel.ErrConflict
		}
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, jobID id.JobID) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyJob(job), nil
}

func (s *InMemoryStore) ListDue(_ context.Context, now time.Time) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Job
	for _, job := range s.jobs {
		if job.Enabled && job.Due(now) {
			out = append(out, copyJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, copyJob(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryStore) Update(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *InMemoryStore) SetEnabled(_ context.Context, jobID id.JobID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return sentinel.ErrNotFound
	}
	job.Enabled = enabled
	return nil
}

func copyJob(job *Job) *Job {
	cp := *job
	if job.LastRun != nil {
		t := *job.LastRun
		cp.LastRun = &t
	}
	return &cp
}
