package evidence

import (
	"context"
	"sort"
	"sync"

	id "creaturegrc/pkg/domain"
	"creaturegrc/pkg/platform/sentinel"
)

type dedupKey struct {
	implementationID id.ImplementationID
	contentHash      string
	period           string
}

// InMemoryStore backs tests and database-less deployments. The single mutex
// makes CreateIfAbsent an atomic compare-and-insert.
type InMemoryStore struct {
	mu       sync.RWMutex
	evidence map[id.EvidenceID]*Evidence
	byKey    map[dedupKey]id.EvidenceID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		evidence: make(map[id.EvidenceID]*Evidence),
		byKey:    make(map[dedupKey]id.EvidenceID),
	}
}

func keyOf(e *Evidence) dedupKey {
	return dedupKey{e.ImplementationID, e.ContentHash, e.Period.Key()}
}

func (s *InMemoryStore) CreateIfAbsent(_ context.Context, candidate *Evidence) (*Evidence, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byKey[keyOf(candidate)]; ok {
		return copyEvidence(s.evidence[existingID]), false, nil
	}
	s.evidence[candidate.ID] = copyEvidence(candidate)
	s.byKey[keyOf(candidate)] = candidate.ID
	return copyEvidence(candidate), true, nil
}

func (s *InMemoryStore) Find(_ context.Context, evidenceID id.EvidenceID) (*Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.evidence[evidenceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyEvidence(e), nil
}

func (s *InMemoryStore) ListByImplementation(_ context.Context, implementationID id.ImplementationID) ([]*Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Evidence
	for _, e := range s.evidence {
		if e.ImplementationID == implementationID {
			out = append(out, copyEvidence(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentHash < out[j].ContentHash })
	return out, nil
}

func (s *InMemoryStore) ListApprovedOverlapping(_ context.Context, implementationID id.ImplementationID, window id.Period) ([]*Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Evidence
	for _, e := range s.evidence {
		if e.ImplementationID == implementationID &&
			e.ReviewStatus == ReviewApproved &&
			e.Period.Overlaps(window) {
			out = append(out, copyEvidence(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentHash < out[j].ContentHash })
	return out, nil
}

func (s *InMemoryStore) Execute(_ context.Context, evidenceID id.EvidenceID,
	validate func(*Evidence) error, mutate func(*Evidence)) (*Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.evidence[evidenceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := copyEvidence(e)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.evidence[evidenceID] = copyEvidence(working)
	return working, nil
}

func copyEvidence(e *Evidence) *Evidence {
	cp := *e
	if e.ReviewedAt != nil {
		t := *e.ReviewedAt
		cp.ReviewedAt = &t
	}
	return &cp
}
