package risk

import (
	"context"
	"sort"
	"sync"

	id "creaturegrc/pkg/domain"
	"creaturegrc/pkg/platform/sentinel"
)

// InMemoryStore gives each risk its own lock so mapping writes for
// different risks proceed in parallel while writes to one risk serialize.
type InMemoryStore struct {
	mu       sync.RWMutex
	risks    map[id.RiskID]*Risk
	mappings map[id.RiskID][]Mapping
	locks    map[id.RiskID]*sync.Mutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		risks:    make(map[id.RiskID]*Risk),
		mappings: make(map[id.RiskID][]Mapping),
		locks:    make(map[id.RiskID]*sync.Mutex),
	}
}

func (s *InMemoryStore) CreateRisk(_ context.Context, risk *Risk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.risks[risk.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *risk
	s.risks[risk.ID] = &cp
	s.locks[risk.ID] = &sync.Mutex{}
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, riskID id.RiskID) (*Risk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	risk, ok := s.risks[riskID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *risk
	return &cp, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Risk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Risk, 0, len(s.risks))
	for _, risk := range s.risks {
		cp := *risk
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s *InMemoryStore) ListMappings(_ context.Context, riskID id.RiskID) ([]Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Mapping(nil), s.mappings[riskID]...), nil
}

func (s *InMemoryStore) UpsertMappingAndScore(ctx context.Context, mapping Mapping,
	score func(ctx context.Context, risk *Risk, mappings []Mapping) (int, error)) (*Risk, error) {
	s.mu.RLock()
	lock, ok := s.locks[mapping.RiskID]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	// Per-risk serialization: concurrent mapping writes for this risk queue
	// here; other risks proceed.
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	risk := s.risks[mapping.RiskID]
	working := *risk
	candidate := append([]Mapping(nil), s.mappings[mapping.RiskID]...)
	s.mu.RUnlock()

	replaced := false
	for i, existing := range candidate {
		if existing.ControlID == mapping.ControlID {
			candidate[i] = mapping
			replaced = true
			break
		}
	}
	if !replaced {
		candidate = append(candidate, mapping)
	}

	residual, err := score(ctx, &working, candidate)
	if err != nil {
		// Nothing was committed; the mapping change is discarded.
		return nil, err
	}
	working.ResidualScore = residual

	s.mu.Lock()
	s.mappings[mapping.RiskID] = candidate
	stored := working
	s.risks[mapping.RiskID] = &stored
	s.mu.Unlock()

	return &working, nil
}
