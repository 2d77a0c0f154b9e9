package tracker

import (
	"context"
	"sort"
	"sync"

	id "creaturegrc/pkg/domain"
	"creaturegrc/pkg/platform/sentinel"
)

// InMemoryStore keeps implementations and transitions under one mutex, which
// gives Execute its atomicity.
type InMemoryStore struct {
	mu              sync.RWMutex
	implementations map[id.ImplementationID]*Implementation
	byControl       map[id.ControlID]id.ImplementationID
	transitions     []Transition
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		implementations: make(map[id.ImplementationID]*Implementation),
		byControl:       make(map[id.ControlID]id.ImplementationID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, implementation *Implementation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byControl[implementation.ControlID]; exists {
		return sentinel.ErrConflict
	}
	s.implementations[implementation.ID] = copyImplementation(implementation)
	s.byControl[implementation.ControlID] = implementation.ID
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, implementationID id.ImplementationID) (*Implementation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	implementation, ok := s.implementations[implementationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyImplementation(implementation), nil
}

func (s *InMemoryStore) FindByControl(_ context.Context, controlID id.ControlID) (*Implementation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	implementationID, ok := s.byControl[controlID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyImplementation(s.implementations[implementationID]), nil
}

func (s *InMemoryStore) ListByControls(_ context.Context, controlIDs []id.ControlID) (map[id.ControlID]*Implementation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[id.ControlID]*Implementation, len(controlIDs))
	for _, controlID := range controlIDs {
		if implementationID, ok := s.byControl[controlID]; ok {
			out[controlID] = copyImplementation(s.implementations[implementationID])
		}
	}
	return out, nil
}

func (s *InMemoryStore) Execute(_ context.Context, implementationID id.ImplementationID,
	validate func(*Implementation) error, mutate func(*Implementation)) (*Implementation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	implementation, ok := s.implementations[implementationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := copyImplementation(implementation)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.implementations[implementationID] = copyImplementation(working)
	return working, nil
}

func (s *InMemoryStore) AppendTransition(_ context.Context, transition Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, transition)
	return nil
}

func (s *InMemoryStore) ListTransitions(_ context.Context, implementationID id.ImplementationID) ([]Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Transition
	for _, transition := range s.transitions {
		if transition.ImplementationID == implementationID {
			out = append(out, transition)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func copyImplementation(implementation *Implementation) *Implementation {
	cp := *implementation
	cp.CreatureIDs = append([]id.CreatureID(nil), implementation.CreatureIDs...)
	cp.PolicyRefs = append([]string(nil), implementation.PolicyRefs...)
	if implementation.LastTestDate != nil {
		t := *implementation.LastTestDate
		cp.LastTestDate = &t
	}
	if implementation.NextTestDate != nil {
		t := *implementation.NextTestDate
		cp.NextTestDate = &t
	}
	return &cp
}

// InMemoryFindingStore is the map-backed FindingStore.
type InMemoryFindingStore struct {
	mu       sync.RWMutex
	findings map[id.FindingID]*Finding
}

func NewInMemoryFindingStore() *InMemoryFindingStore {
	return &InMemoryFindingStore{findings: make(map[id.FindingID]*Finding)}
}

func (s *InMemoryFindingStore) Create(_ context.Context, finding *Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.findings[finding.ID]; exists {
		return sentinel.ErrConflict
	}
	s.findings[finding.ID] = copyFinding(finding)
	return nil
}

func (s *InMemoryFindingStore) Find(_ context.Context, findingID id.FindingID) (*Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	finding, ok := s.findings[findingID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyFinding(finding), nil
}

func (s *InMemoryFindingStore) ListOpen(_ context.Context) ([]*Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Finding
	for _, finding := range s.findings {
		if !finding.Status.Terminal() {
			out = append(out, copyFinding(finding))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryFindingStore) Execute(_ context.Context, findingID id.FindingID,
	validate func(*Finding) error, mutate func(*Finding)) (*Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	finding, ok := s.findings[findingID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := copyFinding(finding)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.findings[findingID] = copyFinding(working)
	return working, nil
}

func copyFinding(finding *Finding) *Finding {
	cp := *finding
	if finding.EvidenceID != nil {
		e := *finding.EvidenceID
		cp.EvidenceID = &e
	}
	if finding.DueDate != nil {
		d := *finding.DueDate
		cp.DueDate = &d
	}
	return &cp
}
