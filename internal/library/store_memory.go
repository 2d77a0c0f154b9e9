package library

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	id "creaturegrc/pkg/domain"
	"creaturegrc/pkg/platform/sentinel"
)

// InMemoryStore holds reference data behind a single RWMutex. Uniqueness
// checks happen under the write lock, matching the compare-and-insert
// semantics of the postgres unique indexes.
type InMemoryStore struct {
	mu           sync.RWMutex
	frameworks   map[id.FrameworkID]*Framework
	domains      map[id.ControlDomainID]*ControlDomain
	controls     map[id.ControlID]*Control
	equivalences []*Equivalence
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		frameworks: make(map[id.FrameworkID]*Framework),
		domains:    make(map[id.ControlDomainID]*ControlDomain),
		controls:   make(map[id.ControlID]*Control),
	}
}

func (s *InMemoryStore) CreateFramework(_ context.Context, framework *Framework) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.frameworks {
		if existing.Active && strings.EqualFold(existing.Name, framework.Name) {
			return sentinel.ErrConflict
		}
	}
	cp := *framework
	s.frameworks[framework.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindFrameworkByName(_ context.Context, name string) (*Framework, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, framework := range s.frameworks {
		if framework.Active && strings.EqualFold(framework.Name, name) {
			cp := *framework
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) CreateDomain(_ context.Context, domain *ControlDomain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.frameworks[domain.FrameworkID]; !ok {
		return sentinel.ErrNotFound
	}
	for _, existing := range s.domains {
		if existing.FrameworkID == domain.FrameworkID && existing.Code == domain.Code {
			return sentinel.ErrConflict
		}
	}
	cp := *domain
	s.domains[domain.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindDomainByCode(_ context.Context, frameworkID id.FrameworkID, code string) (*ControlDomain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, domain := range s.domains {
		if domain.FrameworkID == frameworkID && domain.Code == code {
			cp := *domain
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListDomains(_ context.Context, frameworkID id.FrameworkID) ([]*ControlDomain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ControlDomain
	for _, domain := range s.domains {
		if domain.FrameworkID == frameworkID {
			cp := *domain
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *InMemoryStore) CreateControl(_ context.Context, control *Control) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createControlLocked(control)
}

func (s *InMemoryStore) createControlLocked(control *Control) error {
	if _, ok := s.domains[control.DomainID]; !ok {
		return sentinel.ErrNotFound
	}
	for _, existing := range s.controls {
		if existing.DomainID == control.DomainID && existing.Code == control.Code {
			return sentinel.ErrConflict
		}
	}
	cp := *control
	s.controls[control.ID] = &cp
	return nil
}

func (s *InMemoryStore) UpsertControl(_ context.Context, control *Control) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.controls {
		if existing.DomainID == control.DomainID && existing.Code == control.Code {
			existing.Name = control.Name
			existing.Description = control.Description
			existing.Type = control.Type
			existing.TestingProcedures = control.TestingProcedures
			control.ID = existing.ID
			return false, nil
		}
	}
	if control.ID.IsNil() {
		control.ID = id.ControlID(uuid.New())
	}
	if err := s.createControlLocked(control); err != nil {
		return false, err
	}
	return true, nil
}

func (s *InMemoryStore) FindControlByCode(_ context.Context, frameworkID id.FrameworkID, code string) (*ControlRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, control := range s.controls {
		domain, ok := s.domains[control.DomainID]
		if !ok || domain.FrameworkID != frameworkID {
			continue
		}
		if control.Code == code {
			return s.refLocked(control, domain), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListControls(_ context.Context, frameworkID id.FrameworkID) ([]*ControlRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ControlRef
	for _, control := range s.controls {
		domain, ok := s.domains[control.DomainID]
		if !ok || domain.FrameworkID != frameworkID {
			continue
		}
		out = append(out, s.refLocked(control, domain))
	}
	// Deterministic order: domain code, then control code.
	sort.Slice(out, func(i, j int) bool {
		if out[i].DomainCode != out[j].DomainCode {
			return out[i].DomainCode < out[j].DomainCode
		}
		return out[i].Control.Code < out[j].Control.Code
	})
	return out, nil
}

func (s *InMemoryStore) refLocked(control *Control, domain *ControlDomain) *ControlRef {
	frameworkName := ""
	if framework, ok := s.frameworks[domain.FrameworkID]; ok {
		frameworkName = framework.Name
	}
	cp := *control
	return &ControlRef{
		Control:       cp,
		DomainCode:    domain.Code,
		DomainName:    domain.Name,
		FrameworkName: frameworkName,
	}
}

func (s *InMemoryStore) AddEquivalence(_ context.Context, eq *Equivalence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.controls[eq.ControlID]; !ok {
		return sentinel.ErrNotFound
	}
	if _, ok := s.controls[eq.PeerControlID]; !ok {
		return sentinel.ErrNotFound
	}

	a, b := eq.ControlID, eq.PeerControlID
	if b.String() < a.String() {
		a, b = b, a
	}
	for _, existing := range s.equivalences {
		if existing.ControlID == a && existing.PeerControlID == b {
			return sentinel.ErrConflict
		}
	}
	s.equivalences = append(s.equivalences, &Equivalence{ControlID: a, PeerControlID: b, Note: eq.Note})
	return nil
}

func (s *InMemoryStore) ListEquivalents(_ context.Context, controlID id.ControlID) ([]*Equivalence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Equivalence
	for _, eq := range s.equivalences {
		if eq.ControlID == controlID || eq.PeerControlID == controlID {
			cp := *eq
			out = append(out, &cp)
		}
	}
	return out, nil
}
