package creatures

import (
	"context"
	"sort"
	"sync"

	id "creaturegrc/pkg/domain"
	"creaturegrc/pkg/platform/sentinel"
)

type sourceKey struct {
	source string
	name   string
}

// InMemoryStore is the map-backed Store used by tests and database-less
// deployments.
type InMemoryStore struct {
	mu        sync.RWMutex
	creatures map[id.CreatureID]*Creature
	bySource  map[sourceKey]id.CreatureID
	edges     []Edge
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		creatures: make(map[id.CreatureID]*Creature),
		bySource:  make(map[sourceKey]id.CreatureID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, creature *Creature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sourceKey{creature.SourceSystem, creature.Name}
	if _, exists := s.bySource[key]; exists {
		return sentinel.ErrConflict
	}
	cp := copyCreature(creature)
	s.creatures[creature.ID] = cp
	s.bySource[key] = creature.ID
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, creature *Creature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.creatures[creature.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.bySource, sourceKey{existing.SourceSystem, existing.Name})
	s.creatures[creature.ID] = copyCreature(creature)
	s.bySource[sourceKey{creature.SourceSystem, creature.Name}] = creature.ID
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, creatureID id.CreatureID) (*Creature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creature, ok := s.creatures[creatureID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyCreature(creature), nil
}

func (s *InMemoryStore) FindBySource(_ context.Context, sourceSystem, name string) (*Creature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creatureID, ok := s.bySource[sourceKey{sourceSystem, name}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyCreature(s.creatures[creatureID]), nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Creature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Creature, 0, len(s.creatures))
	for _, creature := range s.creatures {
		out = append(out, copyCreature(creature))
	}
	// Deterministic order
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceSystem != out[j].SourceSystem {
			return out[i].SourceSystem < out[j].SourceSystem
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *InMemoryStore) AddEdge(_ context.Context, edge Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.creatures[edge.FromID]; !ok {
		return sentinel.ErrNotFound
	}
	if _, ok := s.creatures[edge.ToID]; !ok {
		return sentinel.ErrNotFound
	}
	for _, existing := range s.edges {
		if existing == edge {
			return sentinel.ErrConflict
		}
	}
	s.edges = append(s.edges, edge)
	return nil
}

func (s *InMemoryStore) ListEdgesFrom(_ context.Context, creatureID id.CreatureID) ([]Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Edge
	for _, edge := range s.edges {
		if edge.FromID == creatureID {
			out = append(out, edge)
		}
	}
	return out, nil
}

func copyCreature(creature *Creature) *Creature {
	cp := *creature
	if creature.Attributes.Values != nil {
		cp.Attributes.Values = make(map[string]string, len(creature.Attributes.Values))
		for k, v := range creature.Attributes.Values {
			cp.Attributes.Values[k] = v
		}
	}
	return &cp
}
