package creatures

import (
	"context"

	id "creaturegrc/pkg/domain"
)

// Store persists the creature graph. (name, source_system) is unique so
// repeated discovery runs converge on one row per creature.
type Store interface {
	Create(ctx context.Context, creature *Creature) error
	Update(ctx context.Context, creature *Creature) error
	Find(ctx context.Context, creatureID id.CreatureID) (*Creature, error)
	FindBySource(ctx context.Context, sourceSystem, name string) (*Creature, error)
	List(ctx context.Context) ([]*Creature, error)

	AddEdge(ctx context.Context, edge Edge) error
	ListEdgesFrom(ctx context.Context, creatureID id.CreatureID) ([]Edge, error)
}
