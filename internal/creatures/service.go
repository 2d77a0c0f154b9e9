package creatures

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

// Service manages the creature registry. Discovery runs call Register
// repeatedly; the (source_system, name) key makes re-registration an
// update instead of a duplicate.
type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// RegisterInput carries everything a discovery source knows about one
// creature at observation time.
type RegisterInput struct {
	Name         string
	Class        Class
	SubClass     string
	Domain       string
	Criticality  Criticality
	SourceSystem string
	Attributes   map[string]string
	DiscoveredAt time.Time
}

// Register creates the creature on first sight and refreshes its mutable
// fields on every later sighting. Returns the creature and whether it was
// newly created.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Creature, bool, error) {
	existing, err := s.store.FindBySource(ctx, input.SourceSystem, input.Name)
	switch {
	case err == nil:
		existing.Class = input.Class
		existing.SubClass = input.SubClass
		existing.Domain = input.Domain
		existing.Criticality = input.Criticality
		for k, v := range input.Attributes {
			existing.Attributes.Values[k] = v
		}
		if !existing.Class.Valid() {
			return nil, false, dErrors.New(dErrors.CodeValidation, "unknown creature class: "+string(input.Class))
		}
		if !existing.Criticality.Valid() {
			return nil, false, dErrors.New(dErrors.CodeValidation, "unknown criticality: "+string(input.Criticality))
		}
		if err := s.store.Update(ctx, existing); err != nil {
			return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to refresh creature")
		}
		return existing, false, nil

	case errors.Is(err, sentinel.ErrNotFound):
		discoveredAt := input.DiscoveredAt
		if discoveredAt.IsZero() {
			discoveredAt = requestcontext.Now(ctx)
		}
		creature, err := NewCreature(id.CreatureID(uuid.New()), input.Name, input.Class,
			input.Domain, input.Criticality, input.SourceSystem, discoveredAt, requestcontext.Now(ctx))
		if err != nil {
			return nil, false, err
		}
		creature.SubClass = input.SubClass
		for k, v := range input.Attributes {
			creature.Attributes.Values[k] = v
		}
		if err := s.store.Create(ctx, creature); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				// Lost a race with a concurrent discovery run.
				return nil, false, dErrors.New(dErrors.CodeConflict, "creature already registered")
			}
			return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register creature")
		}
		s.logger.Info("creature registered",
			"creature_id", creature.ID.String(),
			"source_system", creature.SourceSystem,
			"class", creature.Class)
		return creature, true, nil

	default:
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up creature")
	}
}

// Link records a dependency edge between two registered creatures.
func (s *Service) Link(ctx context.Context, fromID, toID id.CreatureID, kind RelationKind) error {
	if !kind.Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown relation kind: "+string(kind))
	}
	if fromID == toID {
		return dErrors.New(dErrors.CodeValidation, "a creature cannot depend on itself")
	}
	err := s.store.AddEdge(ctx, Edge{FromID: fromID, ToID: toID, Kind: kind})
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "unknown creature in edge")
	}
	if errors.Is(err, sentinel.ErrConflict) {
		// Edge already recorded; linking is idempotent.
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record edge")
	}
	return nil
}

// Get returns one creature by id.
func (s *Service) Get(ctx context.Context, creatureID id.CreatureID) (*Creature, error) {
	creature, err := s.store.Find(ctx, creatureID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "creature not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load creature")
	}
	return creature, nil
}

// Dependencies returns the outgoing edges of one creature.
func (s *Service) Dependencies(ctx context.Context, creatureID id.CreatureID) ([]Edge, error) {
	edges, err := s.store.ListEdgesFrom(ctx, creatureID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list edges")
	}
	return edges, nil
}
