package creatures

import (
	"time"

	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
)

// Class is the broad category of a tracked entity.
type Class string

const (
	ClassIdentity       Class = "identity"
	ClassAccount        Class = "account"
	ClassInfrastructure Class = "infrastructure"
	ClassApplication    Class = "application"
)

func (c Class) Valid() bool {
	switch c {
	case ClassIdentity, ClassAccount, ClassInfrastructure, ClassApplication:
		return true
	}
	return false
}

// Criticality ranks how much a creature matters to the business.
type Criticality string

const (
	CriticalityCritical Criticality = "critical"
	CriticalityHigh     Criticality = "high"
	CriticalityMedium   Criticality = "medium"
	CriticalityLow      Criticality = "low"
)

func (c Criticality) Valid() bool {
	switch c {
	case CriticalityCritical, CriticalityHigh, CriticalityMedium, CriticalityLow:
		return true
	}
	return false
}

// Attribute keys recognized at AttributesSchemaV1. Unknown keys are stored
// and round-tripped but never interpreted.
const (
	AttrOwner       = "owner"
	AttrEnvironment = "environment"
	AttrLocation    = "location"
	AttrOSVersion   = "os_version"
	AttrIPAddress   = "ip_address"
)

const AttributesSchemaV1 = 1

// Attributes is the versioned extension map for a creature. Values are
// plain strings; the schema version tells consumers which keys carry
// defined meaning.
type Attributes struct {
	SchemaVersion int               `json:"schema_version"`
	Values        map[string]string `json:"values,omitempty"`
}

func NewAttributes() Attributes {
	return Attributes{SchemaVersion: AttributesSchemaV1, Values: map[string]string{}}
}

// Get returns the value for key and whether it was set.
func (a Attributes) Get(key string) (string, bool) {
	v, ok := a.Values[key]
	return v, ok
}

// RelationKind labels a dependency edge between creatures.
type RelationKind string

const (
	RelationDependsOn RelationKind = "depends_on"
	RelationRunsOn    RelationKind = "runs_on"
	RelationOwns      RelationKind = "owns"
	RelationAccesses  RelationKind = "accesses"
)

func (k RelationKind) Valid() bool {
	switch k {
	case RelationDependsOn, RelationRunsOn, RelationOwns, RelationAccesses:
		return true
	}
	return false
}

// Edge is a directed dependency between two creatures.
type Edge struct {
	FromID id.CreatureID `json:"from_id"`
	ToID   id.CreatureID `json:"to_id"`
	Kind   RelationKind  `json:"kind"`
}

// Creature is a tracked asset or identity. SubClass refines Class with a
// source-specific label (server, person, database) and is free-form.
type Creature struct {
	ID           id.CreatureID `json:"id"`
	Name         string        `json:"name"`
	Class        Class         `json:"class"`
	SubClass     string        `json:"sub_class,omitempty"`
	Domain       string        `json:"domain"`
	Criticality  Criticality   `json:"criticality"`
	SourceSystem string        `json:"source_system"`
	Attributes   Attributes    `json:"attributes"`
	DiscoveredAt time.Time     `json:"discovered_at"`
	CreatedAt    time.Time     `json:"created_at"`
}

func NewCreature(creatureID id.CreatureID, name string, class Class, domain string, criticality Criticality, sourceSystem string, discoveredAt, now time.Time) (*Creature, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "creature name is required")
	}
	if !class.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown creature class: "+string(class))
	}
	if !criticality.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown criticality: "+string(criticality))
	}
	if sourceSystem == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "source system is required")
	}
	return &Creature{
		ID:           creatureID,
		Name:         name,
		Class:        class,
		Domain:       domain,
		Criticality:  criticality,
		SourceSystem: sourceSystem,
		Attributes:   NewAttributes(),
		DiscoveredAt: discoveredAt,
		CreatedAt:    now,
	}, nil
}
