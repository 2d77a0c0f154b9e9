package collection

import (
	"context"
	"sort"
	"time"

	"creaturegrc/internal/evidence"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
)

// Payload is one evidence artifact produced by a collector for a window.
type Payload struct {
	ControlCode string
	Framework   string
	Type        evidence.Type
	PayloadRef  string
	Payload     []byte
	CollectedAt time.Time
}

// Source is the collector capability contract. Implementations pull from one
// external system and return zero or more payloads for the window. A partial
// result with a non-nil error is allowed; the runner submits what it got and
// records the run as partial.
type Source interface {
	ProduceEvidence(ctx context.Context, window id.Period) ([]Payload, error)
}

// Registry maps source system names to Source implementations. It is
// assembled once at startup from static configuration; there is no runtime
// plugin discovery.
type Registry struct {
	sources map[string]Source
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register binds a source system name. Registering a name twice is a
// programming error surfaced at startup.
func (r *Registry) Register(name string, source Source) error {
	if name == "" {
		return dErrors.New(dErrors.CodeValidation, "source name is required")
	}
	if _, exists := r.sources[name]; exists {
		return dErrors.New(dErrors.CodeConflict, "source already registered: "+name)
	}
	r.sources[name] = source
	return nil
}

// Resolve returns the source for a job's source system.
func (r *Registry) Resolve(name string) (Source, error) {
	source, ok := r.sources[name]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "no source registered for "+name)
	}
	return source, nil
}

// Names lists registered source systems in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
