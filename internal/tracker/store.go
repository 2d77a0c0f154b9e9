package tracker

import (
	"context"

	id "creaturegrc/pkg/domain"
)

// Store persists implementations and their transition log.
//
// Execute is the atomic validate-then-mutate primitive: the store holds its
// lock (mutex or SELECT ... FOR UPDATE) across both callbacks, so a status
// read inside validate cannot go stale before mutate runs.
type Store interface {
	Create(ctx context.Context, implementation *Implementation) error
	Find(ctx context.Context, implementationID id.ImplementationID) (*Implementation, error)
	FindByControl(ctx context.Context, controlID id.ControlID) (*Implementation, error)
	ListByControls(ctx context.Context, controlIDs []id.ControlID) (map[id.ControlID]*Implementation, error)
	Execute(ctx context.Context, implementationID id.ImplementationID,
		validate func(*Implementation) error, mutate func(*Implementation)) (*Implementation, error)

	AppendTransition(ctx context.Context, transition Transition) error
	ListTransitions(ctx context.Context, implementationID id.ImplementationID) ([]Transition, error)
}

// FindingStore persists audit findings. Same Execute semantics as Store.
type FindingStore interface {
	Create(ctx context.Context, finding *Finding) error
	Find(ctx context.Context, findingID id.FindingID) (*Finding, error)
	ListOpen(ctx context.Context) ([]*Finding, error)
	Execute(ctx context.Context, findingID id.FindingID,
		validate func(*Finding) error, mutate func(*Finding)) (*Finding, error)
}
