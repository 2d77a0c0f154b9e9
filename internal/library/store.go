package library

import (
	"context"

	id "creaturegrc/pkg/domain"
)

// Store is the persistence boundary for reference data. Creates enforce the
// uniqueness invariants (framework name, domain code per framework, control
// code per domain) and return sentinel.ErrConflict on violation; upserts are
// reserved for the bulk importer.
type Store interface {
	CreateFramework(ctx context.Context, framework *Framework) error
	FindFrameworkByName(ctx context.Context, name string) (*Framework, error)

	CreateDomain(ctx context.Context, domain *ControlDomain) error
	FindDomainByCode(ctx context.Context, frameworkID id.FrameworkID, code string) (*ControlDomain, error)
	ListDomains(ctx context.Context, frameworkID id.FrameworkID) ([]*ControlDomain, error)

	CreateControl(ctx context.Context, control *Control) error
	UpsertControl(ctx context.Context, control *Control) (created bool, err error)
	FindControlByCode(ctx context.Context, frameworkID id.FrameworkID, code string) (*ControlRef, error)
	ListControls(ctx context.Context, frameworkID id.FrameworkID) ([]*ControlRef, error)

	AddEquivalence(ctx context.Context, eq *Equivalence) error
	ListEquivalents(ctx context.Context, controlID id.ControlID) ([]*Equivalence, error)
}
