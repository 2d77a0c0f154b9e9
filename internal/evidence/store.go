package evidence

import (
	"context"

	id "creaturegrc/pkg/domain"
)

// Store persists evidence rows.
//
// CreateIfAbsent is the atomic compare-and-insert on the dedup key
// (implementation_id, content_hash, period): when a row with the same key
// already exists it returns that row with created=false and writes nothing.
// A separate check-then-insert would race under concurrent collectors.
type Store interface {
	CreateIfAbsent(ctx context.Context, candidate *Evidence) (*Evidence, bool, error)
	Find(ctx context.Context, evidenceID id.EvidenceID) (*Evidence, error)
	ListByImplementation(ctx context.Context, implementationID id.ImplementationID) ([]*Evidence, error)
	// ListApprovedOverlapping returns approved rows whose period overlaps the
	// given window, ordered by content hash for deterministic output.
	ListApprovedOverlapping(ctx context.Context, implementationID id.ImplementationID, window id.Period) ([]*Evidence, error)
	Execute(ctx context.Context, evidenceID id.EvidenceID,
		validate func(*Evidence) error, mutate func(*Evidence)) (*Evidence, error)
}
