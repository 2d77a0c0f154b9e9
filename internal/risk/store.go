package risk

import (
	"context"

	id "creaturegrc/pkg/domain"
)

// Store persists risks and control mappings.
//
// UpsertMappingAndScore is the transactional core: it writes or updates the
// mapping, gathers the risk's full mapping set, asks score for the new
// residual, and persists it, all while holding the risk's lock (per-risk
// mutex or SELECT ... FOR UPDATE). The context passed to score carries the
// open transaction so reads made by score join it. An error from score
// aborts everything
// including the mapping write, so the stored residual is never stale
// relative to the stored mappings. Mapping writes for different risks do
// not serialize against each other.
type Store interface {
	CreateRisk(ctx context.Context, risk *Risk) error
	Find(ctx context.Context, riskID id.RiskID) (*Risk, error)
	List(ctx context.Context) ([]*Risk, error)
	ListMappings(ctx context.Context, riskID id.RiskID) ([]Mapping, error)
	UpsertMappingAndScore(ctx context.Context, mapping Mapping,
		score func(ctx context.Context, risk *Risk, mappings []Mapping) (int, error)) (*Risk, error)
}
