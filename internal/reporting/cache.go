package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	id "creaturegrc/pkg/domain"
)

const coverageKeyPrefix = "reports:coverage:"

// CacheBackend is the slice of the redis client the cache needs. Kept narrow
// so tests can substitute an in-process backend.
type CacheBackend interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CoverageCache keeps recent coverage views in Redis so dashboards polling
// the same framework/period do not re-run the join on every request. The
// report and its gap list are stored as one entry: a cached percentage can
// never pair with a gap list computed from different data. A nil cache is
// valid and caches nothing; cache failures degrade to a recompute, never to
// an error.
type CoverageCache struct {
	client CacheBackend
	ttl    time.Duration
	logger *slog.Logger
}

func NewCoverageCache(client CacheBackend, ttl time.Duration, logger *slog.Logger) *CoverageCache {
	return &CoverageCache{client: client, ttl: ttl, logger: logger}
}

func coverageKey(framework string, period id.Period) string {
	return coverageKeyPrefix + framework + ":" + period.Key()
}

// cachedView bundles the pieces computed from one pass over the stores.
type cachedView struct {
	Report *CoverageReport `json:"report"`
	Gaps   []Gap           `json:"gaps"`
}

func (c *CoverageCache) Get(ctx context.Context, framework string, period id.Period) (*CoverageReport, []Gap, bool) {
	if c == nil || c.client == nil {
		return nil, nil, false
	}
	raw, err := c.client.Get(ctx, coverageKey(framework, period)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil, false
	}
	if err != nil {
		c.logger.Warn("coverage cache read failed", "error", err)
		return nil, nil, false
	}
	var view cachedView
	if err := json.Unmarshal(raw, &view); err != nil || view.Report == nil {
		c.logger.Warn("coverage cache entry corrupt", "error", err)
		return nil, nil, false
	}
	return view.Report, view.Gaps, true
}

func (c *CoverageCache) Put(ctx context.Context, framework string, period id.Period, report *CoverageReport, gaps []Gap) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(cachedView{Report: report, Gaps: gaps})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, coverageKey(framework, period), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("coverage cache write failed", "error", err)
	}
}
