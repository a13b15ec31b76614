// internal/cache/cache.go
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "jobmatch-service/internal/common/errors"
	"jobmatch-service/internal/common/logger"
	"jobmatch-service/internal/common/metrics"
)

// ScoredID is one (job id, score) pair in a cached result set. Order is
// preserved exactly as stored.
type ScoredID struct {
	JobID int64   `json:"jobId"`
	Score float64 `json:"score"`
}

type entry struct {
	Results   []ScoredID `json:"results"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// Fingerprint hashes every query-shaping input so distinct preference
// combinations never collide. Filter values are length-prefixed before
// hashing so adjacent fields cannot run together.
func Fingerprint(queryText string, parts ...string) string {
	h := sha256.New()
	writePart(h, queryText)
	for _, p := range parts {
		writePart(h, p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writePart(h interface{ Write([]byte) (int, error) }, part string) {
	h.Write([]byte(strconv.Itoa(len(part))))
	h.Write([]byte(":"))
	h.Write([]byte(part))
}

// ResultCache memoizes scored result sets per query fingerprint in Redis.
// The expiry timestamp is carried inside the entry and checked on read;
// the Redis key TTL is housekeeping that bounds storage, not the source
// of truth for expiry.
type ResultCache struct {
	client *redis.Client
	clock  func() time.Time
	log    logger.Logger
}

func NewResultCache(client *redis.Client, log logger.Logger) *ResultCache {
	return &ResultCache{
		client: client,
		clock:  time.Now,
		log:    log,
	}
}

// WithClock overrides the time source. Test hook.
func (c *ResultCache) WithClock(clock func() time.Time) *ResultCache {
	c.clock = clock
	return c
}

func cacheKey(fingerprint string) string {
	return fmt.Sprintf("match:result:%s", fingerprint)
}

// Get returns the cached result set for a fingerprint, or (nil, nil) when
// the entry is absent or past its expiry.
func (c *ResultCache) Get(ctx context.Context, fingerprint string) ([]ScoredID, error) {
	raw, err := c.client.Get(ctx, cacheKey(fingerprint)).Result()
	if err == redis.Nil {
		metrics.CacheMissesTotal.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewCacheUnavailableError(err)
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.log.WithError(err).Warn("Discarding undecodable cache entry", map[string]interface{}{
			"fingerprint": fingerprint,
		})
		metrics.CacheMissesTotal.Inc()
		return nil, nil
	}

	if !c.clock().Before(e.ExpiresAt) {
		metrics.CacheMissesTotal.Inc()
		return nil, nil
	}

	metrics.CacheHitsTotal.Inc()
	return e.Results, nil
}

// Put stores a result set under a fingerprint. A non-positive ttl is a
// no-op; already-expired entries are never written. Existing entries are
// overwritten wholesale.
func (c *ResultCache) Put(ctx context.Context, fingerprint string, results []ScoredID, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	now := c.clock()
	e := entry{
		Results:   results,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	data, err := json.Marshal(e)
	if err != nil {
		return apperrors.NewCacheUnavailableError(err)
	}

	if err := c.client.Set(ctx, cacheKey(fingerprint), data, ttl).Err(); err != nil {
		return apperrors.NewCacheUnavailableError(err)
	}
	return nil
}
