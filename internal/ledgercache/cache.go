package ledgercache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/RajaChaiban/InstaAgent/internal/domain"
)

const defaultTTL = 48 * time.Hour

// Cache layers a redis cache of positive HasRecorded answers in front of a
// durable ledger. Records are append-only, so a cached positive never goes
// stale; misses and every other operation fall through to the inner ledger,
// which keeps the strong read-after-write contract intact.
type Cache struct {
	inner  domain.CommentLedger
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New wraps inner with a redis positive-lookup cache. If ttl is zero it
// defaults to 48 hours.
func New(inner domain.CommentLedger, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		inner:  inner,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func key(platform, account, unitID string) string {
	return fmt.Sprintf("instaagent:recorded:%s:%s:%s", platform, account, unitID)
}

// HasRecorded answers from redis when the tuple is cached, otherwise from
// the inner ledger. Cache errors degrade to the inner ledger, never to a
// wrong answer.
func (c *Cache) HasRecorded(ctx context.Context, platform, account, unitID string) (bool, error) {
	k := key(platform, account, unitID)

	exists, err := c.rdb.Exists(ctx, k).Result()
	if err != nil {
		c.logger.Warn("ledger cache lookup failed", "key", k, "error", err)
	} else if exists > 0 {
		return true, nil
	}

	recorded, err := c.inner.HasRecorded(ctx, platform, account, unitID)
	if err != nil {
		return false, err
	}
	if recorded {
		c.mark(ctx, k)
	}
	return recorded, nil
}

// Insert delegates to the inner ledger and caches the tuple on either
// outcome: an insert and a conflict both mean the tuple is now recorded.
func (c *Cache) Insert(ctx context.Context, rec *domain.CommentRecord) (bool, error) {
	inserted, err := c.inner.Insert(ctx, rec)
	if err != nil {
		return false, err
	}
	c.mark(ctx, key(rec.Platform, rec.Account, rec.UnitID))
	return inserted, nil
}

// Stats delegates to the inner ledger.
func (c *Cache) Stats(ctx context.Context, account string, windowDays int) (domain.LedgerStats, error) {
	return c.inner.Stats(ctx, account, windowDays)
}

// RecentRecords delegates to the inner ledger.
func (c *Cache) RecentRecords(ctx context.Context, limit int) ([]domain.CommentRecord, error) {
	return c.inner.RecentRecords(ctx, limit)
}

func (c *Cache) mark(ctx context.Context, k string) {
	if err := c.rdb.Set(ctx, k, "1", c.ttl).Err(); err != nil {
		c.logger.Warn("ledger cache write failed", "key", k, "error", err)
	}
}
