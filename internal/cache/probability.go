package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tipster-dev/jackpot-sim/internal/probability"
)

const probabilityTTL = 15 * time.Minute

// ProbabilityCache keeps computed jackpot probability sets in redis so
// repeated reads between pipeline runs skip the staged computation.
// A nil client disables caching entirely.
type ProbabilityCache struct {
	rdb    *redis.Client
	logger *logrus.Entry
}

func NewProbabilityCache(rdb *redis.Client, logger *logrus.Logger) *ProbabilityCache {
	return &ProbabilityCache{rdb: rdb, logger: logger.WithField("component", "prob_cache")}
}

func key(jackpotID uuid.UUID, setKeys []string) string {
	sorted := append([]string(nil), setKeys...)
	sort.Strings(sorted)
	suffix := "all"
	if len(sorted) > 0 {
		suffix = strings.Join(sorted, ",")
	}
	return fmt.Sprintf("jackpot:probs:%s:%s", jackpotID, suffix)
}

func (c *ProbabilityCache) Get(ctx context.Context, jackpotID uuid.UUID, setKeys []string) ([]probability.FixtureResult, bool) {
	if c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, key(jackpotID, setKeys)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Debug("Probability cache read failed")
		}
		return nil, false
	}
	var results []probability.FixtureResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, false
	}
	return results, true
}

func (c *ProbabilityCache) Set(ctx context.Context, jackpotID uuid.UUID, setKeys []string, results []probability.FixtureResult) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(jackpotID, setKeys), raw, probabilityTTL).Err(); err != nil {
		c.logger.WithError(err).Debug("Probability cache write failed")
	}
}

// Invalidate drops every cached variant for the jackpot. Called after
// pipeline runs and settlement.
func (c *ProbabilityCache) Invalidate(ctx context.Context, jackpotID uuid.UUID) {
	c.dropPattern(ctx, fmt.Sprintf("jackpot:probs:%s:*", jackpotID))
}

// InvalidateAll drops every cached jackpot. Called when a new model
// activates, since stale entries would outlive it for the TTL.
func (c *ProbabilityCache) InvalidateAll(ctx context.Context) {
	c.dropPattern(ctx, "jackpot:probs:*")
}

func (c *ProbabilityCache) dropPattern(ctx context.Context, pattern string) {
	if c.rdb == nil {
		return
	}
	keys, err := c.rdb.Keys(ctx, pattern).Result()
	if err != nil || len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.WithError(err).Debug("Probability cache invalidation failed")
	}
}
