package availability

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rioprayoga/lensrent-backend/pkg/config"
	"github.com/rioprayoga/lensrent-backend/pkg/logger"
	redisclient "github.com/rioprayoga/lensrent-backend/pkg/redis"
)

// Cache memoizes Compute results in Redis for display endpoints. It is
// strictly advisory: entries may be stale for up to the TTL, and booking
// decisions never read from it. On any Redis failure the cache degrades to
// a passthrough.
type Cache struct {
	calc  *Calculator
	redis *redisclient.Client
	cfg   config.AvailabilityConfig
	logg  *logger.Logger
}

func NewCache(calc *Calculator, redis *redisclient.Client, cfg config.AvailabilityConfig, logg *logger.Logger) *Cache {
	return &Cache{calc: calc, redis: redis, cfg: cfg, logg: logg}
}

// Compute returns a cached result when present, otherwise computes and
// stores one. The exclude knob bypasses the cache entirely: edit flows need
// live answers. Reads are bounded by the configured query timeout since they
// sit on the interactive booking-form path.
func (c *Cache) Compute(ctx context.Context, ref ItemRef, start, end time.Time) (*Result, error) {
	if c.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.QueryTimeout)
		defer cancel()
	}

	if !c.enabled() {
		return c.calc.Compute(ctx, ref, start, end, nil)
	}

	key := c.redis.AvailabilityKey(
		ref.Kind.String(),
		ref.ID.String(),
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	)

	if cached, err := c.redis.Get(ctx, key); err == nil {
		var result Result
		if unmarshalErr := json.Unmarshal([]byte(cached), &result); unmarshalErr == nil {
			return &result, nil
		}
	} else if !errors.Is(err, redisclient.Nil) {
		c.logg.Warn(ctx, "availability cache read failed, computing live")
	}

	result, err := c.calc.Compute(ctx, ref, start, end, nil)
	if err != nil {
		return nil, err
	}

	if payload, marshalErr := json.Marshal(result); marshalErr == nil {
		if setErr := c.redis.Set(ctx, key, payload, c.cfg.CacheTTL); setErr != nil {
			c.logg.Warn(ctx, "availability cache write failed")
		}
	}
	return result, nil
}

func (c *Cache) enabled() bool {
	return c.cfg.CacheEnabled && c.redis != nil
}
