package content

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"curio/pkg/domain"
	"curio/pkg/platform/circuit"
)

// Cached wraps a Store with a Redis byte cache. Content-addressed bytes never
// change for a given locator, so the TTL exists only to bound cache size, not
// for correctness. Cache failures degrade to the underlying store; a circuit
// breaker stops read attempts against an unhealthy Redis, and the writes that
// follow each gateway fetch double as recovery probes.
type Cached struct {
	next    Store
	client  redis.Cmdable
	ttl     time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// NewCached builds the caching layer.
func NewCached(next Store, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Cached {
	return &Cached{
		next:    next,
		client:  client,
		ttl:     ttl,
		breaker: circuit.New("content-cache", circuit.WithFailureThreshold(3), circuit.WithSuccessThreshold(2)),
		logger:  logger,
	}
}

func cacheKey(locator domain.ContentLocator) string {
	return "curio:content:" + locator.String()
}

func (c *Cached) Fetch(ctx context.Context, locator domain.ContentLocator) ([]byte, error) {
	key := cacheKey(locator)

	if !c.breaker.IsOpen() {
		cached, err := c.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			c.breaker.RecordSuccess()
			return cached, nil
		case errors.Is(err, redis.Nil):
			c.breaker.RecordSuccess()
		default:
			if _, change := c.breaker.RecordFailure(); change.Opened {
				c.logger.WarnContext(ctx, "content cache circuit opened", "error", err)
			} else {
				c.logger.WarnContext(ctx, "content cache read failed", "error", err)
			}
		}
	}

	body, err := c.next.Fetch(ctx, locator)
	if err != nil {
		return nil, err
	}

	if err := c.client.Set(ctx, key, body, c.ttl).Err(); err != nil {
		c.breaker.RecordFailure()
		c.logger.WarnContext(ctx, "content cache write failed", "error", err)
	} else if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "content cache circuit closed")
	}
	return body, nil
}
