package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is where the block producer publishes the height.
const DefaultRedisKey = "claimreg:height"

// Redis reads the height published by an external producer. A missing key
// reads as zero. The highest value seen is remembered so that a lagging
// replica cannot make the height go backwards.
type Redis struct {
	client  redis.Cmdable
	key     string
	highest atomic.Uint64
}

func NewRedis(client redis.Cmdable, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, key: key}
}

func (r *Redis) Current(ctx context.Context) (uint64, error) {
	raw, err := r.client.Get(ctx, r.key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("read height: %w", err)
	}
	var h uint64
	if raw != "" {
		h, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse height %q: %w", raw, err)
		}
	}
	return r.raise(h), nil
}

// raise lifts the floor to h and returns the resulting floor.
func (r *Redis) raise(h uint64) uint64 {
	for {
		seen := r.highest.Load()
		if h <= seen {
			return seen
		}
		if r.highest.CompareAndSwap(seen, h) {
			return h
		}
	}
}

// Publish sets the height to h unless the stored value is already higher.
// Block producers and tests call it; the registry only reads.
func (r *Redis) Publish(ctx context.Context, h uint64) error {
	err := publishScript.Run(ctx, r.client, []string{r.key}, h).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("publish height: %w", err)
	}
	return nil
}

var publishScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local h = tonumber(ARGV[1])
if h > cur then
	redis.call("SET", KEYS[1], ARGV[1])
end
return cur
`)
