package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/titinauta/journey-engine/internal/application/query"
	"github.com/titinauta/journey-engine/internal/domain/journey"
)

// setIfGeneration writes a projection field only while the generation
// counter still holds the value the reader saw.
//
// KEYS[1] progress hash, KEYS[2] generation counter
// ARGV[1] expected generation, ARGV[2] field, ARGV[3] payload, ARGV[4] ttl ms
var setIfGeneration = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// ProgressCache implements query.ProgressCache. Each child owns one hash;
// fields are projection variants, so invalidation is a single DEL plus a
// generation bump.
type ProgressCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewProgressCache creates the cache. A non-positive ttl uses TTLProgress.
func NewProgressCache(cache *Cache, ttl time.Duration) *ProgressCache {
	if ttl <= 0 {
		ttl = TTLProgress
	}
	return &ProgressCache{cache: cache, ttl: ttl}
}

// Generation returns 0 for a child that was never invalidated.
func (p *ProgressCache) Generation(ctx context.Context, childID string) (uint64, error) {
	gen, err := p.cache.client.Get(ctx, GenerationKey(childID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// GetOverall returns nil, nil on a miss.
func (p *ProgressCache) GetOverall(ctx context.Context, childID, variant string) (*journey.Overall, error) {
	var o journey.Overall
	err := p.cache.HGet(ctx, ProgressKey(childID), variant, &o)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// SetOverall stores a projection unless the child was invalidated after gen
// was read.
func (p *ProgressCache) SetOverall(ctx context.Context, childID, variant string, gen uint64, o *journey.Overall) error {
	if o == nil {
		return nil
	}
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	keys := []string{ProgressKey(childID), GenerationKey(childID)}
	return setIfGeneration.Run(ctx, p.cache.client, keys,
		strconv.FormatUint(gen, 10), variant, data, p.ttl.Milliseconds(),
	).Err()
}

// InvalidateChild drops every projection of the child and bumps its
// generation in one transaction.
func (p *ProgressCache) InvalidateChild(ctx context.Context, childID string) error {
	genKey := GenerationKey(childID)
	_, err := p.cache.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, ProgressKey(childID))
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, TTLGeneration)
		return nil
	})
	return err
}

var _ query.ProgressCache = (*ProgressCache)(nil)
