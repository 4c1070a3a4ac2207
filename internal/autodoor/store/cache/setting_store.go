// Package cache holds read-through caches in front of the durable stores.
package cache

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

const (
	DefaultKeyPrefix = "autodoor:setting:"
	allKey           = "all"
)

// SettingStore caches settings rows in redis. Reads fall through to the
// wrapped store on a miss or any redis error; writes go to the wrapped store
// first and then invalidate the affected keys.
//
// A failed invalidation marks its keys stale and the cache is bypassed until
// a later Del succeeds. A fill only lands when no write invalidated the cache
// while the row was being loaded.
type SettingStore struct {
	next   store.SettingStore
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    zerolog.Logger

	mu    sync.Mutex
	gen   uint64
	stale map[string]struct{}
}

func NewSettingStore(next store.SettingStore, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *SettingStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SettingStore{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		prefix: DefaultKeyPrefix,
		log:    log.With().Str("component", "settings_cache").Logger(),
		stale:  make(map[string]struct{}),
	}
}

func (c *SettingStore) GetSetting(ctx context.Context, key string) (types.Setting, error) {
	var row types.Setting
	if c.usable(ctx) && c.load(ctx, c.prefix+key, &row) {
		return row, nil
	}

	gen := c.generation()
	row, err := c.next.GetSetting(ctx, key)
	if err != nil {
		return types.Setting{}, err
	}
	c.fill(ctx, gen, c.prefix+key, row)
	return row, nil
}

func (c *SettingStore) ListSettings(ctx context.Context) ([]types.Setting, error) {
	var rows []types.Setting
	if c.usable(ctx) && c.load(ctx, c.prefix+allKey, &rows) {
		return rows, nil
	}

	gen := c.generation()
	rows, err := c.next.ListSettings(ctx)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, gen, c.prefix+allKey, rows)
	return rows, nil
}

func (c *SettingStore) PutSetting(ctx context.Context, s types.Setting) error {
	if err := c.next.PutSetting(ctx, s); err != nil {
		return err
	}
	c.Invalidate(ctx, s.Key)
	return nil
}

// Invalidate drops the cached row for key and the cached full listing. When
// redis refuses the Del both keys stay stale and reads skip the cache.
func (c *SettingStore) Invalidate(ctx context.Context, key string) {
	keys := []string{c.prefix + key, c.prefix + allKey}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache invalidation failed; bypassing cache")
		for _, k := range keys {
			c.stale[k] = struct{}{}
		}
	}
}

// Stale reports whether a failed invalidation is still pending.
func (c *SettingStore) Stale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stale) > 0
}

// usable retries any pending invalidation and reports whether cached
// entries can be served.
func (c *SettingStore) usable(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stale) == 0 {
		return true
	}
	if err := c.rdb.Del(ctx, slices.Collect(maps.Keys(c.stale))...).Err(); err != nil {
		return false
	}
	clear(c.stale)
	c.log.Info().Msg("cache invalidation recovered")
	return true
}

func (c *SettingStore) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// fill caches v unless a write invalidated the cache after gen was read.
func (c *SettingStore) fill(ctx context.Context, gen uint64, key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || len(c.stale) > 0 {
		return
	}
	c.save(ctx, key, v)
}

func (c *SettingStore) load(ctx context.Context, key string, dst any) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debug().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("cache entry corrupt")
		return false
	}
	return true
}

func (c *SettingStore) save(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}
}
