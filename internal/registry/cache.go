package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"poolScope/internal/model"
)

// Cache memoizes registry lookups. Entries are immutable so they are never
// invalidated. Implementations must be safe for concurrent use and treat
// backend failures as misses.
type Cache interface {
	GetToken(ctx context.Context, address string) (model.Token, bool)
	SetToken(ctx context.Context, token model.Token)
	GetPool(ctx context.Context, address string) (model.PoolRecord, bool)
	SetPool(ctx context.Context, pool model.PoolRecord)
}

// MemoryCache caches records in process.
type MemoryCache struct {
	mu     sync.RWMutex
	tokens map[string]model.Token
	pools  map[string]model.PoolRecord
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		tokens: make(map[string]model.Token),
		pools:  make(map[string]model.PoolRecord),
	}
}

func (c *MemoryCache) GetToken(_ context.Context, address string) (model.Token, bool) {
	c.mu.RLock()
	token, ok := c.tokens[address]
	c.mu.RUnlock()
	return token, ok
}

func (c *MemoryCache) SetToken(_ context.Context, token model.Token) {
	c.mu.Lock()
	c.tokens[token.Address] = token
	c.mu.Unlock()
}

func (c *MemoryCache) GetPool(_ context.Context, address string) (model.PoolRecord, bool) {
	c.mu.RLock()
	pool, ok := c.pools[address]
	c.mu.RUnlock()
	return pool, ok
}

func (c *MemoryCache) SetPool(_ context.Context, pool model.PoolRecord) {
	c.mu.Lock()
	c.pools[pool.Address] = pool
	c.mu.Unlock()
}

const (
	redisTokenPrefix = "poolscope:token:"
	redisPoolPrefix  = "poolscope:pool:"
)

// RedisCache shares registry entries between indexer processes. Values are
// JSON without expiry.
type RedisCache struct {
	client redis.Cmdable
	logger *zap.Logger
}

func NewRedisCache(client redis.Cmdable, logger *zap.Logger) (*RedisCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, logger: logger}, nil
}

func (c *RedisCache) GetToken(ctx context.Context, address string) (model.Token, bool) {
	var token model.Token
	return token, c.get(ctx, redisTokenPrefix+address, &token)
}

func (c *RedisCache) SetToken(ctx context.Context, token model.Token) {
	c.set(ctx, redisTokenPrefix+token.Address, token)
}

func (c *RedisCache) GetPool(ctx context.Context, address string) (model.PoolRecord, bool) {
	var pool model.PoolRecord
	return pool, c.get(ctx, redisPoolPrefix+address, &pool)
}

func (c *RedisCache) SetPool(ctx context.Context, pool model.PoolRecord) {
	c.set(ctx, redisPoolPrefix+pool.Address, pool)
}

func (c *RedisCache) get(ctx context.Context, key string, dst interface{}) bool {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.logger.Debug("redis cache get failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(val, dst); err != nil {
		c.logger.Warn("redis cache entry unreadable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *RedisCache) set(ctx context.Context, key string, value interface{}) {
	b, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("redis cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, b, 0).Err(); err != nil {
		c.logger.Warn("redis cache set failed", zap.String("key", key), zap.Error(err))
	}
}
