package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/karlseguin/ccache/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type CachedPrice struct {
	Price    decimal.Decimal `json:"price"`
	AsOf     time.Time       `json:"as_of"`
	Provider string          `json:"provider"`
}

type CachedTop struct {
	Assets []Asset   `json:"assets"`
	AsOf   time.Time `json:"as_of"`
}

// Cache keeps last-known market data. A miss is reported with ok=false and a
// nil error; errors are reserved for a cache that could not be reached.
type Cache interface {
	GetPrice(ctx context.Context, assetID string) (CachedPrice, bool, error)
	SetPrice(ctx context.Context, assetID string, price CachedPrice, ttl time.Duration) error
	GetTop(ctx context.Context, limit int) (CachedTop, bool, error)
	SetTop(ctx context.Context, limit int, top CachedTop, ttl time.Duration) error
}

func priceKey(assetID string) string {
	return "market:price:" + assetID
}

func topKey(limit int) string {
	return "market:top:" + strconv.Itoa(limit)
}

// MemoryCache is a process-local Cache backed by ccache.
type MemoryCache struct {
	cache *ccache.Cache
}

func NewMemoryCache(maxSize int64) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 5000
	}
	return &MemoryCache{
		cache: ccache.New(ccache.Configure().MaxSize(maxSize).ItemsToPrune(uint32(maxSize/20 + 1))),
	}
}

func (c *MemoryCache) GetPrice(_ context.Context, assetID string) (CachedPrice, bool, error) {
	item := c.cache.Get(priceKey(assetID))
	if item == nil || item.Expired() {
		return CachedPrice{}, false, nil
	}
	price, ok := item.Value().(CachedPrice)
	return price, ok, nil
}

func (c *MemoryCache) SetPrice(_ context.Context, assetID string, price CachedPrice, ttl time.Duration) error {
	c.cache.Set(priceKey(assetID), price, ttl)
	return nil
}

func (c *MemoryCache) GetTop(_ context.Context, limit int) (CachedTop, bool, error) {
	item := c.cache.Get(topKey(limit))
	if item == nil || item.Expired() {
		return CachedTop{}, false, nil
	}
	top, ok := item.Value().(CachedTop)
	return top, ok, nil
}

func (c *MemoryCache) SetTop(_ context.Context, limit int, top CachedTop, ttl time.Duration) error {
	c.cache.Set(topKey(limit), top, ttl)
	return nil
}

func (c *MemoryCache) Stop() {
	c.cache.Stop()
}

// RedisCache shares last-known market data between the API and the worker.
type RedisCache struct {
	client *redis.Client
}

// NewRedisClient parses a redis:// URL and checks the server is reachable.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) GetPrice(ctx context.Context, assetID string) (CachedPrice, bool, error) {
	var price CachedPrice
	ok, err := c.get(ctx, priceKey(assetID), &price)
	return price, ok, err
}

func (c *RedisCache) SetPrice(ctx context.Context, assetID string, price CachedPrice, ttl time.Duration) error {
	return c.set(ctx, priceKey(assetID), price, ttl)
}

func (c *RedisCache) GetTop(ctx context.Context, limit int) (CachedTop, bool, error) {
	var top CachedTop
	ok, err := c.get(ctx, topKey(limit), &top)
	return top, ok, err
}

func (c *RedisCache) SetTop(ctx context.Context, limit int, top CachedTop, ttl time.Duration) error {
	return c.set(ctx, topKey(limit), top, ttl)
}

func (c *RedisCache) get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisCache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
