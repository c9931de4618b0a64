package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"HypothesisValidator/internal/config"
	"HypothesisValidator/internal/domain"
	"HypothesisValidator/internal/ports"
)

const cachePrefix = "hv:"

// CachedStore fronts a durable store with a Redis read-through cache.
// Records are immutable once stored, so entries never need invalidation; Redis
// failures degrade to the underlying store.
type CachedStore struct {
	ports.Store
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

var _ ports.Store = (*CachedStore)(nil)

// NewRedisClient dials Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// NewCachedStore wraps inner. A zero ttl keeps entries until evicted.
func NewCachedStore(inner ports.Store, rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{Store: inner, rdb: rdb, ttl: ttl, logger: logger}
}

func articleURLKey(url string) string { return cachePrefix + "article:url:" + url }
func articleIDKey(id string) string   { return cachePrefix + "article:id:" + id }
func hypothesisKey(text string) string {
	return cachePrefix + "hypothesis:" + text
}
func resultCacheKey(articleID, hypothesisID string) string {
	return cachePrefix + "result:" + articleID + ":" + hypothesisID
}

// FindArticle reads through the cache by normalized URL.
func (c *CachedStore) FindArticle(ctx context.Context, url string) (*domain.Article, error) {
	return readThrough(ctx, c, articleURLKey(url), func() (*domain.Article, error) {
		return c.Store.FindArticle(ctx, url)
	})
}

// FindArticleByID reads through the cache by article id.
func (c *CachedStore) FindArticleByID(ctx context.Context, id string) (*domain.Article, error) {
	return readThrough(ctx, c, articleIDKey(id), func() (*domain.Article, error) {
		return c.Store.FindArticleByID(ctx, id)
	})
}

// PutArticle writes to the store, then caches the stored row under both its URL and id.
func (c *CachedStore) PutArticle(ctx context.Context, article domain.Article) (*domain.Article, error) {
	stored, err := c.Store.PutArticle(ctx, article)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, articleURLKey(stored.URL), stored)
	c.remember(ctx, articleIDKey(stored.ID), stored)
	return stored, nil
}

// FindHypothesis reads through the cache by exact text.
func (c *CachedStore) FindHypothesis(ctx context.Context, text string) (*domain.Hypothesis, error) {
	return readThrough(ctx, c, hypothesisKey(text), func() (*domain.Hypothesis, error) {
		return c.Store.FindHypothesis(ctx, text)
	})
}

// PutHypothesis writes to the store, then caches the stored row.
func (c *CachedStore) PutHypothesis(ctx context.Context, hypothesis domain.Hypothesis) (*domain.Hypothesis, error) {
	stored, err := c.Store.PutHypothesis(ctx, hypothesis)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, hypothesisKey(stored.Text), stored)
	return stored, nil
}

// FindResult reads through the cache by (article id, hypothesis id). Misses are not cached.
func (c *CachedStore) FindResult(ctx context.Context, articleID, hypothesisID string) (*domain.ValidationResult, error) {
	return readThrough(ctx, c, resultCacheKey(articleID, hypothesisID), func() (*domain.ValidationResult, error) {
		return c.Store.FindResult(ctx, articleID, hypothesisID)
	})
}

// PutResult writes to the store, then caches the stored verdict.
func (c *CachedStore) PutResult(ctx context.Context, result domain.ValidationResult) (*domain.ValidationResult, error) {
	stored, err := c.Store.PutResult(ctx, result)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, resultCacheKey(stored.ArticleID, stored.HypothesisID), stored)
	return stored, nil
}

// Ping checks both Redis and the underlying store.
func (c *CachedStore) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return c.Store.Ping(ctx)
}

// Close closes the Redis client and the underlying store.
func (c *CachedStore) Close() error {
	return errors.Join(c.rdb.Close(), c.Store.Close())
}

// readThrough serves key from Redis, falling back to load on a miss, a Redis error or
// an undecodable entry. Loaded records are cached; nil results are not.
func readThrough[T any](ctx context.Context, c *CachedStore, key string, load func() (*T, error)) (*T, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if jsonErr := json.Unmarshal(raw, &v); jsonErr == nil {
			c.logger.Debug("cache hit", "key", key)
			return &v, nil
		}
		c.logger.Warn("discarding corrupt cache entry", "key", key)
		c.rdb.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("redis get failed", "key", key, "error", err)
	}

	v, err := load()
	if err != nil || v == nil {
		return v, err
	}
	c.remember(ctx, key, v)
	return v, nil
}

// remember stores v under key. First writer wins, matching the store semantics.
func (c *CachedStore) remember(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("encode cache entry", "key", key, "error", err)
		return
	}
	if err := c.rdb.SetNX(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", "key", key, "error", err)
	}
}
