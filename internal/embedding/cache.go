package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "cognigraph:emb:"

// CachedProvider wraps a Provider with a Redis content-hash cache, so
// re-ingesting identical content (or repeating a query) skips the model
// call. Cache failures degrade to a plain model call; they are never fatal.
type CachedProvider struct {
	inner  Provider
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProvider connects to Redis and wraps inner with a cache.
func NewCachedProvider(inner Provider, redisURL string, ttl time.Duration, logger *zap.Logger) (*CachedProvider, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedProvider{inner: inner, rdb: rdb, ttl: ttl, logger: logger}, nil
}

// Embed serves cached vectors where possible and embeds only the misses.
func (c *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		if vec := c.lookup(ctx, text); vec != nil {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		vecs, err := c.inner.Embed(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(missTexts) {
			return nil, fmt.Errorf("embedding: got %d vectors for %d texts", len(vecs), len(missTexts))
		}
		for j, vec := range vecs {
			out[missIdx[j]] = vec
			c.save(ctx, missTexts[j], vec)
		}
	}
	return out, nil
}

// Dimension delegates to the wrapped provider.
func (c *CachedProvider) Dimension() int {
	return c.inner.Dimension()
}

// Close releases the Redis connection.
func (c *CachedProvider) Close() error {
	return c.rdb.Close()
}

func (c *CachedProvider) lookup(ctx context.Context, text string) []float32 {
	raw, err := c.rdb.Get(ctx, cacheKey(text)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("embedding cache read failed", zap.Error(err))
		}
		return nil
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil
	}
	return vec
}

func (c *CachedProvider) save(ctx context.Context, text string, vec []float32) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(text), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("embedding cache write failed", zap.Error(err))
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
