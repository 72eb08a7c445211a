package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"reqgraph/backend/pkg/logger"
)

// CachedEmbedder wraps an Embedder with a redis cache keyed on the model
// and the text hash. Cache failures are logged and fall through to the
// wrapped embedder.
type CachedEmbedder struct {
	inner  Embedder
	client *redis.Client
	model  string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient parses url and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewCachedEmbedder creates a caching embedder. A ttl of zero keeps entries
// forever.
func NewCachedEmbedder(inner Embedder, client *redis.Client, model string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		client: client,
		model:  model,
		ttl:    ttl,
		logger: logger.Get(),
	}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + c.model + ":" + hex.EncodeToString(sum[:])
}

// Embed implements Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder. Only texts missing from the cache are sent
// to the wrapped embedder.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float32, len(texts))
	cached, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("Embedding cache read failed", zap.Error(err))
		cached = nil
	}
	var missing []int
	for i := range texts {
		if i < len(cached) {
			if s, ok := cached[i].(string); ok {
				var vec []float32
				if err := json.Unmarshal([]byte(s), &vec); err == nil && len(vec) > 0 {
					out[i] = vec
					continue
				}
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	batch := make([]string, len(missing))
	for j, i := range missing {
		batch[j] = texts[i]
	}
	fresh, err := c.inner.EmbedBatch(ctx, batch)
	if err != nil {
		return nil, err
	}

	pipe := c.client.Pipeline()
	for j, i := range missing {
		out[i] = fresh[j]
		data, err := json.Marshal(fresh[j])
		if err != nil {
			continue
		}
		pipe.Set(ctx, keys[i], data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("Embedding cache write failed", zap.Error(err))
	}

	c.logger.Debug("Embeddings resolved",
		zap.Int("requested", len(texts)),
		zap.Int("cache_hits", len(texts)-len(missing)),
	)
	return out, nil
}
