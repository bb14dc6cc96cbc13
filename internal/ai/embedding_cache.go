package ai

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"legal-ai-assistant/internal/config"
	"legal-ai-assistant/internal/logger"

	"github.com/redis/go-redis/v9"
)

// CachedEmbedder memoizes embeddings in Redis. Cache failures fall through
// to the wrapped embedder.
type CachedEmbedder struct {
	next      Embedder
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

// NewCachedEmbedder wraps next. namespace should identify the embedding
// model so vectors from different models never mix.
func NewCachedEmbedder(next Embedder, rdb *redis.Client, namespace string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{next: next, rdb: rdb, ttl: ttl, namespace: namespace}
}

// EmbeddingNamespace names the vector space cfg produces: provider, model
// and dimension all change the vectors a text maps to.
func EmbeddingNamespace(cfg *config.Config) string {
	return fmt.Sprintf("%s:%s:%d", cfg.EmbeddingsProvider, cfg.GoogleEmbeddingsModel, cfg.LocalEmbeddingDim)
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if vec, decErr := decodeVector(raw); decErr == nil {
			return vec, nil
		}
		logger.Warn("Discarding corrupt cached embedding", "key", key)
	case !errors.Is(err, redis.Nil):
		logger.Warn("Embedding cache lookup failed", "error", err)
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.rdb.Set(ctx, key, encodeVector(vec), c.ttl).Err(); err != nil {
		logger.Warn("Embedding cache write failed", "error", err)
	}
	return vec, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embedding:%s:%s", c.namespace, hex.EncodeToString(sum[:]))
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("invalid vector length %d", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
