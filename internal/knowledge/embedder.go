package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	gocache "github.com/patrickmn/go-cache"
	"google.golang.org/genai"
)

// VectorDimension is the embedding width stored in the chunks table.
// gemini-embedding-001 outputs 3072 dimensions by default but supports
// truncation via OutputDimensionality; the pgvector schema uses 768.
const VectorDimension int32 = 768

// Embedding cache retention. Chunk ingestion and query embedding both go
// through the cache, so a query repeated across collections within one
// request costs a single upstream call.
const (
	embedCacheTTL     = 30 * time.Minute
	embedCacheCleanup = 10 * time.Minute
)

// Embedder wraps a genkit ai.Embedder with a content-addressed cache.
//
// Embedder is safe for concurrent use by multiple goroutines.
type Embedder struct {
	embedder ai.Embedder
	cache    *gocache.Cache
}

// NewEmbedder creates a caching embedder around the given upstream.
func NewEmbedder(embedder ai.Embedder) *Embedder {
	return &Embedder{
		embedder: embedder,
		cache:    gocache.New(embedCacheTTL, embedCacheCleanup),
	}
}

// Embed returns the embedding vector for text, consulting the cache first.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := e.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	dim := VectorDimension
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	vec := resp.Embeddings[0].Embedding
	e.cache.Set(key, vec, gocache.DefaultExpiration)
	return vec, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
