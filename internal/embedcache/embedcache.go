// Package embedcache memoizes embedding computations keyed by exact input
// text.
//
// Documentation passages and user queries repeat heavily, and every
// embedding is a paid network call, so the cache sits between every embedding
// consumer and the provider. The cache never evicts: it lives for the process
// lifetime and grows with the set of distinct texts embedded.
package embedcache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Embedder is the narrow consumer-side view of the underlying embedding
// provider. ai.Embedder satisfies it.
type Embedder interface {
	Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error)
}

// Cache wraps an Embedder with exact-text memoization.
// Safe for concurrent use.
type Cache struct {
	base   Embedder
	logger *slog.Logger

	mu        sync.Mutex
	entries   map[string][]float32
	baseCalls int64
}

// New creates a Cache around base.
func New(base Embedder, logger *slog.Logger) (*Cache, error) {
	if base == nil {
		return nil, fmt.Errorf("base embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		base:    base,
		logger:  logger,
		entries: make(map[string][]float32),
	}, nil
}

// EmbedSingle returns the embedding for text, computing it through the
// underlying embedder only on a cache miss.
func (c *Cache) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one embedding per input text, in input order. Texts
// already cached are served from memory; the remainder is computed with
// exactly one batched call to the underlying embedder. Every newly computed
// vector is cached.
func (c *Cache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	c.mu.Lock()
	for i, text := range texts {
		if vec, ok := c.entries[text]; ok {
			vectors[i] = vec
		} else {
			missing = append(missing, text)
			missingIdx = append(missingIdx, i)
		}
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return vectors, nil
	}

	docs := make([]*ai.Document, len(missing))
	for i, text := range missing {
		docs[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := c.embedBase(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("embedding %d uncached texts: %w", len(missing), err)
	}
	if len(resp.Embeddings) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(resp.Embeddings), len(missing))
	}

	c.mu.Lock()
	for i, emb := range resp.Embeddings {
		vectors[missingIdx[i]] = emb.Embedding
		c.entries[missing[i]] = emb.Embedding
	}
	size := len(c.entries)
	c.mu.Unlock()

	c.logger.Debug("embedded uncached texts",
		"misses", len(missing),
		"hits", len(texts)-len(missing),
		"cache_size", size)

	return vectors, nil
}

// Embed implements the genkit embedder function signature over the cache,
// so the Cache can stand in wherever an embedding callback is expected.
// Output order matches request input order for any hit/miss pattern.
func (c *Cache) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	texts := make([]string, len(req.Input))
	for i, doc := range req.Input {
		texts[i] = documentText(doc)
	}

	vectors, err := c.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	embeddings := make([]*ai.Embedding, len(vectors))
	for i, vec := range vectors {
		embeddings[i] = &ai.Embedding{Embedding: vec}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// BaseCalls returns how many times the underlying embedder has been invoked.
// Exposed for tests and observability.
func (c *Cache) BaseCalls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseCalls
}

// embedBase calls the wrapped embedder and counts the call.
func (c *Cache) embedBase(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	c.mu.Lock()
	c.baseCalls++
	c.mu.Unlock()
	return c.base.Embed(ctx, req)
}

// Register registers the cache as a named genkit embedder so retrievers and
// indexers can address it like any other embedder.
func Register(g *genkit.Genkit, name string, c *Cache) ai.Embedder {
	return genkit.DefineEmbedder(g, name, &ai.EmbedderOptions{
		Label: "Memoizing embedder",
	}, c.Embed)
}

// documentText flattens a document's text parts into one string.
func documentText(doc *ai.Document) string {
	if doc == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range doc.Content {
		if part.IsText() {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
