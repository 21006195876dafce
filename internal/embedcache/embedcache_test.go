package embedcache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/weftworks/loombot/internal/log"
	"github.com/weftworks/loombot/internal/testutil"
)

// fakeEmbedder returns a deterministic vector per text and records every
// batch it receives.
type fakeEmbedder struct {
	batches [][]string
	fail    bool
}

func (f *fakeEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	if f.fail {
		return nil, errors.New("provider unavailable")
	}

	var batch []string
	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		text := documentText(doc)
		batch = append(batch, text)
		embeddings[i] = &ai.Embedding{Embedding: vectorFor(text)}
	}
	f.batches = append(f.batches, batch)
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

// vectorFor builds a tiny distinguishable vector from the text length and
// first byte.
func vectorFor(text string) []float32 {
	var first float32
	if len(text) > 0 {
		first = float32(text[0])
	}
	return []float32{float32(len(text)), first, 1}
}

func newCache(t *testing.T) (*Cache, *fakeEmbedder) {
	t.Helper()
	base := &fakeEmbedder{}
	cache, err := New(base, log.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return cache, base
}

func TestNew_RequiresBase(t *testing.T) {
	if _, err := New(nil, log.NewNop()); err == nil {
		t.Fatal("New(nil) should fail")
	}
}

func TestEmbedSingle_Memoizes(t *testing.T) {
	cache, base := newCache(t)
	ctx := context.Background()

	first, err := cache.EmbedSingle(ctx, "procedimento de tecelagem")
	if err != nil {
		t.Fatalf("EmbedSingle() error: %v", err)
	}

	second, err := cache.EmbedSingle(ctx, "procedimento de tecelagem")
	if err != nil {
		t.Fatalf("EmbedSingle() second call error: %v", err)
	}

	if len(base.batches) != 1 {
		t.Errorf("underlying embedder called %d times, want 1", len(base.batches))
	}
	if cache.BaseCalls() != 1 {
		t.Errorf("BaseCalls() = %d, want 1", cache.BaseCalls())
	}
	if fmt.Sprint(first) != fmt.Sprint(second) {
		t.Errorf("cached vector differs: %v vs %v", first, second)
	}
}

func TestEmbedBatch_OrderPreserved(t *testing.T) {
	cache, base := newCache(t)
	ctx := context.Background()

	// Warm the cache with b and d.
	if _, err := cache.EmbedBatch(ctx, []string{"b", "d"}); err != nil {
		t.Fatalf("warmup error: %v", err)
	}

	texts := []string{"a", "b", "c", "d", "e"}
	vectors, err := cache.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedBatch() error: %v", err)
	}

	if len(vectors) != len(texts) {
		t.Fatalf("got %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, text := range texts {
		want := vectorFor(text)
		if fmt.Sprint(vectors[i]) != fmt.Sprint(want) {
			t.Errorf("vectors[%d] = %v, want %v (text %q)", i, vectors[i], want, text)
		}
	}

	// Warmup plus one batched call for the three misses.
	if len(base.batches) != 2 {
		t.Fatalf("underlying embedder called %d times, want 2", len(base.batches))
	}
	if got := base.batches[1]; len(got) != 3 || got[0] != "a" || got[1] != "c" || got[2] != "e" {
		t.Errorf("second batch = %v, want [a c e]", got)
	}
}

func TestEmbedBatch_AllCached(t *testing.T) {
	cache, base := newCache(t)
	ctx := context.Background()

	texts := []string{"x", "y"}
	if _, err := cache.EmbedBatch(ctx, texts); err != nil {
		t.Fatalf("warmup error: %v", err)
	}

	if _, err := cache.EmbedBatch(ctx, texts); err != nil {
		t.Fatalf("EmbedBatch() error: %v", err)
	}
	if len(base.batches) != 1 {
		t.Errorf("all-cached batch still hit the embedder: %d calls", len(base.batches))
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	cache, base := newCache(t)

	vectors, err := cache.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch(nil) error: %v", err)
	}
	if len(vectors) != 0 {
		t.Errorf("EmbedBatch(nil) = %d vectors, want 0", len(vectors))
	}
	if len(base.batches) != 0 {
		t.Errorf("empty input reached the embedder")
	}
}

func TestEmbedBatch_ErrorPropagates(t *testing.T) {
	cache, base := newCache(t)
	base.fail = true

	if _, err := cache.EmbedBatch(context.Background(), []string{"q"}); err == nil {
		t.Fatal("EmbedBatch() should propagate provider errors")
	}
	if cache.Len() != 0 {
		t.Errorf("failed batch must not populate the cache, Len() = %d", cache.Len())
	}
}

func TestEmbed_GenkitRequestShape(t *testing.T) {
	cache, _ := newCache(t)

	req := &ai.EmbedRequest{Input: []*ai.Document{
		ai.DocumentFromText("um", nil),
		ai.DocumentFromText("dois", nil),
	}}
	resp, err := cache.Embed(context.Background(), req)
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(resp.Embeddings) != 2 {
		t.Fatalf("Embed() returned %d embeddings, want 2", len(resp.Embeddings))
	}
	if fmt.Sprint(resp.Embeddings[1].Embedding) != fmt.Sprint(vectorFor("dois")) {
		t.Errorf("Embed() output order does not match input order")
	}
}

func TestRegisterDefinesNamedEmbedder(t *testing.T) {
	g := genkit.Init(context.Background())
	base := &fakeEmbedder{}
	cache, err := New(base, log.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	embedder := Register(g, "loombot/embedder", cache)
	if embedder == nil {
		t.Fatal("Register() returned nil")
	}
	if got := embedder.Name(); got != "loombot/embedder" {
		t.Errorf("Name() = %q, want %q", got, "loombot/embedder")
	}

	req := &ai.EmbedRequest{Input: []*ai.Document{ai.DocumentFromText("lã cardada", nil)}}
	ctx := context.Background()
	for range 2 {
		resp, err := embedder.Embed(ctx, req)
		if err != nil {
			t.Fatalf("Embed() error: %v", err)
		}
		if len(resp.Embeddings) != 1 {
			t.Fatalf("Embed() returned %d embeddings, want 1", len(resp.Embeddings))
		}
	}
	// The registered embedder goes through the cache, not around it.
	if cache.BaseCalls() != 1 {
		t.Errorf("BaseCalls() = %d, want 1", cache.BaseCalls())
	}
}

func TestEmbedGoogleAI_Memoizes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping live embedder test in short mode")
	}
	setup := testutil.SetupEmbedder(t)

	cache, err := New(setup.Embedder, setup.Logger)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx := context.Background()
	first, err := cache.EmbedSingle(ctx, "prensa de feltro PSF")
	if err != nil {
		t.Fatalf("EmbedSingle() error: %v", err)
	}
	second, err := cache.EmbedSingle(ctx, "prensa de feltro PSF")
	if err != nil {
		t.Fatalf("EmbedSingle() error: %v", err)
	}

	if !slices.Equal(first, second) {
		t.Error("repeated text produced different vectors")
	}
	if cache.BaseCalls() != 1 {
		t.Errorf("BaseCalls() = %d, want 1", cache.BaseCalls())
	}
}

func TestCacheGrowsWithoutEviction(t *testing.T) {
	cache, _ := newCache(t)
	ctx := context.Background()

	for i := range 100 {
		if _, err := cache.EmbedSingle(ctx, fmt.Sprintf("texto %d", i)); err != nil {
			t.Fatalf("EmbedSingle(%d) error: %v", i, err)
		}
	}
	if cache.Len() != 100 {
		t.Errorf("Len() = %d, want 100 (no eviction, ever)", cache.Len())
	}
}
