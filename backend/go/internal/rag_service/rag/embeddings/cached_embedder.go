package embeddings

import (
	"DocRAG/backend/go/internal/embedding"
	"DocRAG/backend/go/internal/rag_service/rag/interfaces"
	"DocRAG/backend/go/pkg/util"
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultCacheSize = 1000
	DefaultBatchSize = 32
	DefaultWorkers   = 4
)

// ErrEmptyText is returned when an empty string is submitted for embedding.
var ErrEmptyText = errors.New("cannot embed empty text")

// Options configures a CachedEmbedder. Zero values select the defaults.
type Options struct {
	CacheSize int
	BatchSize int
	Workers   int
	// Normalize scales every vector to unit length before it is cached.
	Normalize bool
}

// CachedEmbedder memoizes model output by exact input text and fans cache misses out to the
// model in fixed-size batches over a bounded worker pool.
type CachedEmbedder struct {
	model     embedding.Embedding
	cache     *util.LRUCache[string, []float32]
	batchSize int
	workers   int
	normalize bool
}

// NewCachedEmbedder wraps model. The model is shared and must be safe for concurrent use.
func NewCachedEmbedder(model embedding.Embedding, opts Options) (*CachedEmbedder, error) {
	if model == nil {
		return nil, fmt.Errorf("embedding model is required")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	cache, err := util.NewLRU[string, []float32](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEmbedder{
		model:     model,
		cache:     cache,
		batchSize: opts.BatchSize,
		workers:   opts.Workers,
		normalize: opts.Normalize,
	}, nil
}

// Embed returns the vector for text, consulting the cache first.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input, in input order. Repeated texts within the batch are
// sent to the model once.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	pending := make(map[string][]int)
	var misses []string

	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("input %d: %w", i, ErrEmptyText)
		}
		if v, ok := e.cache.Get(text); ok {
			out[i] = v
			continue
		}
		if _, seen := pending[text]; !seen {
			misses = append(misses, text)
		}
		pending[text] = append(pending[text], i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	computed := make([][]float32, len(misses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for start := 0; start < len(misses); start += e.batchSize {
		end := min(start+e.batchSize, len(misses))
		g.Go(func() error {
			vectors, err := e.model.EmbedBatch(gctx, misses[start:end])
			if err != nil {
				return fmt.Errorf("failed to embed batch [%d:%d]: %w", start, end, err)
			}
			if len(vectors) != end-start {
				return fmt.Errorf("model returned %d vectors for %d texts", len(vectors), end-start)
			}
			// 每个 goroutine 只写自己负责的区间
			copy(computed[start:end], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, text := range misses {
		v := computed[i]
		if e.normalize {
			v = Normalize(v)
		}
		e.cache.Put(text, v, 1)
		for _, idx := range pending[text] {
			out[idx] = v
		}
	}
	return out, nil
}

// Stats exposes the cache counters.
func (e *CachedEmbedder) Stats() util.CacheStats {
	return e.cache.Stats()
}

// Normalize returns a unit-length copy of v. The zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

var _ interfaces.Embedder = (*CachedEmbedder)(nil)
