package vectorstore

import (
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"container/heap"
	"errors"
	"fmt"
	"sync"
)

// ErrDimensionMismatch is returned when a vector does not match the width of an index.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// FlatIndex is an exact inner-product index over one source's vectors.
// Writes take the write lock; concurrent searches share the read lock.
type FlatIndex struct {
	mu      sync.RWMutex
	dim     int
	vectors [][]float32
	chunks  []schema.Chunk
}

// NewFlatIndex creates an empty index for vectors of width dim.
func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim}
}

// Dim returns the vector width of the index.
func (f *FlatIndex) Dim() int {
	return f.dim
}

// Len returns the number of stored vectors.
func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Add appends records. Either every record is added or none is.
func (f *FlatIndex) Add(records []schema.Record) error {
	for _, r := range records {
		if len(r.Embedding) != f.dim {
			return fmt.Errorf("record %s has %d dimensions, index has %d: %w", r.ID, len(r.Embedding), f.dim, ErrDimensionMismatch)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		f.vectors = append(f.vectors, r.Embedding)
		f.chunks = append(f.chunks, r.Chunk)
	}
	return nil
}

// Search returns up to k chunks with the highest inner product against query, best first.
// Ties keep insertion order.
func (f *FlatIndex) Search(query []float32, k int) ([]schema.ScoredChunk, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w", len(query), f.dim, ErrDimensionMismatch)
	}
	if k <= 0 {
		return nil, nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	h := make(minHeap, 0, min(k, len(f.vectors)))
	for i, v := range f.vectors {
		s := dot(query, v)
		if len(h) < k {
			heap.Push(&h, hit{pos: i, score: s})
			continue
		}
		if s > h[0].score {
			h[0] = hit{pos: i, score: s}
			heap.Fix(&h, 0)
		}
	}

	out := make([]schema.ScoredChunk, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		top := heap.Pop(&h).(hit)
		out[i] = schema.ScoredChunk{Chunk: f.chunks[top.pos], Score: top.score}
	}
	return out, nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

type hit struct {
	pos   int
	score float64
}

// minHeap keeps the current worst of the top k at the root. On equal scores the later
// insertion is treated as worse so earlier chunks win ties.
type minHeap []hit

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].score == h[j].score {
		return h[i].pos > h[j].pos
	}
	return h[i].score < h[j].score
}
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(hit)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
