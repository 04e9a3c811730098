package vectorstore

import (
	"DocRAG/backend/go/internal/rag_service/rag/interfaces"
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"DocRAG/backend/go/pkg/logger"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryVectorStore keeps one FlatIndex per source in memory and persists every record
// to a durable RecordStore. Indexes are created on the first write for a source and are
// rebuilt from the durable store by Rebuild.
//
// Insert writes durably first and then appends to the index. A crash between the two
// steps leaves the index behind the durable store until the next Rebuild.
type MemoryVectorStore struct {
	durable interfaces.RecordStore
	log     *logger.Logger

	mu      sync.RWMutex
	indexes map[string]*FlatIndex
	dim     int
}

// NewMemoryVectorStore creates a store backed by durable. Call Rebuild before serving.
func NewMemoryVectorStore(durable interfaces.RecordStore, log *logger.Logger) (*MemoryVectorStore, error) {
	if durable == nil {
		return nil, fmt.Errorf("durable record store is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &MemoryVectorStore{
		durable: durable,
		log:     log,
		indexes: make(map[string]*FlatIndex),
	}, nil
}

// Rebuild replaces every in-memory index with one built from the durable store and
// returns the number of indexed records. On error the existing indexes are kept.
func (s *MemoryVectorStore) Rebuild(ctx context.Context) (int, error) {
	start := time.Now()
	indexes := make(map[string]*FlatIndex)
	pending := make(map[string][]schema.Record)
	dim, total := 0, 0

	err := s.durable.Scan(ctx, func(r schema.Record) error {
		if len(r.Embedding) == 0 {
			s.log.WithField("chunk_id", r.ID).Warn("Skipping record without embedding during rebuild")
			return nil
		}
		if dim == 0 {
			dim = len(r.Embedding)
		}
		if len(r.Embedding) != dim {
			return fmt.Errorf("record %s has %d dimensions, expected %d: %w", r.ID, len(r.Embedding), dim, ErrDimensionMismatch)
		}
		pending[r.SourceID] = append(pending[r.SourceID], r)
		total++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to rebuild vector indexes: %w", err)
	}

	for source, records := range pending {
		idx := NewFlatIndex(dim)
		if err := idx.Add(records); err != nil {
			return 0, err
		}
		indexes[source] = idx
	}

	s.mu.Lock()
	s.indexes = indexes
	s.dim = dim
	s.mu.Unlock()

	s.log.WithFields(map[string]interface{}{
		"sources":     len(indexes),
		"records":     total,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Rebuilt in-memory vector indexes")
	return total, nil
}

// Insert persists records for sourceID and appends them to the source's index.
func (s *MemoryVectorStore) Insert(ctx context.Context, sourceID string, records []schema.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	dim := len(records[0].Embedding)
	if dim == 0 {
		return 0, fmt.Errorf("record %s has no embedding", records[0].ID)
	}
	for i := range records {
		records[i].SourceID = sourceID
		if len(records[i].Embedding) != dim {
			return 0, fmt.Errorf("record %s has %d dimensions, expected %d: %w", records[i].ID, len(records[i].Embedding), dim, ErrDimensionMismatch)
		}
	}

	idx, err := s.indexFor(sourceID, dim)
	if err != nil {
		return 0, err
	}

	n, err := s.durable.InsertMany(ctx, records)
	if err != nil {
		return n, fmt.Errorf("failed to persist records for %s: %w", sourceID, err)
	}
	if n != len(records) {
		// 部分写入时无法确定哪些记录落盘，交给下一次 Rebuild 对齐
		return n, fmt.Errorf("persisted %d of %d records for %s", n, len(records), sourceID)
	}
	if err := idx.Add(records); err != nil {
		return n, err
	}
	return n, nil
}

// indexFor returns the index for sourceID, creating it when absent.
func (s *MemoryVectorStore) indexFor(sourceID string, dim int) (*FlatIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim == 0 {
		s.dim = dim
	}
	if dim != s.dim {
		return nil, fmt.Errorf("source %s has %d dimensions, store has %d: %w", sourceID, dim, s.dim, ErrDimensionMismatch)
	}
	idx, ok := s.indexes[sourceID]
	if !ok {
		idx = NewFlatIndex(dim)
		s.indexes[sourceID] = idx
	}
	return idx, nil
}

// Query searches every source (or only sourceFilter when set), takes up to k hits per
// source, and returns the global top k by descending score.
func (s *MemoryVectorStore) Query(ctx context.Context, vector []float32, sourceFilter string, k int) ([]schema.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	var targets []*FlatIndex
	if sourceFilter != "" {
		if idx, ok := s.indexes[sourceFilter]; ok {
			targets = append(targets, idx)
		}
	} else {
		targets = make([]*FlatIndex, 0, len(s.indexes))
		for _, idx := range s.indexes {
			targets = append(targets, idx)
		}
	}
	s.mu.RUnlock()

	var pooled []schema.ScoredChunk
	for _, idx := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits, err := idx.Search(vector, k)
		if err != nil {
			return nil, err
		}
		pooled = append(pooled, hits...)
	}
	return topK(pooled, k), nil
}

// Sources returns the known source identifiers in lexical order.
func (s *MemoryVectorStore) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make([]string, 0, len(s.indexes))
	for source := range s.indexes {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}

// Count returns the number of indexed vectors for sourceID.
func (s *MemoryVectorStore) Count(sourceID string) int {
	s.mu.RLock()
	idx, ok := s.indexes[sourceID]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return idx.Len()
}

// topK sorts hits by descending score and truncates to k. Equal scores are ordered by
// source and chunk id so pooled results are deterministic.
func topK(hits []schema.ScoredChunk, k int) []schema.ScoredChunk {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Chunk.SourceID != hits[j].Chunk.SourceID {
			return hits[i].Chunk.SourceID < hits[j].Chunk.SourceID
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

var _ interfaces.VectorStore = (*MemoryVectorStore)(nil)
