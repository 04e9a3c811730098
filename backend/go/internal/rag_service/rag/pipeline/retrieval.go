package pipeline

import (
	"DocRAG/backend/go/internal/rag_service/rag/interfaces"
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"DocRAG/backend/go/pkg/logger"
)

// DefaultTopK is the number of chunks retrieved per question when the caller does not choose.
const DefaultTopK = 3

// UnknownSource labels hits whose record carries no filename.
const UnknownSource = "Unknown source"

// RetrievalPipeline embeds a query and asks the vector store for the closest chunks.
type RetrievalPipeline struct {
	embedder    interfaces.Embedder
	vectorStore interfaces.VectorStore
	log         *logger.Logger
}

// NewRetrievalPipeline creates a new RetrievalPipeline.
func NewRetrievalPipeline(embedder interfaces.Embedder, vectorStore interfaces.VectorStore, log *logger.Logger) *RetrievalPipeline {
	if log == nil {
		log = logger.NewNop()
	}
	return &RetrievalPipeline{
		embedder:    embedder,
		vectorStore: vectorStore,
		log:         log,
	}
}

// Search returns at most k results ordered by descending score.
// Failures are logged and reported as an empty result; Search never returns an error.
func (p *RetrievalPipeline) Search(ctx context.Context, query string, k int) []schema.SearchResult {
	return p.SearchSource(ctx, query, "", k)
}

// SearchSource is Search restricted to one source. An empty sourceID searches every source.
func (p *RetrievalPipeline) SearchSource(ctx context.Context, query, sourceID string, k int) []schema.SearchResult {
	if k <= 0 {
		k = DefaultTopK
	}
	if strings.TrimSpace(query) == "" {
		p.log.Warn("Skipping retrieval for an empty query")
		return []schema.SearchResult{}
	}

	vector, err := p.embedder.Embed(ctx, query)
	if err != nil {
		p.log.WithError(err).Error("Failed to embed query")
		return []schema.SearchResult{}
	}

	hits, err := p.vectorStore.Query(ctx, vector, sourceID, k)
	if err != nil {
		p.log.WithError(err).WithField("source_id", sourceID).Error("Failed to query vector store")
		return []schema.SearchResult{}
	}

	results := make([]schema.SearchResult, 0, len(hits))
	for _, hit := range hits {
		if strings.TrimSpace(hit.Chunk.Content) == "" {
			continue
		}
		source := hit.Chunk.SourceID
		if source == "" {
			source = UnknownSource
		}
		results = append(results, schema.SearchResult{
			Content:  hit.Chunk.Content,
			SourceID: source,
			Score:    roundScore(hit.Score),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}

	p.log.Info(fmt.Sprintf("Retrieved %d chunks for query", len(results)))
	return results
}

func roundScore(s float64) float64 {
	return math.Round(s*1e4) / 1e4
}
