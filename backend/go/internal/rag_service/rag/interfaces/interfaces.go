package interfaces

import (
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"context"
)

// Loader extracts ordered page texts from raw document bytes.
type Loader interface {
	Load(ctx context.Context, data []byte) ([]schema.Page, error)
}

// Splitter turns extracted document text into chunks for one source.
type Splitter interface {
	Split(text string) []string
	Chunks(sourceID, text string) []schema.Chunk
}

// Embedder maps text to vectors. Batch results are order-aligned with the input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// RecordStore is the durable home of chunk records.
type RecordStore interface {
	InsertMany(ctx context.Context, records []schema.Record) (int, error)
	// Scan calls fn for every persisted record. Returning an error from fn stops the scan.
	Scan(ctx context.Context, fn func(schema.Record) error) error
	CountBySource(ctx context.Context, sourceID string) (int64, error)
	Ping(ctx context.Context) error
}

// VectorStore persists records for a source and answers similarity queries.
// An empty sourceFilter queries every source.
type VectorStore interface {
	Insert(ctx context.Context, sourceID string, records []schema.Record) (int, error)
	Query(ctx context.Context, vector []float32, sourceFilter string, k int) ([]schema.ScoredChunk, error)
}

// Archiver keeps a copy of the raw uploaded bytes.
type Archiver interface {
	Archive(ctx context.Context, sourceID string, data []byte) error
}
