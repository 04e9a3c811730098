package vectorstore

import (
	"DocRAG/backend/go/internal/database/milvus"
	"DocRAG/backend/go/internal/rag_service/rag/interfaces"
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"DocRAG/backend/go/pkg/logger"
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MilvusStore keeps chunk records in a Milvus collection with an inner-product FLAT index.
// Searches read at strong consistency so an insert is visible to the next query.
type MilvusStore struct {
	log        *logger.Logger
	client     client.Client
	collection string
}

// NewMilvusStore creates a MilvusStore adapter. The collection must already exist and be loaded.
func NewMilvusStore(c client.Client, collectionName string, log *logger.Logger) (*MilvusStore, error) {
	if c == nil {
		return nil, fmt.Errorf("milvus client is not initialized")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &MilvusStore{
		log:        log,
		client:     c,
		collection: collectionName,
	}, nil
}

// Insert writes the records for sourceID as one column batch.
func (s *MilvusStore) Insert(ctx context.Context, sourceID string, records []schema.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	dim := len(records[0].Embedding)
	ids := make([]string, len(records))
	contents := make([]string, len(records))
	filenames := make([]string, len(records))
	sizes := make([]int64, len(records))
	embeddings := make([][]float32, len(records))
	for i, r := range records {
		if len(r.Embedding) != dim || dim == 0 {
			return 0, fmt.Errorf("record %s has %d dimensions, expected %d: %w", r.ID, len(r.Embedding), dim, ErrDimensionMismatch)
		}
		ids[i] = r.ID
		contents[i] = r.Content
		filenames[i] = sourceID
		sizes[i] = int64(r.Size)
		embeddings[i] = r.Embedding
	}

	s.log.Debug(fmt.Sprintf("Inserting %d records into Milvus collection: %s", len(records), s.collection))
	_, err := s.client.Insert(ctx, s.collection, "", /* default partition */
		entity.NewColumnVarChar(milvus.FieldID, ids),
		entity.NewColumnVarChar(milvus.FieldContent, contents),
		entity.NewColumnVarChar(milvus.FieldFilename, filenames),
		entity.NewColumnInt64(milvus.FieldChunkSize, sizes),
		entity.NewColumnFloatVector(milvus.FieldEmbedding, dim, embeddings),
	)
	if err != nil {
		s.log.WithError(err).Error("Failed to insert data into Milvus")
		return 0, fmt.Errorf("failed to insert data into Milvus: %w", err)
	}
	return len(records), nil
}

// Query performs an inner-product search, optionally restricted to one filename.
func (s *MilvusStore) Query(ctx context.Context, vector []float32, sourceFilter string, k int) ([]schema.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	expr := ""
	if sourceFilter != "" {
		expr = fmt.Sprintf("%s == %s", milvus.FieldFilename, strconv.Quote(sourceFilter))
	}
	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	results, err := s.client.Search(
		ctx, s.collection, nil, expr,
		[]string{milvus.FieldID, milvus.FieldContent, milvus.FieldFilename, milvus.FieldChunkSize},
		[]entity.Vector{entity.FloatVector(vector)},
		milvus.FieldEmbedding, entity.IP, k, sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search in Milvus: %w", err)
	}

	var out []schema.ScoredChunk
	for _, res := range results {
		findColumn := func(name string) entity.Column {
			for _, field := range res.Fields {
				if field.Name() == name {
					return field
				}
			}
			return nil
		}

		idCol, ok := findColumn(milvus.FieldID).(*entity.ColumnVarChar)
		if !ok {
			s.log.Warn("Search result is missing ID field or has wrong type, skipping.")
			continue
		}
		contentCol, _ := findColumn(milvus.FieldContent).(*entity.ColumnVarChar)
		filenameCol, _ := findColumn(milvus.FieldFilename).(*entity.ColumnVarChar)
		sizeCol, _ := findColumn(milvus.FieldChunkSize).(*entity.ColumnInt64)

		for i := 0; i < res.ResultCount && i < len(res.Scores); i++ {
			chunk := schema.Chunk{ID: idCol.Data()[i]}
			if contentCol != nil {
				chunk.Content = contentCol.Data()[i]
			}
			if filenameCol != nil {
				chunk.SourceID = filenameCol.Data()[i]
			}
			if sizeCol != nil {
				chunk.Size = int(sizeCol.Data()[i])
			}
			out = append(out, schema.ScoredChunk{Chunk: chunk, Score: float64(res.Scores[i])})
		}
	}
	return topK(out, k), nil
}

// compile-time check to ensure MilvusStore implements the VectorStore interface
var _ interfaces.VectorStore = (*MilvusStore)(nil)
