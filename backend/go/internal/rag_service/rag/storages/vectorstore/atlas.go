package vectorstore

import (
	"DocRAG/backend/go/internal/rag_service/rag/interfaces"
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"DocRAG/backend/go/internal/rag_service/rag/storages/docstore"
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CandidateFactor is the over-fetch multiplier for approximate search.
const CandidateFactor = 10

// AtlasVectorStore delegates ranking to MongoDB Atlas $vectorSearch on the record collection.
// The search index must use the cosine similarity on the "embedding" path and declare
// "filename" as a filter field.
type AtlasVectorStore struct {
	records *docstore.MongoRecordStore
	index   string
	timeout time.Duration
}

// NewAtlasVectorStore creates a store over records using the named search index.
func NewAtlasVectorStore(records *docstore.MongoRecordStore, index string, timeout time.Duration) (*AtlasVectorStore, error) {
	if records == nil {
		return nil, fmt.Errorf("mongo record store is required")
	}
	if index == "" {
		return nil, fmt.Errorf("vector search index name is required")
	}
	if timeout <= 0 {
		timeout = docstore.DefaultOpTimeout
	}
	return &AtlasVectorStore{records: records, index: index, timeout: timeout}, nil
}

// Insert persists the records. The Atlas index picks them up on its own.
func (s *AtlasVectorStore) Insert(ctx context.Context, sourceID string, records []schema.Record) (int, error) {
	for i := range records {
		records[i].SourceID = sourceID
	}
	return s.records.InsertMany(ctx, records)
}

// Query runs $vectorSearch with numCandidates = k*CandidateFactor and limit = k.
func (s *AtlasVectorStore) Query(ctx context.Context, vector []float32, sourceFilter string, k int) ([]schema.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cursor, err := s.records.Collection().Aggregate(ctx, SearchPipeline(s.index, vector, sourceFilter, k))
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer cursor.Close(ctx)

	var hits []atlasHit
	if err := cursor.All(ctx, &hits); err != nil {
		return nil, fmt.Errorf("failed to decode vector search results: %w", err)
	}

	out := make([]schema.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, schema.ScoredChunk{
			Chunk: schema.Chunk{ID: h.ID, Content: h.Content, SourceID: h.Filename, Size: h.ChunkSize},
			// Atlas 余弦得分为 (1+cos)/2，映射回 [-1, 1]
			Score: 2*h.Score - 1,
		})
	}
	return topK(out, k), nil
}

type atlasHit struct {
	ID        string  `bson:"id"`
	Content   string  `bson:"content"`
	Filename  string  `bson:"filename"`
	ChunkSize int     `bson:"chunk_size"`
	Score     float64 `bson:"score"`
}

// SearchPipeline builds the aggregation for one vector query.
func SearchPipeline(index string, vector []float32, sourceFilter string, k int) mongo.Pipeline {
	search := bson.D{
		{Key: "index", Value: index},
		{Key: "path", Value: "embedding"},
		{Key: "queryVector", Value: vector},
		{Key: "numCandidates", Value: k * CandidateFactor},
		{Key: "limit", Value: k},
	}
	if sourceFilter != "" {
		search = append(search, bson.E{Key: "filter", Value: bson.D{
			{Key: "filename", Value: bson.D{{Key: "$eq", Value: sourceFilter}}},
		}})
	}
	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: search}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "id", Value: 1},
			{Key: "content", Value: 1},
			{Key: "filename", Value: 1},
			{Key: "chunk_size", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
}

var _ interfaces.VectorStore = (*AtlasVectorStore)(nil)
