package vectorstore

import (
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"DocRAG/backend/go/internal/rag_service/rag/storages/docstore"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestSearchPipeline(t *testing.T) {
	p := SearchPipeline("vector_index", []float32{0.1, 0.2}, "a.pdf", 4)
	require.Len(t, p, 2)

	stage := p[0][0]
	require.Equal(t, "$vectorSearch", stage.Key)
	search := stage.Value.(bson.D).Map()
	assert.Equal(t, "vector_index", search["index"])
	assert.Equal(t, "embedding", search["path"])
	assert.Equal(t, 40, search["numCandidates"])
	assert.Equal(t, 4, search["limit"])
	assert.Equal(t, bson.D{{Key: "filename", Value: bson.D{{Key: "$eq", Value: "a.pdf"}}}}, search["filter"])

	unfiltered := SearchPipeline("vector_index", []float32{0.1}, "", 3)
	_, hasFilter := unfiltered[0][0].Value.(bson.D).Map()["filter"]
	assert.False(t, hasFilter)
}

func TestAtlasVectorStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("query maps scores back to cosine", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "rag_db.documents", mtest.FirstBatch,
			bson.D{
				{Key: "id", Value: "c1"},
				{Key: "content", Value: "best"},
				{Key: "filename", Value: "a.pdf"},
				{Key: "chunk_size", Value: 4},
				{Key: "score", Value: 0.95},
			},
			bson.D{
				{Key: "id", Value: "c2"},
				{Key: "content", Value: "next"},
				{Key: "filename", Value: "b.pdf"},
				{Key: "chunk_size", Value: 4},
				{Key: "score", Value: 0.75},
			},
		))
		records, err := docstore.NewMongoRecordStore(mt.Coll, 0)
		require.NoError(mt, err)
		s, err := NewAtlasVectorStore(records, "vector_index", 0)
		require.NoError(mt, err)

		hits, err := s.Query(context.Background(), []float32{1, 0}, "", 2)
		require.NoError(mt, err)
		require.Len(mt, hits, 2)
		assert.Equal(mt, "c1", hits[0].Chunk.ID)
		assert.Equal(mt, "a.pdf", hits[0].Chunk.SourceID)
		assert.InDelta(mt, 0.9, hits[0].Score, 1e-9)
		assert.InDelta(mt, 0.5, hits[1].Score, 1e-9)
	})

	mt.Run("insert stamps the source", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		records, err := docstore.NewMongoRecordStore(mt.Coll, 0)
		require.NoError(mt, err)
		s, err := NewAtlasVectorStore(records, "vector_index", 0)
		require.NoError(mt, err)

		batch := []schema.Record{rec("x", "", 1, 0)}
		n, err := s.Insert(context.Background(), "doc.pdf", batch)
		require.NoError(mt, err)
		assert.Equal(mt, 1, n)
		assert.Equal(mt, "doc.pdf", batch[0].SourceID)
	})

	mt.Run("server error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    31082,
			Message: "$vectorSearch is not allowed",
			Name:    "SearchNotEnabled",
		}))
		records, err := docstore.NewMongoRecordStore(mt.Coll, 0)
		require.NoError(mt, err)
		s, err := NewAtlasVectorStore(records, "vector_index", 0)
		require.NoError(mt, err)

		_, err = s.Query(context.Background(), []float32{1, 0}, "", 2)
		assert.Error(mt, err)
	})
}
