package pipeline

import (
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"DocRAG/backend/go/internal/rag_service/rag/splitters"
	"DocRAG/backend/go/internal/rag_service/rag/storages/answercache"
	"DocRAG/backend/go/internal/rag_service/rag/storages/docstore"
	"DocRAG/backend/go/internal/rag_service/rag/storages/vectorstore"
	"DocRAG/backend/go/pkg/logger"
	"context"
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type indexingFixture struct {
	pipeline *IndexingPipeline
	loader   *fakeLoader
	store    *vectorstore.MemoryVectorStore
	durable  *docstore.InMemoryRecordStore
	archiver *fakeArchiver
}

func newIndexingFixture(t *testing.T, maxBytes int64) *indexingFixture {
	t.Helper()
	splitter, err := splitters.NewSentenceSplitter(1000, 200, 50)
	require.NoError(t, err)
	durable := docstore.NewInMemoryRecordStore()
	store, err := vectorstore.NewMemoryVectorStore(durable, logger.NewNop())
	require.NoError(t, err)

	f := &indexingFixture{loader: &fakeLoader{}, store: store, durable: durable, archiver: &fakeArchiver{}}
	f.pipeline = NewIndexingPipeline(f.loader, splitter, &wordEmbedder{}, store, f.archiver, maxBytes, logger.NewNop())
	return f
}

func TestIndexing_ShortSentenceYieldsNoChunks(t *testing.T) {
	f := newIndexingFixture(t, 0)
	f.loader.pages = []schema.Page{{Number: 1, Text: "This sentence has exactly forty chars k."}}

	n, err := f.pipeline.Run(context.Background(), "one.pdf", pdfBytes)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, f.store.Count("one.pdf"))
	assert.Empty(t, f.archiver.sources)
}

func TestIndexing_ProseProducesEmbeddedChunks(t *testing.T) {
	ctx := context.Background()
	f := newIndexingFixture(t, 0)
	text := prose(21)
	half := len(text) / 2
	for text[half] != ' ' {
		half++
	}
	f.loader.pages = []schema.Page{{Number: 1, Text: text[:half]}, {Number: 2, Text: text[half+1:]}}

	n, err := f.pipeline.Run(ctx, "uploads/report.pdf", pdfBytes)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 3)
	assert.LessOrEqual(t, n, 4)
	assert.Equal(t, n, f.store.Count("report.pdf"))

	var records []schema.Record
	require.NoError(t, f.durable.Scan(ctx, func(r schema.Record) error {
		records = append(records, r)
		return nil
	}))
	require.Len(t, records, n)
	for _, r := range records {
		assert.Equal(t, "report.pdf", r.SourceID)
		assert.NotEmpty(t, r.Embedding)
		size := utf8.RuneCountInString(r.Content)
		assert.GreaterOrEqual(t, size, 800)
		assert.LessOrEqual(t, size, 1200)
	}
	assert.Equal(t, []string{"report.pdf"}, f.archiver.sources)
}

func TestIndexing_RejectsUploads(t *testing.T) {
	f := newIndexingFixture(t, 1024*1024)

	_, err := f.pipeline.Run(context.Background(), "notes.txt", pdfBytes)
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = f.pipeline.Run(context.Background(), "fake.pdf", []byte("just some plain text"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	big := append(append([]byte{}, pdfBytes...), make([]byte, 2*1024*1024)...)
	_, err = f.pipeline.Run(context.Background(), "big.pdf", big)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Contains(t, err.Error(), "File size exceeds maximum limit of 1MB")
}

func TestIndexing_CheckUploadAcceptsUppercaseExtension(t *testing.T) {
	f := newIndexingFixture(t, 0)
	assert.NoError(t, f.pipeline.CheckUpload("REPORT.PDF", 10))
	assert.Equal(t, int64(DefaultMaxUploadBytes), f.pipeline.MaxBytes())
}

func TestIndexing_PropagatesExtractionError(t *testing.T) {
	f := newIndexingFixture(t, 0)
	boom := errors.New("broken xref")
	f.loader.err = boom

	_, err := f.pipeline.Run(context.Background(), "broken.pdf", pdfBytes)
	assert.ErrorIs(t, err, boom)
}

func TestIndexing_ArchiveFailureDoesNotFailUpload(t *testing.T) {
	f := newIndexingFixture(t, 0)
	f.loader.pages = []schema.Page{{Number: 1, Text: prose(8)}}
	f.archiver.err = errors.New("bucket gone")

	n, err := f.pipeline.Run(context.Background(), "doc.pdf", pdfBytes)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestIndexing_PropagatesStoreError(t *testing.T) {
	splitter, err := splitters.NewSentenceSplitter(1000, 200, 50)
	require.NoError(t, err)
	store := &staticStore{insertErr: errors.New("write concern failed")}
	loader := &fakeLoader{pages: []schema.Page{{Number: 1, Text: prose(8)}}}
	p := NewIndexingPipeline(loader, splitter, &wordEmbedder{}, store, nil, 0, nil)

	_, err = p.Run(context.Background(), "doc.pdf", pdfBytes)
	assert.ErrorIs(t, err, store.insertErr)
}

func TestIndexing_PropagatesEmbeddingError(t *testing.T) {
	splitter, err := splitters.NewSentenceSplitter(1000, 200, 50)
	require.NoError(t, err)
	embedder := &wordEmbedder{err: errors.New("model unavailable")}
	loader := &fakeLoader{pages: []schema.Page{{Number: 1, Text: prose(8)}}}
	p := NewIndexingPipeline(loader, splitter, embedder, &staticStore{}, nil, 0, nil)

	_, err = p.Run(context.Background(), "doc.pdf", pdfBytes)
	assert.ErrorIs(t, err, embedder.err)
}

func TestIndexing_InvalidatesCachedAnswers(t *testing.T) {
	ctx := context.Background()
	f := newIndexingFixture(t, 0)
	cache, err := answercache.NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	f.pipeline.WithAnswerCache(cache)

	gen := &fakeLLM{reply: "Retrieval ranks chunks."}
	qa := NewQAPipeline(NewRetrievalPipeline(&wordEmbedder{}, f.store, nil), gen, cache, QAOptions{}, nil)
	question := userAsks("How does retrieval work?")

	before, err := qa.Run(ctx, question)
	require.NoError(t, err)
	assert.Empty(t, before.Sources)

	f.loader.pages = []schema.Page{{Number: 1, Text: prose(21)}}
	n, err := f.pipeline.Run(ctx, "guide.pdf", pdfBytes)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	after, err := qa.Run(ctx, question)
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)
	require.NotEmpty(t, after.Sources)
	assert.Equal(t, "guide.pdf", after.Sources[0].SourceID)
}

type brokenCache struct {
	answercache.Cache
	invalidations int
}

func (c *brokenCache) Invalidate(context.Context) error {
	c.invalidations++
	return errors.New("redis: connection refused")
}

func TestIndexing_CacheInvalidationFailureDoesNotFailUpload(t *testing.T) {
	f := newIndexingFixture(t, 0)
	cache := &brokenCache{}
	f.pipeline.WithAnswerCache(cache)

	f.loader.pages = []schema.Page{{Number: 1, Text: "This sentence has exactly forty chars k."}}
	n, err := f.pipeline.Run(context.Background(), "empty.pdf", pdfBytes)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, cache.invalidations, "nothing stored, nothing to invalidate")

	f.loader.pages = []schema.Page{{Number: 1, Text: prose(21)}}
	n, err = f.pipeline.Run(context.Background(), "guide.pdf", pdfBytes)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
	assert.Equal(t, 1, cache.invalidations)
}
