package pipeline

import (
	"DocRAG/backend/go/internal/rag_service/rag/interfaces"
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"DocRAG/backend/go/internal/rag_service/rag/storages/answercache"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"DocRAG/backend/go/pkg/logger"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxUploadBytes is the upload limit used when none is configured.
const DefaultMaxUploadBytes = 20 * 1024 * 1024

var (
	// ErrUnsupportedFile reports an upload that is not a PDF.
	ErrUnsupportedFile = errors.New("only PDF files are supported")
	// ErrFileTooLarge reports an upload above the configured limit. The text is shown to clients as is.
	ErrFileTooLarge = errors.New("File size exceeds maximum limit")
)

// IndexingPipeline turns an uploaded PDF into stored, embedded chunks.
type IndexingPipeline struct {
	loader      interfaces.Loader
	splitter    interfaces.Splitter
	embedder    interfaces.Embedder
	vectorStore interfaces.VectorStore
	archiver    interfaces.Archiver
	answers     answercache.Cache
	maxBytes    int64
	log         *logger.Logger
}

// NewIndexingPipeline creates a new IndexingPipeline.
// The archiver is optional and can be nil. A maxBytes of zero selects DefaultMaxUploadBytes.
func NewIndexingPipeline(
	loader interfaces.Loader,
	splitter interfaces.Splitter,
	embedder interfaces.Embedder,
	vectorStore interfaces.VectorStore,
	archiver interfaces.Archiver,
	maxBytes int64,
	log *logger.Logger,
) *IndexingPipeline {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &IndexingPipeline{
		loader:      loader,
		splitter:    splitter,
		embedder:    embedder,
		vectorStore: vectorStore,
		archiver:    archiver,
		maxBytes:    maxBytes,
		log:         log,
	}
}

// WithAnswerCache makes every ingest that stores chunks invalidate cache, so answers
// generated before the upload are not served after it.
func (p *IndexingPipeline) WithAnswerCache(cache answercache.Cache) *IndexingPipeline {
	p.answers = cache
	return p
}

// MaxBytes is the largest upload Run accepts.
func (p *IndexingPipeline) MaxBytes() int64 {
	return p.maxBytes
}

// CheckUpload rejects files by name and size before any bytes are parsed.
func (p *IndexingPipeline) CheckUpload(filename string, size int64) error {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return ErrUnsupportedFile
	}
	if size > p.maxBytes {
		return fmt.Errorf("%w of %dMB", ErrFileTooLarge, p.maxBytes/(1024*1024))
	}
	return nil
}

// Run indexes one uploaded PDF and returns the number of chunks stored.
// The source id is the base name of filename. A document yielding no chunks is not an error.
func (p *IndexingPipeline) Run(ctx context.Context, filename string, data []byte) (int, error) {
	sourceID := filepath.Base(filename)
	log := p.log.WithField("source_id", sourceID)

	if err := p.CheckUpload(sourceID, int64(len(data))); err != nil {
		log.WithError(err).Warn("Rejected upload")
		return 0, err
	}
	if mt := mimetype.Detect(data); !mt.Is("application/pdf") {
		log.Warn(fmt.Sprintf("Rejected upload with content type %s", mt.String()))
		return 0, fmt.Errorf("%w: content is %s", ErrUnsupportedFile, mt.String())
	}
	log.Info(fmt.Sprintf("Starting indexing of %d bytes", len(data)))

	// 1. Extract page texts
	pages, err := p.loader.Load(ctx, data)
	if err != nil {
		log.WithError(err).Error("Failed to extract text")
		return 0, err
	}
	texts := make([]string, 0, len(pages))
	for _, page := range pages {
		texts = append(texts, page.Text)
	}

	// 2. Split into chunks
	chunks := p.splitter.Chunks(sourceID, strings.Join(texts, " "))
	if len(chunks) == 0 {
		log.Warn(fmt.Sprintf("No chunks produced from %d pages", len(pages)))
		return 0, nil
	}
	log.Info(fmt.Sprintf("Split %d pages into %d chunks", len(pages), len(chunks)))

	// 3. Embed the chunks
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	vectors, err := p.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		log.WithError(err).Error("Failed to embed chunks")
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	records := make([]schema.Record, len(chunks))
	for i, c := range chunks {
		records[i] = schema.Record{Chunk: c, Embedding: vectors[i]}
	}

	// 4. Store the records and archive the raw upload concurrently
	var stored int
	eg, gCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		n, err := p.vectorStore.Insert(gCtx, sourceID, records)
		if err != nil {
			log.WithError(err).Error("Failed to store chunks")
			return fmt.Errorf("failed to store chunks: %w", err)
		}
		stored = n
		return nil
	})
	if p.archiver != nil {
		eg.Go(func() error {
			if err := p.archiver.Archive(gCtx, sourceID, data); err != nil {
				log.WithError(err).Warn("Failed to archive upload")
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}
	if p.answers != nil && stored > 0 {
		if err := p.answers.Invalidate(ctx); err != nil {
			log.WithError(err).Error("Failed to invalidate cached answers")
		}
	}

	total := 0
	for _, c := range chunks {
		total += c.Size
	}
	log.Info(fmt.Sprintf("Indexed %d chunks (average %d characters)", stored, total/len(chunks)))
	return stored, nil
}
