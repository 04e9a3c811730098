package service

import (
	"DocRAG/backend/go/internal/llm"
	"DocRAG/backend/go/internal/models"
	"DocRAG/backend/go/internal/rag_service/rag/pipeline"
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"fmt"

	"DocRAG/backend/go/pkg/logger"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the document question-answering service behind the HTTP API.
type Server struct {
	log      *logger.Logger
	indexing *pipeline.IndexingPipeline
	qa       *pipeline.QAPipeline
	durable  Pinger
}

// NewServer creates a new Server.
func NewServer(log *logger.Logger, indexing *pipeline.IndexingPipeline, qa *pipeline.QAPipeline, durable Pinger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{
		log:      log,
		indexing: indexing,
		qa:       qa,
		durable:  durable,
	}
}

// CheckUpload validates an upload's name and declared size before its body is read.
func (s *Server) CheckUpload(filename string, size int64) error {
	return s.indexing.CheckUpload(filename, size)
}

// MaxUploadBytes is the largest accepted upload.
func (s *Server) MaxUploadBytes() int64 {
	return s.indexing.MaxBytes()
}

// Upload indexes one PDF.
func (s *Server) Upload(ctx context.Context, filename string, data []byte) (models.UploadResponse, error) {
	s.log.Info(fmt.Sprintf("Received upload %s (%d bytes)", filename, len(data)))

	n, err := s.indexing.Run(ctx, filename, data)
	if err != nil {
		return models.UploadResponse{}, err
	}
	return models.UploadResponse{
		Message:       fmt.Sprintf("File %s processed successfully", filename),
		DocumentCount: n,
	}, nil
}

// Chat answers the latest user message of a conversation.
func (s *Server) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	s.log.Info(fmt.Sprintf("Received chat request with %d messages", len(req.Messages)))

	answer, err := s.qa.Run(ctx, req)
	if err != nil {
		return models.ChatResponse{}, err
	}
	return toChatResponse(answer), nil
}

// ChatStream is Chat with incremental delivery of the generated text.
func (s *Server) ChatStream(ctx context.Context, req models.ChatRequest, onToken llm.TokenHandler) (models.ChatResponse, error) {
	s.log.Info(fmt.Sprintf("Received streaming chat request with %d messages", len(req.Messages)))

	answer, err := s.qa.RunStream(ctx, req, onToken)
	if err != nil {
		return models.ChatResponse{}, err
	}
	return toChatResponse(answer), nil
}

// Health pings the durable store.
func (s *Server) Health(ctx context.Context) error {
	if s.durable == nil {
		return nil
	}
	if err := s.durable.Ping(ctx); err != nil {
		s.log.WithError(err).Warn("Durable store ping failed")
		return err
	}
	return nil
}

// Sources converts retrieval results to their API shape.
func Sources(results []schema.SearchResult) []models.Source {
	sources := make([]models.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, models.Source{
			Content:  r.Content,
			Filename: r.SourceID,
			Score:    r.Score,
		})
	}
	return sources
}

func toChatResponse(answer schema.Answer) models.ChatResponse {
	return models.ChatResponse{
		Response: answer.Text,
		Sources:  Sources(answer.Sources),
	}
}
