package api

import (
	"DocRAG/backend/go/internal/llm"
	"DocRAG/backend/go/internal/models"
	"DocRAG/backend/go/internal/rag_service/rag/loaders"
	"DocRAG/backend/go/internal/rag_service/rag/pipeline"
	"DocRAG/backend/go/pkg/circuitbreaker"
	"DocRAG/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// multipartSlack covers multipart headers and boundaries around the file part.
const multipartSlack = 1 << 20

// Service is what the handlers need from the RAG service.
type Service interface {
	CheckUpload(filename string, size int64) error
	MaxUploadBytes() int64
	Upload(ctx context.Context, filename string, data []byte) (models.UploadResponse, error)
	Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error)
	ChatStream(ctx context.Context, req models.ChatRequest, onToken llm.TokenHandler) (models.ChatResponse, error)
	Health(ctx context.Context) error
}

// API provides handlers for the RAG service.
type API struct {
	service Service
	logger  *logger.Logger
}

// NewAPI creates a new API handler.
func NewAPI(service Service, logger *logger.Logger) *API {
	return &API{service: service, logger: logger}
}

// UploadHandler indexes the PDF sent in the multipart field "file".
func (a *API) UploadHandler(c *gin.Context) {
	maxBytes := a.service.MaxUploadBytes()
	tooLargeMsg := fmt.Sprintf("%s of %dMB", pipeline.ErrFileTooLarge, maxBytes/(1024*1024))
	if c.Request.ContentLength > maxBytes+multipartSlack {
		a.fail(c, http.StatusRequestEntityTooLarge, tooLargeMsg, pipeline.ErrFileTooLarge)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartSlack)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.fail(c, http.StatusRequestEntityTooLarge, tooLargeMsg, err)
			return
		}
		a.fail(c, http.StatusBadRequest, "No file provided in field 'file'", err)
		return
	}
	if err := a.service.CheckUpload(fileHeader.Filename, fileHeader.Size); err != nil {
		a.fail(c, statusFor(err), err.Error(), err)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		a.fail(c, http.StatusBadRequest, "Failed to read uploaded file", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		a.fail(c, http.StatusBadRequest, "Failed to read uploaded file", err)
		return
	}

	resp, err := a.service.Upload(c.Request.Context(), fileHeader.Filename, data)
	if err != nil {
		a.fail(c, statusFor(err), messageFor(err), err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ChatHandler answers the last user message of the posted conversation.
func (a *API) ChatHandler(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	resp, err := a.service.Chat(c.Request.Context(), req)
	if err != nil {
		a.fail(c, statusFor(err), messageFor(err), err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ChatStreamHandler answers like ChatHandler but streams the reply as Server-Sent Events:
// one "token" event per fragment, then a "sources" event, or an "error" event on failure.
func (a *API) ChatStreamHandler(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}
	if err := pipeline.Validate(req); err != nil {
		a.fail(c, http.StatusBadRequest, err.Error(), err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	resp, err := a.service.ChatStream(c.Request.Context(), req, func(token string) error {
		if err := c.Request.Context().Err(); err != nil {
			return err
		}
		c.SSEvent("token", token)
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		a.logger.WithError(err).Error("Streaming chat failed")
		c.SSEvent("error", gin.H{"error": messageFor(err)})
		c.Writer.Flush()
		return
	}
	c.SSEvent("sources", resp.Sources)
	c.Writer.Flush()
}

// HealthHandler reports whether the durable store is reachable.
func (a *API) HealthHandler(c *gin.Context) {
	if err := a.service.Health(c.Request.Context()); err != nil {
		a.logger.WithError(err).Error("Health check failed")
		c.JSON(http.StatusServiceUnavailable, models.HealthResponse{Status: "unhealthy", Detail: "document store is unreachable"})
		return
	}
	c.JSON(http.StatusOK, models.HealthResponse{Status: "healthy"})
}

func (a *API) fail(c *gin.Context, status int, msg string, err error) {
	entry := a.logger.WithError(err).WithField("path", c.FullPath())
	if status >= http.StatusInternalServerError {
		entry.Error(msg)
	} else {
		entry.Warn(msg)
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest), errors.Is(err, pipeline.ErrUnsupportedFile):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, loaders.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case errors.Is(err, pipeline.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messageFor keeps internal details out of responses for server-side failures.
func messageFor(err error) string {
	switch statusFor(err) {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return err.Error()
	case http.StatusUnprocessableEntity:
		return "Failed to extract text from the PDF"
	case http.StatusServiceUnavailable:
		return "The language model is temporarily unavailable"
	case http.StatusBadGateway:
		return "Failed to generate an answer"
	default:
		return "Internal server error"
	}
}
