package api

import (
	"DocRAG/backend/go/pkg/httpmiddleware"
	"DocRAG/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine serving the RAG API.
func NewRouter(api *API, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), httpmiddleware.RequestLogger(log))
	RegisterRoutes(router, api)
	return router
}

// RegisterRoutes registers all the routes for the RAG service.
func RegisterRoutes(router *gin.Engine, api *API) {
	router.GET("/health", api.HealthHandler)

	// All document routes live under /api/v1/rag
	rag := router.Group("/api/v1/rag")
	{
		rag.POST("/upload", api.UploadHandler)
		rag.POST("/chat", api.ChatHandler)
		rag.POST("/chat/stream", api.ChatStreamHandler)
	}
}
