package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"DocRAG/backend/go/internal/config"
	"DocRAG/backend/go/internal/database/milvus"
	"DocRAG/backend/go/internal/database/minio"
	"DocRAG/backend/go/internal/database/mongo"
	"DocRAG/backend/go/internal/database/redis"
	"DocRAG/backend/go/internal/embedding"
	"DocRAG/backend/go/internal/llm"
	"DocRAG/backend/go/internal/rag_service/api"
	"DocRAG/backend/go/internal/rag_service/rag/embeddings"
	"DocRAG/backend/go/internal/rag_service/rag/interfaces"
	"DocRAG/backend/go/internal/rag_service/rag/loaders"
	"DocRAG/backend/go/internal/rag_service/rag/pipeline"
	"DocRAG/backend/go/internal/rag_service/rag/splitters"
	"DocRAG/backend/go/internal/rag_service/rag/storages/answercache"
	"DocRAG/backend/go/internal/rag_service/rag/storages/blobstore"
	"DocRAG/backend/go/internal/rag_service/rag/storages/docstore"
	"DocRAG/backend/go/internal/rag_service/rag/storages/vectorstore"
	"DocRAG/backend/go/internal/rag_service/service"
	pkghttp "DocRAG/backend/go/pkg/http"
	"DocRAG/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
)

const defaultConfigPath = "config/config.yaml"

func main() {
	// 1. Load Configuration
	configPath := defaultConfigPath
	if p := os.Getenv("DOCRAG_CONFIG"); p != "" {
		configPath = p
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize Logger
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	appLogger := logger.New("RAGService", "", "")
	appLogger.Info(fmt.Sprintf("Starting %s %s (%s)", cfg.App.Name, cfg.App.Version, cfg.App.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	closers, err := run(ctx, cfg, appLogger)
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	if err != nil {
		appLogger.WithError(err).Error("RAG service stopped with an error")
		os.Exit(1)
	}
	appLogger.Info("RAG service stopped")
}

// run wires every component, serves until ctx is cancelled and returns the cleanup functions
// of everything it opened.
func run(ctx context.Context, cfg *config.AppConfig, appLogger *logger.Logger) ([]func(), error) {
	var closers []func()
	opTimeout := config.ParseDuration(cfg.Databases.MongoDB.AcquireTimeout, docstore.DefaultOpTimeout)

	// 3. Durable store
	var durable interfaces.RecordStore
	var mongoRecords *docstore.MongoRecordStore
	switch cfg.RAG.DurableStore {
	case config.DurableMemory:
		appLogger.Warn("Using the in-memory durable store; chunks will not survive a restart")
		durable = docstore.NewInMemoryRecordStore()
	default:
		client, err := mongo.Connect(ctx, cfg.Databases.MongoDB)
		if err != nil {
			return closers, err
		}
		closers = append(closers, func() { _ = client.Disconnect(context.Background()) })
		appLogger.Info(fmt.Sprintf("Connected to MongoDB database %s", cfg.Databases.MongoDB.Database))

		mongoRecords, err = docstore.NewMongoRecordStore(mongo.Collection(client, cfg.Databases.MongoDB), opTimeout)
		if err != nil {
			return closers, err
		}
		if err := mongoRecords.EnsureIndexes(ctx); err != nil {
			return closers, fmt.Errorf("failed to create record indexes: %w", err)
		}
		durable = mongoRecords
	}

	// 4. Vector store
	var store interfaces.VectorStore
	switch cfg.RAG.VectorStore {
	case config.VectorStoreAtlas:
		atlas, err := vectorstore.NewAtlasVectorStore(mongoRecords, cfg.Databases.MongoDB.VectorIndex, opTimeout)
		if err != nil {
			return closers, err
		}
		store = atlas
	case config.VectorStoreMilvus:
		c, err := milvus.Connect(ctx, cfg.Databases.Milvus)
		if err != nil {
			return closers, err
		}
		closers = append(closers, func() { _ = c.Close() })
		if err := milvus.EnsureCollection(ctx, c, cfg.Databases.Milvus); err != nil {
			return closers, err
		}
		ms, err := vectorstore.NewMilvusStore(c, cfg.Databases.Milvus.Collection, appLogger.WithField("component", "milvus"))
		if err != nil {
			return closers, err
		}
		store = ms
	default:
		mem, err := vectorstore.NewMemoryVectorStore(durable, appLogger.WithField("component", "vectorstore"))
		if err != nil {
			return closers, err
		}
		start := time.Now()
		n, err := mem.Rebuild(ctx)
		if err != nil {
			return closers, fmt.Errorf("failed to rebuild vector indices: %w", err)
		}
		appLogger.Info(fmt.Sprintf("Rebuilt %d source indices with %d records in %s", len(mem.Sources()), n, time.Since(start)))
		store = mem
	}

	// 5. Embedding model and cache
	httpClient, err := pkghttp.NewClient(cfg.Embedding.CircuitBreaker, config.ParseDuration(cfg.Embedding.Timeout, pkghttp.DefaultClientTimeout))
	if err != nil {
		return closers, err
	}
	model, err := embedding.NewEmdModel(ctx, cfg.Embedding, httpClient)
	if err != nil {
		return closers, fmt.Errorf("failed to create embedding model: %w", err)
	}
	if c, ok := model.(interface{ Close() error }); ok {
		closers = append(closers, func() { _ = c.Close() })
	}
	embedder, err := embeddings.NewCachedEmbedder(model, embeddings.Options{
		CacheSize: cfg.Embedding.CacheSize,
		BatchSize: cfg.Embedding.BatchSize,
		Workers:   cfg.Embedding.Workers,
		Normalize: cfg.Embedding.Normalize == nil || *cfg.Embedding.Normalize,
	})
	if err != nil {
		return closers, err
	}

	// 6. Generator
	generator, err := llm.NewClient(cfg.LLM, appLogger.WithField("component", "llm"))
	if err != nil {
		return closers, fmt.Errorf("failed to create LLM client: %w", err)
	}

	// 7. Optional answer cache and upload archive
	cache, cacheClose, err := newAnswerCache(ctx, cfg)
	if err != nil {
		return closers, err
	}
	if cacheClose != nil {
		closers = append(closers, cacheClose)
	}

	var archiver interfaces.Archiver
	if cfg.Databases.MinIO.Enabled {
		mc, err := minio.Connect(ctx, cfg.Databases.MinIO)
		if err != nil {
			return closers, err
		}
		minioArchiver, err := blobstore.NewMinIOArchiver(mc, cfg.Databases.MinIO.Bucket)
		if err != nil {
			return closers, err
		}
		archiver = minioArchiver
		appLogger.Info(fmt.Sprintf("Archiving uploads to bucket %s", cfg.Databases.MinIO.Bucket))
	}

	// 8. Pipelines and service
	splitter, err := splitters.NewSentenceSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, cfg.RAG.MinChunkChars)
	if err != nil {
		return closers, err
	}
	indexing := pipeline.NewIndexingPipeline(loaders.NewPdfLoader(), splitter, embedder, store, archiver,
		cfg.Server.MaxUploadBytes(), appLogger.WithField("component", "indexing"))
	if cache != nil {
		indexing.WithAnswerCache(cache)
	}
	retriever := pipeline.NewRetrievalPipeline(embedder, store, appLogger.WithField("component", "retrieval"))
	qa := pipeline.NewQAPipeline(retriever, generator, cache, pipeline.QAOptions{
		TopK:          cfg.RAG.RetrieverK,
		ContextBudget: cfg.RAG.ContextBudget,
	}, appLogger.WithField("component", "qa"))
	ragService := service.NewServer(appLogger, indexing, qa, durable)

	// 9. HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.NewAPI(ragService, appLogger), appLogger.WithField("component", "http"))
	srv, err := pkghttp.NewServer(cfg, pkghttp.WithLogger(appLogger))
	if err != nil {
		return closers, err
	}
	srv.Handle("/", router)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	// 10. Graceful Shutdown
	select {
	case err := <-serveErr:
		return closers, err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ParseDuration(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return closers, err
	}
	return closers, <-serveErr
}

func newAnswerCache(ctx context.Context, cfg *config.AppConfig) (answercache.Cache, func(), error) {
	ac := cfg.RAG.AnswerCache
	if !ac.Enabled {
		return nil, nil, nil
	}
	ttl := config.ParseDuration(ac.TTL, 10*time.Minute)
	switch ac.Backend {
	case config.AnswerCacheRedis:
		rdb, err := redis.Connect(ctx, cfg.Databases.Redis)
		if err != nil {
			return nil, nil, err
		}
		cache, err := answercache.NewRedisCache(rdb, ttl)
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return cache, func() { _ = rdb.Close() }, nil
	default:
		cache, err := answercache.NewMemoryCache(ac.Size, ttl)
		if err != nil {
			return nil, nil, err
		}
		return cache, nil, nil
	}
}
