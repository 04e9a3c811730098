package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 向量存储后端。
const (
	VectorStoreMemory = "memory" // 进程内按来源划分的精确内积索引，启动时从持久化存储重建
	VectorStoreAtlas  = "atlas"  // MongoDB Atlas $vectorSearch
	VectorStoreMilvus = "milvus" // Milvus 集合
)

// 持久化记录存储后端。
const (
	DurableMongo  = "mongo"
	DurableMemory = "memory" // 仅用于本地调试，重启后数据丢失
)

// 答案缓存后端。
const (
	AnswerCacheMemory = "memory"
	AnswerCacheRedis  = "redis"
)

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// ServerConfig 定义了 HTTP 服务的配置。
type ServerConfig struct {
	Address         string `yaml:"address"`         // 监听地址，例如 ":8080"
	MaxUploadMB     int    `yaml:"maxUploadMB"`     // 单个上传文件的大小上限（MB）
	ShutdownTimeout string `yaml:"shutdownTimeout"` // 优雅退出的最长等待时间，例如 "10s"
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// RetryConfig 定义了对上游调用的重试策略。
type RetryConfig struct {
	Attempts  uint   `yaml:"attempts"`  // 最多尝试次数（包含第一次）
	Delay     string `yaml:"delay"`     // 初始退避时间
	MaxDelay  string `yaml:"maxDelay"`  // 退避时间上限
	MaxJitter string `yaml:"maxJitter"` // 随机抖动上限
}

// LLMConfig 定义了 OpenAI 兼容的生成接口配置。
type LLMConfig struct {
	Provider       string               `yaml:"provider"`       // 目前只支持 "openai"（任何 OpenAI 兼容端点）
	BaseURL        string               `yaml:"baseURL"`        // 接口地址
	APIKey         string               `yaml:"apiKey"`         // API 密钥
	Model          string               `yaml:"model"`          // 模型名称
	Timeout        string               `yaml:"timeout"`        // 单次调用超时
	Retry          RetryConfig          `yaml:"retry"`          // 重试策略
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"` // 上游熔断
}

// EmbeddingConfig 定义了向量模型及其缓存、批处理配置。
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`  // "openai", "ollama", "gemini", "huggingface"
	Model     string `yaml:"model"`     // 模型名称
	APIKey    string `yaml:"apiKey"`    // API 密钥
	BaseURL   string `yaml:"baseURL"`   // 服务地址（可选）
	Normalize *bool  `yaml:"normalize"` // 是否对向量做 L2 归一化，默认开启
	CacheSize int    `yaml:"cacheSize"` // 向量缓存的最大条目数
	BatchSize int    `yaml:"batchSize"` // 每批发送给模型的文本数
	Workers   int    `yaml:"workers"`   // 并发调用模型的协程数
	Timeout   string `yaml:"timeout"`   // 单次 HTTP 调用超时

	// 向量接口独立熔断，不与生成接口共享状态
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// AnswerCacheConfig 定义了完整答案缓存的配置。
type AnswerCacheConfig struct {
	Enabled bool   `yaml:"enabled"` // 是否启用
	Backend string `yaml:"backend"` // "memory" 或 "redis"
	Size    int    `yaml:"size"`    // memory 后端的最大条目数
	TTL     string `yaml:"ttl"`     // 条目存活时间
}

// RAGConfig 定义了检索相关的参数。
type RAGConfig struct {
	ChunkSize     int               `yaml:"chunkSize"`     // 每个分块的目标字符数
	ChunkOverlap  int               `yaml:"chunkOverlap"`  // 相邻分块之间携带的最大字符数
	MinChunkChars int               `yaml:"minChunkChars"` // 分块的最小字符数
	RetrieverK    int               `yaml:"retrieverK"`    // 每次检索返回的片段数
	ContextBudget int               `yaml:"contextBudget"` // 拼装上下文时的字符预算
	VectorStore   string            `yaml:"vectorStore"`   // "memory", "atlas", "milvus"
	DurableStore  string            `yaml:"durableStore"`  // "mongo" 或 "memory"
	AnswerCache   AnswerCacheConfig `yaml:"answerCache"`   // 答案缓存
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address        string `yaml:"address"`        // 连接URI
	Username       string `yaml:"username"`       // 用户名
	Password       string `yaml:"password"`       // 密码
	AuthSource     string `yaml:"authSource"`     // 认证数据库
	Database       string `yaml:"database"`       // 数据库名称
	Collection     string `yaml:"collection"`     // 存放分块记录的集合
	VectorIndex    string `yaml:"vectorIndex"`    // Atlas 向量索引名称
	MaxPoolSize    uint64 `yaml:"maxPoolSize"`    // 连接池上限
	AcquireTimeout string `yaml:"acquireTimeout"` // 获取连接及单次操作的超时
}

// MilvusConfig 定义了 Milvus 的连接和集合配置。
type MilvusConfig struct {
	Address    string `yaml:"address"`    // Milvus 服务地址
	Collection string `yaml:"collection"` // 集合名称
	Dim        int    `yaml:"dim"`        // 向量维度
}

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MinIOConfig 定义了原始 PDF 归档所用的对象存储配置。
type MinIOConfig struct {
	Enabled   bool   `yaml:"enabled"`   // 是否归档上传的原始文件
	Endpoint  string `yaml:"endpoint"`  // MinIO 服务端点
	AccessKey string `yaml:"accessKey"` // 访问密钥
	SecretKey string `yaml:"secretKey"` // Secret 密钥
	Bucket    string `yaml:"bucket"`    // 存储桶名称
	Secure    bool   `yaml:"secure"`    // 是否使用HTTPS
}

// DatabaseConfigs 包含所有存储的配置。
type DatabaseConfigs struct {
	MongoDB MongoConfig  `yaml:"mongodb"` // MongoDB 配置
	Milvus  MilvusConfig `yaml:"milvus"`  // Milvus 配置
	Redis   RedisConfig  `yaml:"redis"`   // Redis 配置
	MinIO   MinIOConfig  `yaml:"minio"`   // MinIO 配置
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了限流器的配置。
type RateLimiterConfig struct {
	Enabled        bool                 `yaml:"enabled"`
	Algorithm      string               `yaml:"algorithm"` // 支持: "tokenBucket", "slidingCounter"
	SlidingCounter SlidingCounterConfig `yaml:"slidingCounter"`
	TokenBucket    TokenBucketConfig    `yaml:"tokenBucket"`
}

// SlidingCounterConfig 定义了滑动窗口计数器算法的配置。
type SlidingCounterConfig struct {
	Limit      int    `yaml:"limit"`
	Window     string `yaml:"window"`
	NumBuckets int    `yaml:"numBuckets"`
}

// TokenBucketConfig 定义了令牌桶算法的配置。
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// AppConfig 是整个 YAML 文件的根结构。
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Logger     LoggerConfig     `yaml:"logger"`
	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	RAG        RAGConfig        `yaml:"rag"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	Middleware MiddlewareConfig `yaml:"middleware"`
}

// envOverrides 列出允许通过环境变量覆盖的敏感项和端点。
type envOverrides struct {
	LLMAPIKey         string `env:"LLM_API_KEY"`
	LLMBaseURL        string `env:"LLM_BASE_URL"`
	LLMModel          string `env:"LLM_MODEL"`
	EmbeddingAPIKey   string `env:"EMBEDDING_API_KEY"`
	MongoURL          string `env:"MONGODB_URL"`
	MongoUser         string `env:"MONGODB_USER"`
	MongoPassword     string `env:"MONGODB_PASSWORD"`
	MongoAuthSource   string `env:"MONGODB_AUTH_SOURCE"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	MinIOAccessKey    string `env:"MINIO_ACCESS_KEY"`
	MinIOSecretKey    string `env:"MINIO_SECRET_KEY"`
	ServerAddress     string `env:"SERVER_ADDRESS"`
	VectorStoreChoice string `env:"RAG_VECTOR_STORE"`
}

// LoadConfig 从指定路径加载 YAML 配置，叠加 .env 与环境变量，填充默认值并校验。
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	cfg, err := Parse(yamlFile)
	if err != nil {
		return nil, err
	}

	// .env 不存在是正常情况（容器环境通常直接注入环境变量）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 文件失败: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return cfg, nil
}

// Parse 解析 YAML 内容并填充默认值，不读取环境变量。
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *AppConfig) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("解析环境变量失败: %w", err)
	}
	override(&c.LLM.APIKey, o.LLMAPIKey)
	override(&c.LLM.BaseURL, o.LLMBaseURL)
	override(&c.LLM.Model, o.LLMModel)
	override(&c.Embedding.APIKey, o.EmbeddingAPIKey)
	override(&c.Databases.MongoDB.Address, o.MongoURL)
	override(&c.Databases.MongoDB.Username, o.MongoUser)
	override(&c.Databases.MongoDB.Password, o.MongoPassword)
	override(&c.Databases.MongoDB.AuthSource, o.MongoAuthSource)
	override(&c.Databases.Redis.Password, o.RedisPassword)
	override(&c.Databases.MinIO.AccessKey, o.MinIOAccessKey)
	override(&c.Databases.MinIO.SecretKey, o.MinIOSecretKey)
	override(&c.Server.Address, o.ServerAddress)
	override(&c.RAG.VectorStore, o.VectorStoreChoice)
	return nil
}

func override(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func (c *AppConfig) applyDefaults() {
	setString(&c.App.Name, "DocRAG")
	setString(&c.Server.Address, ":8080")
	setInt(&c.Server.MaxUploadMB, 20)
	setString(&c.Server.ShutdownTimeout, "10s")
	setString(&c.Logger.Level, "info")

	setString(&c.LLM.Provider, "openai")
	setString(&c.LLM.BaseURL, "https://integrate.api.nvidia.com/v1")
	setString(&c.LLM.Model, "nvidia/llama-3.1-nemotron-70b-instruct")
	setString(&c.LLM.Timeout, "60s")
	if c.LLM.Retry.Attempts == 0 {
		c.LLM.Retry.Attempts = 3
	}
	setString(&c.LLM.Retry.Delay, "500ms")
	setString(&c.LLM.Retry.MaxDelay, "8s")
	setString(&c.LLM.Retry.MaxJitter, "250ms")

	setString(&c.Embedding.Provider, "huggingface")
	setString(&c.Embedding.Model, "sentence-transformers/all-MiniLM-L6-v2")
	if c.Embedding.Normalize == nil {
		normalize := true
		c.Embedding.Normalize = &normalize
	}
	setInt(&c.Embedding.CacheSize, 1000)
	setInt(&c.Embedding.BatchSize, 32)
	setInt(&c.Embedding.Workers, 4)
	setString(&c.Embedding.Timeout, "30s")
	c.Embedding.CircuitBreaker.applyDefaults()
	c.LLM.CircuitBreaker.applyDefaults()

	setInt(&c.RAG.ChunkSize, 1000)
	setInt(&c.RAG.ChunkOverlap, 200)
	setInt(&c.RAG.MinChunkChars, 50)
	setInt(&c.RAG.RetrieverK, 4)
	setInt(&c.RAG.ContextBudget, 1000)
	setString(&c.RAG.VectorStore, VectorStoreMemory)
	setString(&c.RAG.DurableStore, DurableMongo)
	setString(&c.RAG.AnswerCache.Backend, AnswerCacheMemory)
	setInt(&c.RAG.AnswerCache.Size, 256)
	setString(&c.RAG.AnswerCache.TTL, "10m")

	setString(&c.Databases.MongoDB.Address, "mongodb://localhost:27017")
	setString(&c.Databases.MongoDB.AuthSource, "admin")
	setString(&c.Databases.MongoDB.Database, "rag_db")
	setString(&c.Databases.MongoDB.Collection, "documents")
	setString(&c.Databases.MongoDB.VectorIndex, "vector_index")
	if c.Databases.MongoDB.MaxPoolSize == 0 {
		c.Databases.MongoDB.MaxPoolSize = 100
	}
	setString(&c.Databases.MongoDB.AcquireTimeout, "5s")

	setString(&c.Databases.Milvus.Collection, "documents")
	setInt(&c.Databases.Milvus.Dim, 384)
	setString(&c.Databases.MinIO.Bucket, "rag-uploads")
}

func (b *CircuitBreakerConfig) applyDefaults() {
	if b.FailureThreshold == 0 {
		b.FailureThreshold = 5
	}
	if b.SuccessThreshold == 0 {
		b.SuccessThreshold = 1
	}
	setString(&b.Timeout, "30s")
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

// Validate 检查配置之间的一致性。
func (c *AppConfig) Validate() error {
	var errs []error
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.chunkSize 必须大于 0"))
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunkOverlap 必须在 [0, chunkSize) 之间"))
	}
	if c.RAG.RetrieverK <= 0 {
		errs = append(errs, fmt.Errorf("rag.retrieverK 必须大于 0"))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("server.maxUploadMB 必须大于 0"))
	}
	switch c.RAG.VectorStore {
	case VectorStoreMemory, VectorStoreAtlas, VectorStoreMilvus:
	default:
		errs = append(errs, fmt.Errorf("不支持的向量存储: %s", c.RAG.VectorStore))
	}
	switch c.RAG.DurableStore {
	case DurableMongo, DurableMemory:
	default:
		errs = append(errs, fmt.Errorf("不支持的持久化存储: %s", c.RAG.DurableStore))
	}
	if c.RAG.VectorStore == VectorStoreAtlas && c.RAG.DurableStore != DurableMongo {
		errs = append(errs, fmt.Errorf("atlas 向量存储要求 durableStore 为 mongo"))
	}
	if c.RAG.AnswerCache.Enabled {
		switch c.RAG.AnswerCache.Backend {
		case AnswerCacheMemory, AnswerCacheRedis:
		default:
			errs = append(errs, fmt.Errorf("不支持的答案缓存后端: %s", c.RAG.AnswerCache.Backend))
		}
	}
	for name, value := range map[string]string{
		"server.shutdownTimeout":           c.Server.ShutdownTimeout,
		"llm.timeout":                      c.LLM.Timeout,
		"llm.circuitBreaker.timeout":       c.LLM.CircuitBreaker.Timeout,
		"embedding.timeout":                c.Embedding.Timeout,
		"embedding.circuitBreaker.timeout": c.Embedding.CircuitBreaker.Timeout,
		"llm.retry.delay":                  c.LLM.Retry.Delay,
		"llm.retry.maxDelay":               c.LLM.Retry.MaxDelay,
		"llm.retry.maxJitter":              c.LLM.Retry.MaxJitter,
		"rag.answerCache.ttl":              c.RAG.AnswerCache.TTL,
		"databases.mongodb.acquireTimeout": c.Databases.MongoDB.AcquireTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s 不是合法的时间间隔: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// MaxUploadBytes 返回上传大小上限（字节）。
func (s ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) * 1024 * 1024
}

// ParseDuration 解析时间间隔字符串，空值或非法值时返回 def。
func ParseDuration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
