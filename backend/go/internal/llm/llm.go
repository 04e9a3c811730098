package llm

import (
	"DocRAG/backend/go/internal/config"
	"DocRAG/backend/go/internal/models"
	"DocRAG/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
)

// ErrEmptyCompletion 表示上游返回了空的回答。
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// Request 是一次生成请求：有序的带角色消息以及采样参数。
type Request struct {
	Messages    []models.ChatMessage
	Temperature float32
	MaxTokens   int
}

// TokenHandler 在流式生成时接收每个增量片段。返回错误会中止生成。
type TokenHandler func(token string) error

// LLM 定义了生成端的通用接口。
type LLM interface {
	// Generate 返回完整的回答。
	Generate(ctx context.Context, req Request) (string, error)
	// GenerateStream 以流的方式生成，把每个片段交给 onToken，并返回拼接后的完整回答。
	GenerateStream(ctx context.Context, req Request, onToken TokenHandler) (string, error)
}

// NewClient 是一个工厂函数，根据提供的配置创建并返回一个实现了 LLM 接口的客户端。
func NewClient(cfg config.LLMConfig, log *logger.Logger) (LLM, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAI(cfg, log)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
