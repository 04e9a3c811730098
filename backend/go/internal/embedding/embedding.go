package embedding

import (
	"DocRAG/backend/go/internal/config"
	"context"
	"fmt"
	"net/http"
)

// NewEmdModel 根据配置中的提供商创建 Embedding 模型实例。
// client 仅用于基于 HTTP 的提供商（huggingface），为 nil 时使用 http.DefaultClient。
func NewEmdModel(ctx context.Context, cfg config.EmbeddingConfig, client Doer) (Embedding, error) {
	if client == nil {
		client = http.DefaultClient
	}
	switch ModelType(cfg.Provider) {
	case Google:
		return NewGoogleModel(ctx, cfg.APIKey, cfg.Model)
	case OpenAI:
		return NewOpenAIModel(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case HuggingFace:
		return NewHuggingFaceModel(client, cfg.APIKey, cfg.Model, cfg.BaseURL)
	case Ollama:
		return NewOllamaModel(cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// checkBatch 校验模型返回的向量数量与输入一致。
func checkBatch(provider string, want int, got [][]float32) error {
	if len(got) != want {
		return fmt.Errorf("%s returned %d embeddings for %d inputs", provider, len(got), want)
	}
	for i, v := range got {
		if len(v) == 0 {
			return fmt.Errorf("%s returned an empty embedding at index %d", provider, i)
		}
	}
	return nil
}
