package embedding

import "context"

// Embedding 定义了所有 embedding 模型需要实现的接口。
// 实现必须保证 EmbedBatch 的返回值与输入一一对应、顺序一致。
type Embedding interface {
	// Embed 为单个文本生成嵌入向量。
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch 为一批文本生成嵌入向量。
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ModelType 表示不同的模型厂商。
type ModelType string

const (
	OpenAI      ModelType = "openai"      // 任何 OpenAI 兼容的 /embeddings 端点
	Google      ModelType = "gemini"      // Google GenAI
	Ollama      ModelType = "ollama"      // 本地 Ollama
	HuggingFace ModelType = "huggingface" // Hugging Face Inference API
)
