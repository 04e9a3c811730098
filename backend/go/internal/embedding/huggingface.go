package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultHuggingFaceURL = "https://api-inference.huggingface.co/pipeline/feature-extraction/"

// Doer 是发送 HTTP 请求的最小接口，*http.Client 和带熔断的 pkg/http.Client 都满足它。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HuggingFaceModel 是一个用于 Hugging Face feature-extraction 接口的 Embedding 客户端，
// 适用于 sentence-transformers 系列模型（例如 all-MiniLM-L6-v2，384 维）。
type HuggingFaceModel struct {
	client  Doer
	model   string
	apiKey  string
	baseURL string
}

// NewHuggingFaceModel 创建一个新的 HuggingFaceModel 客户端。baseURL 为空时使用公共推理接口。
func NewHuggingFaceModel(client Doer, apiKey, modelName, baseURL string) (*HuggingFaceModel, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if baseURL == "" {
		baseURL = defaultHuggingFaceURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &HuggingFaceModel{
		client:  client,
		model:   modelName,
		apiKey:  apiKey,
		baseURL: baseURL,
	}, nil
}

// Embed 为单个文本生成嵌入向量。
func (m *HuggingFaceModel) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch 为一批文本生成嵌入向量。
func (m *HuggingFaceModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"inputs":  texts,
		"options": map[string]bool{"wait_for_model": true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+m.model, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("huggingface returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var embeddings [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&embeddings); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if err := checkBatch("huggingface", len(texts), embeddings); err != nil {
		return nil, err
	}
	return embeddings, nil
}
