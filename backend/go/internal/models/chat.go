package models

// 对话中消息的角色。
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// 采样参数的默认值和取值范围。
const (
	DefaultTemperature = 0.5
	DefaultMaxTokens   = 1024
	MaxTemperature     = 1.0
	MaxTokensLimit     = 4096
)

// ChatMessage 是一条带角色的对话消息。
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 是一次问答请求。Messages 由调用方完整传入，服务端不保存会话状态；
// 最后一条消息是本轮问题，之前的消息是对话历史。
type ChatRequest struct {
	Messages    []ChatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

// Source 是回答所引用的检索片段。
type Source struct {
	Content  string  `json:"content"`
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
}

// ChatResponse 是问答结果。
type ChatResponse struct {
	Response string   `json:"response"`
	Sources  []Source `json:"sources"`
}

// UploadResponse 是上传接口的返回体。
type UploadResponse struct {
	Message       string `json:"message"`
	DocumentCount int    `json:"document_count"`
}

// HealthResponse 是健康检查接口的返回体。
type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// TemperatureOrDefault 返回请求中的温度，未设置时返回默认值。
func (r ChatRequest) TemperatureOrDefault() float32 {
	if r.Temperature == nil {
		return DefaultTemperature
	}
	return *r.Temperature
}

// MaxTokensOrDefault 返回请求中的最大生成长度，未设置时返回默认值。
func (r ChatRequest) MaxTokensOrDefault() int {
	if r.MaxTokens == nil {
		return DefaultMaxTokens
	}
	return *r.MaxTokens
}
