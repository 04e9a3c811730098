package cmd

// Wire types of the DocRAG HTTP API.

const (
	roleUser           = "user"
	defaultTemperature = 0.5
	defaultMaxTokens   = 1024
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type source struct {
	Content  string  `json:"content"`
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
}

type chatResponse struct {
	Response string   `json:"response"`
	Sources  []source `json:"sources"`
}

type uploadResponse struct {
	Message       string `json:"message"`
	DocumentCount int    `json:"document_count"`
}

type healthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}
