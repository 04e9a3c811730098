package answercache

import (
	"DocRAG/backend/go/internal/models"
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Cache stores generated answers. Implementations are bounded in size or lifetime.
// Invalidate hides every answer stored so far; it is called whenever the indexed corpus changes.
type Cache interface {
	Get(ctx context.Context, key string) (schema.Answer, bool, error)
	Set(ctx context.Context, key string, answer schema.Answer) error
	Invalidate(ctx context.Context) error
}

// Key derives a cache key from everything that shapes an answer: the whole conversation
// and the sampling parameters.
func Key(messages []models.ChatMessage, temperature float32, maxTokens int) string {
	payload, _ := json.Marshal(struct {
		Messages    []models.ChatMessage `json:"m"`
		Temperature float32              `json:"t"`
		MaxTokens   int                  `json:"n"`
	}{messages, temperature, maxTokens})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
