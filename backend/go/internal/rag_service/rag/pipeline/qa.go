package pipeline

import (
	"DocRAG/backend/go/internal/llm"
	"DocRAG/backend/go/internal/models"
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"DocRAG/backend/go/internal/rag_service/rag/storages/answercache"
	"context"
	"errors"
	"fmt"
	"strings"

	"DocRAG/backend/go/pkg/logger"
)

var (
	// ErrInvalidRequest reports a chat request that cannot be answered as given.
	ErrInvalidRequest = errors.New("invalid chat request")
	// ErrGeneration reports that the generation endpoint failed to produce an answer.
	ErrGeneration = errors.New("failed to generate answer")
)

// QAOptions tunes retrieval for question answering. Zero values select the defaults.
type QAOptions struct {
	TopK          int
	ContextBudget int
}

// QAPipeline answers a conversation's latest question from retrieved document context.
type QAPipeline struct {
	retriever *RetrievalPipeline
	llm       llm.LLM
	cache     answercache.Cache
	opts      QAOptions
	log       *logger.Logger
}

// NewQAPipeline creates a new QAPipeline. cache may be nil.
func NewQAPipeline(retriever *RetrievalPipeline, generator llm.LLM, cache answercache.Cache, opts QAOptions, log *logger.Logger) *QAPipeline {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = DefaultContextBudget
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &QAPipeline{
		retriever: retriever,
		llm:       generator,
		cache:     cache,
		opts:      opts,
		log:       log,
	}
}

// Validate checks the shape of a chat request and its sampling parameters.
func Validate(req models.ChatRequest) error {
	if len(req.Messages) == 0 {
		return fmt.Errorf("%w: messages must not be empty", ErrInvalidRequest)
	}
	for i, m := range req.Messages {
		switch m.Role {
		case models.RoleUser, models.RoleAssistant:
		default:
			return fmt.Errorf("%w: message %d has unsupported role %q", ErrInvalidRequest, i, m.Role)
		}
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != models.RoleUser {
		return fmt.Errorf("%w: the last message must come from the user", ErrInvalidRequest)
	}
	if strings.TrimSpace(last.Content) == "" {
		return fmt.Errorf("%w: the question must not be empty", ErrInvalidRequest)
	}
	if t := req.TemperatureOrDefault(); t < 0 || t > models.MaxTemperature {
		return fmt.Errorf("%w: temperature must be between 0.0 and %.1f", ErrInvalidRequest, models.MaxTemperature)
	}
	if n := req.MaxTokensOrDefault(); n < 1 || n > models.MaxTokensLimit {
		return fmt.Errorf("%w: max_tokens must be between 1 and %d", ErrInvalidRequest, models.MaxTokensLimit)
	}
	return nil
}

// Run answers the request in one piece.
func (p *QAPipeline) Run(ctx context.Context, req models.ChatRequest) (schema.Answer, error) {
	return p.run(ctx, req, nil)
}

// RunStream answers the request, handing every generated fragment to onToken as it arrives.
// A cached answer is delivered as a single fragment.
func (p *QAPipeline) RunStream(ctx context.Context, req models.ChatRequest, onToken llm.TokenHandler) (schema.Answer, error) {
	return p.run(ctx, req, onToken)
}

func (p *QAPipeline) run(ctx context.Context, req models.ChatRequest, onToken llm.TokenHandler) (schema.Answer, error) {
	if err := Validate(req); err != nil {
		return schema.Answer{}, err
	}

	temperature := req.TemperatureOrDefault()
	maxTokens := req.MaxTokensOrDefault()
	key := answercache.Key(req.Messages, temperature, maxTokens)

	if answer, ok := p.cached(ctx, key); ok {
		p.log.Info("Serving answer from cache")
		if onToken != nil {
			if err := onToken(answer.Text); err != nil {
				return schema.Answer{}, err
			}
		}
		return answer, nil
	}

	history := req.Messages[:len(req.Messages)-1]
	question := req.Messages[len(req.Messages)-1].Content
	p.log.Info(fmt.Sprintf("Answering question with %d prior messages", len(history)))

	results := p.retriever.Search(ctx, question, p.opts.TopK)
	if len(results) == 0 {
		p.log.Warn("No context retrieved; answering without document grounding")
	}

	messages := make([]models.ChatMessage, 0, len(req.Messages)+1)
	messages = append(messages, models.ChatMessage{
		Role:    models.RoleSystem,
		Content: BuildContext(results, p.opts.ContextBudget),
	})
	messages = append(messages, history...)
	messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: question})

	genReq := llm.Request{Messages: messages, Temperature: temperature, MaxTokens: maxTokens}
	var (
		text string
		err  error
	)
	if onToken != nil {
		text, err = p.llm.GenerateStream(ctx, genReq, onToken)
	} else {
		text, err = p.llm.Generate(ctx, genReq)
	}
	if err != nil {
		p.log.WithError(err).Error("LLM failed to generate answer")
		return schema.Answer{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	answer := schema.Answer{Text: text, Sources: results}
	if p.cache != nil {
		if err := p.cache.Set(ctx, key, answer); err != nil {
			p.log.WithError(err).Warn("Failed to store answer in cache")
		}
	}

	p.log.Info(fmt.Sprintf("Generated answer of %d characters from %d sources", len(text), len(results)))
	return answer, nil
}

func (p *QAPipeline) cached(ctx context.Context, key string) (schema.Answer, bool) {
	if p.cache == nil {
		return schema.Answer{}, false
	}
	answer, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		p.log.WithError(err).Warn("Answer cache lookup failed")
		return schema.Answer{}, false
	}
	return answer, ok
}
