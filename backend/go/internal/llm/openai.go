package llm

import (
	"DocRAG/backend/go/internal/config"
	"DocRAG/backend/go/pkg/circuitbreaker"
	"DocRAG/backend/go/pkg/logger"
	"DocRAG/backend/go/pkg/retry"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	retrygo "github.com/avast/retry-go/v4"
	openai "github.com/meguminnnnnnnnn/go-openai"
)

// errTokenHandler 标记由调用方回调（而非上游）产生的错误。
var errTokenHandler = errors.New("token handler failed")

// OpenAI 是一个用于 OpenAI 兼容接口的 LLM 客户端。
// 每次调用都经过熔断器，并对可重试的上游错误做带抖动的指数退避重试。
type OpenAI struct {
	client  *openai.Client // OpenAI 客户端实例。
	model   string         // 要使用的模型名称。
	timeout time.Duration  // 单次尝试的超时
	retry   retry.Config
	breaker circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

// NewOpenAI 根据配置创建一个新的 OpenAI 客户端。
func NewOpenAI(cfg config.LLMConfig, log *logger.Logger) (*OpenAI, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	// 熔断器未启用时阈值设为最大值，相当于永不打开
	failureThreshold := ^uint32(0)
	successThreshold := uint32(1)
	if cfg.CircuitBreaker.Enabled {
		failureThreshold = cfg.CircuitBreaker.FailureThreshold
		successThreshold = cfg.CircuitBreaker.SuccessThreshold
	}
	breaker := circuitbreaker.NewWithSettings(circuitbreaker.Settings{
		FailureThreshold: failureThreshold,
		SuccessThreshold: successThreshold,
		Timeout:          config.ParseDuration(cfg.CircuitBreaker.Timeout, 30*time.Second),
		IsFailure:        IsRetryable,
		OnStateChange: func(from, to circuitbreaker.State) {
			log.WithFields(map[string]interface{}{"from": from.String(), "to": to.String()}).
				Warn("LLM circuit breaker changed state")
		},
	})

	return &OpenAI{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: config.ParseDuration(cfg.Timeout, 60*time.Second),
		retry: retry.Config{
			Attempts:  cfg.Retry.Attempts,
			Delay:     config.ParseDuration(cfg.Retry.Delay, 0),
			MaxDelay:  config.ParseDuration(cfg.Retry.MaxDelay, 0),
			MaxJitter: config.ParseDuration(cfg.Retry.MaxJitter, 0),
		},
		breaker: breaker,
		log:     log,
	}, nil
}

// Generate 以流式方式请求并返回拼接后的完整回答。
func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	return o.GenerateStream(ctx, req, nil)
}

// GenerateStream 使用 OpenAI API 以流式方式生成内容。
// 一旦有片段交给了 onToken，后续错误不再重试，避免调用方收到重复内容；
// onToken 为 nil 时片段只在内部拼接，中途断流仍可重试。
func (o *OpenAI) GenerateStream(ctx context.Context, req Request, onToken TokenHandler) (string, error) {
	emitted := false
	retryIf := func(err error) bool { return !emitted && IsRetryable(err) }
	onRetry := func(n uint, err error) {
		o.log.WithError(err).WithField("attempt", n+1).Warn("Retrying chat completion")
	}

	return retry.Do(ctx, o.retry, retryIf, onRetry, func() (string, error) {
		return circuitbreaker.Do(o.breaker, func() (string, error) {
			return o.streamOnce(ctx, req, func(token string) error {
				if onToken == nil {
					return nil
				}
				emitted = true
				if err := onToken(token); err != nil {
					return retrygo.Unrecoverable(fmt.Errorf("%w: %w", errTokenHandler, err))
				}
				return nil
			})
		})
	})
}

func (o *OpenAI) streamOnce(ctx context.Context, req Request, onToken TokenHandler) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	stream, err := o.client.CreateChatCompletionStream(ctx, o.toOpenAIRequest(req))
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion stream: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("chat completion stream failed: %w", err)
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			sb.WriteString(choice.Delta.Content)
			if err := onToken(choice.Delta.Content); err != nil {
				return "", err
			}
		}
	}

	answer := strings.TrimSpace(sb.String())
	if answer == "" {
		return "", ErrEmptyCompletion
	}
	return answer, nil
}

// toOpenAIRequest 将我们的内部请求格式转换为 OpenAI 格式。
func (o *OpenAI) toOpenAIRequest(req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	temperature := req.Temperature
	return openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: &temperature,
		MaxTokens:   req.MaxTokens,
	}
}

// IsRetryable 区分可重试的上游错误（408/429/5xx、超时、连接失败）和致命错误。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, errTokenHandler) ||
		errors.Is(err, circuitbreaker.ErrCircuitOpen) ||
		errors.Is(err, circuitbreaker.ErrTooManyRequests) ||
		errors.Is(err, ErrEmptyCompletion) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

var _ LLM = (*OpenAI)(nil)
