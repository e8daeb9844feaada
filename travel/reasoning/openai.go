package reasoning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/agents"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/config"
)

// OpenAIConfig holds the settings of the OpenAI-compatible provider.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	RetryBase  time.Duration
}

// OpenAIConfigFromCore reads the provider settings from the core config.
func OpenAIConfigFromCore(cfg *config.CoreConfig) OpenAIConfig {
	return OpenAIConfig{
		APIKey:     cfg.LLMAPIKey,
		BaseURL:    cfg.LLMBaseURL,
		MaxRetries: cfg.LLMMaxRetries,
		RetryBase:  time.Duration(cfg.LLMRetryBaseMS) * time.Millisecond,
	}
}

// OpenAIProvider implements agents.LLMProvider with chat completions.
type OpenAIProvider struct {
	client     *openai.Client
	maxRetries uint64
	retryBase  time.Duration
}

// NewOpenAIProvider creates a provider. An empty BaseURL uses the public API.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(clientCfg),
		maxRetries: uint64(retries),
		retryBase:  base,
	}, nil
}

// Generate sends prompt as a single user message. Transport errors, rate
// limits and server errors are retried with exponential backoff.
func (p *OpenAIProvider) Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if t, ok := options["temperature"].(float64); ok {
		req.Temperature = float32(t)
	}
	if n, ok := options["max_tokens"].(int); ok {
		req.MaxTokens = n
	}

	backoff := retry.WithMaxRetries(p.maxRetries, retry.WithJitter(50*time.Millisecond, retry.NewExponential(p.retryBase)))

	var content string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err != nil {
			if isRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no choices returned")
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return content, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}

var _ agents.LLMProvider = (*OpenAIProvider)(nil)
