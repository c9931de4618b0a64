package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"HypothesisValidator/internal/config"
)

// OpenAIClient completes prompts through the Chat Completions API in JSON mode.
type OpenAIClient struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

var _ Completer = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from configuration. Extra options are appended (tests use them).
func NewOpenAIClient(cfg config.LLMConfig, opts ...option.RequestOption) *OpenAIClient {
	p := cfg.OpenAI
	base := []option.RequestOption{option.WithAPIKey(p.APIKey)}
	if p.BaseURL != "" {
		base = append(base, option.WithBaseURL(p.BaseURL))
	}
	return &OpenAIClient{
		client:      openai.NewClient(append(base, opts...)...),
		model:       p.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}
}

// Complete sends one system and one user message and returns the reply text.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	if c == nil {
		return "", errors.New("openai client is nil")
	}
	if c.model == "" {
		return "", errors.New("openai client misconfigured: empty model")
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.maxTokens)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from openai")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errEmptyCompletion
	}
	return content, nil
}
