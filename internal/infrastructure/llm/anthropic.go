package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"HypothesisValidator/internal/config"
)

const jsonOnlyInstruction = " Reply with the JSON object only, without markdown or commentary."

// AnthropicClient completes prompts through the Messages API.
type AnthropicClient struct {
	client      sdk.Client
	model       string
	maxTokens   int64
	temperature float64
}

var _ Completer = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from configuration. Extra options are appended (tests use them).
func NewAnthropicClient(cfg config.LLMConfig, opts ...option.RequestOption) *AnthropicClient {
	p := cfg.Anthropic
	base := []option.RequestOption{option.WithAPIKey(p.APIKey)}
	if p.BaseURL != "" {
		base = append(base, option.WithBaseURL(p.BaseURL))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicClient{
		client:      sdk.NewClient(append(base, opts...)...),
		model:       p.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

// Complete sends one system and one user message and joins the text blocks of the reply.
func (c *AnthropicClient) Complete(ctx context.Context, system, user string) (string, error) {
	if c == nil {
		return "", errors.New("anthropic client is nil")
	}
	if c.model == "" {
		return "", errors.New("anthropic client misconfigured: empty model")
	}

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   c.maxTokens,
		System:      []sdk.TextBlockParam{{Text: system + jsonOnlyInstruction}},
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(user))},
		Temperature: sdk.Float(c.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: create message: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(b.String())
	if content == "" {
		return "", errEmptyCompletion
	}
	return content, nil
}
