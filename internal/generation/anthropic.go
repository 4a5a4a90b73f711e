package generation

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// MessagesClient captures the subset of the Anthropic SDK used by
// AnthropicBackend, so tests can substitute a stub (grounded on
// features/model/anthropic/client.go's MessagesClient interface).
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicBackend issues schematic-generation completions via the
// Anthropic Messages API.
type AnthropicBackend struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int64
}

// NewAnthropicBackend wraps an already-configured Anthropic client.
func NewAnthropicBackend(msg MessagesClient, defaultModel string, maxTokens int64) (*AnthropicBackend, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicBackend{msg: msg, defaultModel: defaultModel, maxTokens: maxTokens}, nil
}

// NewAnthropicBackendFromAPIKey constructs a backend using the SDK's
// default HTTP client.
func NewAnthropicBackendFromAPIKey(apiKey, defaultModel string) (*AnthropicBackend, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicBackend(&client.Messages, defaultModel, 0)
}

// Name implements Backend.
func (b *AnthropicBackend) Name() string { return "anthropic" }

// Complete implements Backend.
func (b *AnthropicBackend) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = b.defaultModel
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = b.maxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	msg, err := b.msg.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages.new: %w", err)
	}
	var text string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(sdk.TextBlock); ok {
			text += tb.Text
		}
	}
	return text, nil
}
