package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ChatCompletionsClient captures the subset of the OpenAI SDK used by
// OpenAIBackend (same interface-wrapping idiom as AnthropicBackend's
// MessagesClient, grounded on features/model/anthropic/client.go).
type ChatCompletionsClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIBackend issues schematic-generation completions via the OpenAI
// Chat Completions API.
type OpenAIBackend struct {
	chat         ChatCompletionsClient
	defaultModel string
}

// NewOpenAIBackend wraps an already-configured OpenAI chat client.
func NewOpenAIBackend(chat ChatCompletionsClient, defaultModel string) (*OpenAIBackend, error) {
	if chat == nil {
		return nil, errors.New("openai client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &OpenAIBackend{chat: chat, defaultModel: defaultModel}, nil
}

// NewOpenAIBackendFromAPIKey constructs a backend using the SDK's default
// HTTP client.
func NewOpenAIBackendFromAPIKey(apiKey, defaultModel string) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return NewOpenAIBackend(client.Chat.Completions, defaultModel)
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string { return "openai" }

// Complete implements Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = b.defaultModel
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	resp, err := b.chat.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat.completions.new: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
