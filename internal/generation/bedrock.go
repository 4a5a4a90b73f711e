package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client needed
// for a single-turn Converse completion (grounded on
// features/model/bedrock/client.go's RuntimeClient interface, trimmed to
// the non-streaming half since the schematic generator never streams).
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockBackend issues schematic-generation completions via the AWS
// Bedrock Converse API.
type BedrockBackend struct {
	runtime      RuntimeClient
	defaultModel string
	maxTokens    int32
	temperature  float32
}

// NewBedrockBackend wraps an already-configured Bedrock runtime client.
func NewBedrockBackend(runtime RuntimeClient, defaultModel string, maxTokens int32, temperature float32) (*BedrockBackend, error) {
	if runtime == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &BedrockBackend{runtime: runtime, defaultModel: defaultModel, maxTokens: maxTokens, temperature: temperature}, nil
}

// Name implements Backend.
func (b *BedrockBackend) Name() string { return "bedrock" }

// Complete implements Backend.
func (b *BedrockBackend) Complete(ctx context.Context, req Request) (string, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = b.defaultModel
	}
	maxTokens := int32(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = b.maxTokens
	}
	temp := b.temperature
	if req.Temperature > 0 {
		temp = float32(req.Temperature)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(modelID),
		Messages: []brtypes.Message{
			{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: req.Prompt},
				},
			},
		},
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(maxTokens),
			Temperature: aws.Float32(temp),
		},
	}
	out, err := b.runtime.Converse(ctx, input)
	if err != nil {
		return "", fmt.Errorf("bedrock converse (%s): %w", classifyBedrockError(err), err)
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("bedrock: unexpected converse output shape")
	}
	var text string
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
			text += tb.Value
		}
	}
	return text, nil
}

// classifyBedrockError labels a Converse failure by its Smithy API error
// fault (client vs. server), so callers/logs can tell a bad request apart
// from a transient provider-side failure worth retrying via the fallback
// chain (spec.md §9's generation_error kind doesn't distinguish retryable
// failures itself; this is the detail a fallback chain needs to log
// meaningfully).
func classifyBedrockError(err error) string {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return "unknown"
	}
	switch apiErr.ErrorFault() {
	case smithy.FaultClient:
		return "client:" + apiErr.ErrorCode()
	case smithy.FaultServer:
		return "server:" + apiErr.ErrorCode()
	default:
		return apiErr.ErrorCode()
	}
}
