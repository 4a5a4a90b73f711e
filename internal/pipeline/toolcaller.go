package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/emcie-io/agentrt/internal/contextvar"
	"github.com/emcie-io/agentrt/internal/eventlog"
	"github.com/emcie-io/agentrt/internal/generation"
	"github.com/emcie-io/agentrt/internal/glossary"
	"github.com/emcie-io/agentrt/internal/toolservice"
)

// ToolCallPlan is one inferred tool invocation before execution.
type ToolCallPlan struct {
	ToolID    toolservice.ToolID
	Arguments map[string]any
}

// ToolCallRecord is the outcome of one executed tool call, in call order
// (spec.md §4.4: "results are collected in call order for the emitted tool
// event").
type ToolCallRecord struct {
	ToolID    toolservice.ToolID
	Arguments map[string]any
	Result    *toolservice.ToolResult
	Error     *toolservice.Error
}

type argumentPlanWire struct {
	Calls []struct {
		ToolID    string         `json:"tool_id"`
		Arguments map[string]any `json:"arguments"`
	} `json:"calls"`
}

// ToolCaller infers tool calls from tool-enabled propositions and executes
// them through the tool service registry (spec.md §4.4).
type ToolCaller struct {
	generator generation.Generator
	registry  *toolservice.Registry
	guidelineTools func(ctx context.Context, guidelineID string) ([]toolservice.ToolID, error)
}

// NewToolCaller constructs a ToolCaller. guidelineTools resolves a
// guideline's associated tool ids (typically guideline.Store.ListToolAssociations).
func NewToolCaller(generator generation.Generator, registry *toolservice.Registry, guidelineTools func(ctx context.Context, guidelineID string) ([]toolservice.ToolID, error)) *ToolCaller {
	return &ToolCaller{generator: generator, registry: registry, guidelineTools: guidelineTools}
}

// InferAndExecute infers tool calls for the tool-enabled propositions and
// runs them (spec.md §4.4). Calls within the iteration may run concurrently;
// results preserve call order regardless of completion order.
func (tc *ToolCaller) InferAndExecute(ctx context.Context, agentID, sessionID string, history []eventlog.Event, contextVars []contextvar.Variable, terms []glossary.Term, toolEnabled []Proposition, emitter eventlog.Emitter) ([]ToolCallRecord, error) {
	plans, err := tc.inferCalls(ctx, history, contextVars, terms, toolEnabled)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, nil
	}
	records := make([]ToolCallRecord, len(plans))
	var wg sync.WaitGroup
	for i, plan := range plans {
		wg.Add(1)
		go func(i int, plan ToolCallPlan) {
			defer wg.Done()
			records[i] = tc.execute(ctx, agentID, sessionID, plan, emitter)
		}(i, plan)
	}
	wg.Wait()
	return records, nil
}

func (tc *ToolCaller) inferCalls(ctx context.Context, history []eventlog.Event, contextVars []contextvar.Variable, terms []glossary.Term, toolEnabled []Proposition) ([]ToolCallPlan, error) {
	var out []ToolCallPlan
	for _, prop := range toolEnabled {
		toolIDs, err := tc.guidelineTools(ctx, prop.Guideline.ID)
		if err != nil {
			return nil, fmt.Errorf("list tools for guideline %s: %w", prop.Guideline.ID, err)
		}
		descriptors := make([]toolservice.ToolDescriptor, 0, len(toolIDs))
		for _, id := range toolIDs {
			svc, err := tc.registry.Resolve(ctx, id.ServiceName)
			if err != nil {
				return nil, fmt.Errorf("resolve service %s: %w", id.ServiceName, err)
			}
			d, err := svc.GetTool(ctx, id.ToolName)
			if err != nil {
				return nil, fmt.Errorf("get tool %s: %w", id, err)
			}
			descriptors = append(descriptors, d)
		}
		if len(descriptors) == 0 {
			continue
		}
		prompt := buildToolCallerPrompt(history, contextVars, terms, prop, toolIDs, descriptors)
		var wire argumentPlanWire
		if _, err := tc.generator.Generate(ctx, generation.Request{Prompt: prompt}, &wire); err != nil {
			return nil, fmt.Errorf("infer tool calls for guideline %s: %w", prop.Guideline.ID, err)
		}
		for _, call := range wire.Calls {
			id, err := toolservice.ParseToolID(call.ToolID)
			if err != nil {
				continue
			}
			if err := validateArguments(id, call.Arguments, descriptors); err != nil {
				return nil, err
			}
			out = append(out, ToolCallPlan{ToolID: id, Arguments: call.Arguments})
		}
	}
	return out, nil
}

// validateArguments enforces each tool's declared parameter schema (type +
// optional enum + required list, spec.md §4.4) via
// github.com/santhosh-tekuri/jsonschema/v6, building an ad hoc JSON Schema
// document from the descriptor rather than requiring one to be
// pre-compiled and stored.
func validateArguments(id toolservice.ToolID, args map[string]any, descriptors []toolservice.ToolDescriptor) error {
	var descriptor *toolservice.ToolDescriptor
	for i := range descriptors {
		if descriptors[i].Name == id.ToolName {
			descriptor = &descriptors[i]
			break
		}
	}
	if descriptor == nil {
		return fmt.Errorf("unknown tool %s in inferred call", id)
	}
	schemaDoc := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   descriptor.Required,
	}
	props := schemaDoc["properties"].(map[string]any)
	for name, p := range descriptor.Parameters {
		prop := map[string]any{"type": jsonSchemaType(p.Type)}
		if len(p.Enum) > 0 {
			enum := make([]any, 0, len(p.Enum))
			for _, e := range p.Enum {
				enum = append(enum, e)
			}
			prop["enum"] = enum
		}
		props[name] = prop
	}
	compiler := jsonschema.NewCompiler()
	schemaURL := "mem://tool/" + id.String()
	if err := compiler.AddResource(schemaURL, schemaDoc); err != nil {
		return fmt.Errorf("build schema for %s: %w", id, err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", id, err)
	}
	normalized, err := normalizeForValidation(args)
	if err != nil {
		return err
	}
	if err := schema.Validate(normalized); err != nil {
		return fmt.Errorf("tool %s arguments invalid: %w", id, err)
	}
	return nil
}

func normalizeForValidation(args map[string]any) (any, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func jsonSchemaType(t string) string {
	switch t {
	case "", "string", "number", "integer", "boolean", "array", "object":
		if t == "" {
			return "string"
		}
		return t
	default:
		return "string"
	}
}

func (tc *ToolCaller) execute(ctx context.Context, agentID, sessionID string, plan ToolCallPlan, emitter eventlog.Emitter) ToolCallRecord {
	svc, err := tc.registry.Resolve(ctx, plan.ToolID.ServiceName)
	if err != nil {
		return ToolCallRecord{ToolID: plan.ToolID, Arguments: plan.Arguments, Error: toolservice.NewError(plan.ToolID, err.Error())}
	}
	tcx := toolservice.ToolContext{
		AgentID:   agentID,
		SessionID: sessionID,
		EmitMessage: func(text string) {
			emitter.Emit(eventlog.EmittedEvent{Source: eventlog.SourceAIAgent, Kind: eventlog.KindMessage, Data: mustMarshal(eventlog.MessageData{Message: text})})
		},
		EmitStatus: func(status string, data any) {
			emitter.Emit(eventlog.EmittedEvent{Source: eventlog.SourceAIAgent, Kind: eventlog.KindStatus, Data: mustMarshal(eventlog.StatusEventData{Status: status, Data: mustMarshal(data)})})
		},
	}
	result, err := svc.Call(ctx, plan.ToolID.ToolName, tcx, plan.Arguments)
	if err != nil {
		var toolErr *toolservice.Error
		if errors.As(err, &toolErr) {
			return ToolCallRecord{ToolID: plan.ToolID, Arguments: plan.Arguments, Error: toolErr}
		}
		return ToolCallRecord{ToolID: plan.ToolID, Arguments: plan.Arguments, Error: toolservice.NewError(plan.ToolID, err.Error())}
	}
	return ToolCallRecord{ToolID: plan.ToolID, Arguments: plan.Arguments, Result: &result}
}

func mustMarshal(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
