package pipeline_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emcie-io/agentrt/internal/contextvar"
	"github.com/emcie-io/agentrt/internal/eventlog"
	"github.com/emcie-io/agentrt/internal/generation"
	"github.com/emcie-io/agentrt/internal/glossary"
	"github.com/emcie-io/agentrt/internal/guideline"
	"github.com/emcie-io/agentrt/internal/pipeline"
	"github.com/emcie-io/agentrt/internal/session"
	"github.com/emcie-io/agentrt/internal/store/memory"
	"github.com/emcie-io/agentrt/internal/toolservice"
)

type sequencedBackend struct {
	responses []string
	calls     int
}

func (s *sequencedBackend) Name() string { return "sequenced" }
func (s *sequencedBackend) Complete(_ context.Context, _ generation.Request) (string, error) {
	resp := s.responses[s.calls]
	if s.calls < len(s.responses)-1 {
		s.calls++
	}
	return resp, nil
}

// TestPipeline_NoToolEnabledGuidelinesGoesStraightToMessage exercises scenario
// S1 from spec.md §8: one matching ordinary guideline, no tools, a single
// Message Producer pass, and persistence under one correlation id.
func TestPipeline_NoToolEnabledGuidelinesGoesStraightToMessage(t *testing.T) {
	ctx := context.Background()
	db := memory.New()

	sessions := session.NewStore(db)
	agent, err := sessions.CreateAgent(ctx, session.Agent{Name: "support"})
	require.NoError(t, err)
	sess, err := sessions.CreateSession(ctx, "", agent.ID, "cust-1", "", time.Now().UTC())
	require.NoError(t, err)

	eventLog := eventlog.NewStoreLog(db)
	_, err = eventLog.Append(ctx, sess.ID, "corr-0", []eventlog.EmittedEvent{
		{Source: eventlog.SourceCustomer, Kind: eventlog.KindMessage, Data: mustJSON(eventlog.MessageData{Message: "What are your hours?"})},
	})
	require.NoError(t, err)

	guidelines := guideline.NewStore(db)
	g, err := guidelines.CreateGuideline(ctx, guideline.Guideline{GuidelineSet: agent.ID, Content: guideline.Content{Condition: "customer asks about hours", Action: "tell them 9 to 5"}})
	require.NoError(t, err)

	local := toolservice.NewLocalService()
	registry := toolservice.NewRegistry(db, local)

	proposerBackend := &sequencedBackend{responses: []string{
		`{"decisions": {"` + g.ID + `": {"applies": true, "score": 9, "rationale": "matches"}}}`,
	}}
	messageBackend := &sequencedBackend{responses: []string{
		`{"content": "We're open 9 to 5!", "followed_all_rules": true}`,
	}}

	proposer := pipeline.NewGuidelineProposer(generation.NewSingleBackendGenerator(proposerBackend), guidelines)
	messageProducer := pipeline.NewMessageProducer(generation.NewSingleBackendGenerator(messageBackend))
	toolCaller := pipeline.NewToolCaller(generation.NewSingleBackendGenerator(&sequencedBackend{responses: []string{`{"calls": []}`}}), registry, guidelines.ListToolAssociations)

	p := pipeline.New(pipeline.Deps{
		Sessions:        sessions,
		EventLog:        eventLog,
		Guidelines:      guidelines,
		Graph:           guideline.NewGraph(db),
		ContextVars:     contextvar.NewStore(db),
		Glossary:        glossary.NewStore(db),
		Registry:        registry,
		Proposer:        proposer,
		ToolCaller:      toolCaller,
		MessageProducer: messageProducer,
	})

	persisted, err := p.Run(ctx, sess.ID, "corr-1")
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	require.Equal(t, eventlog.KindMessage, persisted[0].Kind)
	require.Equal(t, "corr-1", persisted[0].CorrelationID)

	var data eventlog.MessageData
	require.NoError(t, json.Unmarshal(persisted[0].Data, &data))
	require.Equal(t, "We're open 9 to 5!", data.Message)
	require.Equal(t, agent.ID, data.Participant.ID)
	require.Equal(t, "support", data.Participant.DisplayName)
}

// TestPipeline_ToolCallThenMessage exercises scenario S3: a tool-enabled
// guideline produces a tool event, then the Message Producer's reply is
// persisted in the same correlation id.
func TestPipeline_ToolCallThenMessage(t *testing.T) {
	ctx := context.Background()
	db := memory.New()

	sessions := session.NewStore(db)
	agent, err := sessions.CreateAgent(ctx, session.Agent{Name: "support", MaxEngineIterations: 1})
	require.NoError(t, err)
	sess, err := sessions.CreateSession(ctx, "", agent.ID, "cust-1", "", time.Now().UTC())
	require.NoError(t, err)

	eventLog := eventlog.NewStoreLog(db)
	_, err = eventLog.Append(ctx, sess.ID, "corr-0", []eventlog.EmittedEvent{
		{Source: eventlog.SourceCustomer, Kind: eventlog.KindMessage, Data: mustJSON(eventlog.MessageData{Message: "What's my balance?"})},
	})
	require.NoError(t, err)

	guidelines := guideline.NewStore(db)
	g, err := guidelines.CreateGuideline(ctx, guideline.Guideline{GuidelineSet: agent.ID, Content: guideline.Content{Condition: "customer asks for balance", Action: "look up the balance"}})
	require.NoError(t, err)

	local := toolservice.NewLocalService()
	local.Register(
		toolservice.ToolDescriptor{Name: "read_balance"},
		func(_ context.Context, _ toolservice.ToolContext, _ map[string]any) (toolservice.ToolResult, error) {
			return toolservice.ToolResult{Data: map[string]any{"balance": 100}}, nil
		},
	)
	require.NoError(t, guidelines.AssociateTool(ctx, g.ID, toolservice.ToolID{ServiceName: "local", ToolName: "read_balance"}))
	registry := toolservice.NewRegistry(db, local)

	proposerBackend := &sequencedBackend{responses: []string{
		`{"decisions": {"` + g.ID + `": {"applies": true, "score": 9, "rationale": "matches"}}}`,
		`{"decisions": {"` + g.ID + `": {"applies": true, "score": 9, "rationale": "matches"}}}`,
	}}
	toolCallBackend := &sequencedBackend{responses: []string{
		`{"calls": [{"tool_id": "local:read_balance", "arguments": {}}]}`,
	}}
	messageBackend := &sequencedBackend{responses: []string{
		`{"content": "Your balance is 100.", "followed_all_rules": true}`,
	}}

	proposer := pipeline.NewGuidelineProposer(generation.NewSingleBackendGenerator(proposerBackend), guidelines)
	messageProducer := pipeline.NewMessageProducer(generation.NewSingleBackendGenerator(messageBackend))
	toolCaller := pipeline.NewToolCaller(generation.NewSingleBackendGenerator(toolCallBackend), registry, guidelines.ListToolAssociations)

	p := pipeline.New(pipeline.Deps{
		Sessions:        sessions,
		EventLog:        eventLog,
		Guidelines:      guidelines,
		Graph:           guideline.NewGraph(db),
		ContextVars:     contextvar.NewStore(db),
		Glossary:        glossary.NewStore(db),
		Registry:        registry,
		Proposer:        proposer,
		ToolCaller:      toolCaller,
		MessageProducer: messageProducer,
	})

	persisted, err := p.Run(ctx, sess.ID, "corr-1")
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	require.Equal(t, eventlog.KindTool, persisted[0].Kind)
	require.Equal(t, eventlog.KindMessage, persisted[1].Kind)
	for _, e := range persisted {
		require.Equal(t, "corr-1", e.CorrelationID)
	}
}

func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
