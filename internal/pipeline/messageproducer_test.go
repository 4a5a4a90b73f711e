package pipeline_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emcie-io/agentrt/internal/eventlog"
	"github.com/emcie-io/agentrt/internal/generation"
	"github.com/emcie-io/agentrt/internal/pipeline"
)

type scriptedBackend struct {
	responses []string
	calls     int
}

func (s *scriptedBackend) Name() string { return "scripted" }
func (s *scriptedBackend) Complete(_ context.Context, _ generation.Request) (string, error) {
	resp := s.responses[s.calls]
	if s.calls < len(s.responses)-1 {
		s.calls++
	}
	return resp, nil
}

func TestMessageProducer_StopsOnFollowedAllRules(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		`{"content": "Sure thing!", "followed_all_rules": true, "followed": ["g1"], "broken": []}`,
	}}
	mp := pipeline.NewMessageProducer(generation.NewSingleBackendGenerator(backend))

	event, revisions, err := mp.Produce(context.Background(), nil, nil, nil, nil, nil, eventlog.Participant{ID: "agent-1", DisplayName: "Agent"})
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Len(t, revisions, 1)

	var data eventlog.MessageData
	require.NoError(t, json.Unmarshal(event.Data, &data))
	require.Equal(t, "Sure thing!", data.Message)
}

func TestMessageProducer_RevisesUntilBudgetExhausted(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		`{"content": "draft one", "followed_all_rules": false, "broken": ["g1"]}`,
		`{"content": "draft two", "followed_all_rules": false, "broken": ["g1"]}`,
	}}
	mp := pipeline.NewMessageProducer(generation.NewSingleBackendGenerator(backend)).WithRevisionBudget(2)

	event, revisions, err := mp.Produce(context.Background(), nil, nil, nil, nil, nil, eventlog.Participant{ID: "agent-1", DisplayName: "Agent"})
	require.NoError(t, err)
	require.Len(t, revisions, 2)
	require.NotNil(t, event)

	var data eventlog.MessageData
	require.NoError(t, json.Unmarshal(event.Data, &data))
	require.Equal(t, "draft two", data.Message)
}

func TestMessageProducer_EmptyContentEmitsNoEvent(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		`{"content": "", "followed_all_rules": true}`,
	}}
	mp := pipeline.NewMessageProducer(generation.NewSingleBackendGenerator(backend))

	event, _, err := mp.Produce(context.Background(), nil, nil, nil, nil, nil, eventlog.Participant{ID: "agent-1", DisplayName: "Agent"})
	require.NoError(t, err)
	require.Nil(t, event)
}
