package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/emcie-io/agentrt/internal/contextvar"
	"github.com/emcie-io/agentrt/internal/eventlog"
	"github.com/emcie-io/agentrt/internal/generation"
)

// DefaultRevisionBudget bounds the revision sequence the Message Producer
// runs before giving up and emitting the last draft anyway (spec.md §4.5:
// "until it reports followed_all_rules=true or a revision budget is
// exhausted").
const DefaultRevisionBudget = 4

type revisionWire struct {
	Content         string   `json:"content"`
	FollowedAllRules bool     `json:"followed_all_rules"`
	Followed        []string `json:"followed"`
	Broken          []string `json:"broken"`
}

// Revision is one step of the revision sequence, kept for callers that want
// to inspect which guidelines a draft followed or broke.
type Revision struct {
	Content          string
	FollowedAllRules bool
	Followed         []string
	Broken           []string
}

// MessageProducer generates the single agent message event for a turn
// (spec.md §4.5).
type MessageProducer struct {
	generator      generation.Generator
	revisionBudget int
}

// NewMessageProducer constructs a producer with the default revision budget.
func NewMessageProducer(generator generation.Generator) *MessageProducer {
	return &MessageProducer{generator: generator, revisionBudget: DefaultRevisionBudget}
}

// WithRevisionBudget overrides the revision budget.
func (mp *MessageProducer) WithRevisionBudget(budget int) *MessageProducer {
	if budget > 0 {
		mp.revisionBudget = budget
	}
	return mp
}

// Produce runs the revision sequence and returns the emitted event, or nil
// if the final draft's content is empty (spec.md §4.5: "If the content is
// empty, no message event is emitted"). participant identifies the
// responding agent and is stamped onto the emitted event (spec.md §6:
// `{message, participant:{id, display_name}}`).
func (mp *MessageProducer) Produce(ctx context.Context, history []eventlog.Event, contextVars []contextvar.Variable, ordinary, toolEnabled []Proposition, staged []eventlog.EmittedEvent, participant eventlog.Participant) (*eventlog.EmittedEvent, []Revision, error) {
	budget := mp.revisionBudget
	if budget <= 0 {
		budget = DefaultRevisionBudget
	}

	var revisions []Revision
	var previous *Revision

	for i := 0; i < budget; i++ {
		prompt := buildMessageProducerPrompt(history, contextVars, ordinary, toolEnabled, staged, previous)
		var wire revisionWire
		if _, err := mp.generator.Generate(ctx, generation.Request{Prompt: prompt}, &wire); err != nil {
			return nil, revisions, fmt.Errorf("revision %d: %w", i, err)
		}
		rev := Revision{Content: wire.Content, FollowedAllRules: wire.FollowedAllRules, Followed: wire.Followed, Broken: wire.Broken}
		revisions = append(revisions, rev)
		previous = &rev
		if rev.FollowedAllRules {
			break
		}
	}

	last := revisions[len(revisions)-1]
	if strings.TrimSpace(last.Content) == "" {
		return nil, revisions, nil
	}

	data, err := json.Marshal(eventlog.MessageData{Message: last.Content, Participant: participant})
	if err != nil {
		return nil, revisions, fmt.Errorf("marshal message event: %w", err)
	}
	event := &eventlog.EmittedEvent{
		Source: eventlog.SourceAIAgent,
		Kind:   eventlog.KindMessage,
		Data:   data,
	}
	return event, revisions, nil
}
