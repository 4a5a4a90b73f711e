package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/emcie-io/agentrt/internal/contextvar"
	"github.com/emcie-io/agentrt/internal/eventlog"
	"github.com/emcie-io/agentrt/internal/glossary"
	"github.com/emcie-io/agentrt/internal/guideline"
	"github.com/emcie-io/agentrt/internal/session"
	"github.com/emcie-io/agentrt/internal/telemetry"
	"github.com/emcie-io/agentrt/internal/toolservice"
)

// Pipeline orchestrates one triggering task end to end: load state, run the
// bounded propose/call loop, run the Message Producer once, then persist
// (spec.md §4.2).
type Pipeline struct {
	sessions    session.Store
	eventLog    eventlog.Log
	guidelines  guideline.Store
	graph       *guideline.Graph
	contextVars contextvar.Store
	glossary    glossary.Store
	registry    *toolservice.Registry

	proposer        *GuidelineProposer
	toolCaller      *ToolCaller
	messageProducer *MessageProducer

	glossaryK int
	logger    telemetry.Logger
}

// Deps groups the stores and generator-backed components a Pipeline needs.
// Grounded on the teacher's dependency-injected activity wiring
// (features/*/activities.go take their stores as constructor arguments
// rather than reaching for globals).
type Deps struct {
	Sessions    session.Store
	EventLog    eventlog.Log
	Guidelines  guideline.Store
	Graph       *guideline.Graph
	ContextVars contextvar.Store
	Glossary    glossary.Store
	Registry    *toolservice.Registry

	Proposer        *GuidelineProposer
	ToolCaller      *ToolCaller
	MessageProducer *MessageProducer

	Logger telemetry.Logger
}

// DefaultGlossaryLookupSize bounds how many glossary terms are considered
// relevant to one turn.
const DefaultGlossaryLookupSize = 10

// New constructs a Pipeline from deps.
func New(d Deps) *Pipeline {
	logger := d.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Pipeline{
		sessions:        d.Sessions,
		eventLog:        d.EventLog,
		guidelines:      d.Guidelines,
		graph:           d.Graph,
		contextVars:     d.ContextVars,
		glossary:        d.Glossary,
		registry:        d.Registry,
		proposer:        d.Proposer,
		toolCaller:      d.ToolCaller,
		messageProducer: d.MessageProducer,
		glossaryK:       DefaultGlossaryLookupSize,
		logger:          logger,
	}
}

// Run executes the processing pipeline for one triggering task on
// sessionID, staging emissions in memory and persisting them under
// correlationID only on normal completion. Cancellation (ctx.Err() becoming
// non-nil) discards the staging buffer silently; any other error is logged
// and no events are persisted (spec.md §4.2 step 5).
func (p *Pipeline) Run(ctx context.Context, sessionID, correlationID string) ([]eventlog.Event, error) {
	sess, err := p.sessions.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	agent, err := p.sessions.LoadAgent(ctx, sess.AgentID)
	if err != nil {
		return nil, err
	}

	history, err := p.eventLog.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	contextVars, err := p.loadContextVariables(ctx, agent.ID, sess.CustomerID, isNewSession(history))
	if err != nil {
		return nil, err
	}

	terms, err := p.loadRelevantTerms(ctx, agent.ID, history)
	if err != nil {
		return nil, err
	}

	candidates, err := p.guidelines.ListGuidelines(ctx, agent.ID)
	if err != nil {
		return nil, err
	}

	staging := eventlog.NewBufferingEmitter()

	var ordinary, toolEnabled []Proposition
	iterations := agent.MaxEngineIterations
	if iterations <= 0 {
		iterations = session.DefaultMaxEngineIterations
	}

	prevStagedLen := 0
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ordinary, toolEnabled, err = p.proposer.Propose(ctx, history, contextVars, terms, candidates)
		if err != nil {
			p.logger.Error(ctx, "guideline proposer failed", "session_id", sessionID, "error", err)
			return nil, err
		}
		if len(toolEnabled) == 0 {
			break
		}

		records, err := p.toolCaller.InferAndExecute(ctx, agent.ID, sessionID, history, contextVars, terms, toolEnabled, staging)
		if err != nil {
			p.logger.Error(ctx, "tool caller failed", "session_id", sessionID, "error", err)
			return nil, err
		}
		if len(records) == 0 {
			break
		}
		staging.Emit(toolEventFromRecords(records))

		all := staging.Events()
		history = append(history, stagedAsHistory(all[prevStagedLen:])...)
		prevStagedLen = len(all)
	}

	participant := eventlog.Participant{ID: agent.ID, DisplayName: agent.Name}
	event, _, err := p.messageProducer.Produce(ctx, history, contextVars, ordinary, toolEnabled, staging.Events(), participant)
	if err != nil {
		p.logger.Error(ctx, "message producer failed", "session_id", sessionID, "error", err)
		return nil, err
	}
	if event != nil {
		staging.Emit(*event)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	staged := staging.Events()
	if len(staged) == 0 {
		return nil, nil
	}
	if err := p.applyControlDirectives(ctx, sessionID, staged); err != nil {
		p.logger.Error(ctx, "apply control directive failed", "session_id", sessionID, "error", err)
	}

	return p.eventLog.Append(ctx, sessionID, correlationID, staged)
}

// isNewSession reports whether the agent has never produced an event for
// this session. By the time Run sees history, PostClientEvent has already
// appended the triggering customer event (dispatcher.go), so len(history)==0
// never holds here; the first processing task for a session is instead the
// one where no prior ai_agent/system event exists (spec.md §3: context
// variables with no freshness_rules are "refreshed only on session
// creation").
func isNewSession(history []eventlog.Event) bool {
	for _, e := range history {
		if e.Source == eventlog.SourceAIAgent || e.Source == eventlog.SourceSystem {
			return false
		}
	}
	return true
}

func (p *Pipeline) loadContextVariables(ctx context.Context, agentID, customerID string, isNewSession bool) ([]contextvar.Variable, error) {
	vars, err := p.contextVars.ListVariables(ctx, agentID)
	if err != nil {
		return nil, err
	}
	for i := range vars {
		v := vars[i]
		if !v.NeedsRefresh(time.Now(), isNewSession) || v.ToolID == nil {
			continue
		}
		svc, err := p.registry.Resolve(ctx, v.ToolID.ServiceName)
		if err != nil {
			continue
		}
		result, err := svc.Call(ctx, v.ToolID.ToolName, toolservice.ToolContext{AgentID: agentID}, map[string]any{"customer_id": customerID})
		if err != nil {
			continue
		}
		_ = p.contextVars.SetValue(ctx, contextvar.Value{VariableID: v.ID, Key: customerID, Data: result.Data, UpdatedAt: time.Now()})
	}
	return vars, nil
}

func (p *Pipeline) loadRelevantTerms(ctx context.Context, agentID string, history []eventlog.Event) ([]glossary.Term, error) {
	query := lastCustomerMessage(history)
	if query == "" {
		return nil, nil
	}
	return p.glossary.FindRelevant(ctx, agentID, query, p.glossaryK)
}

func lastCustomerMessage(history []eventlog.Event) string {
	for i := len(history) - 1; i >= 0; i-- {
		e := history[i]
		if e.Source != eventlog.SourceCustomer || e.Kind != eventlog.KindMessage {
			continue
		}
		var data eventlog.MessageData
		if err := decodeEventData(e, &data); err != nil {
			continue
		}
		return data.Message
	}
	return ""
}

func toolEventFromRecords(records []ToolCallRecord) eventlog.EmittedEvent {
	calls := make([]eventlog.ToolCallRecord, 0, len(records))
	for _, r := range records {
		args, _ := json.Marshal(r.Arguments)
		var result json.RawMessage
		if r.Error != nil {
			result, _ = json.Marshal(map[string]any{"error": r.Error.Error()})
		} else if r.Result != nil {
			result, _ = json.Marshal(r.Result)
		}
		calls = append(calls, eventlog.ToolCallRecord{ToolID: r.ToolID.String(), Arguments: args, Result: result})
	}
	data, _ := json.Marshal(eventlog.ToolEventData{ToolCalls: calls})
	return eventlog.EmittedEvent{Source: eventlog.SourceAIAgent, Kind: eventlog.KindTool, Data: data}
}

// stagedAsHistory lets a later iteration of the propose/call loop see this
// iteration's staged events as if they were already part of the session's
// history, without mutating the underlying log (they are only persisted at
// the end, spec.md §4.2 step 5).
func stagedAsHistory(staged []eventlog.EmittedEvent) []eventlog.Event {
	out := make([]eventlog.Event, 0, len(staged))
	for _, e := range staged {
		out = append(out, eventlog.Event{Source: e.Source, Kind: e.Kind, CorrelationID: e.CorrelationID, Data: e.Data})
	}
	return out
}

// applyControlDirectives switches the session's mode when a tool result
// carried a control.mode directive, applied at persistence time (spec.md
// §4.4: "optional control.mode which can switch the session's mode
// (auto↔manual) — applied at persistence time").
func (p *Pipeline) applyControlDirectives(ctx context.Context, sessionID string, staged []eventlog.EmittedEvent) error {
	for _, e := range staged {
		if e.Kind != eventlog.KindTool {
			continue
		}
		var data eventlog.ToolEventData
		if err := json.Unmarshal(e.Data, &data); err != nil {
			continue
		}
		for _, call := range data.ToolCalls {
			var result struct {
				Control *struct {
					Mode string `json:"Mode"`
				} `json:"Control"`
			}
			if err := json.Unmarshal(call.Result, &result); err != nil || result.Control == nil {
				continue
			}
			mode := session.Mode(result.Control.Mode)
			if mode != session.ModeAuto && mode != session.ModeManual {
				continue
			}
			if err := p.sessions.SetMode(ctx, sessionID, mode); err != nil {
				return err
			}
		}
	}
	return nil
}
