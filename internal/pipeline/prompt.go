package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/emcie-io/agentrt/internal/contextvar"
	"github.com/emcie-io/agentrt/internal/eventlog"
	"github.com/emcie-io/agentrt/internal/glossary"
	"github.com/emcie-io/agentrt/internal/guideline"
	"github.com/emcie-io/agentrt/internal/toolservice"
)

func decodeEventData(e eventlog.Event, target any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.ID)
	}
	return json.Unmarshal(e.Data, target)
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func renderHistory(history []eventlog.Event) string {
	if len(history) == 0 {
		return "No messages have been exchanged in this session yet."
	}
	var b strings.Builder
	for _, e := range history {
		switch e.Kind {
		case eventlog.KindMessage:
			var data eventlog.MessageData
			if err := decodeEventData(e, &data); err != nil {
				continue
			}
			fmt.Fprintf(&b, "[%d] %s: %s\n", e.Offset, e.Source, data.Message)
		case eventlog.KindTool:
			var data eventlog.ToolEventData
			if err := decodeEventData(e, &data); err != nil {
				continue
			}
			for _, call := range data.ToolCalls {
				fmt.Fprintf(&b, "[%d] tool %s called with %v\n", e.Offset, call.ToolID, call.Arguments)
			}
		}
	}
	return b.String()
}

func renderContext(vars []contextvar.Variable) string {
	if len(vars) == 0 {
		return ""
	}
	var b strings.Builder
	for _, v := range vars {
		fmt.Fprintf(&b, "- %s: %s\n", v.Name, v.Description)
	}
	return b.String()
}

func renderTerms(terms []glossary.Term) string {
	if len(terms) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range terms {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	return b.String()
}

func buildProposerPrompt(history []eventlog.Event, context []contextvar.Variable, terms []glossary.Term, batch []guideline.Guideline) string {
	var b strings.Builder
	b.WriteString("You are evaluating which of the following guidelines apply to the current conversation turn.\n\n")
	b.WriteString("## Interaction history\n")
	b.WriteString(renderHistory(history))
	b.WriteString("\n")
	if rendered := renderContext(context); rendered != "" {
		b.WriteString("## Context variables\n")
		b.WriteString(rendered)
		b.WriteString("\n")
	}
	if rendered := renderTerms(terms); rendered != "" {
		b.WriteString("## Glossary\n")
		b.WriteString(rendered)
		b.WriteString("\n")
	}
	b.WriteString("## Guidelines\n")
	for _, g := range batch {
		fmt.Fprintf(&b, "- id=%s condition=%q action=%q\n", g.ID, g.Content.Condition, g.Content.Action)
	}
	b.WriteString("\nRespond with a JSON object: {\"decisions\": {\"<guideline_id>\": {\"applies\": bool, \"score\": 1-10, \"rationale\": string}}}.\n")
	return b.String()
}

// buildToolCallerPrompt asks the generator to infer arguments for the tools
// attached to a single tool-enabled proposition (spec.md §4.4: "Argument
// inference uses the schematic generator, constrained by each tool's
// declared parameter schema").
func buildToolCallerPrompt(history []eventlog.Event, context []contextvar.Variable, terms []glossary.Term, prop Proposition, toolIDs []toolservice.ToolID, descriptors []toolservice.ToolDescriptor) string {
	var b strings.Builder
	b.WriteString("You are choosing tool calls to satisfy a guideline that applies to the current conversation turn.\n\n")
	b.WriteString("## Interaction history\n")
	b.WriteString(renderHistory(history))
	b.WriteString("\n")
	if rendered := renderContext(context); rendered != "" {
		b.WriteString("## Context variables\n")
		b.WriteString(rendered)
		b.WriteString("\n")
	}
	if rendered := renderTerms(terms); rendered != "" {
		b.WriteString("## Glossary\n")
		b.WriteString(rendered)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "## Guideline\ncondition=%q action=%q rationale=%q\n\n", prop.Guideline.Content.Condition, prop.Guideline.Content.Action, prop.Rationale)
	b.WriteString("## Available tools\n")
	for i, d := range descriptors {
		fmt.Fprintf(&b, "- id=%s description=%q required=%v parameters:\n", toolIDs[i], d.Description, d.Required)
		for name, p := range d.Parameters {
			fmt.Fprintf(&b, "    %s: type=%s description=%q enum=%v\n", name, p.Type, p.Description, p.Enum)
		}
	}
	b.WriteString("\nRespond with a JSON object: {\"calls\": [{\"tool_id\": \"service:tool\", \"arguments\": {...}}]}. Omit the call entirely if no tool should be invoked.\n")
	return b.String()
}

func renderPropositions(label string, props []Proposition) string {
	if len(props) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range props {
		fmt.Fprintf(&b, "- [%s, score=%d] %s -> %s (%s)\n", label, p.Score, p.Guideline.Content.Condition, p.Guideline.Content.Action, p.Rationale)
	}
	return b.String()
}

func renderStaged(staged []eventlog.EmittedEvent) string {
	if len(staged) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range staged {
		fmt.Fprintf(&b, "- %s %s: %s\n", e.Source, e.Kind, string(e.Data))
	}
	return b.String()
}

// buildMessageProducerPrompt assembles the four ordered sections of
// spec.md §4.5: interaction history (always present, passive-state
// fallback when empty) -> context variables -> guideline propositions
// (priority + rationale) -> staged events (tool results, status updates).
// When previous is non-nil, it asks the generator to revise rather than
// draft from scratch, matching the "revision sequence" contract.
func buildMessageProducerPrompt(history []eventlog.Event, context []contextvar.Variable, ordinary, toolEnabled []Proposition, staged []eventlog.EmittedEvent, previous *Revision) string {
	var b strings.Builder
	if previous == nil {
		b.WriteString("Draft the agent's next reply to the customer.\n\n")
	} else {
		fmt.Fprintf(&b, "Revise the previous draft. It broke these guidelines: %v. Previous draft:\n%q\n\n", previous.Broken, previous.Content)
	}
	b.WriteString("## Interaction history\n")
	b.WriteString(renderHistory(history))
	b.WriteString("\n")
	if rendered := renderContext(context); rendered != "" {
		b.WriteString("## Context variables\n")
		b.WriteString(rendered)
		b.WriteString("\n")
	}
	propositions := renderPropositions("guideline", ordinary) + renderPropositions("tool-enabled", toolEnabled)
	if propositions != "" {
		b.WriteString("## Applicable guidelines\n")
		b.WriteString(propositions)
		b.WriteString("\n")
	}
	if rendered := renderStaged(staged); rendered != "" {
		b.WriteString("## Staged events this turn\n")
		b.WriteString(rendered)
		b.WriteString("\n")
	}
	b.WriteString("Respond with a JSON object: {\"content\": string, \"followed_all_rules\": bool, \"followed\": [guideline ids], \"broken\": [guideline ids]}. Use an empty \"content\" if no reply should be sent.\n")
	return b.String()
}
