// Package eventlog implements the per-session event log: monotonically
// increasing, gapless offsets; correlation-id grouping; append-only storage
// with logical delete; and a staging buffer used by the processing pipeline
// so that cancellation can discard cleanly (spec.md §3, §5, §8 invariants
// 1-3).
package eventlog

import (
	"encoding/json"
	"time"
)

// Source identifies who produced an event.
type Source string

// Recognized event sources.
const (
	SourceCustomer Source = "customer"
	SourceAIAgent  Source = "ai_agent"
	SourceSystem   Source = "system"
)

// Kind identifies the shape of an event's Data payload.
type Kind string

// Recognized event kinds.
const (
	KindMessage Kind = "message"
	KindTool    Kind = "tool"
	KindStatus  Kind = "status"
	KindCustom  Kind = "custom"
)

type (
	// Event is a persisted, ordered record in a session's log.
	Event struct {
		// ID uniquely identifies the event.
		ID string
		// SessionID is the owning session.
		SessionID string
		// Source is who produced the event.
		Source Source
		// Kind is the shape of Data.
		Kind Kind
		// Offset is the 0-based, dense, strictly increasing position of this
		// event within its session's log. Assigned server-side.
		Offset int
		// CorrelationID groups every event derived from one client event.
		CorrelationID string
		// CreationUTC is when the event was persisted.
		CreationUTC time.Time
		// Data is the opaque event payload; its shape depends on Kind (spec.md §6).
		Data json.RawMessage
		// Deleted marks a logically deleted event. Events are append-only;
		// deletion never removes the record or its offset.
		Deleted bool
	}

	// EmittedEvent is an in-flight event produced by a processing task,
	// not yet assigned an offset or persisted.
	EmittedEvent struct {
		Source        Source
		Kind          Kind
		CorrelationID string
		Data          json.RawMessage
	}
)

// MessageData is the Data payload shape for Kind == KindMessage.
type MessageData struct {
	Message     string      `json:"message"`
	Participant Participant `json:"participant"`
}

// Participant identifies the speaker of a message event.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// ToolEventData is the Data payload shape for Kind == KindTool.
type ToolEventData struct {
	ToolCalls []ToolCallRecord `json:"tool_calls"`
}

// ToolCallRecord records one invocation within a tool event.
type ToolCallRecord struct {
	ToolID    string          `json:"tool_id"`
	Arguments json.RawMessage `json:"arguments"`
	Result    json.RawMessage `json:"result"`
}

// StatusEventData is the Data payload shape for Kind == KindStatus.
type StatusEventData struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}
