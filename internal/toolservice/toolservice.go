// Package toolservice resolves tool ids to callable ToolServices: local
// in-process functions, SDK plugins speaking HTTP chunked JSON, and
// OpenAPI-derived HTTP tools (spec.md §4.6, §6).
package toolservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// LocalServiceName is reserved for the built-in in-process service
// (spec.md §6: "the service name local is reserved for the built-in
// in-process service").
const LocalServiceName = "local"

// ToolID is the wire-format "service_name:tool_name" identifier
// (spec.md §6).
type ToolID struct {
	ServiceName string
	ToolName    string
}

// ErrInvalidToolID indicates a malformed "service_name:tool_name" string.
var ErrInvalidToolID = errors.New("invalid tool id")

// ParseToolID parses the colon-separated wire format.
func ParseToolID(s string) (ToolID, error) {
	idx := strings.IndexByte(s, ':')
	if idx <= 0 || idx == len(s)-1 {
		return ToolID{}, fmt.Errorf("%w: %q", ErrInvalidToolID, s)
	}
	return ToolID{ServiceName: s[:idx], ToolName: s[idx+1:]}, nil
}

// String renders the wire format.
func (t ToolID) String() string {
	return t.ServiceName + ":" + t.ToolName
}

type (
	// ParameterSpec describes one declared tool argument.
	ParameterSpec struct {
		Type        string
		Description string
		Enum        []string
	}

	// ToolDescriptor is the metadata a ToolService publishes for one tool
	// (spec.md §6 GET /tools response shape).
	ToolDescriptor struct {
		ID            string
		CreationUTC   time.Time
		Name          string
		Description   string
		Parameters    map[string]ParameterSpec
		Required      []string
		Consequential bool
	}

	// ToolContext carries per-call identity and the two side-channel
	// callbacks a tool may use to stream status/message events through the
	// staging emitter (spec.md §4.4).
	ToolContext struct {
		AgentID   string
		SessionID string

		EmitMessage func(text string)
		EmitStatus  func(status string, data any)
	}

	// ControlDirective optionally switches the session's auto/manual mode,
	// applied at persistence time (spec.md §4.4).
	ControlDirective struct {
		Mode string // "auto" | "manual"
	}

	// ToolResult is the terminal outcome of a tool call.
	ToolResult struct {
		Data     any
		Metadata map[string]any
		Control  *ControlDirective
	}

	// ToolService is a source of callable tools.
	ToolService interface {
		ListTools(ctx context.Context) ([]ToolDescriptor, error)
		GetTool(ctx context.Context, name string) (ToolDescriptor, error)
		Call(ctx context.Context, toolName string, tc ToolContext, args map[string]any) (ToolResult, error)
	}
)

// Error is a tool_execution_error: it carries the offending tool id so the
// caller can attach it to the tool event's result slot without aborting the
// pipeline iteration (spec.md §4.4, §7).
type Error struct {
	ToolID  ToolID
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("tool_execution_error: %s: %s", e.ToolID, e.Message)
}

// NewError constructs a tool_execution_error.
func NewError(id ToolID, message string) *Error {
	return &Error{ToolID: id, Message: message}
}
