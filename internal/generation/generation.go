// Package generation defines the schematic generator contract: producing a
// typed JSON object from a prompt via an LLM, with a fallback chain across
// backends (spec.md §4.3-§4.5, §9 "Schematic generator as an abstraction").
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Request is a single schematic-generation call.
type Request struct {
	// Prompt is the fully assembled prompt text.
	Prompt string
	// Model optionally overrides the backend's default model identifier.
	Model string
	// MaxTokens bounds the completion length; zero means the backend default.
	MaxTokens int
	// Temperature controls sampling; zero leaves the backend default in place
	// (the Anthropic and OpenAI backends omit the parameter, the Bedrock
	// backend uses its configured temperature).
	Temperature float64
}

// Response is the raw and decoded result of one generation call.
type Response struct {
	// Raw is the exact text the backend returned.
	Raw string
	// JSON is Raw re-encoded as a compact, validated JSON document.
	JSON json.RawMessage
}

// ErrGenerationFailed wraps a generation_error (spec.md §7): the backend
// returned text that could not be parsed as JSON even after the
// JSON-finder fallback.
var ErrGenerationFailed = errors.New("generation_error: unparseable model output")

// Backend issues one completion request against a specific LLM provider
// and returns raw text.
type Backend interface {
	// Name identifies the backend for logging/telemetry.
	Name() string
	// Complete returns the model's raw text completion for req.
	Complete(ctx context.Context, req Request) (string, error)
}

// Generator is the schematic generator contract: produce a typed JSON
// object from a prompt, decoding it into target.
type Generator interface {
	// Generate issues req against the backend and decodes the first valid
	// JSON object found in the response into target (a pointer).
	Generate(ctx context.Context, req Request, target any) (Response, error)
}

// SingleBackendGenerator adapts one Backend into a Generator, applying the
// strict-parse-then-JSON-finder-fallback discipline (spec.md §7:
// "the schematic generator first tries strict parse, then a JSON-finder
// fallback; if still invalid, the error propagates").
type SingleBackendGenerator struct {
	backend Backend
}

// NewSingleBackendGenerator wraps backend as a Generator.
func NewSingleBackendGenerator(backend Backend) *SingleBackendGenerator {
	return &SingleBackendGenerator{backend: backend}
}

// Generate implements Generator.
func (g *SingleBackendGenerator) Generate(ctx context.Context, req Request, target any) (Response, error) {
	raw, err := g.backend.Complete(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("%s: %w", g.backend.Name(), err)
	}
	return decode(raw, target)
}

func decode(raw string, target any) (Response, error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if json.Valid(trimmed) {
		if err := json.Unmarshal(trimmed, target); err == nil {
			return Response{Raw: raw, JSON: json.RawMessage(trimmed)}, nil
		}
	}
	found, ok := findJSONObject(raw)
	if !ok {
		return Response{}, ErrGenerationFailed
	}
	if err := json.Unmarshal(found, target); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	return Response{Raw: raw, JSON: found}, nil
}

// findJSONObject scans s for the first balanced {...} or [...] span and
// returns it if it parses as valid JSON. This is the "JSON-finder fallback"
// spec.md §7/§9 require for models that wrap JSON in prose or code fences.
func findJSONObject(s string) (json.RawMessage, bool) {
	start := -1
	var openChar, closeChar byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			openChar = s[i]
			if openChar == '{' {
				closeChar = '}'
			} else {
				closeChar = ']'
			}
			break
		}
	}
	if start == -1 {
		return nil, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				candidate := []byte(s[start : i+1])
				if json.Valid(candidate) {
					return candidate, true
				}
				return nil, false
			}
		}
	}
	return nil, false
}
