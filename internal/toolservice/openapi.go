package toolservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// openapiDocument is the minimal OpenAPI 3 JSON subset spec.md §4.6/§6
// requires: per-operation id, parameters, and request body shape. Hand-
// rolled against encoding/json rather than a third-party schema library —
// see DESIGN.md for why (the only OpenAPI parser in the example pack,
// go-openapi/spec, targets Swagger 2.0's document shape and has no
// requestBody/components.schemas support, so it would not actually parse
// OpenAPI 3 documents correctly).
type openapiDocument struct {
	Paths map[string]map[string]openapiOperation `json:"paths"`
}

type openapiOperation struct {
	OperationID string                `json:"operationId"`
	Parameters  []openapiParameter    `json:"parameters"`
	RequestBody *openapiRequestBody   `json:"requestBody"`
}

type openapiParameter struct {
	Name     string `json:"name"`
	In       string `json:"in"` // "query" | "path" | "header" | "cookie"
	Required bool   `json:"required"`
	Schema   struct {
		Type string `json:"type"`
	} `json:"schema"`
	Description string `json:"description"`
}

type openapiRequestBody struct {
	Content map[string]struct {
		Schema struct {
			Type       string                      `json:"type"`
			Properties map[string]openapiProperty  `json:"properties"`
			Required   []string                    `json:"required"`
		} `json:"schema"`
	} `json:"content"`
}

type openapiProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum"`
}

type openapiOperationBinding struct {
	path   string
	method string
	op     openapiOperation
}

// OpenAPIService derives one tool per OpenAPI operation (operationId →
// tool name) and dispatches the matching HTTP verb, splitting arguments
// between query/path parameters and the JSON request body (spec.md §4.6,
// §6).
type OpenAPIService struct {
	baseURL  string
	client   *http.Client
	bindings map[string]openapiOperationBinding
}

// NewOpenAPIService parses doc (raw OpenAPI 3 JSON) and derives its tools.
func NewOpenAPIService(baseURL string, doc []byte) (*OpenAPIService, error) {
	var parsed openapiDocument
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	bindings := make(map[string]openapiOperationBinding)
	for path, methods := range parsed.Paths {
		for method, op := range methods {
			if op.OperationID == "" {
				continue
			}
			bindings[op.OperationID] = openapiOperationBinding{path: path, method: strings.ToUpper(method), op: op}
		}
	}
	return &OpenAPIService{baseURL: baseURL, client: &http.Client{Timeout: DefaultHTTPTimeout}, bindings: bindings}, nil
}

// ListTools implements ToolService: one ToolDescriptor per operation,
// parameters flattened from both query/path parameters and request-body
// object properties, required being the union of both (spec.md §4.6).
func (s *OpenAPIService) ListTools(_ context.Context) ([]ToolDescriptor, error) {
	out := make([]ToolDescriptor, 0, len(s.bindings))
	for name, b := range s.bindings {
		out = append(out, describeOperation(name, b))
	}
	return out, nil
}

// GetTool implements ToolService.
func (s *OpenAPIService) GetTool(_ context.Context, name string) (ToolDescriptor, error) {
	b, ok := s.bindings[name]
	if !ok {
		return ToolDescriptor{}, fmt.Errorf("openapi operation %q not found", name)
	}
	return describeOperation(name, b), nil
}

func describeOperation(name string, b openapiOperationBinding) ToolDescriptor {
	params := make(map[string]ParameterSpec)
	var required []string
	for _, p := range b.op.Parameters {
		params[p.Name] = ParameterSpec{Type: p.Schema.Type, Description: p.Description}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	if b.op.RequestBody != nil {
		for _, media := range b.op.RequestBody.Content {
			for propName, prop := range media.Schema.Properties {
				params[propName] = ParameterSpec{Type: prop.Type, Description: prop.Description, Enum: prop.Enum}
			}
			required = append(required, media.Schema.Required...)
		}
	}
	return ToolDescriptor{
		ID:       name,
		Name:     name,
		Parameters: params,
		Required: dedupe(required),
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Call implements ToolService: dispatches the operation's HTTP verb,
// sending "in":"query"/"path" arguments on the URL and remaining
// arguments as a JSON request body.
func (s *OpenAPIService) Call(ctx context.Context, toolName string, _ ToolContext, args map[string]any) (ToolResult, error) {
	b, ok := s.bindings[toolName]
	if !ok {
		return ToolResult{}, NewError(ToolID{ToolName: toolName}, "operation not found")
	}
	path := b.path
	query := make(url.Values)
	bodyArgs := make(map[string]any, len(args))
	for k, v := range args {
		bodyArgs[k] = v
	}
	for _, p := range b.op.Parameters {
		v, ok := args[p.Name]
		if !ok {
			continue
		}
		delete(bodyArgs, p.Name)
		switch p.In {
		case "path":
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(fmt.Sprint(v)))
		case "query":
			query.Set(p.Name, fmt.Sprint(v))
		}
	}
	reqURL := s.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if b.op.RequestBody != nil && len(bodyArgs) > 0 {
		encoded, err := json.Marshal(bodyArgs)
		if err != nil {
			return ToolResult{}, err
		}
		bodyReader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, b.method, reqURL, bodyReader)
	if err != nil {
		return ToolResult{}, err
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return ToolResult{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ToolResult{}, err
	}
	if resp.StatusCode >= 300 {
		return ToolResult{}, NewError(ToolID{ToolName: toolName}, fmt.Sprintf("status %d: %s", resp.StatusCode, raw))
	}
	var data any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return ToolResult{}, fmt.Errorf("decode openapi response: %w", err)
		}
	}
	return ToolResult{Data: data}, nil
}
