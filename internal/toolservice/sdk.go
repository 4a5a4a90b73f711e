package toolservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultHTTPTimeout is the default outbound call timeout for SDK-plugin and
// OpenAPI tool services (spec.md §5: "every outbound HTTP call has a default
// 120 s timeout").
const DefaultHTTPTimeout = 120 * time.Second

// SDKService is an HTTP client for a plugin's /tools, /tools/{id}, and
// /tools/{id}/calls endpoints (spec.md §4.6, §6). Calls stream a sequence
// of chunked JSON objects rather than SSE frames — grounded on the request
// construction and context-aware streaming-read discipline of
// runtime/mcp/ssecaller.go's SSECaller, adapted from SSE event framing to a
// bare json.Decoder token loop (spec.md §9: "not WebSocket and not SSE").
type SDKService struct {
	baseURL string
	client  *http.Client
}

// NewSDKService constructs a client for the plugin hosted at baseURL.
func NewSDKService(baseURL string) *SDKService {
	return &SDKService{baseURL: baseURL, client: &http.Client{Timeout: DefaultHTTPTimeout}}
}

type toolDescriptorWire struct {
	ID            string                     `json:"id"`
	CreationUTC   time.Time                  `json:"creation_utc"`
	Name          string                     `json:"name"`
	Description   string                     `json:"description"`
	Parameters    map[string]parameterWire   `json:"parameters"`
	Required      []string                   `json:"required"`
	Consequential bool                       `json:"consequential"`
}

type parameterWire struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// ListTools implements ToolService via GET /tools.
func (s *SDKService) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	var body struct {
		Tools []toolDescriptorWire `json:"tools"`
	}
	if err := s.getJSON(ctx, "/tools", &body); err != nil {
		return nil, err
	}
	out := make([]ToolDescriptor, 0, len(body.Tools))
	for _, w := range body.Tools {
		out = append(out, fromWireDescriptor(w))
	}
	return out, nil
}

// GetTool implements ToolService via GET /tools/{tool_name}.
func (s *SDKService) GetTool(ctx context.Context, name string) (ToolDescriptor, error) {
	var body struct {
		Tool toolDescriptorWire `json:"tool"`
	}
	if err := s.getJSON(ctx, "/tools/"+name, &body); err != nil {
		return ToolDescriptor{}, err
	}
	return fromWireDescriptor(body.Tool), nil
}

func (s *SDKService) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sdk tool service %s: status %d: %s", path, resp.StatusCode, raw)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// chunk is the union of the four chunk shapes a /calls stream may emit
// (spec.md §6). Exactly one of its fields is populated per chunk.
type chunk struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Message *string        `json:"message"`
	Error   *string         `json:"error"`
	Metadata map[string]any `json:"metadata"`
	Control  *struct {
		Mode string `json:"mode"`
	} `json:"control"`
}

func (c chunk) isTerminal() bool {
	return c.Status == "" && c.Message == nil && c.Error == nil && len(c.Data) > 0
}

func (c chunk) isStatus() bool {
	return c.Status != ""
}

// Call implements ToolService via POST /tools/{tool_name}/calls, decoding
// the chunked JSON stream one object at a time and routing status/message
// chunks through tc's callbacks (spec.md §4.4, §6).
func (s *SDKService) Call(ctx context.Context, toolName string, tc ToolContext, args map[string]any) (ToolResult, error) {
	reqBody, err := json.Marshal(map[string]any{
		"session_id": tc.SessionID,
		"arguments":  args,
	})
	if err != nil {
		return ToolResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/tools/"+toolName+"/calls", bytes.NewReader(reqBody))
	if err != nil {
		return ToolResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return ToolResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return ToolResult{}, fmt.Errorf("sdk tool call %s: status %d: %s", toolName, resp.StatusCode, raw)
	}

	id := ToolID{ServiceName: "", ToolName: toolName}
	dec := json.NewDecoder(resp.Body)
	for {
		var c chunk
		if err := dec.Decode(&c); err != nil {
			if errors.Is(err, io.EOF) {
				return ToolResult{}, NewError(id, "no result chunk")
			}
			return ToolResult{}, fmt.Errorf("decode tool stream chunk: %w", err)
		}
		switch {
		case c.Error != nil:
			return ToolResult{}, NewError(id, *c.Error)
		case c.isStatus():
			if tc.EmitStatus != nil {
				var data any
				if len(c.Data) > 0 {
					_ = json.Unmarshal(c.Data, &data)
				}
				tc.EmitStatus(c.Status, data)
			}
		case c.Message != nil:
			if tc.EmitMessage != nil {
				tc.EmitMessage(*c.Message)
			}
		case c.isTerminal():
			var data any
			if err := json.Unmarshal(c.Data, &data); err != nil {
				return ToolResult{}, fmt.Errorf("decode terminal chunk data: %w", err)
			}
			result := ToolResult{Data: data, Metadata: c.Metadata}
			if c.Control != nil {
				result.Control = &ControlDirective{Mode: c.Control.Mode}
			}
			return result, nil
		}
	}
}

func fromWireDescriptor(w toolDescriptorWire) ToolDescriptor {
	params := make(map[string]ParameterSpec, len(w.Parameters))
	for name, p := range w.Parameters {
		params[name] = ParameterSpec{Type: p.Type, Description: p.Description, Enum: p.Enum}
	}
	return ToolDescriptor{
		ID:            w.ID,
		CreationUTC:   w.CreationUTC,
		Name:          w.Name,
		Description:   w.Description,
		Parameters:    params,
		Required:      w.Required,
		Consequential: w.Consequential,
	}
}
