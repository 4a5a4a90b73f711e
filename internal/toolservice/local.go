package toolservice

import (
	"context"
	"fmt"
	"sync"
)

// LocalFunc is an in-process tool implementation. Arguments have already
// been coerced to the declared parameter types by the caller.
type LocalFunc func(ctx context.Context, tc ToolContext, args map[string]any) (ToolResult, error)

// LocalService is the built-in in-process ToolService (spec.md §4.6:
// "resolve module_path + function name; arguments are coerced to declared
// parameter types; function must return a ToolResult"). Functions are
// registered by name directly rather than resolved dynamically by module
// path, since Go has no runtime symbol lookup by string — this is the
// idiomatic substitute the teacher's own in-process registries use
// (map[string]T guarded by a mutex, e.g. runtime/registry/manager.go's
// registries map).
type LocalService struct {
	mu    sync.RWMutex
	tools map[string]localTool
}

type localTool struct {
	descriptor ToolDescriptor
	fn         LocalFunc
}

// NewLocalService constructs an empty local tool service.
func NewLocalService() *LocalService {
	return &LocalService{tools: make(map[string]localTool)}
}

// Register adds or replaces a tool implementation.
func (s *LocalService) Register(descriptor ToolDescriptor, fn LocalFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[descriptor.Name] = localTool{descriptor: descriptor, fn: fn}
}

// ListTools implements ToolService.
func (s *LocalService) ListTools(_ context.Context) ([]ToolDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t.descriptor)
	}
	return out, nil
}

// GetTool implements ToolService.
func (s *LocalService) GetTool(_ context.Context, name string) (ToolDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[name]
	if !ok {
		return ToolDescriptor{}, fmt.Errorf("local tool %q not registered", name)
	}
	return t.descriptor, nil
}

// Call implements ToolService, invoking the registered Go function directly.
func (s *LocalService) Call(ctx context.Context, toolName string, tc ToolContext, args map[string]any) (ToolResult, error) {
	s.mu.RLock()
	t, ok := s.tools[toolName]
	s.mu.RUnlock()
	if !ok {
		return ToolResult{}, NewError(ToolID{ServiceName: LocalServiceName, ToolName: toolName}, "tool not registered")
	}
	return t.fn(ctx, tc, args)
}
