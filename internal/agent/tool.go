package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrToolExists   = errors.New("tool already registered")
	ErrToolNotFound = errors.New("tool not found")
	ErrInvalidTool  = errors.New("invalid tool descriptor")
)

// Tool describes a function the model may call. Parameters is a JSON schema
// object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Handler executes a tool call. The returned value is JSON-encoded and sent
// back to the model. Handlers report expected failures in their result; a
// returned error is sent to the model as {"status":"error"}.
type Handler func(ctx context.Context, args map[string]any) (any, error)

type registration struct {
	tool    Tool
	handler Handler
}

// Registry holds the tools offered to the model.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registration)}
}

// Register adds a tool.
func (r *Registry) Register(tool Tool, handler Handler) error {
	if tool.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTool)
	}
	if handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidTool, tool.Name)
	}
	if tool.Parameters == nil {
		tool.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[tool.Name]; ok {
		return fmt.Errorf("%w: %s", ErrToolExists, tool.Name)
	}
	r.tools[tool.Name] = registration{tool: tool, handler: handler}
	return nil
}

// Tools returns the registered descriptors sorted by name.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.tools))
	for _, reg := range r.tools {
		out = append(out, reg.tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return reg.handler, nil
}
