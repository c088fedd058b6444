// Package tools holds the registry of functions the model can call, plus the
// built-in time and date tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vireo-ai/vireo/pkg/types"
)

// Func executes a tool call. args holds the decoded arguments object. The
// returned value is serialized to JSON for the model.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Tool pairs a definition with its handler.
type Tool struct {
	Definition types.ToolDefinition
	Fn         Func
}

// Registry is a named collection of tools. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Definition.Name] = t
}

// Definitions returns the tool schemas, sorted by name for stable prompts.
func (r *Registry) Definitions() []types.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Definition)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs the named tool with the given raw JSON arguments and returns
// the result serialized as JSON. Failures never propagate as errors: the
// description is returned as the result so the model can react to it.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) string {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("tool error: unknown tool %q", name)
	}

	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return fmt.Sprintf("tool error: invalid arguments: %v", err)
		}
	}

	result, err := t.Fn(ctx, args)
	if err != nil {
		return fmt.Sprintf("tool error: %v", err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("tool error: marshal result: %v", err)
	}
	return string(data)
}

// Builtin returns a registry preloaded with the time and date tools.
func Builtin() *Registry {
	return BuiltinAt(time.Now)
}

// BuiltinAt is Builtin with an injectable clock.
func BuiltinAt(now func() time.Time) *Registry {
	r := NewRegistry()

	r.Register(Tool{
		Definition: types.ToolDefinition{
			Name:        "get_current_time",
			Description: "Get the current local time. Use this when the user asks what time it is.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		Fn: func(context.Context, map[string]any) (any, error) {
			return map[string]string{"time": now().Format("03:04 PM")}, nil
		},
	})

	r.Register(Tool{
		Definition: types.ToolDefinition{
			Name:        "get_current_date",
			Description: "Get the current date. Use this when the user asks about today's date.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		Fn: func(context.Context, map[string]any) (any, error) {
			return map[string]string{"date": now().Format("2006-01-02")}, nil
		},
	})

	return r
}
