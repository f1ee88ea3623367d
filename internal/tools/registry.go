// Package tools defines the LLM-callable tool surface and its registry.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/majordomo-labs/majordomo/internal/llm"
	"github.com/majordomo-labs/majordomo/pkg/models"
)

// Tool is one LLM-callable operation. Execute returns the tool-result
// content, usually a models.Envelope JSON string.
type Tool interface {
	Name() string
	Definition() llm.ToolDef
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry manages tools with thread-safe registration and lookup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns every tool definition, sorted by name so the LLM
// sees a stable ordering.
func (r *Registry) Definitions() []llm.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDef, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs a tool by name with raw JSON arguments. A missing tool or
// bad arguments become an error envelope, not a Go error, so the loop can
// feed them back to the model.
func (r *Registry) Execute(ctx context.Context, name string, rawArgs json.RawMessage) (string, error) {
	tool, ok := r.Get(name)
	if !ok {
		return models.MarshalEnvelope(&models.Envelope{
			Status:  models.StatusError,
			Message: "tool not found: " + name,
		}), nil
	}

	args := map[string]any{}
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return models.MarshalEnvelope(&models.Envelope{
				Status:  models.StatusError,
				Message: fmt.Sprintf("invalid arguments for %s: %v", name, err),
			}), nil
		}
	}
	return tool.Execute(ctx, args)
}

// StringArg extracts a trimmed string argument.
func StringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// BoolArg extracts a boolean argument, tolerating string forms.
func BoolArg(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "yes"
	default:
		return false
	}
}
