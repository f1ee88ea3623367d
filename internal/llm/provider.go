// Package llm defines the provider interface for the turn orchestrator's
// tool loop and implements it for OpenAI and Anthropic backends.
package llm

import (
	"context"

	"github.com/majordomo-labs/majordomo/pkg/models"
)

// ResponseType distinguishes the two useful outcomes of a call.
type ResponseType string

const (
	// ResponseMessage is plain assistant text; it terminates the tool loop.
	ResponseMessage ResponseType = "message"

	// ResponseToolCalls is one or more requested tool invocations.
	ResponseToolCalls ResponseType = "tool"
)

// Message is one entry of the conversation sent to the provider.
type Message struct {
	// Role is "user", "assistant" or "tool".
	Role string

	Content string

	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []models.ToolCall

	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string
}

// ToolDef is a JSON-schema tool definition offered to the model.
type ToolDef struct {
	Name        string
	Description string

	// Parameters maps property name to its JSON-schema fragment.
	Parameters map[string]any

	// Required lists mandatory property names.
	Required []string
}

// Request is one provider call.
type Request struct {
	System    string
	Messages  []Message
	Tools     []ToolDef
	MaxTokens int
}

// Response is the provider's answer, either text or tool calls.
type Response struct {
	Type      ResponseType
	Text      string
	ToolCalls []models.ToolCall
}

// Provider abstracts the LLM backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	Call(ctx context.Context, req *Request) (*Response, error)
	Name() string
}

// schemaFor renders a ToolDef's parameters as a JSON-schema object map.
func schemaFor(def ToolDef) map[string]any {
	properties := def.Parameters
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(def.Required) > 0 {
		schema["required"] = def.Required
	}
	return schema
}
