package models

import "encoding/json"

// Envelope status values. Tools that need another turn before they can act
// return a structured envelope instead of a plain result; the orchestrator
// persists the payload and prompts the user.
const (
	StatusCompleted            = "completed"
	StatusError                = "error"
	StatusConfirmationRequired = "confirmation_required"
	StatusDispatchRequired     = "dispatch_required"
	StatusCommentRequired      = "comment_required"
)

// Envelope is the structured tool-result contract between tools and the
// turn orchestrator.
type Envelope struct {
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Awaiting string         `json:"awaiting,omitempty"`
	Question string         `json:"question,omitempty"`
}

// ParseEnvelope decodes a tool result into an Envelope. The second return
// is false when the content is not a JSON object carrying a status field.
func ParseEnvelope(content string) (*Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		return nil, false
	}
	if env.Status == "" {
		return nil, false
	}
	return &env, true
}

// MarshalEnvelope renders an envelope as the tool-result JSON string.
func MarshalEnvelope(env *Envelope) string {
	b, err := json.Marshal(env)
	if err != nil {
		return `{"status":"error","message":"unencodable envelope"}`
	}
	return string(b)
}
