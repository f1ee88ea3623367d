package models

import (
	"encoding/json"
	"time"
)

// OriginType classifies the inbound Telegram update that produced a turn.
type OriginType string

const (
	OriginText     OriginType = "text"
	OriginVoice    OriginType = "voice"
	OriginCommand  OriginType = "command"
	OriginCaption  OriginType = "caption"
	OriginAudio    OriginType = "audio"
	OriginPhoto    OriginType = "photo"
	OriginVideo    OriginType = "video"
	OriginDocument OriginType = "document"
	OriginUnknown  OriginType = "unknown"
)

// VoicePrefix marks transcribed voice notes so downstream prompts can tell
// spoken input from typed input.
const VoicePrefix = "[voice note] "

// TurnInput is the normalized form of one inbound message. One TurnInput
// produces exactly one turn through the orchestrator.
type TurnInput struct {
	UserID        int64      `json:"user_id"`
	ChatID        int64      `json:"chat_id"`
	Type          OriginType `json:"type"`
	Message       string     `json:"message"`
	FileID        string     `json:"file_id,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
	CorrelationID string     `json:"correlation_id"`
}

// Role indicates the conversation author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ConversationTurn is one row of the append-only conversation log.
type ConversationTurn struct {
	UserID    int64          `json:"user_id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ToolCall is an LLM request to execute a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the output of one tool execution, serialized back to the LLM.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}
