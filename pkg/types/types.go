// Package types contains shared data types used across providers and engines.
package types

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in a conversation history.
type Message struct {
	Role    Role
	Content string

	// ToolCalls is set on assistant messages that request tool invocations.
	ToolCalls []ToolCall

	// ToolCallID links a tool-role message back to the call it answers.
	ToolCallID string
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider-assigned call identifier. May be empty for
	// providers that do not assign one; callers synthesize a fallback.
	ID string

	// Index is the position of this call within the assistant turn.
	Index int

	Name string

	// Arguments is the raw JSON object string for the call. Empty means
	// no arguments.
	Arguments string
}

// ToolDefinition describes a tool exposed to the model.
type ToolDefinition struct {
	Name        string
	Description string

	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any
}

// Transcript is a recognized speech segment from an STT stream.
type Transcript struct {
	Text string

	// IsFinal reports whether the segment is stable. Interim segments may
	// be revised by later results.
	IsFinal bool

	Confidence float64
}
