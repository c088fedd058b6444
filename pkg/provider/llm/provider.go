// Package llm defines the interface for large language model providers.
package llm

import (
	"context"

	"github.com/vireo-ai/vireo/pkg/types"
)

// CompletionRequest is a chat completion request.
type CompletionRequest struct {
	// Messages is the conversation history, oldest first.
	Messages []types.Message

	// SystemPrompt, when non-empty, is prepended as a system message.
	SystemPrompt string

	// Tools the model may call.
	Tools []types.ToolDefinition

	Temperature float64
	MaxTokens   int
}

// Chunk is a single streamed fragment of a completion.
type Chunk struct {
	// Text is the content delta, possibly empty.
	Text string

	// FinishReason is non-empty on the final chunk ("stop", "tool_calls",
	// "error"). On "error", Text carries the error description.
	FinishReason string

	// ToolCalls holds the fully accumulated tool calls, emitted once on the
	// final chunk in index order.
	ToolCalls []types.ToolCall
}

// CompletionResponse is a non-streaming completion result.
type CompletionResponse struct {
	Content   string
	ToolCalls []types.ToolCall
}

// Provider is a chat-completion LLM backend.
type Provider interface {
	// StreamCompletion starts a streaming completion. The returned channel
	// is closed by the provider when the stream ends. Provider errors after
	// the stream started surface as a chunk with FinishReason "error".
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete runs a blocking completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
