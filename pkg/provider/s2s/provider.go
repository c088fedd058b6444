// Package s2s defines the interface for native speech-to-speech providers:
// models that consume a live audio stream and answer with synthesized audio
// directly, without a separate STT/LLM/TTS cascade.
package s2s

import (
	"context"

	"github.com/vireo-ai/vireo/pkg/types"
)

// EventKind discriminates the variants of [Event].
type EventKind int

const (
	// KindSetupComplete signals the session accepted the setup message.
	KindSetupComplete EventKind = iota
	// KindAudio is a chunk of synthesized model speech (PCM16 24 kHz mono).
	KindAudio
	// KindText is a textual part of the model turn (or output transcription).
	KindText
	// KindInputTranscript is the recognized text of the user's speech.
	KindInputTranscript
	// KindInterrupted signals the model cut its own turn short because the
	// user started speaking.
	KindInterrupted
	// KindTurnComplete signals the end of a model turn.
	KindTurnComplete
	// KindError is a provider-reported error. The session stays open.
	KindError
)

// Event is a single ordered event from a duplex session.
type Event struct {
	Kind  EventKind
	Audio []byte
	Text  string
	Err   error
}

// ToolCallHandler executes a tool requested by the model. It receives the
// tool name and the raw JSON arguments and returns the result serialized as
// JSON (or a plain string, which the provider wraps).
type ToolCallHandler func(name, argsJSON string) (string, error)

// SessionConfig configures a duplex session.
type SessionConfig struct {
	// Instructions is the system prompt for the session.
	Instructions string

	// Voice selects the provider's synthesis voice. Empty means default.
	Voice string

	// Tools the model may call; handled through ToolHandler.
	Tools []types.ToolDefinition

	// ToolHandler executes tool calls. Required when Tools is non-empty.
	ToolHandler ToolCallHandler
}

// SessionHandle is a live duplex session.
type SessionHandle interface {
	// SendAudio delivers a raw PCM chunk (16 kHz, s16le, mono) to the model.
	SendAudio(chunk []byte) error

	// SendText injects a typed user turn into the conversation.
	SendText(text string) error

	// Events returns the ordered event stream. The channel is closed when
	// the underlying connection ends.
	Events() <-chan Event

	// Close terminates the session. Idempotent.
	Close() error
}

// Provider opens duplex speech-to-speech sessions.
type Provider interface {
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
