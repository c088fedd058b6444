// Package stt defines the interface for streaming speech-to-text providers.
package stt

import (
	"context"

	"github.com/vireo-ai/vireo/pkg/types"
)

// EventKind discriminates the variants of [Event].
type EventKind int

const (
	// KindText is a transcript segment (interim or final).
	KindText EventKind = iota
	// KindSignal is an endpointing signal from the service.
	KindSignal
	// KindError is a service-reported error. The session stays open.
	KindError
)

// Signal is a non-transcript endpointing event.
type Signal string

const (
	SignalSpeechStarted Signal = "speech_started"
	SignalUtteranceEnd  Signal = "utterance_end"
)

// Event is a single ordered event from an STT session.
type Event struct {
	Kind       EventKind
	Transcript types.Transcript
	Signal     Signal
	Err        error
}

// StreamConfig configures a streaming transcription session.
type StreamConfig struct {
	// SampleRate of the incoming PCM in Hz. Defaults to the provider's.
	SampleRate int

	// Language is a BCP-47 code. Defaults to the provider's.
	Language string

	// Channels of audio. Defaults to 1.
	Channels int
}

// SessionHandle is a live streaming transcription session.
type SessionHandle interface {
	// SendAudio queues a PCM chunk for delivery. It never blocks on the
	// network; chunks sent to a closed session are dropped with an error.
	SendAudio(chunk []byte) error

	// Keepalive tells the service the session is still live during periods
	// without audio.
	Keepalive() error

	// Events returns the ordered event stream. The channel is closed when
	// the underlying connection ends; that closure is fatal to the caller's
	// session.
	Events() <-chan Event

	// Close flushes pending audio and terminates the session. Idempotent.
	Close() error
}

// Provider opens streaming transcription sessions.
type Provider interface {
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
