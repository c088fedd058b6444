// Package tts defines the interface for text-to-speech providers.
package tts

import "context"

// Provider synthesizes speech from text.
//
// Synthesize starts synthesis of one sentence and returns a channel of raw
// PCM chunks (16-bit little-endian, 24 kHz, mono). The channel is closed by
// the provider when synthesis ends; a mid-stream failure closes the channel
// early after logging. Cancel ctx to abandon the stream.
type Provider interface {
	Synthesize(ctx context.Context, text string) (<-chan []byte, error)
}
