// Package mock provides a mock TTS provider for testing.
package mock

import (
	"context"
	"sync"

	"github.com/vireo-ai/vireo/pkg/provider/tts"
)

// Compile-time interface check.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider for tests. Each Synthesize call yields
// Chunks (or ChunksFor[text] when set) and records the text.
type Provider struct {
	mu sync.Mutex

	// Chunks is the default PCM chunk sequence for every synthesis.
	Chunks [][]byte

	// ChunksFor overrides Chunks for specific input texts.
	ChunksFor map[string][][]byte

	// Err, when set, is returned by Synthesize immediately.
	Err error

	// ErrFor fails synthesis for specific input texts only.
	ErrFor map[string]error

	// Texts records every synthesized input in order.
	Texts []string
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	p.mu.Lock()
	p.Texts = append(p.Texts, text)
	if p.Err != nil {
		defer p.mu.Unlock()
		return nil, p.Err
	}
	if err, ok := p.ErrFor[text]; ok {
		defer p.mu.Unlock()
		return nil, err
	}
	chunks := p.Chunks
	if c, ok := p.ChunksFor[text]; ok {
		chunks = c
	}
	p.mu.Unlock()

	ch := make(chan []byte, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

// Synthesized returns a copy of all recorded inputs.
func (p *Provider) Synthesized() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Texts))
	copy(out, p.Texts)
	return out
}

// Reset clears recorded calls and configuration.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Chunks = nil
	p.ChunksFor = nil
	p.Err = nil
	p.ErrFor = nil
	p.Texts = nil
}
