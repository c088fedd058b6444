// Package mock provides a mock LLM provider for testing. Tests script the
// chunks each successive stream yields and inspect the recorded requests.
package mock

import (
	"context"
	"sync"

	"github.com/vireo-ai/vireo/pkg/provider/llm"
)

// Compile-time interface check.
var _ llm.Provider = (*Provider)(nil)

// StreamCall records one StreamCompletion invocation.
type StreamCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider implements llm.Provider for tests.
type Provider struct {
	mu sync.Mutex

	// Scripts holds the chunk sequences returned by successive
	// StreamCompletion calls. When exhausted, the last script repeats.
	Scripts [][]llm.Chunk

	// StreamErr, when set, is returned by StreamCompletion immediately.
	StreamErr error

	// StreamDelay, when set, makes the stream goroutine wait on ctx between
	// chunks so cancellation tests have a window to act in.
	Blocking bool

	// StreamCalls records every StreamCompletion invocation.
	StreamCalls []StreamCall

	// CompleteResponse is returned by Complete.
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	streamCount int
}

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, StreamCall{Ctx: ctx, Req: req})
	if p.StreamErr != nil {
		defer p.mu.Unlock()
		return nil, p.StreamErr
	}

	var script []llm.Chunk
	if len(p.Scripts) > 0 {
		idx := p.streamCount
		if idx >= len(p.Scripts) {
			idx = len(p.Scripts) - 1
		}
		script = p.Scripts[idx]
	}
	p.streamCount++
	blocking := p.Blocking
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(script)+1)
	if !blocking {
		for _, c := range script {
			ch <- c
		}
		close(ch)
		return ch, nil
	}

	go func() {
		defer close(ch)
		for _, c := range script {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return ch, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if p.CompleteResponse != nil {
		return p.CompleteResponse, nil
	}
	return &llm.CompletionResponse{}, nil
}

// Calls returns a copy of the recorded stream calls.
func (p *Provider) Calls() []StreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StreamCall, len(p.StreamCalls))
	copy(out, p.StreamCalls)
	return out
}

// Reset clears all recorded calls and scripts.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Scripts = nil
	p.StreamErr = nil
	p.Blocking = false
	p.StreamCalls = nil
	p.CompleteResponse = nil
	p.CompleteErr = nil
	p.streamCount = 0
}
