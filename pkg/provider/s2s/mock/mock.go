// Package mock provides a mock duplex speech-to-speech provider for testing.
// Sessions are driven by the test: push events with Emit and inspect the
// audio and text the engine forwarded.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/vireo-ai/vireo/pkg/provider/s2s"
)

// Compile-time interface checks.
var (
	_ s2s.Provider      = (*Provider)(nil)
	_ s2s.SessionHandle = (*Session)(nil)
)

// Provider implements s2s.Provider for tests.
type Provider struct {
	mu sync.Mutex

	// ConnectErr, when set, is returned by Connect.
	ConnectErr error

	// ConnectCalls records the configs passed to Connect.
	ConnectCalls []s2s.SessionConfig

	// Sessions holds every session handed out, in order.
	Sessions []*Session
}

// Connect returns a fresh driveable session.
func (p *Provider) Connect(_ context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, cfg)
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	s := NewSession()
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// Last returns the most recently connected session, or nil.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Sessions) == 0 {
		return nil
	}
	return p.Sessions[len(p.Sessions)-1]
}

// Session is a test-driven duplex session.
type Session struct {
	events chan s2s.Event

	mu     sync.Mutex
	audio  [][]byte
	texts  []string
	closed bool
}

func NewSession() *Session {
	return &Session{events: make(chan s2s.Event, 64)}
}

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock s2s: session closed")
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.audio = append(s.audio, cp)
	return nil
}

func (s *Session) SendText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock s2s: session closed")
	}
	s.texts = append(s.texts, text)
	return nil
}

func (s *Session) Events() <-chan s2s.Event { return s.events }

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// Emit pushes an event as if received from the service.
func (s *Session) Emit(ev s2s.Event) { s.events <- ev }

// Audio returns a copy of all chunks the engine forwarded.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

// Texts returns a copy of all injected text turns.
func (s *Session) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
