// Package mock provides a mock STT provider for testing. Sessions are driven
// by the test: push events with EmitText/EmitSignal and inspect the audio the
// engine forwarded.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/vireo-ai/vireo/pkg/provider/stt"
	"github.com/vireo-ai/vireo/pkg/types"
)

// Compile-time interface checks.
var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.SessionHandle = (*Session)(nil)
)

// Provider implements stt.Provider for tests.
type Provider struct {
	mu sync.Mutex

	// StartErr, when set, is returned by StartStream.
	StartErr error

	// StartCalls records the configs passed to StartStream.
	StartCalls []stt.StreamConfig

	// Sessions holds every session handed out, in order.
	Sessions []*Session
}

// StartStream returns a fresh driveable session.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls = append(p.StartCalls, cfg)
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	s := NewSession()
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// Last returns the most recently started session, or nil.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Sessions) == 0 {
		return nil
	}
	return p.Sessions[len(p.Sessions)-1]
}

// Reset clears recorded calls and sessions.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls = nil
	p.Sessions = nil
	p.StartErr = nil
}

// Session is a test-driven STT session.
type Session struct {
	events chan stt.Event

	mu         sync.Mutex
	audio      [][]byte
	keepalives int
	closed     bool
}

func NewSession() *Session {
	return &Session{events: make(chan stt.Event, 64)}
}

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock stt: session closed")
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.audio = append(s.audio, cp)
	return nil
}

func (s *Session) Keepalive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock stt: session closed")
	}
	s.keepalives++
	return nil
}

func (s *Session) Events() <-chan stt.Event { return s.events }

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// EmitText pushes a transcript event as if received from the service.
func (s *Session) EmitText(text string, isFinal bool) {
	s.events <- stt.Event{
		Kind:       stt.KindText,
		Transcript: types.Transcript{Text: text, IsFinal: isFinal, Confidence: 0.95},
	}
}

// EmitSignal pushes an endpointing signal.
func (s *Session) EmitSignal(sig stt.Signal) {
	s.events <- stt.Event{Kind: stt.KindSignal, Signal: sig}
}

// EmitError pushes a service error event.
func (s *Session) EmitError(err error) {
	s.events <- stt.Event{Kind: stt.KindError, Err: err}
}

// Audio returns a copy of all chunks the engine forwarded.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

// Keepalives reports how many keepalive pings were sent.
func (s *Session) Keepalives() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keepalives
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
