// Package engine defines the contract between a WebSocket session and the
// conversation engine running behind it.
package engine

import "context"

// SendFunc delivers one outbound protocol message to the client. The session
// loop owns the connection and serializes writes; engines never touch the
// socket directly.
type SendFunc func(msg any) error

// Engine is a live conversation engine bound to a single client connection.
//
// Start must be called exactly once before any Process call. ProcessAudio is
// called from the session read loop and must never block on downstream
// services. A closed Done channel means the engine hit a fatal error and the
// session should tear down. Stop is idempotent.
type Engine interface {
	Start(ctx context.Context, send SendFunc) error
	ProcessAudio(frame []byte) error
	ProcessText(text string, turnID int64) error
	Done() <-chan struct{}
	Stop() error
}

// Factory creates a fresh engine per connection. Engines hold per-session
// state (history, provider streams) and are never shared.
type Factory func() (Engine, error)
