// Package duplex implements the native-audio conversation engine: a mostly
// transparent relay between the client WebSocket and a speech-to-speech
// model session. The model handles endpointing and interruption itself; the
// engine adds client-side turn tagging, output rebuffering, and a local
// energy detector that flushes playback faster than the server-side
// interruption signal arrives.
package duplex

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vireo-ai/vireo/internal/engine"
	"github.com/vireo-ai/vireo/internal/observe"
	"github.com/vireo-ai/vireo/internal/protocol"
	"github.com/vireo-ai/vireo/internal/tools"
	"github.com/vireo-ai/vireo/pkg/audio"
	"github.com/vireo-ai/vireo/pkg/provider/s2s"
)

// Compile-time interface check.
var _ engine.Engine = (*Engine)(nil)

type settings struct {
	vadThreshold  float64
	vadHits       int32
	inBufferSize  int
	outBufferSize int
}

func defaultSettings() settings {
	return settings{
		vadThreshold: 1000,
		// The model audio leaks into the mic more here than in the
		// cascade, but the server confirms interruptions itself, so the
		// local detector can fire on a short streak.
		vadHits:       3,
		inBufferSize:  1024,
		outBufferSize: 4096,
	}
}

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithVAD sets the local playback-flush detector.
func WithVAD(threshold float64, hits int) Option {
	return func(e *Engine) {
		e.cfg.vadThreshold = threshold
		e.cfg.vadHits = int32(hits)
	}
}

// WithInputBufferSize sets the minimum media chunk sent upstream, in bytes.
func WithInputBufferSize(n int) Option {
	return func(e *Engine) { e.cfg.inBufferSize = n }
}

// WithOutputBufferSize sets the minimum outbound audio envelope, in bytes.
func WithOutputBufferSize(n int) Option {
	return func(e *Engine) { e.cfg.outBufferSize = n }
}

// WithVoice selects the model's synthesis voice.
func WithVoice(voice string) Option {
	return func(e *Engine) { e.voice = voice }
}

// WithMetrics overrides the metrics instance (tests use a private meter).
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine is the duplex conversation engine for one client connection.
type Engine struct {
	provider     s2s.Provider
	instructions string
	voice        string
	registry     *tools.Registry
	metrics      *observe.Metrics
	cfg          settings

	send engine.SendFunc
	sess s2s.SessionHandle

	ctrl     chan struct{} // local barge-in signal
	doneCh   chan struct{}
	rootCtx  context.Context
	cancel   context.CancelFunc
	started  atomic.Bool
	stopOnce sync.Once

	responding atomic.Bool
	vadStreak  atomic.Int32

	// inMu guards the input coalescing buffer, filled by ProcessAudio.
	inMu  sync.Mutex
	inBuf []byte
}

// New creates a duplex engine. instructions is the system prompt; registry
// may be nil for a tool-less session.
func New(provider s2s.Provider, instructions string, registry *tools.Registry, opts ...Option) *Engine {
	e := &Engine{
		provider:     provider,
		instructions: instructions,
		registry:     registry,
		cfg:          defaultSettings(),
		ctrl:         make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

var errNotStarted = errors.New("duplex: engine not started")

// Start connects the model session and launches the relay. A connect failure
// is fatal.
func (e *Engine) Start(ctx context.Context, send engine.SendFunc) error {
	if !e.started.CompareAndSwap(false, true) {
		return nil // already started
	}
	e.send = send

	cfg := s2s.SessionConfig{
		Instructions: e.instructions,
		Voice:        e.voice,
	}
	if e.registry != nil {
		cfg.Tools = e.registry.Definitions()
		cfg.ToolHandler = func(name, argsJSON string) (string, error) {
			return e.registry.Execute(ctx, name, argsJSON), nil
		}
	}

	sess, err := e.provider.Connect(ctx, cfg)
	if err != nil {
		close(e.doneCh)
		return err
	}
	e.sess = sess

	e.rootCtx, e.cancel = context.WithCancel(ctx)
	go e.relay()
	return nil
}

// ProcessAudio coalesces microphone frames into media chunks for the model
// and feeds the local playback-flush detector.
func (e *Engine) ProcessAudio(frame []byte) error {
	if !e.started.Load() {
		return errNotStarted
	}
	select {
	case <-e.doneCh:
		return errors.New("duplex: engine stopped")
	default:
	}

	e.inMu.Lock()
	e.inBuf = append(e.inBuf, frame...)
	var chunk []byte
	if len(e.inBuf) >= e.cfg.inBufferSize {
		chunk = e.inBuf
		e.inBuf = nil
	}
	e.inMu.Unlock()

	if chunk != nil {
		if err := e.sess.SendAudio(chunk); err != nil {
			slog.Debug("duplex audio send failed", "error", err)
		}
	}

	if e.responding.Load() {
		if audio.RMS(frame) > e.cfg.vadThreshold {
			if e.vadStreak.Add(1) >= e.cfg.vadHits {
				e.vadStreak.Store(0)
				select {
				case e.ctrl <- struct{}{}:
				default:
				}
			}
		} else {
			e.vadStreak.Store(0)
		}
	} else {
		e.vadStreak.Store(0)
	}
	return nil
}

// ProcessText injects a typed user turn into the model session.
func (e *Engine) ProcessText(text string, _ int64) error {
	if !e.started.Load() {
		return errNotStarted
	}
	return e.sess.SendText(text)
}

// Done is closed when the engine terminates, fatally or via Stop.
func (e *Engine) Done() <-chan struct{} { return e.doneCh }

// Stop closes the model session. Idempotent.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
			<-e.doneCh
		} else {
			select {
			case <-e.doneCh:
			default:
				close(e.doneCh)
			}
		}
		if e.sess != nil {
			_ = e.sess.Close()
		}
	})
	return nil
}

// relay is the single goroutine that owns outbound buffering and turn state.
func (e *Engine) relay() {
	defer close(e.doneCh)

	var turnSeq int64
	var outBuf []byte

	flush := func(all bool) {
		for len(outBuf) >= e.cfg.outBufferSize {
			e.sendMsg(protocol.NewAudio(outBuf[:e.cfg.outBufferSize], turnSeq))
			outBuf = outBuf[e.cfg.outBufferSize:]
		}
		if all && len(outBuf) > 0 {
			e.sendMsg(protocol.NewAudio(outBuf, turnSeq))
			outBuf = nil
		}
	}

	for {
		select {
		case <-e.rootCtx.Done():
			e.responding.Store(false)
			return

		case <-e.ctrl:
			// Local detector heard the user over the playback. Flush
			// now instead of waiting for the server's interrupted signal.
			if e.responding.CompareAndSwap(true, false) {
				slog.Info("local barge-in, flushing playback", "turn_id", turnSeq)
				outBuf = nil
				e.sendMsg(protocol.NewStopAudio())
				e.metrics.RecordBargeIn(context.Background(), "vad")
			}

		case ev, ok := <-e.sess.Events():
			if !ok {
				slog.Error("duplex session closed, ending session")
				e.responding.Store(false)
				return
			}

			switch ev.Kind {
			case s2s.KindSetupComplete:
				slog.Debug("duplex session ready")

			case s2s.KindAudio:
				if e.responding.CompareAndSwap(false, true) {
					turnSeq++
					e.vadStreak.Store(0)
					e.sendMsg(protocol.NewState(protocol.StateProcessing, turnSeq))
				}
				outBuf = append(outBuf, ev.Audio...)
				flush(false)

			case s2s.KindText:
				e.sendMsg(protocol.NewResponseChunk(ev.Text))

			case s2s.KindInputTranscript:
				e.sendMsg(protocol.NewTranscript(ev.Text, true))

			case s2s.KindInterrupted:
				outBuf = nil
				if e.responding.CompareAndSwap(true, false) {
					e.sendMsg(protocol.NewStopAudio())
					e.metrics.RecordBargeIn(context.Background(), "server")
				}

			case s2s.KindTurnComplete:
				flush(true)
				if e.responding.CompareAndSwap(true, false) {
					e.sendMsg(protocol.NewTurnComplete())
					e.metrics.RecordTurn(context.Background(), "duplex", "complete")
				}
				e.sendMsg(protocol.NewState(protocol.StateIdle, 0))

			case s2s.KindError:
				slog.Warn("duplex session error", "error", ev.Err)
				e.metrics.RecordProviderError(context.Background(), "s2s", "stream")
			}
		}
	}
}

func (e *Engine) sendMsg(msg any) {
	if err := e.send(msg); err != nil {
		slog.Debug("client send failed", "error", err)
	}
}
