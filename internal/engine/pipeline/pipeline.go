// Package pipeline implements the full cascade conversation engine:
// streaming STT feeds a turn controller that endpoints user speech, runs the
// LLM conversation, and streams synthesized sentences back to the client.
//
// All turn state (transcript buffer, live task, turn counter, silence timer)
// is owned by a single controller goroutine that consumes STT events and
// control messages in order. The session read loop only touches the engine
// through ProcessAudio/ProcessText, which never block on downstream services.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vireo-ai/vireo/internal/chat"
	"github.com/vireo-ai/vireo/internal/engine"
	"github.com/vireo-ai/vireo/internal/observe"
	"github.com/vireo-ai/vireo/internal/protocol"
	"github.com/vireo-ai/vireo/pkg/audio"
	"github.com/vireo-ai/vireo/pkg/provider/stt"
	"github.com/vireo-ai/vireo/pkg/provider/tts"
)

// Compile-time interface check.
var _ engine.Engine = (*Engine)(nil)

// Barge-in detector names used in logs and metrics.
const (
	detectorVAD          = "vad"
	detectorSTTText      = "stt_text"
	detectorUtteranceEnd = "utterance_end"
	detectorTextInput    = "text_input"
)

// timings bundles every tunable interval so tests can compress them.
type timings struct {
	silenceTimeout    time.Duration
	keepaliveInterval time.Duration
	tailGuard         time.Duration
	vadThreshold      float64
	vadFrames         int32
	bufferSize        int
	pacing            float64 // fraction of realtime slept per audio flush
}

func defaultTimings() timings {
	return timings{
		silenceTimeout:    1200 * time.Millisecond,
		keepaliveInterval: 5 * time.Second,
		tailGuard:         500 * time.Millisecond,
		vadThreshold:      1000,
		vadFrames:         7,
		bufferSize:        4096,
		pacing:            0.5,
	}
}

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithSilenceTimeout sets the local endpointing silence window.
func WithSilenceTimeout(d time.Duration) Option {
	return func(e *Engine) { e.cfg.silenceTimeout = d }
}

// WithKeepaliveInterval sets how often the STT stream is pinged during turns.
func WithKeepaliveInterval(d time.Duration) Option {
	return func(e *Engine) { e.cfg.keepaliveInterval = d }
}

// WithTailGuard sets the pause after the last audio flush that lets playback
// tail off before the microphone is trusted again.
func WithTailGuard(d time.Duration) Option {
	return func(e *Engine) { e.cfg.tailGuard = d }
}

// WithVAD sets the local barge-in detector: RMS amplitude threshold and the
// number of consecutive qualifying frames required.
func WithVAD(threshold float64, frames int) Option {
	return func(e *Engine) {
		e.cfg.vadThreshold = threshold
		e.cfg.vadFrames = int32(frames)
	}
}

// WithAudioBufferSize sets the minimum outbound audio envelope size in bytes.
func WithAudioBufferSize(n int) Option {
	return func(e *Engine) { e.cfg.bufferSize = n }
}

// WithPacing sets the fraction of audio realtime slept after each synthesis
// as soft backpressure. 0 disables pacing.
func WithPacing(f float64) Option {
	return func(e *Engine) { e.cfg.pacing = f }
}

// WithMetrics overrides the metrics instance (tests use a private meter).
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

type ctrlKind int

const (
	ctrlBargeIn ctrlKind = iota
	ctrlSilence
	ctrlText
)

type ctrlMsg struct {
	kind     ctrlKind
	gen      int64  // silence timer generation
	text     string // synthetic user turn
	turnID   int64  // client-supplied turn id for synthetic turns
	detector string
}

// turnTask is one in-flight response turn.
type turnTask struct {
	id     int64
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine is the full-pipeline conversation engine for one client connection.
type Engine struct {
	sttProvider stt.Provider
	ttsProvider tts.Provider
	chat        *chat.Client
	metrics     *observe.Metrics
	cfg         timings

	send engine.SendFunc
	sess stt.SessionHandle

	ctrl     chan ctrlMsg
	doneCh   chan struct{}
	rootCtx  context.Context
	cancel   context.CancelFunc
	started  atomic.Bool
	stopOnce sync.Once

	// speaking and vadHits are shared with the ProcessAudio fast path.
	speaking atomic.Bool
	vadHits  atomic.Int32

	// Controller-owned state. Touched only by the controller goroutine.
	turnSeq    int64
	transcript []string
	task       *turnTask
	silenceGen int64
	silence    *time.Timer
}

// New creates a pipeline engine. The conversation client carries the system
// prompt and tool registry.
func New(sttProvider stt.Provider, ttsProvider tts.Provider, conv *chat.Client, opts ...Option) *Engine {
	e := &Engine{
		sttProvider: sttProvider,
		ttsProvider: ttsProvider,
		chat:        conv,
		cfg:         defaultTimings(),
		ctrl:        make(chan ctrlMsg, 16),
		doneCh:      make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

var errNotStarted = errors.New("pipeline: engine not started")

// Start opens the STT stream and launches the turn controller. An STT
// connect failure is fatal: the session cannot run without transcription.
func (e *Engine) Start(ctx context.Context, send engine.SendFunc) error {
	if !e.started.CompareAndSwap(false, true) {
		return nil // already started
	}
	e.send = send

	sess, err := e.sttProvider.StartStream(ctx, stt.StreamConfig{
		SampleRate: 16000,
		Channels:   1,
	})
	if err != nil {
		close(e.doneCh)
		return err
	}
	e.sess = sess

	e.rootCtx, e.cancel = context.WithCancel(ctx)
	go e.controller()
	return nil
}

// ProcessAudio forwards a microphone frame to STT and feeds the local
// barge-in detector. Never blocks on the network.
func (e *Engine) ProcessAudio(frame []byte) error {
	if !e.started.Load() {
		return errNotStarted
	}
	select {
	case <-e.doneCh:
		return errors.New("pipeline: engine stopped")
	default:
	}

	if err := e.sess.SendAudio(frame); err != nil {
		slog.Debug("stt audio send failed", "error", err)
	}

	// Local energy detector. Only meaningful while a response is playing;
	// a single quiet frame resets the streak.
	if e.speaking.Load() {
		if audio.RMS(frame) > e.cfg.vadThreshold {
			if e.vadHits.Add(1) >= e.cfg.vadFrames {
				e.vadHits.Store(0)
				select {
				case e.ctrl <- ctrlMsg{kind: ctrlBargeIn, detector: detectorVAD}:
				default:
					// Controller busy; the streak will rebuild if the
					// user keeps talking.
				}
			}
		} else {
			e.vadHits.Store(0)
		}
	} else {
		e.vadHits.Store(0)
	}
	return nil
}

// ProcessText treats text as a complete user turn, interrupting any response
// in flight. A non-zero turnID fast-forwards the session's turn counter so
// clients that track turn ids themselves stay in sync.
func (e *Engine) ProcessText(text string, turnID int64) error {
	if !e.started.Load() {
		return errNotStarted
	}
	select {
	case e.ctrl <- ctrlMsg{kind: ctrlText, text: text, turnID: turnID}:
		return nil
	case <-e.doneCh:
		return errors.New("pipeline: engine stopped")
	}
}

// Done is closed when the engine terminates, fatally or via Stop.
func (e *Engine) Done() <-chan struct{} { return e.doneCh }

// Stop cancels any live turn and closes the STT stream. Idempotent.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
			<-e.doneCh
		} else {
			// Start never ran or failed before launching the controller.
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

// ── controller ────────────────────────────────────────────────────────────────

// controller is the single goroutine that owns all turn state.
func (e *Engine) controller() {
	defer close(e.doneCh)
	defer e.cleanup()

	for {
		var taskDone <-chan struct{}
		if e.task != nil {
			taskDone = e.task.done
		}

		select {
		case <-e.rootCtx.Done():
			return

		case ev, ok := <-e.sess.Events():
			if !ok {
				// The transcription stream dropping mid-session leaves no
				// way to continue the conversation.
				slog.Error("stt stream closed, ending session")
				return
			}
			e.handleSTTEvent(ev)

		case msg := <-e.ctrl:
			switch msg.kind {
			case ctrlBargeIn:
				e.bargeIn(msg.detector)
			case ctrlSilence:
				// A stale generation means the timer was re-armed or
				// disarmed after this fire was scheduled.
				if msg.gen == e.silenceGen {
					slog.Debug("local silence timeout, dispatching turn")
					e.dispatch()
				}
			case ctrlText:
				e.bargeIn(detectorTextInput)
				// Turn ids stay monotone; a lagging client id is ignored.
				if msg.turnID > e.turnSeq {
					e.turnSeq = msg.turnID
				}
				e.transcript = []string{msg.text}
				e.dispatch()
			}

		case <-taskDone:
			// Turn finished on its own.
			e.task = nil
			e.speaking.Store(false)
			e.vadHits.Store(0)
			e.sendMsg(protocol.NewState(protocol.StateIdle, 0))
		}
	}
}

func (e *Engine) handleSTTEvent(ev stt.Event) {
	switch ev.Kind {
	case stt.KindText:
		t := ev.Transcript
		if t.Text != "" {
			e.sendMsg(protocol.NewTranscript(t.Text, t.IsFinal))

			// Speech over a live response is a barge-in. Interim fragments
			// shorter than two characters are too noisy to act on.
			if e.task != nil && (t.IsFinal || len(strings.TrimSpace(t.Text)) >= 2) {
				e.bargeIn(detectorSTTText)
			}
		}

		// Every final re-arms the endpointing timer, even an empty one: the
		// service confirming silence still pushes the endpoint out.
		if t.IsFinal {
			if t.Text != "" {
				e.transcript = append(e.transcript, t.Text)
			}
			e.armSilence()
		}

	case stt.KindSignal:
		switch ev.Signal {
		case stt.SignalSpeechStarted:
			e.disarmSilence()
		case stt.SignalUtteranceEnd:
			e.disarmSilence()
			if e.task != nil {
				e.bargeIn(detectorUtteranceEnd)
			}
			e.dispatch()
		}

	case stt.KindError:
		slog.Warn("stt stream error", "error", ev.Err)
		e.metrics.RecordProviderError(e.rootCtx, "stt", "stream")
	}
}

// bargeIn cancels the live turn, waits for its acknowledgement, invalidates
// the turn id, and tells the client to flush playback. No-op when idle.
func (e *Engine) bargeIn(detector string) {
	if e.task == nil {
		return
	}
	slog.Info("barge-in", "detector", detector, "turn_id", e.task.id)

	e.task.cancel()
	<-e.task.done
	e.task = nil

	e.turnSeq++
	e.speaking.Store(false)
	e.vadHits.Store(0)

	e.sendMsg(protocol.NewStopAudio())
	e.metrics.RecordBargeIn(context.Background(), detector)
}

// dispatch turns the accumulated transcript into a response turn. An empty
// buffer is a no-op.
func (e *Engine) dispatch() {
	text := strings.TrimSpace(strings.Join(e.transcript, " "))
	e.transcript = nil
	e.disarmSilence()
	if text == "" {
		return
	}

	if e.task != nil {
		e.task.cancel()
		<-e.task.done
		e.task = nil
	}

	e.turnSeq++
	t := &turnTask{id: e.turnSeq, done: make(chan struct{})}
	t.ctx, t.cancel = context.WithCancel(e.rootCtx)
	e.task = t
	e.speaking.Store(true)

	slog.Info("dispatching turn", "turn_id", t.id, "text", text)
	go e.runTurn(t, text)
}

// armSilence (re)starts the local endpointing timer. Each arming bumps the
// generation so a previously scheduled fire cannot dispatch.
func (e *Engine) armSilence() {
	e.silenceGen++
	gen := e.silenceGen
	if e.silence != nil {
		e.silence.Stop()
	}
	e.silence = time.AfterFunc(e.cfg.silenceTimeout, func() {
		select {
		case e.ctrl <- ctrlMsg{kind: ctrlSilence, gen: gen}:
		case <-e.rootCtx.Done():
		}
	})
}

func (e *Engine) disarmSilence() {
	e.silenceGen++
	if e.silence != nil {
		e.silence.Stop()
		e.silence = nil
	}
}

func (e *Engine) cleanup() {
	e.disarmSilence()
	if e.task != nil {
		e.task.cancel()
		<-e.task.done
		e.task = nil
	}
	e.speaking.Store(false)
}

// sendMsg writes a protocol message, logging failures. A write error means
// the client went away; the read loop will notice and tear down.
func (e *Engine) sendMsg(msg any) {
	if err := e.send(msg); err != nil {
		slog.Debug("client send failed", "error", err)
	}
}
