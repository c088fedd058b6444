package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/vireo-ai/vireo/internal/protocol"
)

// runTurn executes one response turn: LLM fragments are cut into sentences
// and each sentence is synthesized and streamed out as soon as it is
// complete. Runs in its own goroutine; t.ctx cancellation aborts every stage.
func (e *Engine) runTurn(t *turnTask, text string) {
	defer close(t.done)
	start := time.Now()

	e.sendLive(t, protocol.NewState(protocol.StateProcessing, t.id))

	// Keep the STT stream warm while the user is quiet and we are talking.
	go e.keepaliveLoop(t.ctx)

	llmStart := time.Now()
	frags := e.chat.Generate(t.ctx, text)

	var pending string
	for frag := range frags {
		pending += frag
		for {
			sentence, rest, ok := cutSentence(pending)
			if !ok {
				break
			}
			pending = rest
			e.speak(t, sentence)
			if t.ctx.Err() != nil {
				break
			}
		}
		if t.ctx.Err() != nil {
			break
		}
	}
	e.metrics.LLMDuration.Record(context.Background(), time.Since(llmStart).Seconds())

	if t.ctx.Err() != nil {
		e.metrics.RecordTurn(context.Background(), "pipeline", "cancelled")
		return
	}

	if tail := strings.TrimSpace(pending); tail != "" {
		e.speak(t, tail)
	}
	if t.ctx.Err() != nil {
		e.metrics.RecordTurn(context.Background(), "pipeline", "cancelled")
		return
	}

	// Let the playback tail fade before the VAD path trusts the mic again,
	// otherwise the response's own echo can read as a barge-in.
	sleepCtx(t.ctx, e.cfg.tailGuard)
	if t.ctx.Err() != nil {
		e.metrics.RecordTurn(context.Background(), "pipeline", "cancelled")
		return
	}

	e.sendLive(t, protocol.NewTurnComplete())
	e.metrics.TurnDuration.Record(context.Background(), time.Since(start).Seconds())
	e.metrics.RecordTurn(context.Background(), "pipeline", "complete")
}

// speak emits the sentence text and its synthesized audio in order. TTS
// failures end the sentence, not the turn.
func (e *Engine) speak(t *turnTask, sentence string) {
	if t.ctx.Err() != nil {
		return
	}
	e.sendLive(t, protocol.NewResponseChunk(sentence+" "))

	synthStart := time.Now()
	stream, err := e.ttsProvider.Synthesize(t.ctx, sentence)
	if err != nil {
		slog.Warn("tts synthesis failed", "error", err)
		e.metrics.RecordProviderError(context.Background(), "tts", "synthesize")
		return
	}

	var buf []byte
	total := 0
	for chunk := range stream {
		if t.ctx.Err() != nil {
			return
		}
		buf = append(buf, chunk...)
		for len(buf) >= e.cfg.bufferSize {
			e.sendLive(t, protocol.NewAudio(buf[:e.cfg.bufferSize], t.id))
			total += e.cfg.bufferSize
			buf = buf[e.cfg.bufferSize:]
		}
	}
	if len(buf) > 0 && t.ctx.Err() == nil {
		e.sendLive(t, protocol.NewAudio(buf, t.id))
		total += len(buf)
	}
	e.metrics.TTSDuration.Record(context.Background(), time.Since(synthStart).Seconds())

	// Soft backpressure: sleep a fraction of the audio's realtime so the
	// client queue never grows unbounded. 48000 bytes/s is PCM16 @ 24 kHz.
	if e.cfg.pacing > 0 && total > 0 {
		sleepCtx(t.ctx, time.Duration(e.cfg.pacing*float64(total)/48000*float64(time.Second)))
	}
}

// keepaliveLoop pings the STT stream for the duration of the turn.
func (e *Engine) keepaliveLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.sess.Keepalive(); err != nil {
				slog.Debug("stt keepalive failed", "error", err)
				return
			}
		}
	}
}

// sendLive writes a message unless the turn was cancelled. The check and the
// write are not atomic; the client's turn-id filter covers the remaining
// window.
func (e *Engine) sendLive(t *turnTask, msg any) {
	if t.ctx.Err() != nil {
		return
	}
	e.sendMsg(msg)
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
