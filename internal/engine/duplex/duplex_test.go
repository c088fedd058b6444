package duplex_test

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/vireo-ai/vireo/internal/engine/duplex"
	"github.com/vireo-ai/vireo/internal/observe"
	"github.com/vireo-ai/vireo/internal/protocol"
	"github.com/vireo-ai/vireo/pkg/provider/s2s"
	s2smock "github.com/vireo-ai/vireo/pkg/provider/s2s/mock"
)

type recorder struct {
	mu   sync.Mutex
	msgs []any
}

func (r *recorder) send(msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func (r *recorder) waitFor(t *testing.T, desc string, pred func([]any) bool) []any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msgs := r.snapshot()
		if pred(msgs) {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; messages: %+v", desc, r.snapshot())
	return nil
}

func hasType[T any](msgs []any) bool {
	for _, m := range msgs {
		if _, ok := m.(T); ok {
			return true
		}
	}
	return false
}

type fixture struct {
	eng      *duplex.Engine
	provider *s2smock.Provider
	rec      *recorder
}

func (f *fixture) session() *s2smock.Session { return f.provider.Last() }

func newFixture(t *testing.T, opts ...duplex.Option) *fixture {
	t.Helper()

	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	f := &fixture{provider: &s2smock.Provider{}, rec: &recorder{}}
	base := []duplex.Option{
		duplex.WithMetrics(metrics),
		duplex.WithOutputBufferSize(8),
		duplex.WithInputBufferSize(16),
		duplex.WithVAD(1000, 3),
	}
	f.eng = duplex.New(f.provider, "test instructions", nil, append(base, opts...)...)
	if err := f.eng.Start(context.Background(), f.rec.send); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = f.eng.Stop() })
	return f
}

func loudFrame() []byte {
	buf := make([]byte, 64)
	for i := 0; i < len(buf); i += 2 {
		binary.LittleEndian.PutUint16(buf[i:], uint16(int16(4000)))
	}
	return buf
}

func TestStartPassesInstructions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if len(f.provider.ConnectCalls) != 1 {
		t.Fatalf("connect calls = %d", len(f.provider.ConnectCalls))
	}
	if got := f.provider.ConnectCalls[0].Instructions; got != "test instructions" {
		t.Errorf("instructions = %q", got)
	}
}

func TestModelTurnRelayedWithTurnIDs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.session().Emit(s2s.Event{Kind: s2s.KindAudio, Audio: []byte("0123456789ab")}) // 12 bytes
	f.session().Emit(s2s.Event{Kind: s2s.KindText, Text: "Hello"})
	f.session().Emit(s2s.Event{Kind: s2s.KindTurnComplete})

	msgs := f.rec.waitFor(t, "turn_complete", hasType[protocol.TurnComplete])

	var sawProcessing bool
	var audioCount int
	for _, m := range msgs {
		switch v := m.(type) {
		case protocol.State:
			if v.State == protocol.StateProcessing {
				sawProcessing = true
				if v.TurnID != 1 {
					t.Errorf("processing turn_id = %d, want 1", v.TurnID)
				}
			}
		case protocol.Audio:
			audioCount++
			if v.TurnID != 1 {
				t.Errorf("audio turn_id = %d, want 1", v.TurnID)
			}
		case protocol.ResponseChunk:
			if v.Content != "Hello" {
				t.Errorf("response chunk = %q", v.Content)
			}
		}
	}
	if !sawProcessing {
		t.Error("missing processing state")
	}
	// 12 bytes with an 8-byte envelope: one full frame, remainder flushed at
	// turn completion.
	if audioCount != 2 {
		t.Errorf("audio envelopes = %d, want 2", audioCount)
	}
}

func TestInputTranscriptRelayed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.session().Emit(s2s.Event{Kind: s2s.KindInputTranscript, Text: "what time is it"})

	f.rec.waitFor(t, "transcript", func(msgs []any) bool {
		for _, m := range msgs {
			if tr, ok := m.(protocol.Transcript); ok {
				return tr.Text == "what time is it" && tr.IsFinal
			}
		}
		return false
	})
}

func TestServerInterruptionFlushesPlayback(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.session().Emit(s2s.Event{Kind: s2s.KindAudio, Audio: []byte("01234567")})
	f.rec.waitFor(t, "audio", hasType[protocol.Audio])

	f.session().Emit(s2s.Event{Kind: s2s.KindInterrupted})
	msgs := f.rec.waitFor(t, "stop_audio", hasType[protocol.StopAudio])
	if hasType[protocol.TurnComplete](msgs) {
		t.Error("interrupted turn must not emit turn_complete")
	}

	// The next model turn gets a fresh id.
	f.session().Emit(s2s.Event{Kind: s2s.KindAudio, Audio: []byte("89abcdef")})
	f.rec.waitFor(t, "new turn audio", func(msgs []any) bool {
		for _, m := range msgs {
			if a, ok := m.(protocol.Audio); ok && a.TurnID == 2 {
				return true
			}
		}
		return false
	})
}

func TestLocalVADFlushesPlayback(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.session().Emit(s2s.Event{Kind: s2s.KindAudio, Audio: []byte("01234567")})
	f.rec.waitFor(t, "audio", hasType[protocol.Audio])

	for range 3 {
		if err := f.eng.ProcessAudio(loudFrame()); err != nil {
			t.Fatalf("ProcessAudio: %v", err)
		}
	}
	f.rec.waitFor(t, "stop_audio", hasType[protocol.StopAudio])
}

func TestInputCoalescedBeforeSend(t *testing.T) {
	t.Parallel()

	f := newFixture(t) // 16-byte input buffer

	// Two 8-byte frames: nothing sent until the threshold is reached.
	if err := f.eng.ProcessAudio(make([]byte, 8)); err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if got := len(f.session().Audio()); got != 0 {
		t.Fatalf("chunks sent after first frame = %d, want 0", got)
	}
	if err := f.eng.ProcessAudio(make([]byte, 8)); err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	chunks := f.session().Audio()
	if len(chunks) != 1 || len(chunks[0]) != 16 {
		t.Fatalf("chunks = %d, want one 16-byte chunk", len(chunks))
	}
}

func TestProcessTextInjectsTurn(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.eng.ProcessText("hello", 0); err != nil {
		t.Fatalf("ProcessText: %v", err)
	}
	texts := f.session().Texts()
	if len(texts) != 1 || texts[0] != "hello" {
		t.Errorf("texts = %q", texts)
	}
}

func TestSessionDropIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.session().Close()

	select {
	case <-f.eng.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done() not closed after session drop")
	}
}
