package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/vireo-ai/vireo/internal/engine"
	"github.com/vireo-ai/vireo/internal/observe"
	"github.com/vireo-ai/vireo/internal/protocol"
	"github.com/vireo-ai/vireo/internal/server"
)

// mockEngine records everything the session feeds it and exposes the SendFunc
// so tests can push messages to the client.
type mockEngine struct {
	mu       sync.Mutex
	frames   [][]byte
	texts    []string
	send     engine.SendFunc
	startErr error

	done     chan struct{}
	doneOnce sync.Once
}

func newMockEngine() *mockEngine {
	return &mockEngine{done: make(chan struct{})}
}

func (m *mockEngine) Start(_ context.Context, send engine.SendFunc) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.mu.Lock()
	m.send = send
	m.mu.Unlock()
	return nil
}

func (m *mockEngine) ProcessAudio(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, append([]byte(nil), frame...))
	return nil
}

func (m *mockEngine) ProcessText(text string, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *mockEngine) Done() <-chan struct{} { return m.done }

func (m *mockEngine) Stop() error {
	m.doneOnce.Do(func() { close(m.done) })
	return nil
}

func (m *mockEngine) sendFunc() engine.SendFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.send
}

func (m *mockEngine) frameCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

func (m *mockEngine) textInputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.texts))
	copy(out, m.texts)
	return out
}

func waitFor(t *testing.T, desc string, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func newTestServer(t *testing.T, factory engine.Factory) *httptest.Server {
	t.Helper()
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	srv := httptest.NewServer(server.New(":0", "test", factory, server.WithMetrics(metrics)).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func() (engine.Engine, error) { return newMockEngine(), nil })

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["engine"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestHealthEndpointUnknownPath(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func() (engine.Engine, error) { return newMockEngine(), nil })

	resp, err := http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func() (engine.Engine, error) { return newMockEngine(), nil })

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if _, err := io.ReadAll(resp.Body); err != nil {
		t.Errorf("read body: %v", err)
	}
}

func TestSessionRoutesFramesToEngine(t *testing.T) {
	t.Parallel()

	eng := newMockEngine()
	srv := newTestServer(t, func() (engine.Engine, error) { return eng, nil })
	conn := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	waitFor(t, "audio frame", func() bool { return eng.frameCount() == 1 })

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"text","content":"hello"}`)); err != nil {
		t.Fatalf("write text: %v", err)
	}
	waitFor(t, "text input", func() bool {
		texts := eng.textInputs()
		return len(texts) == 1 && texts[0] == "hello"
	})
}

func TestSessionIgnoresUnknownTextMessages(t *testing.T) {
	t.Parallel()

	eng := newMockEngine()
	srv := newTestServer(t, func() (engine.Engine, error) { return eng, nil })
	conn := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"selfie"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`not json`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The connection survives garbage; a real frame still goes through.
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"text","content":"still here"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, "text input after garbage", func() bool { return len(eng.textInputs()) == 1 })
}

func TestEngineMessagesReachClient(t *testing.T) {
	t.Parallel()

	eng := newMockEngine()
	srv := newTestServer(t, func() (engine.Engine, error) { return eng, nil })
	conn := dial(t, srv)

	waitFor(t, "engine started", func() bool { return eng.sendFunc() != nil })
	if err := eng.sendFunc()(protocol.NewResponseChunk("hi there")); err != nil {
		t.Fatalf("send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("message type = %v", typ)
	}
	var chunk protocol.ResponseChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	if chunk.Type != "response_chunk" || chunk.Content != "hi there" {
		t.Errorf("chunk = %+v", chunk)
	}
}

func TestEngineFatalEndsSession(t *testing.T) {
	t.Parallel()

	eng := newMockEngine()
	srv := newTestServer(t, func() (engine.Engine, error) { return eng, nil })
	conn := dial(t, srv)

	_ = eng.Stop() // closes Done

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("want read error after engine death")
	}
}

func TestFactoryErrorClosesConnection(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func() (engine.Engine, error) {
		return nil, errors.New("no engine for you")
	})
	conn := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("want read error after factory failure")
	}
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
	t.Parallel()

	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	s := server.New("127.0.0.1:0", "test",
		func() (engine.Engine, error) { return newMockEngine(), nil },
		server.WithMetrics(metrics))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
