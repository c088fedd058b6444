// Package kokoro provides a TTS provider backed by a Kokoro-compatible
// OpenAI-style speech endpoint. It implements the tts.Provider interface.
//
// Kokoro returns the complete PCM body in one response, so the stream carries
// a single chunk.
package kokoro

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://kokoro.jmwalker.dev"
	defaultVoice   = "af_bella"
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithVoice sets the Kokoro voice name (e.g. "af_bella", "bf_emma").
func WithVoice(voice string) Option {
	return func(p *Provider) {
		p.voice = voice
	}
}

// WithBaseURL overrides the service base URL.
func WithBaseURL(base string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(base, "/")
	}
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by a Kokoro speech endpoint.
// Kokoro needs no API key, so New never fails.
type Provider struct {
	baseURL    string
	voice      string
	httpClient *http.Client
}

// New creates a new Kokoro Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:    defaultBaseURL,
		voice:      defaultVoice,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize implements tts.Provider. The whole synthesis is fetched in one
// request and emitted as a single chunk.
func (p *Provider) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	body, err := json.Marshal(speechRequest{
		Model:          "kokoro",
		Input:          text,
		Voice:          p.voice,
		ResponseFormat: "pcm",
	})
	if err != nil {
		return nil, fmt.Errorf("kokoro: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("kokoro: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kokoro: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("kokoro: synthesis failed: status %d: %s", resp.StatusCode, msg)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kokoro: read response: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("kokoro: empty synthesis response")
	}

	ch := make(chan []byte, 1)
	ch <- pcm
	close(ch)
	return ch, nil
}
