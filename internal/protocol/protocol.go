// Package protocol defines the JSON messages exchanged with clients over the
// WebSocket. Outbound messages are typed structs whose constructors set the
// "type" tag; inbound text frames decode into [Inbound].
package protocol

import "encoding/base64"

// Conversation states reported to the client.
const (
	StateIdle       = "idle"
	StateProcessing = "processing"
)

// State announces a conversation state change. TurnID is set when the state
// belongs to a specific response turn.
type State struct {
	Type   string `json:"type"`
	State  string `json:"state"`
	TurnID int64  `json:"turn_id,omitempty"`
}

// Transcript carries recognized user speech back to the client.
type Transcript struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// ResponseChunk is a fragment of the assistant's textual response.
type ResponseChunk struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Audio is a chunk of synthesized speech, base64-encoded 16-bit 24 kHz mono
// PCM. Clients discard chunks whose TurnID is older than the last stop_audio.
type Audio struct {
	Type   string `json:"type"`
	Data   string `json:"data"`
	TurnID int64  `json:"turn_id"`
}

// StopAudio tells the client to flush its playback queue immediately.
type StopAudio struct {
	Type string `json:"type"`
}

// TurnComplete marks the end of a response turn.
type TurnComplete struct {
	Type string `json:"type"`
}

func NewState(state string, turnID int64) State {
	return State{Type: "state", State: state, TurnID: turnID}
}

func NewTranscript(text string, isFinal bool) Transcript {
	return Transcript{Type: "transcript", Text: text, IsFinal: isFinal}
}

func NewResponseChunk(content string) ResponseChunk {
	return ResponseChunk{Type: "response_chunk", Content: content}
}

func NewAudio(pcm []byte, turnID int64) Audio {
	return Audio{Type: "audio", Data: base64.StdEncoding.EncodeToString(pcm), TurnID: turnID}
}

func NewStopAudio() StopAudio { return StopAudio{Type: "stop_audio"} }

func NewTurnComplete() TurnComplete { return TurnComplete{Type: "turn_complete"} }

// Inbound is a client text frame. Only type "text" is acted upon; anything
// else is ignored.
type Inbound struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	TurnID  int64  `json:"turn_id"`
}
