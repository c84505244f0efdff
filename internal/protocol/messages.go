// Package protocol defines the wire types shared by the network gateways:
// JSON views of sessions, challenges and attempt outcomes, plus the
// Envelope framing used on the terminal WebSocket.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies the kind of message on the terminal socket.
type MessageType string

const (
	// Client → Gateway
	MsgAttempt MessageType = "attempt"
	MsgHint    MessageType = "hint"
	MsgReset   MessageType = "reset"
	MsgEnter   MessageType = "lesson.enter"
	MsgPong    MessageType = "pong"

	// Gateway → Client
	MsgWelcome   MessageType = "session.welcome"
	MsgChallenge MessageType = "challenge"
	MsgOutcome   MessageType = "outcome"
	MsgHintText  MessageType = "hint.text"
	MsgFinished  MessageType = "session.finished"
	MsgPing      MessageType = "ping"

	// Bidirectional
	MsgError MessageType = "error"
)

// Envelope wraps every message on the terminal socket.
type Envelope struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id"` // Message ID for correlation.
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope creates an Envelope with a fresh ID and current timestamp.
func NewEnvelope(msgType MessageType, payload any) (*Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Envelope{
		Type:      msgType,
		ID:        uuid.New().String(),
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the Payload into the given target.
func (e *Envelope) Decode(target any) error {
	return json.Unmarshal(e.Payload, target)
}

// --- Client → Gateway payloads ---

// AttemptPayload is sent with MsgAttempt and in POST /v1/sessions/{id}/attempts.
type AttemptPayload struct {
	Command string `json:"command"`
}

// EnterPayload is sent with MsgEnter. An empty lesson picks the next
// unlocked one.
type EnterPayload struct {
	Lesson string `json:"lesson,omitempty"`
}

// --- Gateway → Client payloads ---

// HintPayload carries the hint of the active challenge.
type HintPayload struct {
	Hint string `json:"hint"`
}

// ErrorPayload is sent with MsgError.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
