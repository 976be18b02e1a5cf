// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types. TypeMessage is shared with the server
// direction: the server echoes a full conversation snapshot under the same
// "message" type the client sends with.
const (
	TypeJoin    = "join"
	TypeMessage = "message"
	TypePing    = "ping"
)

// Server -> Client message types.
const (
	TypeSessionCreated = "session_created"
	TypeEdit           = "edit"
	TypeError          = "error"
	TypeTitle          = "title"
	TypePong           = "pong"
)

// Turn author values.
const (
	AuthorUser      = "user"
	AuthorAssistant = "assistant"
)

// Turn is one message in a conversation. File, when present, is a base64
// data URL ("data:<mime>;base64,<payload>") carrying an attachment.
type Turn struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
	File   string `json:"file,omitempty"`
}

// SidebarRoom returns the private per-user notification room id. Clients
// join it like any other room; title notifications are published there.
func SidebarRoom(userID string) string {
	return "sidebar-" + userID
}

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// JoinMsg is sent by the client to subscribe the connection to a room.
// Rooms are public; joining an unknown room id simply creates an empty
// subscriber set.
type JoinMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// MessageMsg is sent by the client to request an assistant completion for
// the given conversation. Turns carries the full conversation in order,
// ending with the new user turn. RoomID may be empty for a brand-new room;
// the server mints one. UserID is empty for anonymous senders, whose
// exchanges are not persisted.
type MessageMsg struct {
	Type              string `json:"type"`
	Turns             []Turn `json:"turns"`
	RoomID            string `json:"room_id"`
	UserID            string `json:"user_id"`
	Provider          string `json:"provider"`
	Model             string `json:"model"`
	Effort            string `json:"effort"`
	SystemInstruction string `json:"system_instruction"`
	Nickname          string `json:"nickname"`
	APIKey            string `json:"api_key"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// SessionCreatedMsg is sent by the server when a new connection is established.
type SessionCreatedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// SnapshotMsg carries a full conversation snapshot, including the new
// (partial) assistant turn. It is sent exactly once per generation, on the
// first delta.
type SnapshotMsg struct {
	Type  string `json:"type"`
	Turns []Turn `json:"turns"`
}

// EditMsg carries an in-place text update for a single turn. It is sent for
// every delta after the first so clients can update one message instead of
// re-rendering the whole conversation.
type EditMsg struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// TitleMsg notifies a user's sidebar room that a generated room title is
// available.
type TitleMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeJoin:
		var m JoinMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessage:
		var m MessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
