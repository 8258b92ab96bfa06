// Package protocol defines the event types and structures exchanged over the
// real-time support chat channel. All events are serialized as JSON and follow
// a consistent envelope format with a type discriminator. The set of event
// types is closed: unknown types are rejected at parse time rather than routed
// through a dynamic handler map.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Event type constants
// ---------------------------------------------------------------------------

// Client -> Server event types.
const (
	TypeJoinRoom    = "join_room"
	TypeLeaveRoom   = "leave_room"
	TypeSendMessage = "send_message"
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"
)

// Server -> Client event types.
const (
	TypeNewMessage        = "new_message"
	TypeRoomStatusUpdated = "room_status_updated"
	TypeRoomJoined        = "room_joined"
	TypeUserJoined        = "user_joined"
	TypeUserTyping        = "user_typing"
	TypeUserStoppedTyping = "user_stopped_typing"
	TypeError             = "error"
)

// ---------------------------------------------------------------------------
// Envelope: initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the event type and the raw JSON payload for deferred parsing
// into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw event for deferred parsing.
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
// Client -> Server event structs
// ---------------------------------------------------------------------------

// JoinRoomEvent is sent by the client to start receiving live events for a room.
type JoinRoomEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// LeaveRoomEvent is sent by the client to stop receiving live events for a room.
type LeaveRoomEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// SendMessageEvent carries an outgoing chat message over the live channel.
// Metadata holds client-side bookkeeping such as the clientRef used to
// reconcile the socket echo with a REST fallback of the same logical message.
type SendMessageEvent struct {
	Type     string            `json:"type"`
	RoomID   string            `json:"roomId"`
	Content  string            `json:"content"`
	MsgType  string            `json:"messageType"`
	Role     string            `json:"role"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TypingStartEvent signals that the user has begun composing a message.
type TypingStartEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// TypingStopEvent signals that the user has stopped composing.
type TypingStopEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// ---------------------------------------------------------------------------
// Server -> Client event structs
// ---------------------------------------------------------------------------

// NewMessageEvent delivers one chat message pushed by the server. The embedded
// fields mirror the REST message representation so that both delivery paths
// produce the same merge input.
type NewMessageEvent struct {
	Type       string            `json:"type"`
	ID         string            `json:"id"`
	RoomID     string            `json:"roomId"`
	SenderID   string            `json:"senderId"`
	SenderName string            `json:"senderName"`
	Role       string            `json:"role"`
	MsgType    string            `json:"messageType"`
	Content    string            `json:"content"`
	CreatedAt  int64             `json:"createdAt"` // unix milliseconds
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// RoomStatusUpdatedEvent announces a server-side room status transition.
type RoomStatusUpdatedEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Status string `json:"status"`
}

// RoomJoinedEvent confirms that a join_room intent has been applied.
type RoomJoinedEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// UserJoinedEvent announces that another participant (typically staff) has
// joined the room.
type UserJoinedEvent struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Role     string `json:"role"`
}

// UserTypingEvent relays another participant's typing indicator.
type UserTypingEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// UserStoppedTypingEvent relays that another participant stopped typing.
type UserStoppedTypingEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// ErrorEvent is sent by the server to communicate an error condition on the
// live channel.
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseServerEvent parses raw channel bytes into a typed server event. It
// returns the event type string, the decoded struct, and any error encountered
// during parsing. An error is returned for unknown or client-only event types.
func ParseServerEvent(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse event: %w", err)
	}

	var (
		evt interface{}
		err error
	)

	switch env.Type {
	case TypeNewMessage:
		var e NewMessageEvent
		err = json.Unmarshal(env.Raw, &e)
		evt = e
	case TypeRoomStatusUpdated:
		var e RoomStatusUpdatedEvent
		err = json.Unmarshal(env.Raw, &e)
		evt = e
	case TypeRoomJoined:
		var e RoomJoinedEvent
		err = json.Unmarshal(env.Raw, &e)
		evt = e
	case TypeUserJoined:
		var e UserJoinedEvent
		err = json.Unmarshal(env.Raw, &e)
		evt = e
	case TypeUserTyping:
		var e UserTypingEvent
		err = json.Unmarshal(env.Raw, &e)
		evt = e
	case TypeUserStoppedTyping:
		var e UserStoppedTypingEvent
		err = json.Unmarshal(env.Raw, &e)
		evt = e
	case TypeError:
		var e ErrorEvent
		err = json.Unmarshal(env.Raw, &e)
		evt = e
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown server event type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, evt, nil
}

// NewClientEvent creates a JSON-encoded byte slice for a client event. The
// evtType is injected into the payload under the "type" key. The payload
// should be one of the client event structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewClientEvent(evtType string, payload interface{}) ([]byte, error) {
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

	m["type"] = evtType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal client event: %w", err)
	}
	return out, nil
}
