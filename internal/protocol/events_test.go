package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid new_message event
// ---------------------------------------------------------------------------

func TestParseServerEvent_NewMessage(t *testing.T) {
	input := []byte(`{"type":"new_message","id":"m-1","roomId":"r-1","senderId":"u-9",` +
		`"senderName":"Agent Kim","role":"staff","messageType":"text",` +
		`"content":"Hello, how can I help?","createdAt":1700000000000}`)

	evtType, evt, err := ParseServerEvent(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evtType != TypeNewMessage {
		t.Fatalf("expected type %q, got %q", TypeNewMessage, evtType)
	}

	nm, ok := evt.(NewMessageEvent)
	if !ok {
		t.Fatalf("expected NewMessageEvent, got %T", evt)
	}
	if nm.ID != "m-1" {
		t.Errorf("expected id %q, got %q", "m-1", nm.ID)
	}
	if nm.RoomID != "r-1" {
		t.Errorf("expected roomId %q, got %q", "r-1", nm.RoomID)
	}
	if nm.Role != "staff" {
		t.Errorf("expected role %q, got %q", "staff", nm.Role)
	}
	if nm.CreatedAt != 1700000000000 {
		t.Errorf("expected createdAt 1700000000000, got %d", nm.CreatedAt)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a room_status_updated event
// ---------------------------------------------------------------------------

func TestParseServerEvent_RoomStatusUpdated(t *testing.T) {
	input := []byte(`{"type":"room_status_updated","roomId":"r-2","status":"resolved"}`)

	evtType, evt, err := ParseServerEvent(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evtType != TypeRoomStatusUpdated {
		t.Fatalf("expected type %q, got %q", TypeRoomStatusUpdated, evtType)
	}

	su, ok := evt.(RoomStatusUpdatedEvent)
	if !ok {
		t.Fatalf("expected RoomStatusUpdatedEvent, got %T", evt)
	}
	if su.RoomID != "r-2" {
		t.Errorf("expected roomId %q, got %q", "r-2", su.RoomID)
	}
	if su.Status != "resolved" {
		t.Errorf("expected status %q, got %q", "resolved", su.Status)
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a send_message client event
// ---------------------------------------------------------------------------

func TestNewClientEvent_SendMessage(t *testing.T) {
	payload := SendMessageEvent{
		RoomID:   "r-3",
		Content:  "my order never arrived",
		MsgType:  "text",
		Role:     "user",
		Metadata: map[string]string{"clientRef": "ref-123"},
	}

	data, err := NewClientEvent(TypeSendMessage, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Decode back and verify structure.
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeSendMessage {
		t.Errorf("expected type %q, got %v", TypeSendMessage, result["type"])
	}
	if result["roomId"] != "r-3" {
		t.Errorf("expected roomId %q, got %v", "r-3", result["roomId"])
	}
	if result["content"] != "my order never arrived" {
		t.Errorf("unexpected content: %v", result["content"])
	}

	meta, ok := result["metadata"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected metadata to be an object, got %T", result["metadata"])
	}
	if meta["clientRef"] != "ref-123" {
		t.Errorf("expected clientRef %q, got %v", "ref-123", meta["clientRef"])
	}
}

// ---------------------------------------------------------------------------
// Test: Unknown and client-only event types are rejected
// ---------------------------------------------------------------------------

func TestParseServerEvent_UnknownType(t *testing.T) {
	input := []byte(`{"type":"made_up_event","data":"something"}`)

	evtType, evt, err := ParseServerEvent(input)
	if err == nil {
		t.Fatal("expected error for unknown event type, got nil")
	}
	if evtType != "made_up_event" {
		t.Errorf("expected type to be returned even on error, got %q", evtType)
	}
	if evt != nil {
		t.Errorf("expected nil event on error, got %v", evt)
	}
}

func TestParseServerEvent_ClientOnlyType(t *testing.T) {
	// join_room is a client->server intent; the server must never push it.
	input := []byte(`{"type":"join_room","roomId":"r-1"}`)

	if _, _, err := ParseServerEvent(input); err == nil {
		t.Fatal("expected error for client-only event type, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope error cases
// ---------------------------------------------------------------------------

func TestParseServerEvent_MalformedJSON(t *testing.T) {
	if _, _, err := ParseServerEvent([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

func TestParseServerEvent_MissingType(t *testing.T) {
	if _, _, err := ParseServerEvent([]byte(`{"roomId":"r-1"}`)); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_RawCapture(t *testing.T) {
	input := []byte(`{"type":"user_typing","roomId":"r-1","userId":"u-2"}`)

	var env Envelope
	if err := json.Unmarshal(input, &env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Type != TypeUserTyping {
		t.Errorf("expected type %q, got %q", TypeUserTyping, env.Type)
	}
	if string(env.Raw) != string(input) {
		t.Errorf("raw capture mismatch: %s", env.Raw)
	}
}
