package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid join message
// ---------------------------------------------------------------------------

func TestParseClientMessage_Join(t *testing.T) {
	input := []byte(`{"type":"join","room_id":"room-1"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeJoin {
		t.Fatalf("expected type %q, got %q", TypeJoin, msgType)
	}

	jm, ok := msg.(JoinMsg)
	if !ok {
		t.Fatalf("expected JoinMsg, got %T", msg)
	}
	if jm.RoomID != "room-1" {
		t.Errorf("expected room_id %q, got %q", "room-1", jm.RoomID)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid message (completion request) message
// ---------------------------------------------------------------------------

func TestParseClientMessage_Message(t *testing.T) {
	input := []byte(`{
		"type": "message",
		"turns": [{"id":"t1","author":"user","text":"hi"}],
		"room_id": "room-1",
		"user_id": "u1",
		"provider": "openai",
		"model": "gpt-4o",
		"effort": "low",
		"system_instruction": "",
		"nickname": "Sam",
		"api_key": ""
	}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeMessage {
		t.Fatalf("expected type %q, got %q", TypeMessage, msgType)
	}

	mm, ok := msg.(MessageMsg)
	if !ok {
		t.Fatalf("expected MessageMsg, got %T", msg)
	}
	if len(mm.Turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(mm.Turns))
	}
	if mm.Turns[0].ID != "t1" || mm.Turns[0].Author != AuthorUser || mm.Turns[0].Text != "hi" {
		t.Errorf("unexpected turn: %+v", mm.Turns[0])
	}
	if mm.RoomID != "room-1" {
		t.Errorf("expected room_id %q, got %q", "room-1", mm.RoomID)
	}
	if mm.Provider != "openai" || mm.Model != "gpt-4o" || mm.Effort != "low" {
		t.Errorf("unexpected provider fields: %+v", mm)
	}
	if mm.Nickname != "Sam" {
		t.Errorf("expected nickname %q, got %q", "Sam", mm.Nickname)
	}
}

// ---------------------------------------------------------------------------
// Test: Turn attachments survive a parse round trip
// ---------------------------------------------------------------------------

func TestParseClientMessage_MessageWithFile(t *testing.T) {
	input := []byte(`{
		"type": "message",
		"turns": [{"id":"t1","author":"user","text":"what is this?","file":"data:image/png;base64,aGk="}],
		"room_id": "room-1"
	}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mm := msg.(MessageMsg)
	if mm.Turns[0].File != "data:image/png;base64,aGk=" {
		t.Errorf("unexpected file field: %q", mm.Turns[0].File)
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a snapshot server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_Snapshot(t *testing.T) {
	payload := SnapshotMsg{
		Turns: []Turn{
			{ID: "t1", Author: AuthorUser, Text: "hi"},
			{ID: "t2", Author: AuthorAssistant, Text: "Hello"},
		},
	}

	data, err := NewServerMessage(TypeMessage, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Decode back and verify structure.
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeMessage {
		t.Errorf("expected type %q, got %v", TypeMessage, result["type"])
	}

	turns, ok := result["turns"].([]interface{})
	if !ok {
		t.Fatalf("expected turns to be an array, got %T", result["turns"])
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	second, ok := turns[1].(map[string]interface{})
	if !ok {
		t.Fatalf("expected turn object, got %T", turns[1])
	}
	if second["author"] != AuthorAssistant || second["text"] != "Hello" {
		t.Errorf("unexpected assistant turn: %v", second)
	}
}

// ---------------------------------------------------------------------------
// Test: Creating an edit server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_Edit(t *testing.T) {
	data, err := NewServerMessage(TypeEdit, EditMsg{
		ID:     "t2",
		Author: AuthorAssistant,
		Text:   "Hello there",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["type"] != TypeEdit {
		t.Errorf("expected type %q, got %v", TypeEdit, result["type"])
	}
	if result["id"] != "t2" || result["author"] != AuthorAssistant || result["text"] != "Hello there" {
		t.Errorf("unexpected edit payload: %v", result)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing an unknown message type returns an error
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"unknown_type","data":"something"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected error for unknown type, got nil")
	}
	if msgType != "unknown_type" {
		t.Errorf("expected returned type %q, got %q", "unknown_type", msgType)
	}
	if msg != nil {
		t.Errorf("expected nil message, got %v", msg)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing malformed JSON returns an error
// ---------------------------------------------------------------------------

func TestParseClientMessage_MalformedJSON(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Missing type field returns an error
// ---------------------------------------------------------------------------

func TestParseClientMessage_MissingType(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"room_id":"r1"}`)); err == nil {
		t.Fatal("expected error for missing type, got nil")
	}
}

func TestSidebarRoom(t *testing.T) {
	if got := SidebarRoom("u1"); got != "sidebar-u1" {
		t.Errorf("expected %q, got %q", "sidebar-u1", got)
	}
}
