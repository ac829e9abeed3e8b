package protocol

import (
	"encoding/json"
	"testing"

	"github.com/npcchatter/campaign-chat/internal/campaign"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid join_campaign message
// ---------------------------------------------------------------------------

func TestParseClientMessage_JoinCampaign(t *testing.T) {
	input := []byte(`{"type":"join_campaign","campaign_id":"42"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeJoinCampaign {
		t.Fatalf("expected type %q, got %q", TypeJoinCampaign, msgType)
	}

	jm, ok := msg.(JoinCampaignMsg)
	if !ok {
		t.Fatalf("expected JoinCampaignMsg, got %T", msg)
	}
	if jm.CampaignID != "42" {
		t.Errorf("expected campaign_id %q, got %q", "42", jm.CampaignID)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid message (chat) message
// ---------------------------------------------------------------------------

func TestParseClientMessage_ChatMsg(t *testing.T) {
	input := []byte(`{"type":"message","text":"Hello!"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeMessage {
		t.Fatalf("expected type %q, got %q", TypeMessage, msgType)
	}

	cm, ok := msg.(ChatMsg)
	if !ok {
		t.Fatalf("expected ChatMsg, got %T", msg)
	}
	if cm.Text != "Hello!" {
		t.Errorf("expected text %q, got %q", "Hello!", cm.Text)
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a session_state server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_SessionState(t *testing.T) {
	payload := SessionStateMsg{
		CampaignID: "42",
		State:      "live",
	}

	data, err := NewServerMessage(TypeSessionState, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Decode back and verify structure.
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeSessionState {
		t.Errorf("expected type %q, got %v", TypeSessionState, result["type"])
	}
	if result["campaign_id"] != "42" {
		t.Errorf("expected campaign_id %q, got %v", "42", result["campaign_id"])
	}
	if result["state"] != "live" {
		t.Errorf("expected state %q, got %v", "live", result["state"])
	}
	if _, present := result["reason"]; present {
		t.Error("expected reason to be omitted when empty")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing an unknown message type returns an error
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"unknown_type","data":"something"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for unknown message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message for unknown type, got %v", msg)
	}
	if msgType != "unknown_type" {
		t.Errorf("expected returned type %q, got %q", "unknown_type", msgType)
	}
}

// ---------------------------------------------------------------------------
// Test: Server-only types are rejected on the client path
// ---------------------------------------------------------------------------

func TestParseClientMessage_ServerOnlyType(t *testing.T) {
	input := []byte(`{"type":"session_state","state":"live"}`)

	if _, _, err := ParseClientMessage(input); err == nil {
		t.Fatal("expected an error for server-only message type, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: An event message carries the full event through the envelope
// ---------------------------------------------------------------------------

func TestNewServerMessage_Event(t *testing.T) {
	payload := EventMsg{
		CampaignID: "42",
		Event: campaign.Event{
			Type: campaign.EventChat,
			User: "Brennan",
			Text: "Roll for initiative",
		},
	}

	data, err := NewServerMessage(TypeEvent, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded EventMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != TypeEvent {
		t.Errorf("expected type %q, got %q", TypeEvent, decoded.Type)
	}
	if decoded.Event.User != "Brennan" {
		t.Errorf("expected user %q, got %q", "Brennan", decoded.Event.User)
	}
	if decoded.Event.Text != "Roll for initiative" {
		t.Errorf("expected text %q, got %q", "Roll for initiative", decoded.Event.Text)
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope UnmarshalJSON edge cases
// ---------------------------------------------------------------------------

func TestEnvelope_MissingType(t *testing.T) {
	input := []byte(`{"data":"no type field"}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	input := []byte(`{invalid json}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing all client message types succeeds
// ---------------------------------------------------------------------------

func TestParseClientMessage_AllTypes(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		wantType string
	}{
		{"join_campaign", `{"type":"join_campaign","campaign_id":"42"}`, TypeJoinCampaign},
		{"leave_campaign", `{"type":"leave_campaign"}`, TypeLeaveCampaign},
		{"message", `{"type":"message","text":"hi"}`, TypeMessage},
		{"typing", `{"type":"typing"}`, TypeTyping},
		{"ping", `{"type":"ping"}`, TypePing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msgType != tc.wantType {
				t.Errorf("expected type %q, got %q", tc.wantType, msgType)
			}
			if msg == nil {
				t.Error("expected non-nil message")
			}
		})
	}
}
