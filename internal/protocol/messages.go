// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/npcchatter/campaign-chat/internal/campaign"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeJoinCampaign  = "join_campaign"
	TypeLeaveCampaign = "leave_campaign"
	TypeMessage       = "message"
	TypeTyping        = "typing"
	TypePing          = "ping"
)

// Server -> Client message types.
const (
	TypeSessionState = "session_state"
	TypeEvent        = "event"
	TypeHistory      = "history"
	TypePresence     = "presence"
	TypeTypingUsers  = "typing_users"
	TypeRateLimited  = "rate_limited"
	TypeError        = "error"
	TypePong         = "pong"
)

// ---------------------------------------------------------------------------
// Envelope, used for initial JSON parsing to extract the type discriminator.
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

// JoinCampaignMsg is sent by the client to mount a campaign session. Any
// previously mounted session on the same connection is torn down first.
type JoinCampaignMsg struct {
	Type       string `json:"type"`
	CampaignID string `json:"campaign_id"`
}

// LeaveCampaignMsg is sent by the client to tear down the mounted session.
type LeaveCampaignMsg struct {
	Type string `json:"type"`
}

// ChatMsg is a chat message sent by the client into the mounted campaign.
type ChatMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TypingMsg signals that the client is currently composing a message.
type TypingMsg struct {
	Type string `json:"type"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// SessionStateMsg reports a campaign session lifecycle transition. Reason is
// populated only for the failed state.
type SessionStateMsg struct {
	Type       string `json:"type"`
	CampaignID string `json:"campaign_id"`
	State      string `json:"state"`
	Reason     string `json:"reason,omitempty"`
}

// EventMsg carries a single campaign event appended to the session log.
type EventMsg struct {
	Type       string         `json:"type"`
	CampaignID string         `json:"campaign_id"`
	Event      campaign.Event `json:"event"`
}

// HistoryMsg carries the full ordered event log, sent when the session goes
// live and again after hydration reshuffles the log.
type HistoryMsg struct {
	Type       string           `json:"type"`
	CampaignID string           `json:"campaign_id"`
	Events     []campaign.Event `json:"events"`
}

// PresenceMsg carries the current campaign roster.
type PresenceMsg struct {
	Type       string            `json:"type"`
	CampaignID string            `json:"campaign_id"`
	Members    []campaign.Member `json:"members"`
}

// TypingUsersMsg carries the display names of members currently typing.
type TypingUsersMsg struct {
	Type       string   `json:"type"`
	CampaignID string   `json:"campaign_id"`
	Users      []string `json:"users"`
}

// RateLimitedMsg is sent by the server when the client has been rate-limited.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
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
	case TypeJoinCampaign:
		var m JoinCampaignMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeaveCampaign:
		var m LeaveCampaignMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessage:
		var m ChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
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
// should be one of the *Msg structs; this function marshals it to JSON,
// injects the type field, and returns the final bytes.
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
