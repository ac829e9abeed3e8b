// Package campaign implements the realtime campaign session: the lifecycle
// controller that connects, authenticates, subscribes, and hydrates a live
// chat session for one campaign, plus the in-memory trackers it coordinates
// (message log, presence roster, typing indicators).
package campaign

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names as they appear on the realtime channel.
const (
	EventChat   = "chat"
	EventSystem = "system"
	EventDice   = "dice"
	EventTyping = "typing"
)

// Event is one entry in a campaign's event stream. The Type field
// discriminates which of the remaining fields are meaningful:
//
//	chat:   User, Text, Ts (+ Optimistic/Failed for local entries)
//	system: Text, Ts
//	dice:   Result, Ts
//	typing: UserID, Name (transient signal, never stored in the log)
type Event struct {
	Type       string    `json:"type,omitempty"`
	User       string    `json:"user,omitempty"`
	Text       string    `json:"text,omitempty"`
	Result     string    `json:"result,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	Name       string    `json:"name,omitempty"`
	Ts         time.Time `json:"ts,omitempty"`
	Optimistic bool      `json:"optimistic,omitempty"`
	Failed     bool      `json:"failed,omitempty"`
}

// ChannelName derives the realtime channel bound to a campaign.
func ChannelName(campaignID string) string {
	return "campaign:" + campaignID
}

// DecodeEvent builds an Event from a raw channel payload. The event name
// comes from the transport message, not the payload, so a payload cannot
// masquerade as a different event kind.
func DecodeEvent(name string, data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("campaign: decode %s event: %w", name, err)
	}
	ev.Type = name
	ev.Optimistic = false
	ev.Failed = false
	return ev, nil
}

// EncodePayload marshals the event for publishing. The Type field is carried
// by the transport's event name and is stripped from the payload.
func EncodePayload(ev Event) ([]byte, error) {
	ev.Type = ""
	ev.Optimistic = false
	ev.Failed = false
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("campaign: encode event: %w", err)
	}
	return data, nil
}
