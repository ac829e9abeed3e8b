// Package realtime defines the pub/sub transport capability consumed by
// campaign sessions (connect, subscribe, publish, presence, and bounded
// history) and provides the production implementation backed by NATS
// for event fan-out and Redis for the presence roster and history buffer.
package realtime

import (
	"context"
	"time"
)

// Credential is an opaque short-lived realtime access token, issued by the
// token exchange endpoint and consumed by the transport.
type Credential string

// AuthCallback supplies a fresh Credential for a channel. The transport
// invokes it whenever it needs to (re)authenticate a channel attach, so it
// must be safe to call repeatedly and concurrently.
type AuthCallback func(ctx context.Context, channel string) (Credential, error)

// Message is one event delivered on, or replayed from, a channel.
type Message struct {
	Name     string    // event name: chat, system, dice, typing
	ClientID string    // originating client
	Data     []byte    // JSON payload, opaque to the transport
	Ts       time.Time // publish time
}

// PresenceMember is one entry in a channel's presence roster.
type PresenceMember struct {
	ClientID string
	Data     []byte // JSON payload supplied at enter time
}

// Transport opens authenticated realtime connections.
type Transport interface {
	Connect(ctx context.Context, auth AuthCallback) (Conn, error)
}

// Conn is one live transport connection. Channel attaches are authenticated
// through the connection's AuthCallback. Close releases every subscription
// held through the connection.
type Conn interface {
	Channel(ctx context.Context, name string) (Channel, error)
	Close() error
}

// Channel is a named pub/sub topic with presence and history.
//
// Deliveries to Subscribe handlers exclude the connection's own publishes
// (echo suppression): the sender renders its own messages optimistically and
// must not receive an authoritative duplicate.
type Channel interface {
	Name() string
	Subscribe(event string, handler func(Message)) (unsubscribe func(), err error)
	Publish(ctx context.Context, event string, data []byte) error
	// History returns up to limit past events, newest first.
	History(ctx context.Context, limit int) ([]Message, error)
	Presence() Presence
}

// Presence tracks which clients are joined to a channel. Get is the
// authoritative roster snapshot; Subscribe only signals that the roster
// changed and carries no delta.
type Presence interface {
	Enter(ctx context.Context, data []byte) error
	Leave(ctx context.Context) error
	Get(ctx context.Context) ([]PresenceMember, error)
	Subscribe(handler func()) (unsubscribe func(), err error)
}
