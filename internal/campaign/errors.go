package campaign

import "fmt"

// The session error taxonomy. ConnectError is the only fatal kind: it moves
// the session to StateFailed. Presence, subscribe, and history errors each
// degrade the session independently while it continues toward StateLive.

// AuthError means no bearer credential could be obtained (missing or
// expired identity).
type AuthError struct{ Err error }

func (e *AuthError) Error() string { return "campaign: auth: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// ConnectError means the transport connection could not be established.
// Fatal to the session.
type ConnectError struct{ Err error }

func (e *ConnectError) Error() string { return "campaign: connect: " + e.Err.Error() }
func (e *ConnectError) Unwrap() error { return e.Err }

// PresenceError means entering or reading channel presence failed. Non-fatal.
type PresenceError struct{ Err error }

func (e *PresenceError) Error() string { return "campaign: presence: " + e.Err.Error() }
func (e *PresenceError) Unwrap() error { return e.Err }

// SubscribeError means attaching a channel event subscription failed.
// Non-fatal.
type SubscribeError struct {
	Event string
	Err   error
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("campaign: subscribe %s: %v", e.Event, e.Err)
}
func (e *SubscribeError) Unwrap() error { return e.Err }

// HistoryError means the history replay fetch failed. Non-fatal: the log
// simply starts empty.
type HistoryError struct{ Err error }

func (e *HistoryError) Error() string { return "campaign: history: " + e.Err.Error() }
func (e *HistoryError) Unwrap() error { return e.Err }

// PublishError means sending a chat message failed. The optimistic log entry
// is marked failed rather than removed.
type PublishError struct{ Err error }

func (e *PublishError) Error() string { return "campaign: publish: " + e.Err.Error() }
func (e *PublishError) Unwrap() error { return e.Err }
