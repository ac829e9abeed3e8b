package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Channel operations a realtime credential can grant.
const (
	OpPublish   = "publish"
	OpSubscribe = "subscribe"
	OpPresence  = "presence"
	OpHistory   = "history"
)

// typingEvent never enters the history buffer; typing is a transient signal.
const typingEvent = "typing"

// Capability maps channel names to the operations a credential permits.
type Capability map[string][]string

// Allows reports whether the capability grants op on channel.
func (c Capability) Allows(channel, op string) bool {
	for _, granted := range c[channel] {
		if granted == op {
			return true
		}
	}
	return false
}

// CredentialVerifier validates a realtime credential and extracts the client
// identity and channel capability it carries.
type CredentialVerifier interface {
	VerifyRealtime(token string) (clientID string, cap Capability, err error)
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "campaign-chat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Dial connects to NATS with reconnect handlers wired to the global logger.
func Dial(cfg NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info().Msg("nats connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("realtime: nats connect: %w", err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Msg("nats connected")
	return nc, nil
}

// wireEvent is the envelope carried on NATS subjects and stored in the
// history buffer.
type wireEvent struct {
	ClientID string          `json:"clientId"`
	Name     string          `json:"name"`
	Data     json.RawMessage `json:"data"`
	Ts       int64           `json:"ts"` // unix milliseconds
}

// NATSTransport implements Transport over a shared NATS connection for event
// fan-out and Redis for the presence roster and history buffer. Channel
// attaches are authorized against the credential minted by the token
// exchange endpoint.
type NATSTransport struct {
	nc       *nats.Conn
	verifier CredentialVerifier
	presence *presenceStore
	history  *historyStore
}

// NewNATSTransport builds the production transport.
func NewNATSTransport(nc *nats.Conn, rdb *redis.Client, verifier CredentialVerifier) *NATSTransport {
	return &NATSTransport{
		nc:       nc,
		verifier: verifier,
		presence: newPresenceStore(rdb),
		history:  newHistoryStore(rdb, DefaultHistoryDepth),
	}
}

// Connect opens a logical connection. The auth callback is stored and
// invoked per channel attach; the underlying NATS connection is shared.
func (t *NATSTransport) Connect(ctx context.Context, auth AuthCallback) (Conn, error) {
	if auth == nil {
		return nil, fmt.Errorf("realtime: auth callback required")
	}
	if status := t.nc.Status(); status != nats.CONNECTED && status != nats.RECONNECTING {
		return nil, fmt.Errorf("realtime: nats connection is %s", status)
	}
	return &natsConn{t: t, auth: auth}, nil
}

type natsConn struct {
	t    *NATSTransport
	auth AuthCallback

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed bool
}

// Channel attaches to a channel: it exchanges a fresh credential through the
// auth callback, verifies it, and checks that its capability covers the
// channel.
func (c *natsConn) Channel(ctx context.Context, name string) (Channel, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("realtime: connection closed")
	}
	c.mu.Unlock()

	cred, err := c.auth(ctx, name)
	if err != nil {
		return nil, err
	}
	clientID, cap, err := c.t.verifier.VerifyRealtime(string(cred))
	if err != nil {
		return nil, fmt.Errorf("realtime: credential rejected: %w", err)
	}
	if !cap.Allows(name, OpSubscribe) && !cap.Allows(name, OpPublish) {
		return nil, fmt.Errorf("realtime: credential does not cover channel %q", name)
	}

	return &natsChannel{conn: c, name: name, clientID: clientID, cap: cap}, nil
}

// Close unsubscribes everything attached through this connection.
func (c *natsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Debug().Err(err).Msg("unsubscribe failed during close")
		}
	}
	c.subs = nil
	return nil
}

func (c *natsConn) track(sub *nats.Subscription) {
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
}

type natsChannel struct {
	conn     *natsConn
	name     string
	clientID string
	cap      Capability
}

func (ch *natsChannel) Name() string { return ch.name }

// subjectPrefix maps a channel name onto a NATS subject prefix
// (campaign:42 -> campaign.42).
func (ch *natsChannel) subjectPrefix() string {
	return strings.ReplaceAll(ch.name, ":", ".")
}

// Subscribe delivers events published by other clients on the channel. The
// connection's own publishes are suppressed, mirroring the optimistic-echo
// contract of the session layer.
func (ch *natsChannel) Subscribe(event string, handler func(Message)) (func(), error) {
	if !ch.cap.Allows(ch.name, OpSubscribe) {
		return nil, fmt.Errorf("realtime: subscribe not permitted on %q", ch.name)
	}

	subject := ch.subjectPrefix() + ".evt." + event
	sub, err := ch.conn.t.nc.Subscribe(subject, func(m *nats.Msg) {
		var env wireEvent
		if err := json.Unmarshal(m.Data, &env); err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("bad wire event")
			return
		}
		if env.ClientID == ch.clientID {
			return // echo suppression
		}
		handler(Message{
			Name:     event,
			ClientID: env.ClientID,
			Data:     env.Data,
			Ts:       time.UnixMilli(env.Ts).UTC(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: subscribe %s: %w", subject, err)
	}
	ch.conn.track(sub)

	return func() { _ = sub.Unsubscribe() }, nil
}

// Publish fans the event out over NATS and, for everything but typing,
// records it in the channel's history buffer first so a replay cannot miss
// an event that was already delivered live.
func (ch *natsChannel) Publish(ctx context.Context, event string, data []byte) error {
	if !ch.cap.Allows(ch.name, OpPublish) {
		return fmt.Errorf("realtime: publish not permitted on %q", ch.name)
	}

	env := wireEvent{
		ClientID: ch.clientID,
		Name:     event,
		Data:     data,
		Ts:       time.Now().UnixMilli(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("realtime: encode wire event: %w", err)
	}

	if event != typingEvent {
		if err := ch.conn.t.history.append(ctx, ch.name, raw); err != nil {
			log.Warn().Err(err).Str("channel", ch.name).Msg("history append failed")
		}
	}

	if err := ch.conn.t.nc.Publish(ch.subjectPrefix()+".evt."+event, raw); err != nil {
		return fmt.Errorf("realtime: publish %s: %w", event, err)
	}
	return nil
}

// History returns up to limit past events, newest first.
func (ch *natsChannel) History(ctx context.Context, limit int) ([]Message, error) {
	if !ch.cap.Allows(ch.name, OpHistory) {
		return nil, fmt.Errorf("realtime: history not permitted on %q", ch.name)
	}

	raws, err := ch.conn.t.history.page(ctx, ch.name, limit)
	if err != nil {
		return nil, err
	}

	msgs := make([]Message, 0, len(raws))
	for _, raw := range raws {
		var env wireEvent
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Warn().Err(err).Str("channel", ch.name).Msg("bad history entry")
			continue
		}
		msgs = append(msgs, Message{
			Name:     env.Name,
			ClientID: env.ClientID,
			Data:     env.Data,
			Ts:       time.UnixMilli(env.Ts).UTC(),
		})
	}
	return msgs, nil
}

func (ch *natsChannel) Presence() Presence {
	return &natsPresence{ch: ch}
}

type natsPresence struct {
	ch *natsChannel
}

func (p *natsPresence) subject() string {
	return p.ch.subjectPrefix() + ".presence"
}

// Enter registers this client in the roster and pings subscribers. Unlike
// event subscriptions, presence pings are not echo-suppressed: a client
// refreshes its roster on its own enter, too.
func (p *natsPresence) Enter(ctx context.Context, data []byte) error {
	if !p.ch.cap.Allows(p.ch.name, OpPresence) {
		return fmt.Errorf("realtime: presence not permitted on %q", p.ch.name)
	}
	if err := p.ch.conn.t.presence.enter(ctx, p.ch.name, p.ch.clientID, data); err != nil {
		return err
	}
	return p.ch.conn.t.nc.Publish(p.subject(), []byte(p.ch.clientID))
}

func (p *natsPresence) Leave(ctx context.Context) error {
	if err := p.ch.conn.t.presence.leave(ctx, p.ch.name, p.ch.clientID); err != nil {
		return err
	}
	return p.ch.conn.t.nc.Publish(p.subject(), []byte(p.ch.clientID))
}

func (p *natsPresence) Get(ctx context.Context) ([]PresenceMember, error) {
	return p.ch.conn.t.presence.roster(ctx, p.ch.name)
}

func (p *natsPresence) Subscribe(handler func()) (func(), error) {
	sub, err := p.ch.conn.t.nc.Subscribe(p.subject(), func(*nats.Msg) {
		handler()
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: subscribe %s: %w", p.subject(), err)
	}
	p.ch.conn.track(sub)
	return func() { _ = sub.Unsubscribe() }, nil
}
