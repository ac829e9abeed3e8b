package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/npcchatter/campaign-chat/internal/identity"
	"github.com/npcchatter/campaign-chat/internal/realtime"
)

// State is the session lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateJoining
	StateSubscribing
	StateLive
	StateClosing
	StateClosed
	StateFailed
)

var stateNames = [...]string{
	"idle", "connecting", "joining", "subscribing",
	"live", "closing", "closed", "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	connectTimeout  = 10 * time.Second
	stepTimeout     = 5 * time.Second
	teardownTimeout = 3 * time.Second

	inboxSize = 256
)

// TokenExchanger trades a bearer credential for a channel-scoped realtime
// credential. It is the session's half of the token exchange endpoint.
type TokenExchanger interface {
	Exchange(ctx context.Context, channel, bearer string) (realtime.Credential, error)
}

// Config supplies everything a session needs. CampaignID, Identity,
// Credentials, Exchanger, and Transport are required; the session never
// reads ambient state.
type Config struct {
	CampaignID  string
	Identity    identity.Identity
	Credentials identity.CredentialFunc
	Exchanger   TokenExchanger
	Transport   realtime.Transport

	HistoryLimit int           // defaults to DefaultHistoryLimit
	TypingTTL    time.Duration // defaults to TypingTTL
	Logger       zerolog.Logger

	// Optional observers, all invoked from the session's dispatch
	// goroutine (except OnState and OnTyping expiry, see their docs).

	// OnState is called on every lifecycle transition.
	OnState func(State)
	// OnReady is called once when the session reaches StateLive, with the
	// hydrated log and the presence roster known at that point.
	OnReady func(events []Event, members []Member)
	// OnEvent is called for each log entry added after StateLive,
	// including the sender's own optimistic entries.
	OnEvent func(Event)
	// OnPresence is called with the full roster after every change.
	OnPresence func([]Member)
	// OnTyping is called with the visible typing set whenever it changes,
	// including expiries detected by the background sweeper.
	OnTyping func([]TypingEntry)
}

// Session owns the live communication link for one campaign: it connects,
// authenticates, joins presence, subscribes to the event stream, hydrates
// history, and tears everything down on Close. Exactly one session exists
// per mounted chat view; switching campaigns means closing this session and
// creating a new one. The connection and channel handles are owned
// exclusively by the session.
type Session struct {
	cfg     Config
	channel string
	log     *MessageLog
	roster  *PresenceTracker
	typing  *TypingTracker
	logger  zerolog.Logger

	state atomic.Int32
	inbox chan inboxMsg

	mu       sync.Mutex
	conn     realtime.Conn
	ch       realtime.Channel
	closeReq bool
	fatalErr error

	// stateMu serializes state transitions together with their OnState
	// callbacks, so observers see transitions in the order they happened.
	stateMu sync.Mutex

	closed       chan struct{}
	teardownOnce sync.Once
}

type inboxKind int

const (
	kindEvent inboxKind = iota
	kindPresence
	kindHydrate
	kindLive
)

type inboxMsg struct {
	kind   inboxKind
	msg    realtime.Message
	events []Event
}

// typingSignal is the wire payload of a typing event.
type typingSignal struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// New validates the configuration and returns an idle session. Call Start to
// begin connecting.
func New(cfg Config) (*Session, error) {
	switch {
	case cfg.CampaignID == "":
		return nil, fmt.Errorf("campaign: missing campaign id")
	case cfg.Identity.ID == "":
		return nil, fmt.Errorf("campaign: missing identity")
	case cfg.Credentials == nil:
		return nil, fmt.Errorf("campaign: missing credential func")
	case cfg.Exchanger == nil:
		return nil, fmt.Errorf("campaign: missing token exchanger")
	case cfg.Transport == nil:
		return nil, fmt.Errorf("campaign: missing transport")
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}

	s := &Session{
		cfg:     cfg,
		channel: ChannelName(cfg.CampaignID),
		log:     NewMessageLog(),
		roster:  NewPresenceTracker(),
		inbox:   make(chan inboxMsg, inboxSize),
		closed:  make(chan struct{}),
	}
	s.logger = cfg.Logger.With().Str("campaign", cfg.CampaignID).Logger()
	s.typing = NewTypingTracker(cfg.TypingTTL, func() {
		if cfg.OnTyping != nil {
			cfg.OnTyping(s.typing.Entries())
		}
	})
	s.state.Store(int32(StateIdle))
	return s, nil
}

// CampaignID returns the campaign this session is bound to.
func (s *Session) CampaignID() string { return s.cfg.CampaignID }

// ChannelName returns the realtime channel this session attaches to.
func (s *Session) ChannelName() string { return s.channel }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Err returns the fatal error if the session is in StateFailed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatalErr
}

// Messages returns a snapshot of the message log.
func (s *Session) Messages() []Event { return s.log.Events() }

// Members returns a snapshot of the presence roster.
func (s *Session) Members() []Member { return s.roster.Members() }

// Typing returns the users currently typing.
func (s *Session) Typing() []TypingEntry { return s.typing.Entries() }

// Start begins the connect sequence in the background and returns
// immediately. Progress is observable via State and the Config callbacks.
func (s *Session) Start() {
	go s.run()
}

// Close requests teardown. Safe to call from any state, any number of times,
// including while a connect is still in flight: if the connection resolves
// after Close, it is closed immediately instead of proceeding to join.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closeReq {
		s.mu.Unlock()
		return
	}
	s.closeReq = true
	connecting := s.conn == nil && s.State() == StateConnecting
	s.mu.Unlock()

	close(s.closed)

	if connecting {
		// run() owns the pending connect and will tear down once it
		// resolves.
		return
	}
	s.teardown()
}

// Send publishes a chat message. The message appears in the log immediately
// as an optimistic entry; if the publish fails the entry is marked failed
// and a PublishError is returned.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if s.State() != StateLive {
		return fmt.Errorf("campaign: session is not live")
	}
	if err := ValidateMessage(text); err != nil {
		return fmt.Errorf("campaign: %w", err)
	}

	ev := Event{
		Type: EventChat,
		User: s.displayName(),
		Text: text,
		Ts:   time.Now().UTC(),
	}
	seq := s.log.AppendOptimistic(ev)
	if s.cfg.OnEvent != nil {
		shown := ev
		shown.Optimistic = true
		s.cfg.OnEvent(shown)
	}

	data, err := EncodePayload(ev)
	if err != nil {
		s.log.MarkFailed(seq)
		return err
	}

	ch := s.channelHandle()
	if ch == nil {
		s.log.MarkFailed(seq)
		return &PublishError{Err: fmt.Errorf("channel is gone")}
	}
	if err := ch.Publish(ctx, EventChat, data); err != nil {
		s.log.MarkFailed(seq)
		return &PublishError{Err: err}
	}
	return nil
}

// NotifyTyping broadcasts a typing signal. Best-effort: failures are logged
// at debug level and swallowed.
func (s *Session) NotifyTyping(ctx context.Context) {
	if s.State() != StateLive {
		return
	}
	ch := s.channelHandle()
	if ch == nil {
		return
	}
	data, err := json.Marshal(typingSignal{
		UserID: s.cfg.Identity.ID,
		Name:   s.cfg.Identity.DisplayName,
	})
	if err != nil {
		return
	}
	if err := ch.Publish(ctx, EventTyping, data); err != nil {
		s.logger.Debug().Err(err).Msg("typing publish failed")
	}
}

// run drives the connect sequence: Connecting -> Joining -> Subscribing ->
// Live, honoring teardown requests between every step.
func (s *Session) run() {
	if s.closeRequested() {
		return
	}
	s.setState(StateConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	conn, err := s.cfg.Transport.Connect(ctx, s.authCallback)
	cancel()
	if err != nil {
		s.fail(&ConnectError{Err: err})
		return
	}

	// Teardown may have been requested while the connect was in flight.
	// Taking ownership of the handle and closing it here prevents leaking
	// a live connection for an abandoned session.
	s.mu.Lock()
	if s.closeReq {
		s.conn = conn
		s.mu.Unlock()
		s.teardown()
		return
	}
	s.conn = conn
	s.mu.Unlock()

	ctx, cancel = context.WithTimeout(context.Background(), stepTimeout)
	ch, err := conn.Channel(ctx, s.channel)
	cancel()
	if err != nil {
		s.fail(&ConnectError{Err: err})
		return
	}
	s.mu.Lock()
	s.ch = ch
	s.mu.Unlock()

	if s.closeRequested() {
		s.teardown()
		return
	}
	s.setState(StateJoining)

	data, err := json.Marshal(Member{
		UserID: s.cfg.Identity.ID,
		Name:   s.cfg.Identity.DisplayName,
		Avatar: s.cfg.Identity.AvatarURL,
	})
	if err == nil {
		ctx, cancel = context.WithTimeout(context.Background(), stepTimeout)
		err = ch.Presence().Enter(ctx, data)
		cancel()
	}
	if err != nil {
		// Presence can fail without sinking the session: a chat with an
		// empty roster beats no chat.
		s.logger.Warn().Err(&PresenceError{Err: err}).Msg("presence enter failed")
	}

	if s.closeRequested() {
		s.teardown()
		return
	}
	s.setState(StateSubscribing)

	s.typing.Start()
	go s.dispatch()

	for _, name := range []string{EventChat, EventSystem, EventDice, EventTyping} {
		if _, err := ch.Subscribe(name, s.enqueue); err != nil {
			s.logger.Warn().Err(&SubscribeError{Event: name, Err: err}).Msg("subscribe failed")
		}
	}
	if _, err := ch.Presence().Subscribe(func() { s.push(inboxMsg{kind: kindPresence}) }); err != nil {
		s.logger.Warn().Err(&SubscribeError{Event: "presence", Err: err}).Msg("subscribe failed")
	}
	s.push(inboxMsg{kind: kindPresence})

	ctx, cancel = context.WithTimeout(context.Background(), stepTimeout)
	page, err := ch.History(ctx, s.cfg.HistoryLimit)
	cancel()
	if err != nil {
		s.logger.Warn().Err(&HistoryError{Err: err}).Msg("history fetch failed")
	} else {
		s.push(inboxMsg{kind: kindHydrate, events: historyEvents(page)})
	}

	if s.closeRequested() {
		s.teardown()
		return
	}
	s.push(inboxMsg{kind: kindLive})
}

// dispatch is the single consumer of the inbound event stream. Everything
// that mutates the log, roster, or typing set flows through here, so
// ordering is exactly arrival order.
func (s *Session) dispatch() {
	for {
		select {
		case <-s.closed:
			return
		case m := <-s.inbox:
			s.handle(m)
		}
	}
}

func (s *Session) handle(m inboxMsg) {
	switch m.kind {
	case kindEvent:
		if m.msg.Name == EventTyping {
			var sig typingSignal
			if err := json.Unmarshal(m.msg.Data, &sig); err != nil {
				s.logger.Warn().Err(err).Msg("bad typing payload")
				return
			}
			s.typing.Signal(sig.UserID, sig.Name)
			return
		}
		ev, err := DecodeEvent(m.msg.Name, m.msg.Data)
		if err != nil {
			s.logger.Warn().Err(err).Str("event", m.msg.Name).Msg("bad event payload")
			return
		}
		if ev.Ts.IsZero() {
			ev.Ts = m.msg.Ts
		}
		s.log.Append(ev)
		if s.State() == StateLive && s.cfg.OnEvent != nil {
			s.cfg.OnEvent(ev)
		}

	case kindPresence:
		s.refreshRoster()

	case kindHydrate:
		s.log.Hydrate(m.events)

	case kindLive:
		if !s.goLive() {
			return
		}
		if s.cfg.OnReady != nil {
			s.cfg.OnReady(s.log.Events(), s.roster.Members())
		}
	}
}

// refreshRoster re-derives the whole roster from the transport's
// authoritative presence snapshot. On error the roster empties rather than
// going stale.
func (s *Session) refreshRoster() {
	ch := s.channelHandle()
	if ch == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stepTimeout)
	members, err := ch.Presence().Get(ctx)
	cancel()
	if err != nil {
		s.logger.Warn().Err(&PresenceError{Err: err}).Msg("presence get failed")
		s.roster.Replace(nil)
	} else {
		s.roster.Replace(decodeMembers(members))
	}

	if s.cfg.OnPresence != nil {
		s.cfg.OnPresence(s.roster.Members())
	}
}

func (s *Session) enqueue(m realtime.Message) {
	s.push(inboxMsg{kind: kindEvent, msg: m})
}

func (s *Session) push(m inboxMsg) {
	select {
	case s.inbox <- m:
	case <-s.closed:
	}
}

// authCallback is handed to the transport, which re-invokes it whenever it
// needs a fresh channel credential.
func (s *Session) authCallback(ctx context.Context, channel string) (realtime.Credential, error) {
	bearer, err := s.cfg.Credentials(ctx)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	return s.cfg.Exchanger.Exchange(ctx, channel, bearer)
}

// teardown leaves presence, closes the connection, and stops the trackers.
// Exactly one of Close or run performs it. A failed session stays failed.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		s.typing.Stop()

		s.mu.Lock()
		conn, ch := s.conn, s.ch
		s.mu.Unlock()

		if s.State() == StateFailed {
			return
		}
		if conn == nil {
			s.setState(StateClosed)
			return
		}
		s.setState(StateClosing)

		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if ch != nil {
			if err := ch.Presence().Leave(ctx); err != nil {
				s.logger.Debug().Err(err).Msg("presence leave failed")
			}
		}
		if err := conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("connection close failed")
		}
		s.setState(StateClosed)
	})
}

func (s *Session) fail(err error) {
	if s.closeRequested() {
		// The view is gone; nobody is left to see the failure.
		s.teardown()
		return
	}
	s.mu.Lock()
	s.fatalErr = err
	conn := s.conn
	s.mu.Unlock()

	s.logger.Error().Err(err).Msg("session failed")
	s.setState(StateFailed)
	if conn != nil {
		_ = conn.Close()
	}
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state.Store(int32(st))
	s.logger.Debug().Stringer("state", st).Msg("session state")
	if s.cfg.OnState != nil {
		s.cfg.OnState(st)
	}
}

// goLive transitions to Live unless teardown has been requested. The live
// transition travels through the inbox and can be consumed after a teardown
// already ran; Closed is terminal, so the stale transition is dropped.
func (s *Session) goLive() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	s.mu.Lock()
	closeReq := s.closeReq
	s.mu.Unlock()
	if closeReq {
		return false
	}

	s.state.Store(int32(StateLive))
	s.logger.Debug().Stringer("state", StateLive).Msg("session state")
	if s.cfg.OnState != nil {
		s.cfg.OnState(StateLive)
	}
	return true
}

func (s *Session) closeRequested() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) channelHandle() realtime.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

func (s *Session) displayName() string {
	if s.cfg.Identity.DisplayName != "" {
		return s.cfg.Identity.DisplayName
	}
	return s.cfg.Identity.ID
}

// historyEvents converts a newest-first history page into oldest-first log
// events. Typing signals are transient and never replayed.
func historyEvents(page []realtime.Message) []Event {
	events := make([]Event, 0, len(page))
	for i := len(page) - 1; i >= 0; i-- {
		m := page[i]
		if m.Name == EventTyping {
			continue
		}
		ev, err := DecodeEvent(m.Name, m.Data)
		if err != nil {
			continue
		}
		if ev.Ts.IsZero() {
			ev.Ts = m.Ts
		}
		events = append(events, ev)
	}
	return events
}

// decodeMembers maps raw presence entries onto roster members, falling back
// to the client id when the entry payload is missing fields.
func decodeMembers(raw []realtime.PresenceMember) []Member {
	members := make([]Member, 0, len(raw))
	for _, pm := range raw {
		var m Member
		if len(pm.Data) > 0 {
			_ = json.Unmarshal(pm.Data, &m)
		}
		if m.UserID == "" {
			m.UserID = pm.ClientID
		}
		if m.Name == "" {
			m.Name = pm.ClientID
		}
		members = append(members, m)
	}
	return members
}
