package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/npcchatter/campaign-chat/internal/auth"
	"github.com/npcchatter/campaign-chat/internal/campaign"
	"github.com/npcchatter/campaign-chat/internal/directory"
	"github.com/npcchatter/campaign-chat/internal/metrics"
	"github.com/npcchatter/campaign-chat/internal/protocol"
	"github.com/npcchatter/campaign-chat/internal/ratelimit"
	"github.com/npcchatter/campaign-chat/internal/realtime"
	"github.com/npcchatter/campaign-chat/internal/ws"
)

// gateway bridges WebSocket clients and campaign sessions. Each connection
// mounts at most one session at a time; join_campaign replaces the previous
// one, and a disconnect tears the mounted session down.
type gateway struct {
	transport    realtime.Transport
	exchanger    campaign.TokenExchanger
	issuer       *auth.Issuer
	store        *directory.Store
	limiter      *ratelimit.Limiter
	historyLimit int
	dispatcher   *ws.MessageDispatcher
}

// registerHandlers wires the gateway's message handlers into the dispatcher.
func (g *gateway) registerHandlers() {
	g.dispatcher.Register(protocol.TypeJoinCampaign, g.handleJoin)
	g.dispatcher.Register(protocol.TypeLeaveCampaign, g.handleLeave)
	g.dispatcher.Register(protocol.TypeMessage, g.handleMessage)
	g.dispatcher.Register(protocol.TypeTyping, g.handleTyping)
}

// handleJoin mounts a campaign session on the connection. Any previously
// mounted session is closed first; a client switching campaigns never has two
// live sessions.
func (g *gateway) handleJoin(conn *ws.Connection, msg interface{}) {
	joinMsg, ok := msg.(protocol.JoinCampaignMsg)
	if !ok || joinMsg.CampaignID == "" {
		g.dispatcher.SendError(conn, "invalid_campaign", "missing campaign_id")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	member, err := g.store.IsMember(ctx, joinMsg.CampaignID, conn.User.ID)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("campaign", joinMsg.CampaignID).Msg("membership check failed")
		g.dispatcher.SendError(conn, "internal_error", "could not verify membership")
		return
	}
	if !member {
		g.dispatcher.SendError(conn, "not_a_member", "join the campaign before connecting")
		return
	}

	if prev := conn.TakeSession(); prev != nil {
		prev.Close()
	}

	sess, err := g.newSession(conn, joinMsg.CampaignID)
	if err != nil {
		log.Error().Err(err).Str("campaign", joinMsg.CampaignID).Msg("session create failed")
		g.dispatcher.SendError(conn, "internal_error", "could not create session")
		return
	}
	conn.SetSession(joinMsg.CampaignID, sess)
	sess.Start()
}

// handleLeave tears down the mounted session, if any.
func (g *gateway) handleLeave(conn *ws.Connection, msg interface{}) {
	if sess := conn.TakeSession(); sess != nil {
		sess.Close()
	}
}

// handleMessage publishes a chat message through the mounted session.
func (g *gateway) handleMessage(conn *ws.Connection, msg interface{}) {
	chatMsg, ok := msg.(protocol.ChatMsg)
	if !ok {
		return
	}
	sess, _ := conn.Session()
	if sess == nil {
		g.dispatcher.SendError(conn, "no_session", "no campaign joined")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	allowed, _ := g.limiter.Allow(ctx, conn.User.ID, ratelimit.RuleMessage)
	if !allowed {
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		g.dispatcher.SendRateLimited(conn, ratelimit.RuleMessage.Window)
		return
	}

	if err := sess.Send(ctx, chatMsg.Text); err != nil {
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		log.Debug().Err(err).Str("conn", conn.ID).Msg("send failed")
		g.dispatcher.SendError(conn, "send_failed", err.Error())
		return
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()
}

// handleTyping broadcasts a typing signal through the mounted session.
func (g *gateway) handleTyping(conn *ws.Connection, msg interface{}) {
	sess, _ := conn.Session()
	if sess == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	allowed, _ := g.limiter.Allow(ctx, conn.User.ID, ratelimit.RuleTyping)
	if !allowed {
		return
	}
	sess.NotifyTyping(ctx)
}

// onDisconnect closes whatever session the departing connection had mounted.
func (g *gateway) onDisconnect(conn *ws.Connection) {
	if sess := conn.TakeSession(); sess != nil {
		sess.Close()
	}
}

// newSession builds a campaign session whose observers forward everything to
// the client as protocol messages. Observers run on the session's dispatch
// goroutine; the connection's write mutex serializes the frames.
func (g *gateway) newSession(conn *ws.Connection, campaignID string) (*campaign.Session, error) {
	user := conn.User
	startedAt := time.Now()
	var wasLive atomic.Bool
	var sess *campaign.Session

	send := func(msgType string, payload interface{}) {
		data, err := protocol.NewServerMessage(msgType, payload)
		if err != nil {
			log.Error().Err(err).Str("type", msgType).Msg("failed to build server message")
			return
		}
		if err := conn.WriteMessage(data); err != nil {
			log.Debug().Err(err).Str("conn", conn.ID).Msg("write failed")
		}
	}

	cfg := campaign.Config{
		CampaignID: campaignID,
		Identity:   user,
		Credentials: func(ctx context.Context) (string, error) {
			return g.issuer.IssueBearer(user.ID, user.DisplayName, user.AvatarURL)
		},
		Exchanger:    g.exchanger,
		Transport:    g.transport,
		HistoryLimit: g.historyLimit,
		Logger:       log.With().Str("conn", conn.ID).Logger(),

		OnState: func(st campaign.State) {
			switch st {
			case campaign.StateLive:
				wasLive.Store(true)
				metrics.SessionsLive.Inc()
				metrics.SessionConnectDuration.Observe(time.Since(startedAt).Seconds())
			case campaign.StateClosed, campaign.StateFailed:
				if wasLive.Swap(false) {
					metrics.SessionsLive.Dec()
				}
			}
			m := protocol.SessionStateMsg{CampaignID: campaignID, State: st.String()}
			if st == campaign.StateFailed && sess != nil {
				if err := sess.Err(); err != nil {
					m.Reason = err.Error()
				}
			}
			send(protocol.TypeSessionState, m)
		},
		OnReady: func(events []campaign.Event, members []campaign.Member) {
			send(protocol.TypeHistory, protocol.HistoryMsg{CampaignID: campaignID, Events: events})
			send(protocol.TypePresence, protocol.PresenceMsg{CampaignID: campaignID, Members: members})
		},
		OnEvent: func(ev campaign.Event) {
			metrics.MessagesTotal.WithLabelValues("received").Inc()
			send(protocol.TypeEvent, protocol.EventMsg{CampaignID: campaignID, Event: ev})
		},
		OnPresence: func(members []campaign.Member) {
			send(protocol.TypePresence, protocol.PresenceMsg{CampaignID: campaignID, Members: members})
		},
		OnTyping: func(entries []campaign.TypingEntry) {
			users := make([]string, 0, len(entries))
			for _, e := range entries {
				if e.UserID == user.ID {
					continue
				}
				users = append(users, e.Name)
			}
			send(protocol.TypeTypingUsers, protocol.TypingUsersMsg{CampaignID: campaignID, Users: users})
		},
	}

	var err error
	sess, err = campaign.New(cfg)
	return sess, err
}
