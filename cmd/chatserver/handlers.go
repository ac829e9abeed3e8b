package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/npcchatter/campaign-chat/internal/auth"
	"github.com/npcchatter/campaign-chat/internal/campaign"
	"github.com/npcchatter/campaign-chat/internal/dice"
	"github.com/npcchatter/campaign-chat/internal/directory"
	"github.com/npcchatter/campaign-chat/internal/metrics"
	"github.com/npcchatter/campaign-chat/internal/realtime"
)

// api implements the REST surface: guest sign-in, the realtime token
// exchange endpoint, the campaign directory, and server-side dice rolls.
type api struct {
	issuer    *auth.Issuer
	verifier  *auth.Verifier
	store     *directory.Store
	transport realtime.Transport
}

type claimsContextKey struct{}

func claimsFromContext(ctx context.Context) *auth.BearerClaims {
	claims, _ := ctx.Value(claimsContextKey{}).(*auth.BearerClaims)
	return claims
}

// router assembles the chi router with request logging and the bearer auth
// middleware on everything under /api except guest sign-in.
func (a *api) router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger())

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/guest", a.handleGuestSignIn)

		r.Group(func(r chi.Router) {
			r.Use(a.requireBearer)

			r.Get("/realtime/token", a.handleRealtimeToken)

			r.Route("/campaigns", func(r chi.Router) {
				r.Get("/", a.handleListCampaigns)
				r.Post("/", a.handleCreateCampaign)
				r.Get("/{id}", a.handleGetCampaign)
				r.Patch("/{id}", a.handleUpdateCampaign)
				r.Post("/{id}/join", a.handleJoinCampaign)
				r.Get("/{id}/members", a.handleCampaignMembers)
				r.Post("/{id}/roll", a.handleRoll)
			})
		})
	})

	return r
}

func requestLogger() func(http.Handler) http.Handler {
	return httplog.RequestLogger(
		slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{})),
		&httplog.Options{
			Level:  slog.LevelInfo,
			Schema: httplog.Schema{ResponseStatus: "status", ResponseDuration: "duration_ms"},
			LogExtraAttrs: func(req *http.Request, _ string, _ int) []slog.Attr {
				return []slog.Attr{
					slog.String("request_id", chimw.GetReqID(req.Context())),
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
				}
			},
		},
	)
}

// requireBearer authenticates the Authorization header and stashes the
// verified claims in the request context.
func (a *api) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := a.verifier.VerifyBearer(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGuestSignIn mints a bearer token for a display name. There is no
// password flow; identity is a signed guest claim, the way the original app
// ran table sessions.
func (a *api) handleGuestSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	userID := "guest-" + uuid.New().String()
	token, err := a.issuer.IssueBearer(userID, req.Name, req.Avatar)
	if err != nil {
		log.Error().Err(err).Msg("bearer issue failed")
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":   token,
		"user_id": userID,
	})
}

// handleRealtimeToken is the token exchange endpoint: it trades a verified
// bearer credential for a short-lived realtime token scoped to the requested
// channel. Only campaign channels are grantable.
func (a *api) handleRealtimeToken(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		writeError(w, http.StatusBadRequest, "channel is required")
		return
	}

	// Each exchange gets a distinct client id so two tabs of the same user
	// do not suppress each other's events.
	clientID := claims.Subject + "." + uuid.New().String()[:8]
	token, err := a.issuer.IssueRealtime(clientID, channel)
	if err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (a *api) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	campaigns, err := a.store.ListForUser(r.Context(), claims.Subject)
	if err != nil {
		log.Error().Err(err).Msg("campaign list failed")
		writeError(w, http.StatusInternalServerError, "could not list campaigns")
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (a *api) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Avatar      string `json:"avatar"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	c, err := a.store.Create(r.Context(), req.Name, req.Description, req.Avatar, claims.Subject)
	if err != nil {
		log.Error().Err(err).Msg("campaign create failed")
		writeError(w, http.StatusInternalServerError, "could not create campaign")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *api) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := a.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			writeError(w, http.StatusNotFound, "campaign not found")
			return
		}
		log.Error().Err(err).Msg("campaign get failed")
		writeError(w, http.StatusInternalServerError, "could not load campaign")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *api) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var req directory.CampaignUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := a.store.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			writeError(w, http.StatusNotFound, "campaign not found")
			return
		}
		log.Error().Err(err).Msg("campaign update failed")
		writeError(w, http.StatusInternalServerError, "could not update campaign")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *api) handleJoinCampaign(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if _, err := a.store.Get(r.Context(), id); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			writeError(w, http.StatusNotFound, "campaign not found")
			return
		}
		log.Error().Err(err).Msg("campaign get failed")
		writeError(w, http.StatusInternalServerError, "could not join campaign")
		return
	}

	if err := a.store.Join(r.Context(), id, claims.Subject, directory.RolePlayer); err != nil {
		log.Error().Err(err).Msg("campaign join failed")
		writeError(w, http.StatusInternalServerError, "could not join campaign")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

func (a *api) handleCampaignMembers(w http.ResponseWriter, r *http.Request) {
	members, err := a.store.Members(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		log.Error().Err(err).Msg("campaign members failed")
		writeError(w, http.StatusInternalServerError, "could not list members")
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// handleRoll evaluates a dice expression server-side and publishes the result
// to the campaign channel as a dice event, so every live session (including
// the roller's) receives it through the normal stream.
func (a *api) handleRoll(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id := chi.URLParam(r, "id")

	member, err := a.store.IsMember(r.Context(), id, claims.Subject)
	if err != nil {
		log.Error().Err(err).Msg("membership check failed")
		writeError(w, http.StatusInternalServerError, "could not verify membership")
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "not a campaign member")
		return
	}

	var req struct {
		Expr string `json:"expr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Expr) == "" {
		req.Expr = dice.DefaultExpr
	}

	roll, err := dice.Eval(req.Expr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.publishDice(r.Context(), id, claims.Name, roll); err != nil {
		log.Error().Err(err).Str("campaign", id).Msg("dice publish failed")
		writeError(w, http.StatusInternalServerError, "could not publish roll")
		return
	}
	metrics.DiceRollsTotal.Inc()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"expr":   roll.Expr,
		"total":  roll.Total,
		"result": roll.Result(),
	})
}

// publishDice opens a short-lived server connection to the campaign channel
// and publishes the roll. The server mints its own realtime credential.
func (a *api) publishDice(ctx context.Context, campaignID, userName string, roll dice.Roll) error {
	channel := campaign.ChannelName(campaignID)

	conn, err := a.transport.Connect(ctx, func(ctx context.Context, ch string) (realtime.Credential, error) {
		token, err := a.issuer.IssueRealtime("server."+uuid.New().String()[:8], ch)
		return realtime.Credential(token), err
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	chHandle, err := conn.Channel(ctx, channel)
	if err != nil {
		return err
	}

	ev := campaign.Event{
		Type:   campaign.EventDice,
		User:   userName,
		Result: roll.Result(),
		Ts:     time.Now().UTC(),
	}
	data, err := campaign.EncodePayload(ev)
	if err != nil {
		return err
	}
	return chHandle.Publish(ctx, campaign.EventDice, data)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
