// Package auth issues and verifies the two credentials in play: the user's
// bearer token and the short-lived, channel-scoped realtime token handed to
// the pub/sub transport. Both are HS256 JWTs signed with the application
// secret. It also provides the client-side channel token exchanger used as
// the transport's auth callback.
package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/npcchatter/campaign-chat/internal/realtime"
)

// AllChannelOps is the capability granted on a campaign channel by the token
// exchange endpoint.
var AllChannelOps = []string{
	realtime.OpPublish,
	realtime.OpSubscribe,
	realtime.OpPresence,
	realtime.OpHistory,
}

// BearerClaims identify the signed-in user. Subject is the user id.
type BearerClaims struct {
	jwt.RegisteredClaims
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// RealtimeClaims scope a realtime credential. Subject is the client id; the
// capability maps channel names to permitted operations.
type RealtimeClaims struct {
	jwt.RegisteredClaims
	Capability realtime.Capability `json:"x-capability,omitempty"`
}
