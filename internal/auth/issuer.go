package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/npcchatter/campaign-chat/internal/realtime"
)

const (
	// DefaultRealtimeTTL matches the reference behavior: realtime tokens
	// live one hour.
	DefaultRealtimeTTL = time.Hour

	// DefaultBearerTTL bounds dev-issued bearer tokens.
	DefaultBearerTTL = 12 * time.Hour

	issuerName = "campaign-chat"

	// grantablePrefix restricts realtime grants to campaign channels.
	grantablePrefix = "campaign:"
)

// Issuer mints bearer and realtime JWTs.
type Issuer struct {
	secret      []byte
	realtimeTTL time.Duration
}

// NewIssuer creates an Issuer signing with the given secret. ttl bounds
// realtime tokens; zero means DefaultRealtimeTTL.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultRealtimeTTL
	}
	return &Issuer{secret: []byte(secret), realtimeTTL: ttl}
}

// IssueBearer mints a bearer token for a user. Used by the dev sign-in
// endpoint; production deployments verify tokens from the external identity
// provider with the same claims shape.
func (i *Issuer) IssueBearer(userID, name, avatar string) (string, error) {
	now := time.Now()
	claims := BearerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(DefaultBearerTTL)),
		},
		Name:   name,
		Avatar: avatar,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign bearer: %w", err)
	}
	return token, nil
}

// IssueRealtime mints a realtime credential for clientID scoped to the given
// channel with the full channel capability. Only campaign channels are
// grantable.
func (i *Issuer) IssueRealtime(clientID, channel string) (string, error) {
	if !strings.HasPrefix(channel, grantablePrefix) {
		return "", fmt.Errorf("auth: channel %q is not grantable", channel)
	}

	now := time.Now()
	claims := RealtimeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.realtimeTTL)),
		},
		Capability: realtime.Capability{channel: AllChannelOps},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign realtime token: %w", err)
	}
	return token, nil
}
