package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/npcchatter/campaign-chat/internal/realtime"
)

// clockLeeway absorbs small clock skew between issuer and verifier.
const clockLeeway = 10 * time.Second

// Verifier validates bearer and realtime tokens. It satisfies
// realtime.CredentialVerifier.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for tokens signed with the given secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) keyFunc(*jwt.Token) (interface{}, error) {
	return v.secret, nil
}

// VerifyBearer validates a bearer token and returns its claims.
func (v *Verifier) VerifyBearer(token string) (*BearerClaims, error) {
	claims := &BearerClaims{}
	_, err := jwt.ParseWithClaims(token, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockLeeway),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid bearer token: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("auth: bearer token has no subject")
	}
	return claims, nil
}

// VerifyRealtime validates a realtime credential and returns the client id
// and channel capability it carries.
func (v *Verifier) VerifyRealtime(token string) (string, realtime.Capability, error) {
	claims := &RealtimeClaims{}
	_, err := jwt.ParseWithClaims(token, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockLeeway),
	)
	if err != nil {
		return "", nil, fmt.Errorf("auth: invalid realtime token: %w", err)
	}
	if claims.Subject == "" {
		return "", nil, fmt.Errorf("auth: realtime token has no subject")
	}
	return claims.Subject, claims.Capability, nil
}
