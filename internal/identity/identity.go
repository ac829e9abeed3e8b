// Package identity models the signed-in user as supplied by the identity
// provider, plus the credential bridge that exposes the provider's bearer
// token to components that need to authenticate on the user's behalf.
package identity

import "context"

// Identity describes the signed-in user.
type Identity struct {
	ID          string
	DisplayName string
	AvatarURL   string
}

// CredentialFunc returns the user's current bearer credential. It is invoked
// lazily on every use rather than cached, because credentials expire. It has
// no side effects; failures propagate to the caller.
type CredentialFunc func(ctx context.Context) (string, error)

// Static wraps a fixed token as a CredentialFunc. Useful for server-held
// bearer tokens and tests.
func Static(token string) CredentialFunc {
	return func(context.Context) (string, error) { return token, nil }
}
