// Package providers implements the OAuth identity providers sessionkit can
// delegate sign-in to. A Provider knows how to build an authorization URL,
// exchange the callback code for a token and turn that token into a
// normalized Identity.
package providers

import (
	"context"

	"golang.org/x/oauth2"
)

// Identity is the normalized result of a provider sign-in. Subject is the
// provider's stable identifier for the user; Email is exactly what the
// provider reported, with no normalization applied.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string

	// Raw is the decoded userinfo document, for callers that need
	// provider-specific fields.
	Raw map[string]any
}

// Provider is a single OAuth identity provider.
type Provider interface {
	// ID is the stable lowercase identifier used in URLs ("github").
	ID() string

	// Name is the human-readable provider name ("GitHub").
	Name() string

	// AuthCodeURL builds the provider authorization URL for a state nonce.
	AuthCodeURL(state string) string

	// Exchange swaps a callback code for a token.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// Identity fetches the user's profile with the given token.
	Identity(ctx context.Context, token *oauth2.Token) (*Identity, error)
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}
