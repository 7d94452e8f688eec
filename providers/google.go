package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Google authenticates against Google accounts.
type Google struct {
	config oauth2.Config

	// UserInfoURL defaults to Google's v2 userinfo endpoint and can be
	// overridden for testing.
	UserInfoURL string

	// HTTPClient is used for profile fetches. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func NewGoogle(clientID, clientSecret, callbackURL string) *Google {
	return &Google{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
	}
}

func (g *Google) ID() string   { return "google" }
func (g *Google) Name() string { return "Google" }

func (g *Google) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state)
}

func (g *Google) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return g.config.Exchange(ctx, code)
}

func (g *Google) Identity(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	client := g.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info: %w", err)
	}
	defer resp.Body.Close()

	contents, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, contents)
	}

	var info map[string]any
	if err := json.Unmarshal(contents, &info); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}

	verified, _ := info["verified_email"].(bool)
	ident := &Identity{
		Provider:      "google",
		Subject:       stringField(info, "id"),
		Email:         stringField(info, "email"),
		EmailVerified: verified,
		Name:          stringField(info, "name"),
		Picture:       stringField(info, "picture"),
		Raw:           info,
	}
	if ident.Subject == "" {
		// OIDC-shaped responses use "sub" instead of "id".
		ident.Subject = stringField(info, "sub")
	}
	if ident.Subject == "" {
		return nil, fmt.Errorf("google userinfo: no id in response")
	}
	return ident, nil
}
