package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHub authenticates against github.com. GitHub hides the email address
// of users who opt out of a public email, so Identity falls back to the
// /user/emails endpoint and picks the primary verified address.
type GitHub struct {
	config oauth2.Config

	// UserInfoURL and EmailsURL default to the github.com API and can be
	// overridden for testing or GitHub Enterprise.
	UserInfoURL string
	EmailsURL   string

	// HTTPClient is used for profile fetches. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func NewGitHub(clientID, clientSecret, callbackURL string) *GitHub {
	return &GitHub{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		UserInfoURL: "https://api.github.com/user",
		EmailsURL:   "https://api.github.com/user/emails",
	}
}

func (g *GitHub) ID() string   { return "github" }
func (g *GitHub) Name() string { return "GitHub" }

func (g *GitHub) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state)
}

func (g *GitHub) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return g.config.Exchange(ctx, code)
}

func (g *GitHub) Identity(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	info, err := g.getJSON(ctx, token, g.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("github userinfo: %w", err)
	}

	ident := &Identity{
		Provider: "github",
		Subject:  githubSubject(info),
		Email:    stringField(info, "email"),
		Name:     stringField(info, "name"),
		Picture:  stringField(info, "avatar_url"),
		Raw:      info,
	}
	if ident.Subject == "" {
		return nil, fmt.Errorf("github userinfo: no id in response")
	}
	if ident.Name == "" {
		ident.Name = stringField(info, "login")
	}

	// The profile email may be absent; ask the emails endpoint.
	if ident.Email == "" {
		email, verified, err := g.primaryEmail(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("github emails: %w", err)
		}
		ident.Email = email
		ident.EmailVerified = verified
	} else {
		// A public profile email on GitHub has been verified by GitHub.
		ident.EmailVerified = true
	}

	return ident, nil
}

// primaryEmail returns the primary verified address, or the first verified
// address when none is marked primary.
func (g *GitHub) primaryEmail(ctx context.Context, token *oauth2.Token) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.EmailsURL, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient().Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return "", false, err
	}

	first := ""
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		if e.Primary {
			return e.Email, true, nil
		}
		if first == "" {
			first = e.Email
		}
	}
	if first == "" {
		return "", false, fmt.Errorf("no verified email on account")
	}
	return first, true, nil
}

func (g *GitHub) getJSON(ctx context.Context, token *oauth2.Token, url string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient().Do(req)
	if err != nil {
		return nil, err
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
	return info, nil
}

func (g *GitHub) httpClient() *http.Client {
	if g.HTTPClient != nil {
		return g.HTTPClient
	}
	return http.DefaultClient
}

// githubSubject turns GitHub's numeric id into the string subject we key
// accounts on. JSON numbers decode as float64.
func githubSubject(info map[string]any) string {
	switch v := info["id"].(type) {
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case string:
		return v
	default:
		return ""
	}
}
