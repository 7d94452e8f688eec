package providers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/halcyonic/sessionkit/providers"
)

// githubStub serves canned /user and /user/emails responses and records
// the bearer token it saw.
func githubStub(t *testing.T, userJSON, emailsJSON string) (*providers.GitHub, *string) {
	t.Helper()

	var seenToken string
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		seenToken = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(userJSON))
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(emailsJSON))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	g := providers.NewGitHub("client-id", "client-secret", "http://app.test/api/auth/callback/github")
	g.UserInfoURL = ts.URL + "/user"
	g.EmailsURL = ts.URL + "/user/emails"
	return g, &seenToken
}

// TestGitHubIdentityPublicEmail tests the common case: the profile carries
// a public email, which GitHub has already verified.
func TestGitHubIdentityPublicEmail(t *testing.T) {
	g, seenToken := githubStub(t,
		`{"id": 12345, "login": "octocat", "name": "Octo Cat", "email": "octo@example.com", "avatar_url": "https://a.example/octo.png"}`,
		`[]`)

	ident, err := g.Identity(context.Background(), &oauth2.Token{AccessToken: "gh-token"})
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}

	if ident.Provider != "github" {
		t.Errorf("Expected provider github, got %q", ident.Provider)
	}
	if ident.Subject != "12345" {
		t.Errorf("Expected subject 12345, got %q", ident.Subject)
	}
	if ident.Email != "octo@example.com" {
		t.Errorf("Expected profile email, got %q", ident.Email)
	}
	if !ident.EmailVerified {
		t.Error("Expected a public profile email to count as verified")
	}
	if ident.Name != "Octo Cat" {
		t.Errorf("Expected name from profile, got %q", ident.Name)
	}
	if ident.Picture != "https://a.example/octo.png" {
		t.Errorf("Expected avatar URL, got %q", ident.Picture)
	}
	if *seenToken != "Bearer gh-token" {
		t.Errorf("Expected bearer token on userinfo request, got %q", *seenToken)
	}
}

// TestGitHubIdentityPrivateEmail tests the fallback to /user/emails when
// the profile hides the address.
func TestGitHubIdentityPrivateEmail(t *testing.T) {
	g, _ := githubStub(t,
		`{"id": 12345, "login": "octocat"}`,
		`[
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "octo@example.com", "primary": true, "verified": true},
			{"email": "spam@example.com", "primary": false, "verified": false}
		]`)

	ident, err := g.Identity(context.Background(), &oauth2.Token{AccessToken: "gh-token"})
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}
	if ident.Email != "octo@example.com" {
		t.Errorf("Expected primary verified email, got %q", ident.Email)
	}
	if !ident.EmailVerified {
		t.Error("Expected email from emails endpoint to be verified")
	}
	// No display name on the profile: the login stands in.
	if ident.Name != "octocat" {
		t.Errorf("Expected login as name fallback, got %q", ident.Name)
	}
}

// TestGitHubIdentityNoPrimaryEmail tests that the first verified address
// is used when none is marked primary.
func TestGitHubIdentityNoPrimaryEmail(t *testing.T) {
	g, _ := githubStub(t,
		`{"id": 7, "login": "dev"}`,
		`[
			{"email": "unverified@example.com", "primary": false, "verified": false},
			{"email": "dev@example.com", "primary": false, "verified": true}
		]`)

	ident, err := g.Identity(context.Background(), &oauth2.Token{AccessToken: "gh-token"})
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}
	if ident.Email != "dev@example.com" {
		t.Errorf("Expected first verified email, got %q", ident.Email)
	}
}

// TestGitHubIdentityNoVerifiedEmail tests the error when no usable email
// exists at all.
func TestGitHubIdentityNoVerifiedEmail(t *testing.T) {
	g, _ := githubStub(t,
		`{"id": 7, "login": "dev"}`,
		`[{"email": "unverified@example.com", "primary": true, "verified": false}]`)

	if _, err := g.Identity(context.Background(), &oauth2.Token{AccessToken: "gh-token"}); err == nil {
		t.Error("Expected an error when no verified email exists")
	}
}

// TestGitHubIdentityMissingID tests the error for responses without an id.
func TestGitHubIdentityMissingID(t *testing.T) {
	g, _ := githubStub(t, `{"login": "dev"}`, `[]`)

	if _, err := g.Identity(context.Background(), &oauth2.Token{AccessToken: "gh-token"}); err == nil {
		t.Error("Expected an error for a response without an id")
	}
}

// TestGitHubIdentityUpstreamError tests that a non-200 answer surfaces as
// an error, not a half-built identity.
func TestGitHubIdentityUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Bad credentials"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(ts.Close)

	g := providers.NewGitHub("client-id", "client-secret", "http://app.test/api/auth/callback/github")
	g.UserInfoURL = ts.URL + "/user"
	g.EmailsURL = ts.URL + "/user/emails"

	if _, err := g.Identity(context.Background(), &oauth2.Token{AccessToken: "expired"}); err == nil {
		t.Error("Expected an error for an upstream 401")
	}
}

// TestGitHubAuthCodeURL tests the authorize URL carries the state and
// redirect URL.
func TestGitHubAuthCodeURL(t *testing.T) {
	g := providers.NewGitHub("client-id", "client-secret", "http://app.test/api/auth/callback/github")
	u := g.AuthCodeURL("nonce-1")
	for _, want := range []string{"state=nonce-1", "client_id=client-id", "github.com"} {
		if !strings.Contains(u, want) {
			t.Errorf("Expected %q in authorize URL %s", want, u)
		}
	}
}
