package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/halcyonic/sessionkit"
)

// StartSignIn begins an OAuth sign-in and returns the provider authorization
// URL to open in a browser. The state cookie lands in the watcher's jar, so
// the callback must be completed by the same client.
func (w *Watcher) StartSignIn(ctx context.Context, provider, callbackURL string) (string, error) {
	target := w.endpoint("/signin/" + provider)
	if callbackURL != "" {
		target += "?callbackURL=" + url.QueryEscape(callbackURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}

	resp, err := w.redirectlessClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		return "", fmt.Errorf("signin endpoint answered %d", resp.StatusCode)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("signin endpoint returned no redirect")
	}
	return location, nil
}

// SignInWithPassword signs in with an email/password pair. Wrong pairs come
// back as sessionkit.ErrInvalidCredentials; on success the watcher
// revalidates and announces the new session.
func (w *Watcher) SignInWithPassword(ctx context.Context, email, password string) error {
	token, err := w.csrfToken(ctx)
	if err != nil {
		return fmt.Errorf("error fetching csrf token: %w", err)
	}

	form := url.Values{
		"email":     {email},
		"password":  {password},
		"csrfToken": {token},
	}
	resp, err := w.postForm(ctx, "/callback/credentials", form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return sessionkit.ErrInvalidCredentials
	default:
		return fmt.Errorf("credentials sign-in answered %d", resp.StatusCode)
	}

	w.revalidate(ctx, triggerAction)
	return nil
}

// SignOut ends the session everywhere: the server destroys it, the watcher
// drops to unauthenticated and other watchers on the bus refetch and follow.
func (w *Watcher) SignOut(ctx context.Context) error {
	token, err := w.csrfToken(ctx)
	if err != nil {
		return fmt.Errorf("error fetching csrf token: %w", err)
	}

	form := url.Values{"csrfToken": {token}}
	resp, err := w.postForm(ctx, "/signout", form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signout endpoint answered %d", resp.StatusCode)
	}

	w.revalidate(ctx, triggerAction)
	return nil
}

// csrfToken fetches a fresh token; the matching cookie lands in the jar.
func (w *Watcher) csrfToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint("/csrf"), nil)
	if err != nil {
		return "", err
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("csrf endpoint answered %d", resp.StatusCode)
	}
	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("invalid csrf payload: %w", err)
	}
	if body.CSRFToken == "" {
		return "", fmt.Errorf("csrf endpoint returned no token")
	}
	return body.CSRFToken, nil
}

func (w *Watcher) postForm(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint(path),
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return w.httpClient.Do(req)
}

// redirectlessClient copies the watcher's client but stops at the first
// redirect, so OAuth hops can be inspected instead of followed.
func (w *Watcher) redirectlessClient() *http.Client {
	return &http.Client{
		Transport: w.httpClient.Transport,
		Jar:       w.httpClient.Jar,
		Timeout:   w.httpClient.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
