package sessionkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

const (
	stateCookieName    = "oauthstate"
	callbackCookieName = "oauthCallbackURL"
	stateCookieMaxAge  = 600
)

func (s *Service) setupRoutes() *Service {
	if s.router != nil {
		return s
	}
	r := mux.NewRouter()
	r.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	r.HandleFunc("/csrf", s.handleCSRF).Methods(http.MethodGet)
	r.HandleFunc("/providers", s.handleProviders).Methods(http.MethodGet)
	r.HandleFunc("/signin/{provider}", s.handleSignIn).Methods(http.MethodGet)
	r.HandleFunc("/callback/credentials", s.handleCredentialsCallback).Methods(http.MethodPost)
	r.HandleFunc("/callback/{provider}", s.handleOAuthCallback).Methods(http.MethodGet)
	r.HandleFunc("/signout", s.handleSignOut).Methods(http.MethodPost)
	r.HandleFunc("/signup", s.handleSignup).Methods(http.MethodPost)
	s.router = r
	return s
}

// handleSession reports the current session. No session is a 200 with an
// empty object: clients must be able to tell "definitely signed out" apart
// from a failed check, which answers 5xx.
func (s *Service) handleSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	sess, err := s.currentSession(r)
	if err != nil {
		slog.Warn("error resolving session", "err", err)
		http.Error(w, `{"error": "Session lookup failed"}`, http.StatusInternalServerError)
		return
	}
	if sess == nil {
		w.Write([]byte("{}\n"))
		return
	}
	json.NewEncoder(w).Encode(sess)
}

func (s *Service) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := s.csrf.issue()
	if err != nil {
		http.Error(w, `{"error": "Failed to issue token"}`, http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.csrfCookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(csrfMaxAge / time.Second),
		Secure:   s.SecureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"csrfToken": token})
}

func (s *Service) handleProviders(w http.ResponseWriter, r *http.Request) {
	type providerInfo struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Type        string `json:"type"`
		SignInURL   string `json:"signinUrl"`
		CallbackURL string `json:"callbackUrl"`
	}

	out := make(map[string]providerInfo)
	ids := make([]string, 0, len(s.registry))
	for id := range s.registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := s.registry[id]
		out[id] = providerInfo{
			ID:          id,
			Name:        p.Name(),
			Type:        "oauth",
			SignInURL:   s.absoluteURL("/signin/" + id),
			CallbackURL: s.absoluteURL("/callback/" + id),
		}
	}
	if s.ValidateCredentials != nil {
		out["credentials"] = providerInfo{
			ID:          "credentials",
			Name:        "Credentials",
			Type:        "credentials",
			SignInURL:   s.absoluteURL("/callback/credentials"),
			CallbackURL: s.absoluteURL("/callback/credentials"),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// handleSignIn starts the OAuth flow: record where to come back to, set the
// state nonce and send the browser to the provider.
func (s *Service) handleSignIn(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["provider"]
	p, ok := s.registry[id]
	if !ok {
		s.failAuth(w, r, http.StatusNotFound,
			NewAuthError(ErrCodeUnknownProvider, "Unknown provider: "+id, "provider"))
		return
	}

	if callbackURL := r.URL.Query().Get("callbackURL"); callbackURL != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     callbackCookieName,
			Value:    callbackURL,
			Path:     "/",
			MaxAge:   stateCookieMaxAge,
			Secure:   s.SecureCookies,
			HttpOnly: true,
		})
	}

	state, err := GenerateSecureToken()
	if err != nil {
		http.Error(w, `{"error": "Failed to issue state"}`, http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   stateCookieMaxAge,
		Secure:   s.SecureCookies,
		HttpOnly: true,
	})

	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
}

// handleOAuthCallback finishes the OAuth flow: state check, code exchange,
// profile fetch, user resolution, session issuance, redirect.
func (s *Service) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["provider"]
	p, ok := s.registry[id]
	if !ok {
		s.failAuth(w, r, http.StatusNotFound,
			NewAuthError(ErrCodeUnknownProvider, "Unknown provider: "+id, "provider"))
		return
	}

	stateCookie, _ := r.Cookie(stateCookieName)
	if stateCookie == nil || r.FormValue("state") != stateCookie.Value {
		clearCookie(w, stateCookieName)
		s.failAuth(w, r, http.StatusBadRequest,
			NewAuthError(ErrCodeInvalidState, "OAuth state mismatch", "state"))
		return
	}
	clearCookie(w, stateCookieName)

	code := r.FormValue("code")
	if code == "" {
		// The provider reports denials via the error parameter.
		slog.Info("oauth callback without code", "provider", id, "provider_error", r.FormValue("error"))
		s.failAuth(w, r, http.StatusUnauthorized,
			NewAuthError(ErrCodeOAuthFailed, "Provider did not return a code", ""))
		return
	}

	token, err := p.Exchange(r.Context(), code)
	if err != nil {
		slog.Info("invalid code exchange", "provider", id, "err", err)
		s.failAuth(w, r, http.StatusUnauthorized,
			NewAuthError(ErrCodeOAuthFailed, "Code exchange failed", ""))
		return
	}

	ident, err := p.Identity(r.Context(), token)
	if err != nil {
		slog.Info("error fetching identity", "provider", id, "err", err)
		s.failAuth(w, r, http.StatusUnauthorized,
			NewAuthError(ErrCodeOAuthFailed, "Could not fetch user profile", ""))
		return
	}

	user, err := EnsureUser(s.Store, ident)
	if err != nil {
		if errors.Is(err, ErrAccountNotLinked) {
			s.failAuth(w, r, http.StatusForbidden,
				NewAuthError(ErrCodeAccountNotLinked, ErrAccountNotLinked.Error(), "email"))
			return
		}
		slog.Warn("error resolving user", "provider", id, "err", err)
		s.failAuth(w, r, http.StatusInternalServerError,
			NewAuthError(ErrCodeOAuthFailed, "Could not resolve user", ""))
		return
	}

	if _, err := s.establishSession(w, r, user); err != nil {
		slog.Warn("error establishing session", "err", err)
		s.failAuth(w, r, http.StatusInternalServerError,
			NewAuthError(ErrCodeOAuthFailed, "Could not establish session", ""))
		return
	}

	http.Redirect(w, r, s.consumeCallbackURL(w, r), http.StatusFound)
}

// handleCredentialsCallback signs a user in with an email/password pair.
// Failures surface as 401 JSON, never as a panic into the application.
func (s *Service) handleCredentialsCallback(w http.ResponseWriter, r *http.Request) {
	if s.ValidateCredentials == nil {
		http.Error(w, `{"error": "Credentials sign-in not configured"}`, http.StatusInternalServerError)
		return
	}
	if !s.checkCSRF(r) {
		writeAuthError(w, http.StatusForbidden,
			NewAuthError(ErrCodeInvalidCSRF, "Missing or invalid CSRF token", "csrfToken"))
		return
	}

	email, password, err := parseCredentialsForm(r)
	if err != nil {
		writeAuthError(w, http.StatusBadRequest,
			NewAuthError(ErrCodeMissingField, err.Error(), "email"))
		return
	}

	user, err := s.ValidateCredentials(email, password)
	if err != nil || user == nil {
		if err != nil && !errors.Is(err, ErrInvalidCredentials) {
			slog.Warn("error validating credentials", "err", err)
		}
		s.failAuth(w, r, http.StatusUnauthorized,
			NewAuthError(ErrCodeInvalidCreds, "Invalid credentials", "password"))
		return
	}

	if _, err := s.establishSession(w, r, user); err != nil {
		slog.Warn("error establishing session", "err", err)
		http.Error(w, `{"error": "Could not establish session"}`, http.StatusInternalServerError)
		return
	}

	s.respondAuthSuccess(w, r, s.redirectTarget(r))
}

func (s *Service) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if !s.checkCSRF(r) {
		writeAuthError(w, http.StatusForbidden,
			NewAuthError(ErrCodeInvalidCSRF, "Missing or invalid CSRF token", "csrfToken"))
		return
	}

	slog.Info("signing out user")
	s.destroySession(w, r)
	s.respondAuthSuccess(w, r, s.redirectTarget(r))
}

// respondAuthSuccess answers a completed sign-in or sign-out: JSON clients
// get the target URL, browsers get redirected to it.
func (s *Service) respondAuthSuccess(w http.ResponseWriter, r *http.Request, target string) {
	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"url": target})
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// failAuth reports a failed sign-in: JSON clients get the structured error,
// browsers get redirected to FailureURL when one is configured.
func (s *Service) failAuth(w http.ResponseWriter, r *http.Request, status int, authErr *AuthError) {
	if s.FailureURL != "" && !wantsJSON(r) {
		sep := "?"
		if strings.Contains(s.FailureURL, "?") {
			sep = "&"
		}
		http.Redirect(w, r, s.FailureURL+sep+"error="+url.QueryEscape(authErr.Code), http.StatusFound)
		return
	}
	writeAuthError(w, status, authErr)
}

// redirectTarget picks where to send the browser after an action: the
// callbackURL form/query value, absolutized against BaseURL.
func (s *Service) redirectTarget(r *http.Request) string {
	target := r.FormValue("callbackURL")
	if target == "" {
		target = r.URL.Query().Get("callbackURL")
	}
	return s.absolutize(target)
}

// consumeCallbackURL reads and deletes the callback cookie set at sign-in
// start, so it won't steer subsequent redirects.
func (s *Service) consumeCallbackURL(w http.ResponseWriter, r *http.Request) string {
	target := ""
	if cookie, _ := r.Cookie(callbackCookieName); cookie != nil {
		target = cookie.Value
	}
	clearCookie(w, callbackCookieName)
	return s.absolutize(target)
}

func (s *Service) absolutize(target string) string {
	if target == "" {
		target = "/"
	}
	u, err := url.Parse(target)
	if err != nil {
		return strings.TrimSuffix(s.BaseURL, "/") + "/"
	}
	if u.Scheme == "" {
		return strings.TrimSuffix(s.BaseURL, "/") + "/" + strings.TrimPrefix(target, "/")
	}
	return target
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:    name,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Now(),
	})
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// parseCredentialsForm accepts either form-encoded or JSON bodies, the same
// as the other POST endpoints.
func parseCredentialsForm(r *http.Request) (email, password string, err error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var data map[string]any
		if err = json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return "", "", fmt.Errorf("invalid post body")
		}
		email, _ = data["email"].(string)
		password, _ = data["password"].(string)
	} else {
		if err = r.ParseForm(); err != nil {
			return "", "", fmt.Errorf("error parsing form")
		}
		email = r.FormValue("email")
		password = r.FormValue("password")
	}

	if email == "" || password == "" {
		return "", "", fmt.Errorf("email and password required")
	}
	return email, password, nil
}
