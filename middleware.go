package sessionkit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

type sessionCtxKey struct{}

// Middleware resolves the session attached to a request and exposes it to
// downstream handlers through the request context.
type Middleware struct {
	// TokenCookieName is the cookie inspected for a bearer token when the
	// Authorization header carries none.
	TokenCookieName string

	// SignInURL, when set, is where RequireSession sends browsers that have
	// no session. Clients asking for JSON always get a 401 instead.
	SignInURL string

	// CallbackURLParam names the query parameter the sign-in redirect uses
	// to carry the page to return to afterwards. Defaults to "callbackURL".
	CallbackURLParam string

	// Lookup resolves the request's session. EnsureDefaults wires it to the
	// owning Service; tests may replace it.
	Lookup func(r *http.Request) (*Session, error)
}

// WithSession loads the session, if any, into the request context and always
// continues. Handlers that merely personalize output use this; handlers that
// must not run anonymously use RequireSession.
func (m *Middleware) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, m.attachSession(r))
	})
}

// RequireSession rejects requests that carry no session. Browsers are
// redirected to SignInURL when one is configured; everyone else gets a 401
// telling them to sign in.
func (m *Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = m.attachSession(r)
		if SessionFromContext(r.Context()) == nil {
			if m.SignInURL != "" && !wantsJSON(r) {
				param := m.CallbackURLParam
				if param == "" {
					param = "callbackURL"
				}
				encoded := strings.Replace(url.QueryEscape(r.URL.RequestURI()), "+", "%20", -1)
				http.Redirect(w, r, fmt.Sprintf("%s?%s=%s", m.SignInURL, param, encoded), http.StatusFound)
				return
			}
			writeAuthError(w, http.StatusUnauthorized,
				NewAuthError(ErrCodeSignInRequired, "You must sign in to access this resource", ""))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) attachSession(r *http.Request) *http.Request {
	if m.Lookup == nil {
		slog.Warn("no session lookup configured")
		return r
	}
	sess, err := m.Lookup(r)
	if err != nil {
		slog.Warn("error resolving session", "err", err)
	}
	if sess == nil {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), sessionCtxKey{}, sess))
}

// SessionFromContext returns the session stored by WithSession or
// RequireSession, or nil when the request is anonymous.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionCtxKey{}).(*Session)
	return sess
}

// UserFromContext is a shorthand for the signed-in user, or nil.
func UserFromContext(ctx context.Context) *User {
	if sess := SessionFromContext(ctx); sess != nil {
		return &sess.User
	}
	return nil
}
