package sessionkit

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"

	"github.com/halcyonic/sessionkit/providers"
)

// Service serves the session endpoints an application mounts under BasePath
// (default /api/auth) and issues the session records clients synchronize on.
// Sessions live in the scs manager; an HS256 token mirrored into a cookie
// carries the same session for header/bearer consumers.
type Service struct {
	router   *mux.Router
	Sessions *scs.SessionManager

	Middleware Middleware

	// AppName prefixes cookie and session variable names.
	AppName string

	// BaseURL and BasePath locate the mounted endpoints, used for provider
	// callback URLs and for absolutizing relative redirect targets.
	BaseURL  string
	BasePath string

	// Secret signs session tokens and CSRF tokens. Must be set; New refuses
	// to build a Service without one.
	Secret string

	JwtIssuer  string
	SessionTTL time.Duration

	// All the domains the session token cookie is set on at sign-in and
	// cleared from at sign-out.
	CookieDomains []string
	SecureCookies bool

	// FailureURL, when set, receives browser redirects on sign-in failure
	// with the error code in the "error" query parameter.
	FailureURL string

	SignupEnabled     bool
	DisableCSRF       bool
	MinPasswordLength int

	// Store must be passed in.
	Store Store

	// ValidateCredentials checks an email/password pair. Defaults to the
	// store-backed bcrypt validator.
	ValidateCredentials CredentialsValidator

	csrf     csrfGuard
	registry map[string]providers.Provider
}

// New builds a Service from a validated config and a store. A missing
// secret is a fatal misconfiguration and is reported here, not defaulted.
func New(cfg *Config, store Store) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	s := &Service{
		AppName:       cfg.AppName,
		BaseURL:       cfg.BaseURL,
		BasePath:      cfg.BasePath,
		Secret:        cfg.Secret,
		SessionTTL:    cfg.SessionTTL,
		CookieDomains: cfg.CookieDomains,
		SecureCookies: cfg.cookiesSecure(),
		FailureURL:    cfg.FailureURL,
		SignupEnabled: cfg.SignupEnabled,
		DisableCSRF:   cfg.DisableCSRF,
		Store:         store,
	}
	s.EnsureDefaults()

	if cfg.GitHubClientID != "" {
		s.AddProvider(providers.NewGitHub(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.CallbackURL("github")))
	}
	if cfg.GoogleClientID != "" {
		s.AddProvider(providers.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.CallbackURL("google")))
	}

	return s, nil
}

// EnsureDefaults fills in everything that has a sensible default. The
// secret is deliberately not one of them.
func (s *Service) EnsureDefaults() *Service {
	if s.AppName == "" {
		s.AppName = "sessionkit"
	}
	if s.BasePath == "" {
		s.BasePath = "/api/auth"
	}
	if s.SessionTTL <= 0 {
		s.SessionTTL = 24 * time.Hour
	}
	if s.JwtIssuer == "" {
		s.JwtIssuer = fmt.Sprintf("%s-issuer", s.AppName)
	}
	if s.MinPasswordLength <= 0 {
		s.MinPasswordLength = 8
	}
	if s.ValidateCredentials == nil && s.Store != nil {
		s.ValidateCredentials = NewCredentialsValidator(s.Store)
	}
	s.csrf.secret = []byte(s.Secret)

	if s.Sessions == nil {
		s.Sessions = scs.New()
		s.Sessions.Lifetime = s.SessionTTL
		s.Sessions.Cookie.Name = s.AppName + "Session"
		s.Sessions.Cookie.Secure = s.SecureCookies
		s.Sessions.Cookie.SameSite = http.SameSiteLaxMode
	}

	if s.Middleware.TokenCookieName == "" {
		s.Middleware.TokenCookieName = s.tokenCookieName()
	}
	if s.Middleware.Lookup == nil {
		s.Middleware.Lookup = s.currentSession
	}
	return s
}

// AddProvider registers an OAuth provider under its ID.
func (s *Service) AddProvider(p providers.Provider) *Service {
	if s.registry == nil {
		s.registry = make(map[string]providers.Provider)
	}
	s.registry[p.ID()] = p
	return s
}

// Provider returns a registered provider by ID.
func (s *Service) Provider(id string) (providers.Provider, bool) {
	p, ok := s.registry[id]
	return p, ok
}

// Handler returns the endpoint handler rooted at "/". Mount under BasePath
// with Mount, or strip the prefix yourself.
func (s *Service) Handler() http.Handler {
	s.EnsureDefaults()
	return s.Sessions.LoadAndSave(s.setupRoutes().router)
}

// Mount registers the endpoints on m under prefix, typically BasePath.
func (s *Service) Mount(m *http.ServeMux, prefix string) *Service {
	prefix = strings.TrimSuffix(prefix, "/")
	m.Handle(prefix+"/", http.StripPrefix(prefix, s.Handler()))
	return s
}

// WithSession attaches the current session, if any, to request contexts.
func (s *Service) WithSession(next http.Handler) http.Handler {
	s.EnsureDefaults()
	return s.Sessions.LoadAndSave(s.Middleware.WithSession(next))
}

// RequireSession rejects requests without a session and attaches the session
// otherwise.
func (s *Service) RequireSession(next http.Handler) http.Handler {
	s.EnsureDefaults()
	return s.Sessions.LoadAndSave(s.Middleware.RequireSession(next))
}

func (s *Service) tokenCookieName() string { return s.AppName + "SessionToken" }
func (s *Service) csrfCookieName() string  { return s.AppName + "CsrfToken" }
func (s *Service) userSessionVar() string  { return s.AppName + "UserID" }

// absoluteURL turns an endpoint-relative path into a full URL.
func (s *Service) absoluteURL(path string) string {
	return strings.TrimSuffix(s.BaseURL, "/") + strings.TrimSuffix(s.BasePath, "/") + path
}

// cookieDomains returns the configured domains plus the request's own
// (empty) domain.
func (s *Service) cookieDomains() []string {
	domains := s.CookieDomains
	if slices.Index(domains, "") < 0 {
		domains = append(domains, "")
	}
	return domains
}

// establishSession records a signed-in user in the scs session, mints the
// mirrored token cookie and returns the session value clients will see.
func (s *Service) establishSession(w http.ResponseWriter, r *http.Request, user *User) (*Session, error) {
	// New identity, new session token.
	if err := s.Sessions.RenewToken(r.Context()); err != nil {
		return nil, fmt.Errorf("renew session: %w", err)
	}
	s.Sessions.Put(r.Context(), s.userSessionVar(), user.ID)

	expires := time.Now().Add(s.SessionTTL)
	tokenString, err := s.mintSessionToken(user, expires)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	maxAge := int(s.SessionTTL / time.Second)
	for _, domain := range s.cookieDomains() {
		http.SetCookie(w, &http.Cookie{
			Name:     s.tokenCookieName(),
			Value:    tokenString,
			Domain:   domain,
			Path:     "/",
			Expires:  expires,
			MaxAge:   maxAge,
			Secure:   s.SecureCookies,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	slog.Info("session established", "user", user.ID)
	return &Session{User: *user, Expires: expires}, nil
}

// destroySession removes the server-side session and expires the token
// cookie on every configured domain.
func (s *Service) destroySession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Destroy(r.Context()); err != nil {
		slog.Warn("error destroying session", "err", err)
	}
	for _, domain := range s.cookieDomains() {
		http.SetCookie(w, &http.Cookie{
			Name:    s.tokenCookieName(),
			Domain:  domain,
			Path:    "/",
			MaxAge:  -1,
			Expires: time.Now(),
		})
	}
}

// currentSession resolves the session for a request: the scs session first,
// then the token cookie or Authorization header for API callers. A nil
// session with a nil error is the definitive "not signed in" answer.
func (s *Service) currentSession(r *http.Request) (*Session, error) {
	var userID string
	var expires time.Time

	if id := s.Sessions.GetString(r.Context(), s.userSessionVar()); id != "" {
		userID = id
		expires = s.Sessions.Deadline(r.Context())
	} else {
		for _, tokenString := range s.bearerTokens(r) {
			sub, claims, err := VerifySessionToken([]byte(s.Secret), tokenString)
			if err != nil {
				slog.Warn("error verifying session token", "err", err)
				continue
			}
			userID = sub
			if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
				expires = exp.Time
			}
			break
		}
	}

	if userID == "" {
		return nil, nil
	}

	user, err := s.Store.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &Session{User: *user, Expires: expires}, nil
}

// bearerTokens collects candidate session tokens from the Authorization
// header and the token cookie, in that order.
func (s *Service) bearerTokens(r *http.Request) []string {
	var tokens []string
	for _, h := range r.Header.Values("Authorization") {
		tokens = append(tokens, strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
	}
	for _, cookie := range r.Cookies() {
		if cookie.Name == s.tokenCookieName() && cookie.Value != "" {
			tokens = append(tokens, cookie.Value)
		}
	}
	return tokens
}
