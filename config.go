package sessionkit

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything a Service needs at startup. All of it can come
// from the environment via FromEnv; provider credentials and the secret are
// deliberately not settable anywhere else.
type Config struct {
	// BaseURL is the canonical deployment URL of the application, used to
	// derive provider callback URLs and absolute redirects.
	BaseURL string `env:"SESSIONKIT_URL" envDefault:"http://localhost:8080"`

	// BasePath is the prefix the auth endpoints are mounted under.
	BasePath string `env:"SESSIONKIT_BASE_PATH" envDefault:"/api/auth"`

	// AppName prefixes cookie and session variable names.
	AppName string `env:"SESSIONKIT_APP_NAME" envDefault:"sessionkit"`

	// Secret signs session tokens and CSRF tokens. There is no default:
	// a missing secret is a fatal misconfiguration.
	Secret string `env:"SESSIONKIT_SECRET"`

	// SessionTTL is how long an issued session stays valid.
	SessionTTL time.Duration `env:"SESSIONKIT_SESSION_TTL" envDefault:"24h"`

	// CookieDomains lists extra domains session cookies are set on.
	CookieDomains []string `env:"SESSIONKIT_COOKIE_DOMAINS" envSeparator:","`

	// SecureCookies forces the Secure flag on cookies. An https BaseURL
	// implies it regardless.
	SecureCookies bool `env:"SESSIONKIT_SECURE_COOKIES"`

	// SignupEnabled exposes POST {BasePath}/signup for credentials users.
	SignupEnabled bool `env:"SESSIONKIT_SIGNUP_ENABLED"`

	// DisableCSRF turns off CSRF checking on state-changing endpoints.
	// Only sensible for non-browser deployments.
	DisableCSRF bool `env:"SESSIONKIT_CSRF_DISABLED"`

	// FailureURL, when set, receives browser redirects on sign-in failure
	// with the error code in the "error" query parameter. When empty the
	// endpoints answer with JSON errors instead.
	FailureURL string `env:"SESSIONKIT_FAILURE_URL"`

	GitHubClientID     string `env:"SESSIONKIT_GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"SESSIONKIT_GITHUB_CLIENT_SECRET"`
	GoogleClientID     string `env:"SESSIONKIT_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"SESSIONKIT_GOOGLE_CLIENT_SECRET"`
}

// FromEnv loads and validates configuration from the environment. A missing
// secret is reported here, once, so callers can fail startup.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants FromEnv relies on. It is exported so
// programmatically built configs get the same treatment.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Secret) == "" {
		return fmt.Errorf("SESSIONKIT_SECRET: %w", ErrMissingSecret)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("SESSIONKIT_URL %q is not an absolute URL", c.BaseURL)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSIONKIT_SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("SESSIONKIT_BASE_PATH %q must start with /", c.BasePath)
	}
	return nil
}

// CallbackURL returns the redirect URL registered with a provider:
// {BaseURL}{BasePath}/callback/{provider}.
func (c *Config) CallbackURL(provider string) string {
	return strings.TrimSuffix(c.BaseURL, "/") + strings.TrimSuffix(c.BasePath, "/") + "/callback/" + provider
}

// cookiesSecure reports whether cookies should carry the Secure flag.
func (c *Config) cookiesSecure() bool {
	return c.SecureCookies || strings.HasPrefix(c.BaseURL, "https://")
}
