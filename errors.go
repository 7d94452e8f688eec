package sessionkit

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Sentinel errors for programmatic callers. Handlers translate these into
// AuthError JSON bodies; they are never raised as panics.
var (
	ErrMissingSecret      = errors.New("session secret is not configured")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSession          = errors.New("no active session")
	ErrUnknownProvider    = errors.New("unknown provider")
	ErrUserNotFound       = errors.New("user not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrAccountNotLinked   = errors.New("email already registered with another sign-in method")
)

// Error codes carried in AuthError responses.
const (
	ErrCodeInvalidCreds     = "invalid_credentials"
	ErrCodeMissingField     = "missing_field"
	ErrCodeInvalidEmail     = "invalid_email"
	ErrCodeWeakPassword     = "weak_password"
	ErrCodeParseError       = "parse_error"
	ErrCodeEmailTaken       = "email_taken"
	ErrCodeAccountNotLinked = "account_not_linked"
	ErrCodeUnknownProvider  = "unknown_provider"
	ErrCodeInvalidState     = "invalid_state"
	ErrCodeInvalidCSRF      = "invalid_csrf"
	ErrCodeOAuthFailed      = "oauth_failed"
	ErrCodeSignInRequired   = "signin_required"
	ErrCodeSignupDisabled   = "signup_disabled"
)

// AuthError is a structured authentication failure. Field names the form
// field that caused the failure, when there is one.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

func (e *AuthError) Error() string {
	if e.Field != "" {
		return e.Code + ": " + e.Message + " (field: " + e.Field + ")"
	}
	return e.Code + ": " + e.Message
}

// writeAuthError renders an AuthError as the JSON error body all endpoints
// share: {"error": ..., "code": ..., "field": ...}.
func writeAuthError(w http.ResponseWriter, status int, err *AuthError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": err.Message,
		"code":  err.Code,
		"field": err.Field,
	})
}
