package sessionkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// handleSignup registers a new credentials user and signs them in. The route
// is always mounted so the response shape stays stable; whether registration
// is open is decided here.
func (s *Service) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !s.SignupEnabled {
		writeAuthError(w, http.StatusForbidden,
			NewAuthError(ErrCodeSignupDisabled, "Signup is not enabled", ""))
		return
	}
	if !s.checkCSRF(r) {
		writeAuthError(w, http.StatusForbidden,
			NewAuthError(ErrCodeInvalidCSRF, "Missing or invalid CSRF token", "csrfToken"))
		return
	}

	email, password, name, authErr := parseSignupForm(r)
	if authErr != nil {
		writeAuthError(w, http.StatusBadRequest, authErr)
		return
	}
	if authErr := s.validateSignup(email, password); authErr != nil {
		writeAuthError(w, http.StatusBadRequest, authErr)
		return
	}

	user, err := RegisterUser(s.Store, email, password, name)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			writeAuthError(w, http.StatusConflict,
				NewAuthError(ErrCodeEmailTaken, "Email is already registered", "email"))
			return
		}
		slog.Warn("error creating user", "err", err)
		http.Error(w, `{"error": "Failed to create user"}`, http.StatusInternalServerError)
		return
	}
	slog.Info("user registered", "user", user.ID)

	if _, err := s.establishSession(w, r, user); err != nil {
		slog.Warn("error establishing session", "err", err)
		http.Error(w, `{"error": "Could not establish session"}`, http.StatusInternalServerError)
		return
	}
	s.respondAuthSuccess(w, r, s.redirectTarget(r))
}

func (s *Service) validateSignup(email, password string) *AuthError {
	if email == "" {
		return NewAuthError(ErrCodeMissingField, "Email is required", "email")
	}
	if !emailPattern.MatchString(email) {
		return NewAuthError(ErrCodeInvalidEmail, "Invalid email format", "email")
	}
	if password == "" {
		return NewAuthError(ErrCodeMissingField, "Password is required", "password")
	}
	if len(password) < s.MinPasswordLength {
		return NewAuthError(ErrCodeWeakPassword,
			fmt.Sprintf("Password must be at least %d characters", s.MinPasswordLength), "password")
	}
	return nil
}

// parseSignupForm accepts form-encoded or JSON bodies. The name field is
// optional.
func parseSignupForm(r *http.Request) (email, password, name string, authErr *AuthError) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return "", "", "", NewAuthError(ErrCodeParseError, "Invalid post body", "")
		}
		email, _ = data["email"].(string)
		password, _ = data["password"].(string)
		name, _ = data["name"].(string)
	} else {
		if err := r.ParseForm(); err != nil {
			return "", "", "", NewAuthError(ErrCodeParseError, "Error parsing form", "")
		}
		email = r.FormValue("email")
		password = r.FormValue("password")
		name = r.FormValue("name")
	}
	return email, password, name, nil
}
