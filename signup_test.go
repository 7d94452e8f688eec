package sessionkit_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	sk "github.com/halcyonic/sessionkit"
	"github.com/halcyonic/sessionkit/stores/fs"
)

func postSignup(handler http.Handler, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// TestSignupFlow tests registration validation and the duplicate check.
func TestSignupFlow(t *testing.T) {
	handler, _ := setupCredentialsTest(t)
	token, cookie := csrfPair(t, handler)

	tests := []struct {
		name           string
		formData       map[string]string
		expectedStatus int
		checkError     string
	}{
		{
			name: "successful signup",
			formData: map[string]string{
				"email":    "new@example.com",
				"password": "password123",
				"name":     "New User",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "duplicate email",
			formData: map[string]string{
				"email":    "new@example.com",
				"password": "password456",
			},
			expectedStatus: http.StatusConflict,
			checkError:     "email_taken",
		},
		{
			name: "email taken by existing user",
			formData: map[string]string{
				"email":    "login@example.com",
				"password": "password123",
			},
			expectedStatus: http.StatusConflict,
			checkError:     "email_taken",
		},
		{
			name: "weak password",
			formData: map[string]string{
				"email":    "weak@example.com",
				"password": "short",
			},
			expectedStatus: http.StatusBadRequest,
			checkError:     "weak_password",
		},
		{
			name: "invalid email format",
			formData: map[string]string{
				"email":    "not-an-email",
				"password": "password123",
			},
			expectedStatus: http.StatusBadRequest,
			checkError:     "invalid_email",
		},
		{
			name: "missing email",
			formData: map[string]string{
				"password": "password123",
			},
			expectedStatus: http.StatusBadRequest,
			checkError:     "missing_field",
		},
		{
			name: "missing password",
			formData: map[string]string{
				"email": "nopass@example.com",
			},
			expectedStatus: http.StatusBadRequest,
			checkError:     "missing_field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{}
			for k, v := range tt.formData {
				form.Set(k, v)
			}
			form.Set("csrfToken", token)

			rr := postSignup(handler, form, cookie)
			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d. Body: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}
			if tt.checkError != "" && !strings.Contains(rr.Body.String(), tt.checkError) {
				t.Errorf("Expected error %q in body, got: %s", tt.checkError, rr.Body.String())
			}
		})
	}
}

// TestSignupEstablishesSession verifies a fresh signup is also a sign-in.
func TestSignupEstablishesSession(t *testing.T) {
	handler, _ := setupCredentialsTest(t)
	token, cookie := csrfPair(t, handler)

	form := url.Values{}
	form.Set("email", "fresh@example.com")
	form.Set("password", "password123")
	form.Set("csrfToken", token)

	rr := postSignup(handler, form, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	// Replay the issued cookies against /session.
	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	for _, c := range rr.Result().Cookies() {
		if c.Value != "" {
			req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	sessRR := httptest.NewRecorder()
	handler.ServeHTTP(sessRR, req)

	if sessRR.Code != http.StatusOK {
		t.Fatalf("Expected status 200 from /session, got %d", sessRR.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(sessRR.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode session response: %v", err)
	}
	if sessionEmail(body) != "fresh@example.com" {
		t.Errorf("Expected a session for fresh@example.com, got %v", body)
	}
}

// TestSignupPreservesEmailCase verifies the submitted email is stored
// without normalization.
func TestSignupPreservesEmailCase(t *testing.T) {
	handler, svc := setupCredentialsTest(t)
	token, cookie := csrfPair(t, handler)

	form := url.Values{}
	form.Set("email", "Mixed.Case@Example.COM")
	form.Set("password", "password123")
	form.Set("csrfToken", token)

	rr := postSignup(handler, form, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	user, err := svc.Store.GetUserByEmail("Mixed.Case@Example.COM")
	if err != nil {
		t.Fatalf("Expected stored user under exact email: %v", err)
	}
	if user.Email != "Mixed.Case@Example.COM" {
		t.Errorf("Expected email preserved exactly, got %q", user.Email)
	}
	if _, err := svc.Store.GetUserByEmail("mixed.case@example.com"); err == nil {
		t.Error("Expected lowercased lookup to miss")
	}
}

// TestSignupDisabled verifies the endpoint refuses registrations when
// signup is off.
func TestSignupDisabled(t *testing.T) {
	store, err := fs.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	cfg := &sk.Config{
		BaseURL:    "http://app.test",
		BasePath:   "/api/auth",
		Secret:     testSecret,
		SessionTTL: time.Hour,
	}
	svc, err := sk.New(cfg, store)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	handler := svc.Handler()
	token, cookie := csrfPair(t, handler)

	form := url.Values{}
	form.Set("email", "new@example.com")
	form.Set("password", "password123")
	form.Set("csrfToken", token)

	rr := postSignup(handler, form, cookie)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "signup_disabled") {
		t.Errorf("Expected signup_disabled error, got: %s", rr.Body.String())
	}
}
