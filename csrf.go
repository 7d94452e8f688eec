package sessionkit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// csrfMaxAge bounds how long an issued CSRF token stays usable.
const csrfMaxAge = 4 * time.Hour

// csrfGuard implements stateless double-submit CSRF protection. A token is
// "nonce:timestamp:signature"; the same value travels in a cookie and in the
// form (or X-CSRF-Token header) and must match, so a cross-site attacker
// with a token of their own still fails the cookie comparison.
type csrfGuard struct {
	secret []byte
}

func (g *csrfGuard) issue() (string, error) {
	nonce, err := GenerateSecureToken()
	if err != nil {
		return "", err
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return nonce + ":" + ts + ":" + g.sign(nonce+":"+ts), nil
}

func (g *csrfGuard) valid(token string) bool {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return false
	}
	issued, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return false
	}
	age := time.Since(time.Unix(issued, 0))
	if age < 0 || age > csrfMaxAge {
		return false
	}
	want := g.sign(parts[0] + ":" + parts[1])
	return hmac.Equal([]byte(parts[2]), []byte(want))
}

func (g *csrfGuard) sign(payload string) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// csrfTokenFromRequest pulls the submitted token from the form field or the
// X-CSRF-Token header.
func csrfTokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("X-CSRF-Token"); h != "" {
		return h
	}
	return r.FormValue("csrfToken")
}

// checkCSRF verifies the double-submit pair on a state-changing request.
func (s *Service) checkCSRF(r *http.Request) bool {
	if s.DisableCSRF {
		return true
	}
	submitted := csrfTokenFromRequest(r)
	if submitted == "" || !s.csrf.valid(submitted) {
		return false
	}
	cookie, err := r.Cookie(s.csrfCookieName())
	if err != nil || cookie.Value == "" {
		return false
	}
	return hmac.Equal([]byte(cookie.Value), []byte(submitted))
}
