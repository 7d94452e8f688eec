package sessionkit

import "time"

// Status describes what a client currently knows about its session.
// Exactly one status is observable at any instant.
type Status string

const (
	// StatusUnauthenticated means the server definitively reported no session.
	StatusUnauthenticated Status = "unauthenticated"

	// StatusLoading means a session check is in flight and no earlier
	// answer is available.
	StatusLoading Status = "loading"

	// StatusAuthenticated means a live session exists.
	StatusAuthenticated Status = "authenticated"
)

// User is the profile slice of a session as clients see it. The Email is
// whatever the identity provider reported, passed through unchanged.
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Session is the value distributed to clients. It is created on successful
// authentication, refreshed on revalidation and destroyed on sign-out.
// Consumers treat it as read-only.
type Session struct {
	User    User      `json:"user"`
	Expires time.Time `json:"expires"`
}

// Valid reports whether the session names a user and has not expired.
func (s *Session) Valid() bool {
	if s == nil || s.User.ID == "" {
		return false
	}
	return s.Expires.IsZero() || time.Now().Before(s.Expires)
}
