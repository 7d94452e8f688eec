package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/halcyonic/sessionkit"
	"github.com/halcyonic/sessionkit/broadcast"
	"github.com/halcyonic/sessionkit/stores/fs"
)

// startAuthServer runs a real sessionkit service with one registered user,
// tab@example.com / password123.
func startAuthServer(t *testing.T) string {
	t.Helper()

	store, err := fs.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	cfg := &sessionkit.Config{
		BaseURL:    "http://localhost:0",
		BasePath:   "/api/auth",
		Secret:     "test-secret-key-for-testing-only",
		SessionTTL: time.Hour,
	}
	svc, err := sessionkit.New(cfg, store)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	if _, err := sessionkit.RegisterUser(svc.Store, "tab@example.com", "password123", "Tab User"); err != nil {
		t.Fatalf("Failed to register user: %v", err)
	}

	mux := http.NewServeMux()
	svc.Mount(mux, "/api/auth")
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	svc.BaseURL = ts.URL
	return ts.URL
}

// sharedJarClient models one browser: every watcher using it sees the same
// cookies.
func sharedJarClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("Failed to create cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 15 * time.Second}
}

// recordingBus wraps a LocalBus and keeps every published message.
type recordingBus struct {
	inner *broadcast.LocalBus

	mu   sync.Mutex
	msgs []broadcast.Message
}

func newRecordingBus() *recordingBus {
	return &recordingBus{inner: broadcast.NewLocalBus()}
}

func (b *recordingBus) Publish(msg broadcast.Message) {
	b.mu.Lock()
	b.msgs = append(b.msgs, msg)
	b.mu.Unlock()
	b.inner.Publish(msg)
}

func (b *recordingBus) Subscribe(fn func(broadcast.Message)) func() {
	return b.inner.Subscribe(fn)
}

func (b *recordingBus) recorded() []broadcast.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcast.Message(nil), b.msgs...)
}

// TestWatcher_CrossContextConvergence is the two-tab story: a sign-in or
// sign-out in one context reaches the other through the bus, with the
// server as the only source of truth.
func TestWatcher_CrossContextConvergence(t *testing.T) {
	baseURL := startAuthServer(t)
	bus := broadcast.NewLocalBus()
	browser := sharedJarClient(t)
	ctx := context.Background()

	tabA := newTestWatcher(t, baseURL, Options{Bus: bus, HTTPClient: browser, Origin: "tab-a"})
	tabB := newTestWatcher(t, baseURL, Options{Bus: bus, HTTPClient: browser, Origin: "tab-b"})

	chB, cancelB := tabB.Subscribe()
	defer cancelB()

	tabB.Revalidate(ctx)
	waitForStatus(t, chB, sessionkit.StatusUnauthenticated)

	// Tab A signs in; tab B converges without being told directly.
	if err := tabA.SignInWithPassword(ctx, "tab@example.com", "password123"); err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}
	if got := tabA.Snapshot().Status; got != sessionkit.StatusAuthenticated {
		t.Fatalf("tab A Status = %q, want %q", got, sessionkit.StatusAuthenticated)
	}
	st := waitForStatus(t, chB, sessionkit.StatusAuthenticated)
	if st.Session.User.Email != "tab@example.com" {
		t.Errorf("tab B Email = %q, want tab@example.com", st.Session.User.Email)
	}

	// Tab A signs out; tab B lands on signed out, not on an error.
	if err := tabA.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if got := tabA.Snapshot().Status; got != sessionkit.StatusUnauthenticated {
		t.Fatalf("tab A Status after sign-out = %q, want %q", got, sessionkit.StatusUnauthenticated)
	}
	waitForStatus(t, chB, sessionkit.StatusUnauthenticated)
}

// TestWatcher_BusEchoSuppression verifies bus-triggered refetches do not
// publish again: two actions mean exactly two messages, both from the
// acting tab.
func TestWatcher_BusEchoSuppression(t *testing.T) {
	baseURL := startAuthServer(t)
	bus := newRecordingBus()
	browser := sharedJarClient(t)
	ctx := context.Background()

	tabA := newTestWatcher(t, baseURL, Options{Bus: bus, HTTPClient: browser, Origin: "tab-a"})
	tabB := newTestWatcher(t, baseURL, Options{Bus: bus, HTTPClient: browser, Origin: "tab-b"})

	chB, cancelB := tabB.Subscribe()
	defer cancelB()

	if err := tabA.SignInWithPassword(ctx, "tab@example.com", "password123"); err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}
	waitForStatus(t, chB, sessionkit.StatusAuthenticated)

	if err := tabA.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	waitForStatus(t, chB, sessionkit.StatusUnauthenticated)

	// Give a hypothetical echo time to show up.
	time.Sleep(100 * time.Millisecond)

	msgs := bus.recorded()
	if len(msgs) != 2 {
		t.Fatalf("published messages = %d, want 2: %+v", len(msgs), msgs)
	}
	if msgs[0].Event != broadcast.EventSessionUpdated {
		t.Errorf("first event = %q, want %q", msgs[0].Event, broadcast.EventSessionUpdated)
	}
	if msgs[1].Event != broadcast.EventSignedOut {
		t.Errorf("second event = %q, want %q", msgs[1].Event, broadcast.EventSignedOut)
	}
	for i, msg := range msgs {
		if msg.Origin != "tab-a" {
			t.Errorf("message %d Origin = %q, want tab-a", i, msg.Origin)
		}
	}
}

func TestSignInWithPassword_Invalid(t *testing.T) {
	baseURL := startAuthServer(t)
	w := newTestWatcher(t, baseURL, Options{})

	err := w.SignInWithPassword(context.Background(), "tab@example.com", "wrong-password")
	if !errors.Is(err, sessionkit.ErrInvalidCredentials) {
		t.Errorf("SignInWithPassword() = %v, want ErrInvalidCredentials", err)
	}
	if got := w.Snapshot().Status; got != sessionkit.StatusLoading {
		t.Errorf("Status = %q, want %q after a failed sign-in", got, sessionkit.StatusLoading)
	}
}

func TestSignInWithPassword_UpdatesState(t *testing.T) {
	baseURL := startAuthServer(t)
	w := newTestWatcher(t, baseURL, Options{})
	ctx := context.Background()

	if err := w.SignInWithPassword(ctx, "tab@example.com", "password123"); err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}
	st := w.Snapshot()
	if st.Status != sessionkit.StatusAuthenticated {
		t.Fatalf("Status = %q, want %q", st.Status, sessionkit.StatusAuthenticated)
	}
	if st.Session.User.Email != "tab@example.com" {
		t.Errorf("Email = %q, want tab@example.com", st.Session.User.Email)
	}

	if err := w.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if got := w.Snapshot().Status; got != sessionkit.StatusUnauthenticated {
		t.Errorf("Status after sign-out = %q, want %q", got, sessionkit.StatusUnauthenticated)
	}
}

func TestStartSignIn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/signin/github" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("callbackURL"); got != "/after" {
			t.Errorf("callbackURL = %q, want /after", got)
		}
		http.Redirect(w, r, "https://github.com/login/oauth/authorize?state=abc", http.StatusFound)
	}))
	defer server.Close()

	w := newTestWatcher(t, server.URL, Options{})
	location, err := w.StartSignIn(context.Background(), "github", "/after")
	if err != nil {
		t.Fatalf("StartSignIn() error = %v", err)
	}
	if location != "https://github.com/login/oauth/authorize?state=abc" {
		t.Errorf("StartSignIn() = %q, want the provider authorize URL", location)
	}
}

func TestStartSignIn_UnknownProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code": "unknown_provider"}`, http.StatusNotFound)
	}))
	defer server.Close()

	w := newTestWatcher(t, server.URL, Options{})
	if _, err := w.StartSignIn(context.Background(), "nope", ""); err == nil {
		t.Error("StartSignIn() should have failed for an unknown provider")
	}
}
