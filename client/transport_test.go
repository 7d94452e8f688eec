package client

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/halcyonic/sessionkit"
)

func TestTransport_RevalidatesOn401(t *testing.T) {
	var sessionHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/session", func(w http.ResponseWriter, r *http.Request) {
		sessionHits.Add(1)
		w.Write([]byte("{}\n"))
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("denied"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	w := newTestWatcher(t, server.URL, Options{})

	app := &http.Client{Transport: &Transport{Watcher: w}}
	resp, err := app.Get(server.URL + "/data")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	// The response passes through untouched.
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", resp.StatusCode)
	}
	if string(body) != "denied" {
		t.Errorf("Body = %q, want denied", body)
	}

	// The nudge lands in the background.
	deadline := time.Now().Add(2 * time.Second)
	for sessionHits.Load() == 0 || w.Snapshot().Status != sessionkit.StatusUnauthenticated {
		if time.Now().After(deadline) {
			t.Fatalf("watcher never revalidated: hits=%d status=%q",
				sessionHits.Load(), w.Snapshot().Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTransport_LeavesSuccessAlone(t *testing.T) {
	var sessionHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/session", func(w http.ResponseWriter, r *http.Request) {
		sessionHits.Add(1)
		w.Write([]byte("{}\n"))
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	w := newTestWatcher(t, server.URL, Options{})

	app := &http.Client{Transport: &Transport{Watcher: w}}
	resp, err := app.Get(server.URL + "/data")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}

	time.Sleep(50 * time.Millisecond)
	if got := sessionHits.Load(); got != 0 {
		t.Errorf("session endpoint hit %d times, want 0", got)
	}
}

func TestTransport_NilWatcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	app := &http.Client{Transport: &Transport{}}
	resp, err := app.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", resp.StatusCode)
	}
}
