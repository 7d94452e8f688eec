package client

import (
	"context"
	"net/http"
)

// Transport is an http.RoundTripper that tells a Watcher when the server
// stops honoring the session. Any 401 nudges the watcher to revalidate, so
// application traffic doubles as a session probe between polls.
//
// The response passes through untouched; the nudge runs in the background.
type Transport struct {
	Base    http.RoundTripper
	Watcher *Watcher
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && t.Watcher != nil {
		go t.Watcher.revalidate(context.WithoutCancel(req.Context()), triggerTransport)
	}
	return resp, nil
}
