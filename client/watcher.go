// Package client keeps a process in sync with the session a sessionkit
// server holds for it. A Watcher owns the single observable session state,
// revalidates it against the server on demand, on a timer and on broadcast
// notices, and lets the rest of the program subscribe to changes.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonic/sessionkit"
	"github.com/halcyonic/sessionkit/broadcast"
)

// Revalidation triggers, for logging and echo suppression.
const (
	triggerStart     = "start"
	triggerManual    = "manual"
	triggerPoll      = "poll"
	triggerBus       = "bus"
	triggerTransport = "transport"
	triggerAction    = "action"
)

const busRevalidateTimeout = 30 * time.Second

// State is one observation of the session. Status is always meaningful;
// Session is non-nil only when Status is StatusAuthenticated and is never
// mutated after publication.
type State struct {
	Status  sessionkit.Status
	Session *sessionkit.Session
}

// Options configures a Watcher.
type Options struct {
	// BaseURL is the server origin, such as "https://yourapp.com".
	BaseURL string

	// BasePath is where the auth endpoints are mounted. Defaults to
	// "/api/auth".
	BasePath string

	// HTTPClient makes the requests. When nil a client with a fresh cookie
	// jar and a 15 second timeout is used. A supplied client should carry a
	// cookie jar, or every check will look signed out.
	HTTPClient *http.Client

	// Bus, when set, connects this watcher to others sharing the session.
	// The watcher refetches on foreign messages and announces its own
	// changes.
	Bus broadcast.Bus

	// PollInterval is how often Run revalidates on its own. Zero disables
	// polling; broadcast notices and explicit calls still revalidate.
	PollInterval time.Duration

	// Origin identifies this watcher on the bus. Defaults to a random ID.
	Origin string
}

// Watcher tracks the session state for one execution context.
//
// The state starts at StatusLoading and moves only on definitive server
// answers: a session document makes it StatusAuthenticated, an explicit
// empty answer makes it StatusUnauthenticated. A failed check changes
// nothing; the cached state stays until a later check gets through.
//
// When concurrent revalidations race, only the newest one started may apply
// its answer. If an applied answer names a different user than the current
// state, the watcher publishes an intervening StatusLoading state so no
// subscriber ever sees one user replaced by another directly.
type Watcher struct {
	baseURL    string
	basePath   string
	httpClient *http.Client
	bus        broadcast.Bus
	interval   time.Duration
	origin     string
	busStop    func()

	mu      sync.Mutex
	state   State
	gen     uint64
	applied uint64
	subs    map[int]chan State
	nextSub int
}

func NewWatcher(opts Options) (*Watcher, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute, got %q", opts.BaseURL)
	}

	basePath := opts.BasePath
	if basePath == "" {
		basePath = "/api/auth"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("error creating cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar, Timeout: 15 * time.Second}
	}

	origin := opts.Origin
	if origin == "" {
		origin = uuid.NewString()
	}

	w := &Watcher{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		basePath:   strings.TrimSuffix(basePath, "/"),
		httpClient: httpClient,
		bus:        opts.Bus,
		interval:   opts.PollInterval,
		origin:     origin,
		state:      State{Status: sessionkit.StatusLoading},
		subs:       make(map[int]chan State),
	}
	if w.bus != nil {
		w.busStop = w.bus.Subscribe(w.onBusMessage)
	}
	return w, nil
}

// Origin returns this watcher's identity on the broadcast bus.
func (w *Watcher) Origin() string {
	return w.origin
}

// Run revalidates once, then keeps the state fresh until ctx is done. With
// a zero PollInterval it only waits for cancellation; broadcast notices and
// explicit Revalidate calls still apply.
func (w *Watcher) Run(ctx context.Context) error {
	w.revalidate(ctx, triggerStart)

	if w.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.revalidate(ctx, triggerPoll)
		}
	}
}

// Close detaches the watcher from the broadcast bus. Subscriptions are
// released by their own cancel functions.
func (w *Watcher) Close() {
	if w.busStop != nil {
		w.busStop()
		w.busStop = nil
	}
}

// Snapshot returns the current state.
func (w *Watcher) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Subscribe returns a channel of state changes, seeded with the current
// state. The channel is buffered; a subscriber that falls far behind loses
// oldest entries first but always receives the latest state eventually.
// cancel closes the channel and releases the subscription.
func (w *Watcher) Subscribe() (states <-chan State, cancel func()) {
	ch := make(chan State, 16)

	w.mu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = ch
	ch <- w.state
	w.mu.Unlock()

	return ch, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if _, ok := w.subs[id]; ok {
			delete(w.subs, id)
			close(ch)
		}
	}
}

// Revalidate fetches the session now and applies the answer, unless a newer
// revalidation has answered in the meantime.
func (w *Watcher) Revalidate(ctx context.Context) {
	w.revalidate(ctx, triggerManual)
}

func (w *Watcher) revalidate(ctx context.Context, trig string) {
	w.mu.Lock()
	w.gen++
	gen := w.gen
	w.mu.Unlock()

	sess, err := w.fetchSession(ctx)

	w.mu.Lock()
	if gen <= w.applied {
		// A newer revalidation already answered.
		w.mu.Unlock()
		return
	}
	if err != nil {
		// Not an answer: keep what we have and let the next trigger retry.
		w.mu.Unlock()
		slog.Debug("session revalidation failed", "trigger", trig, "err", err)
		return
	}
	w.applied = gen

	next := State{Status: sessionkit.StatusUnauthenticated}
	if sess != nil {
		next = State{Status: sessionkit.StatusAuthenticated, Session: sess}
	}

	prev := w.state
	if prev.Status == sessionkit.StatusAuthenticated && next.Status == sessionkit.StatusAuthenticated &&
		prev.Session.User.ID != next.Session.User.ID {
		// Never swap one user for another in a single step.
		w.publishLocked(State{Status: sessionkit.StatusLoading})
	}

	changed := meaningfulChange(prev, next)
	if changed {
		w.publishLocked(next)
	} else {
		// Refresh expiry and such without waking subscribers.
		w.state = next
	}
	w.mu.Unlock()

	if changed && trig != triggerBus && w.bus != nil {
		event := broadcast.EventSessionUpdated
		if prev.Status == sessionkit.StatusAuthenticated && next.Status == sessionkit.StatusUnauthenticated {
			event = broadcast.EventSignedOut
		}
		w.bus.Publish(broadcast.Message{Event: event, Origin: w.origin})
	}
}

// meaningfulChange ignores expiry-only movement: sliding sessions extend on
// every check and rebroadcasting that would ping-pong between watchers.
func meaningfulChange(prev, next State) bool {
	if prev.Status != next.Status {
		return true
	}
	prevUser, nextUser := sessionkit.User{}, sessionkit.User{}
	if prev.Session != nil {
		prevUser = prev.Session.User
	}
	if next.Session != nil {
		nextUser = next.Session.User
	}
	return prevUser != nextUser
}

// publishLocked replaces the state and fans it out. Caller holds w.mu.
func (w *Watcher) publishLocked(st State) {
	w.state = st
	for _, ch := range w.subs {
		for {
			select {
			case ch <- st:
			default:
				// Full: drop the oldest entry and retry.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

func (w *Watcher) onBusMessage(msg broadcast.Message) {
	if msg.Origin == w.origin {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), busRevalidateTimeout)
	defer cancel()
	w.revalidate(ctx, triggerBus)
}

// fetchSession asks the server who is signed in. A nil session with a nil
// error is the definitive "nobody"; an error means the question went
// unanswered.
func (w *Watcher) fetchSession(ctx context.Context) (*sessionkit.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint("/session"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, nil
	default:
		return nil, fmt.Errorf("session endpoint answered %d", resp.StatusCode)
	}

	var sess sessionkit.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("invalid session payload: %w", err)
	}
	if !sess.Valid() {
		return nil, nil
	}
	return &sess, nil
}

func (w *Watcher) endpoint(path string) string {
	return w.baseURL + w.basePath + path
}
