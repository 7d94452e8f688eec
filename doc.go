// Package sessionkit keeps a server-issued session and every client holding
// it in agreement about who, if anyone, is signed in.
//
// The server side mounts a small set of JSON endpoints (session lookup,
// OAuth and password sign-in, sign-out, CSRF and provider discovery) and
// issues sessions backed by a server store plus a signed token cookie for
// non-browser callers. The client side watches those endpoints and exposes a
// single session state that moves between unauthenticated, loading and
// authenticated, converging across tabs and processes when any of them signs
// out.
//
// # Architecture
//
// User: an account, identified by ID, with the profile fields sessions carry.
//
// Account: one way a user signs in. OAuth accounts store the provider's
// stable subject; the credentials account stores a bcrypt password hash.
//
// Session: the answer to "who is signed in right now", a user plus an expiry.
// A request resolves to at most one session.
//
// # Server Usage
//
// Configuration comes from the environment; the session secret has no
// default and startup fails without one:
//
//	cfg, err := sessionkit.FromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store, err := fs.NewStore("/path/to/storage")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	svc, err := sessionkit.New(cfg, store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	mux := http.NewServeMux()
//	svc.Mount(mux, "/api/auth")
//	mux.Handle("/api/profile", svc.RequireSession(profileHandler))
//
// Handlers behind RequireSession read the signed-in user from the request
// context with SessionFromContext. Anonymous requests are answered with a
// 401 telling the caller to sign in; they never reach the handler.
//
// # Client Usage
//
// A Watcher polls the session endpoint and republishes it as a single
// state value:
//
//	w, err := client.NewWatcher(client.Options{BaseURL: "https://yourapp.com"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go w.Run(ctx)
//
//	states, cancel := w.Subscribe()
//	defer cancel()
//	for st := range states {
//	    // st.Status is Unauthenticated, Loading or Authenticated
//	}
//
// Watchers sharing a broadcast.Bus converge: when one signs out, the others
// refetch and drop to unauthenticated without a restart.
//
// # Store Implementations
//
// The stores/fs package keeps users and accounts as JSON files, suitable for
// development and small deployments. stores/gorm and stores/gcloud back the
// same interfaces with a relational database and Google Cloud Datastore.
//
// # Security
//
// Passwords are hashed with bcrypt at default cost. Session tokens are HS256
// JWTs signed with the configured secret. State-changing endpoints require a
// double-submit CSRF token. OAuth flows are protected by a single-use state
// nonce.
package sessionkit
