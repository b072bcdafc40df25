package accesscode

import (
	"context"
	"sync"
)

// Snapshot is a read-only projection of the current auth state.
type Snapshot struct {
	User    *ResolvedUser
	Session Session
	Loading bool
}

// Authenticated reports whether a user has been resolved.
func (s Snapshot) Authenticated() bool {
	return s.User != nil
}

// AuthState holds the single shared slot of auth state: the resolved user,
// the session, and the loading flag that lets callers distinguish "don't
// know yet" from "known unauthenticated". It is an explicit object handed to
// whoever needs it; there is no package-level singleton.
type AuthState struct {
	mu      sync.RWMutex
	user    *ResolvedUser
	session Session
	loading bool

	nextSub int
	subs    map[int]func(Snapshot)
}

func NewAuthState() *AuthState {
	return &AuthState{
		loading: true,
		subs:    map[int]func(Snapshot){},
	}
}

// Snapshot returns the current state.
func (s *AuthState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// CurrentUser returns the resolved user, nil when unauthenticated.
func (s *AuthState) CurrentUser() *ResolvedUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// CurrentSession returns the active session, nil when unauthenticated.
func (s *AuthState) CurrentSession() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Loading reports whether the first resolution has yet to complete.
func (s *AuthState) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Subscribe registers a listener for state changes and returns its
// unsubscribe function. Listeners run synchronously on the mutating
// goroutine and receive a snapshot, never the live state.
func (s *AuthState) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *AuthState) snapshotLocked() Snapshot {
	var user *ResolvedUser
	if s.user != nil {
		clone := *s.user
		user = &clone
	}
	return Snapshot{
		User:    user,
		Session: s.session,
		Loading: s.loading,
	}
}

func (s *AuthState) setLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	snapshot, listeners := s.snapshotLocked(), s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, snapshot)
}

func (s *AuthState) setResolved(user *ResolvedUser, session Session) {
	s.mu.Lock()
	s.user = user
	s.session = session
	s.loading = false
	snapshot, listeners := s.snapshotLocked(), s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, snapshot)
}

func (s *AuthState) clear() {
	s.setResolved(nil, nil)
}

// mergeUser applies a partial update to the resolved user in place. Used by
// the profile mutator's optimistic merge; a no-op when unauthenticated.
func (s *AuthState) mergeUser(updates ProfileUpdate) {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return
	}
	updates.ApplyTo(s.user)
	snapshot, listeners := s.snapshotLocked(), s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, snapshot)
}

func (s *AuthState) listenersLocked() []func(Snapshot) {
	listeners := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	return listeners
}

func notify(listeners []func(Snapshot), snapshot Snapshot) {
	for _, fn := range listeners {
		fn(snapshot)
	}
}

// Watcher subscribes to the backend's auth-state stream and keeps AuthState
// in sync: non-nil sessions go through the profile resolver, nil sessions
// clear the slot.
type Watcher struct {
	backend  IdentityBackend
	resolver *ProfileResolver
	state    *AuthState
	logger   Logger

	mu          sync.Mutex
	unsubscribe func()
	resolvedFor string
}

func NewWatcher(backend IdentityBackend, resolver *ProfileResolver, state *AuthState) *Watcher {
	return &Watcher{
		backend:  backend,
		resolver: resolver,
		state:    state,
		logger:   defLogger{},
	}
}

func (w *Watcher) WithLogger(logger Logger) *Watcher {
	w.logger = logger
	return w
}

// Start registers the auth-change listener and runs the eager check for a
// pre-existing session, so a process restart lands authenticated without
// waiting for the next backend event. The eager check and the listener
// dedupe against each other through the resolved identity id.
func (w *Watcher) Start(ctx context.Context) {
	w.state.setLoading(true)

	w.mu.Lock()
	w.unsubscribe = w.backend.OnAuthStateChange(func(event AuthChangeEvent, session Session) {
		w.handleChange(ctx, event, session)
	})
	w.mu.Unlock()

	session, err := w.backend.CurrentSession(ctx)
	if err != nil {
		w.logger.Error("eager session check failed", "error", err)
		w.state.clear()
		return
	}

	if session == nil {
		w.state.clear()
		return
	}

	w.handleChange(ctx, AuthChangeInitialSession, session)
}

// Stop detaches the listener. State is left as-is.
func (w *Watcher) Stop() {
	w.mu.Lock()
	unsubscribe := w.unsubscribe
	w.unsubscribe = nil
	w.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (w *Watcher) handleChange(ctx context.Context, event AuthChangeEvent, session Session) {
	if session == nil || session.GetIdentity() == nil || event == AuthChangeSignedOut {
		w.mu.Lock()
		w.resolvedFor = ""
		w.mu.Unlock()

		w.state.clear()
		return
	}

	identity := session.GetIdentity()

	w.mu.Lock()
	alreadyResolved := w.resolvedFor == identity.ID() && w.state.CurrentUser() != nil
	w.mu.Unlock()

	if alreadyResolved {
		// Same identity, already attached: just refresh the session so
		// token rotation does not re-run resolution.
		w.state.setResolved(w.state.CurrentUser(), session)
		return
	}

	profile, err := w.resolver.Resolve(ctx, identity)
	if err != nil {
		// Fail closed: the UI observes "not authenticated" whether the
		// profile is missing or the lookup errored.
		w.logger.Error("profile resolution failed", "identity_id", identity.ID(), "error", err)
		w.state.clear()
		return
	}

	w.mu.Lock()
	w.resolvedFor = identity.ID()
	w.mu.Unlock()

	w.state.setResolved(profile.Resolved(), session)
}
