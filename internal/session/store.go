// Package session owns the client's authentication lifecycle: the
// user/loading/error state machine, the persistent user cache, and the
// periodic revalidation timer. Nothing else writes session state; other
// components read snapshots, subscribe, or call the operations here.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"medicore-client/internal/api"
	"medicore-client/internal/bus"
	"medicore-client/internal/model"
)

const (
	// session checks are bounded so a hung backend degrades to anonymous
	// instead of blocking startup
	DefaultFetchTimeout = 5 * time.Second

	// long-lived sessions revalidate on a fixed cadence so expiry is
	// noticed without waiting for a user action to 401
	DefaultRevalidateEvery = 15 * time.Minute

	// floor for expiry-driven revalidation scheduling
	minRevalidateDelay = 30 * time.Second
)

var ErrTooManyAttempts = errors.New("too many login attempts, slow down")

// State is the session snapshot handed to readers. IsAuthenticated is true
// exactly when User is non-nil. Err rides alongside the nearest stable
// state; there is no terminal error state.
type State struct {
	User            *model.User
	IsAuthenticated bool
	Loading         bool
	Err             string
}

type Store struct {
	client *api.Client
	cache  Cache
	bus    *bus.Bus
	log    *zap.Logger

	fetchTimeout time.Duration
	loginLimiter *rate.Limiter

	mu       sync.Mutex
	state    State
	inflight string // token of the newest session check; older results are discarded

	subsMu sync.Mutex
	subs   map[string]func(State)

	stopOnce sync.Once
	started  bool
	stop     chan struct{}
	done     chan struct{}
}

func NewStore(client *api.Client, cache Cache, b *bus.Bus, logger *zap.Logger) *Store {
	s := &Store{
		client:       client,
		cache:        cache,
		bus:          b,
		log:          logger,
		fetchTimeout: DefaultFetchTimeout,
		// bursts of retries are fine, sustained hammering is not
		loginLimiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
		state:        State{Loading: true},
		subs:         make(map[string]func(State)),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	client.SetUnauthorizedHook(s.forceAnonymous)
	return s
}

// Init seeds state from the cache so a previously signed-in user renders
// optimistically while the real session check runs. Cache problems are
// logged and treated as a cold start.
func (s *Store) Init(ctx context.Context) {
	u, err := s.cache.Read(ctx)
	if err != nil {
		s.log.Warn("session cache read failed", zap.Error(err))
		return
	}
	if u == nil {
		return
	}
	s.mu.Lock()
	cp := *u
	s.state = State{User: &cp, IsAuthenticated: true, Loading: false}
	st := s.state
	s.mu.Unlock()
	s.log.Debug("optimistic session seed", zap.String("user", u.ID))
	s.notify(st)
}

// Snapshot returns a copy of the current state. The user record is copied
// by value so readers cannot alias the store's own copy.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if st.User != nil {
		cp := *st.User
		st.User = &cp
	}
	return st
}

// Subscribe registers a state listener and returns a token for Unsubscribe.
// Listeners receive a snapshot after every applied transition.
func (s *Store) Subscribe(fn func(State)) string {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := uuid.New().String()
	s.subs[id] = fn
	return id
}

func (s *Store) Unsubscribe(id string) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	delete(s.subs, id)
}

func (s *Store) notify(st State) {
	s.subsMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// FetchCurrentUser validates the session against the backend, bounded by
// the fetch timeout. Success writes through to the cache; any failure is
// the expected anonymous path and reports no error to the user. If another
// check started after this one, this result is discarded unseen so a slow
// or timed-out call can never overwrite newer state.
func (s *Store) FetchCurrentUser(ctx context.Context) {
	token := uuid.New().String()

	s.mu.Lock()
	s.inflight = token
	// optimistic render: a cached user keeps showing, no loading flicker
	if s.state.User == nil && !s.state.Loading {
		s.state.Loading = true
		st := s.state
		s.mu.Unlock()
		s.notify(st)
	} else {
		s.mu.Unlock()
	}

	cctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	u, err := s.client.Me(cctx)

	s.mu.Lock()
	if s.inflight != token {
		// superseded by a newer check
		s.mu.Unlock()
		return
	}
	s.inflight = ""

	if err != nil {
		s.log.Debug("session check resolved anonymous", zap.Error(err))
		s.applyAnonymousLocked(ctx) // unlocks
		return
	}

	wasAuth := s.state.IsAuthenticated
	cp := *u
	s.state = State{User: &cp, IsAuthenticated: true, Loading: false}
	st := s.state
	s.mu.Unlock()

	if err := s.cache.Write(ctx, u); err != nil {
		s.log.Warn("session cache write failed", zap.Error(err))
	}
	s.notify(st)
	if !wasAuth {
		s.bus.Publish(bus.AuthChanged)
	}
}

// Refetch is the manual-refresh spelling of FetchCurrentUser.
func (s *Store) Refetch(ctx context.Context) {
	s.FetchCurrentUser(ctx)
}

// Login authenticates and then fetches the canonical user record. The two
// calls are strictly sequenced; the login response's own user blob is never
// trusted. On failure the state's user is untouched and the backend's
// message is surfaced via State.Err and the returned error.
func (s *Store) Login(ctx context.Context, creds api.Credentials) error {
	if !s.loginLimiter.Allow() {
		return ErrTooManyAttempts
	}

	s.mu.Lock()
	s.state.Loading = true
	s.state.Err = ""
	st := s.state
	s.mu.Unlock()
	s.notify(st)

	if err := s.client.Login(ctx, creds); err != nil {
		msg := api.UserMessage(err, "login failed")
		s.mu.Lock()
		s.state.Loading = false
		s.state.Err = msg
		st := s.state
		s.mu.Unlock()
		s.notify(st)
		return err
	}

	s.FetchCurrentUser(ctx)

	if st := s.Snapshot(); !st.IsAuthenticated {
		return errors.New("login succeeded but session validation failed")
	}
	return nil
}

// Logout tells the backend best-effort, then unconditionally clears local
// state and cache. Idempotent: when already anonymous nothing changes and
// nothing is broadcast beyond the network attempt.
func (s *Store) Logout(ctx context.Context) {
	if err := s.client.Logout(ctx); err != nil {
		s.log.Warn("logout request failed", zap.Error(err))
	}

	s.mu.Lock()
	s.inflight = "" // a pending session check must not resurrect the session
	s.applyAnonymousLocked(ctx)
}

// forceAnonymous is the 401 hook: some API call observed an expired
// session. Local state drops to anonymous exactly once no matter how many
// calls 401 concurrently; no network call is made since the server session
// is already dead.
func (s *Store) forceAnonymous() {
	s.mu.Lock()
	if !s.state.IsAuthenticated && s.state.User == nil && !s.state.Loading && s.state.Err == "" {
		s.mu.Unlock()
		return
	}
	s.inflight = ""
	s.applyAnonymousLocked(context.Background())
}

// applyAnonymousLocked moves to the anonymous state, clears the cache, and
// broadcasts if authentication actually flipped. Callers hold s.mu; the
// lock is released here.
func (s *Store) applyAnonymousLocked(ctx context.Context) {
	wasAuth := s.state.IsAuthenticated
	changed := wasAuth || s.state.User != nil || s.state.Loading || s.state.Err != ""
	s.state = State{}
	st := s.state
	s.mu.Unlock()

	if err := s.cache.Clear(ctx); err != nil {
		s.log.Warn("session cache clear failed", zap.Error(err))
	}
	if changed {
		s.notify(st)
	}
	if wasAuth {
		s.bus.Publish(bus.AuthChanged)
	}
}

// StartRevalidation runs the background session check loop until Close.
// The next check is pulled earlier when the session cookie's JWT expiry
// lands inside the fixed interval.
func (s *Store) StartRevalidation(every time.Duration) {
	if every <= 0 {
		every = DefaultRevalidateEvery
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	go func() {
		defer close(s.done)
		timer := time.NewTimer(s.nextDelay(every))
		defer timer.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-timer.C:
				s.FetchCurrentUser(context.Background())
				timer.Reset(s.nextDelay(every))
			}
		}
	}()
}

func (s *Store) nextDelay(every time.Duration) time.Duration {
	if exp, ok := s.client.SessionExpiry(); ok {
		// aim a minute ahead of token expiry
		d := time.Until(exp) - time.Minute
		if d < minRevalidateDelay {
			d = minRevalidateDelay
		}
		if d < every {
			return d
		}
	}
	return every
}

// Close tears down the revalidation loop. Safe to call more than once and
// before StartRevalidation.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if started {
			<-s.done
		}
	})
}
