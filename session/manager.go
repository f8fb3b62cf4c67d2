// Package session owns the authenticated-user lifecycle: rehydration
// from storage at startup, login, registration, password reset flows,
// logout, and post-login role routing. The current session is exposed
// as an explicit observable handle passed through construction, not an
// ambient global.
package session

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	clienterrors "github.com/voluntree/client-go/internal/errors"
	"github.com/voluntree/client-go/users"
)

// State is the manager's lifecycle phase.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateAuthenticated State = "authenticated"
	StateAnonymous     State = "anonymous"
	StateLoggingOut    State = "loggingOut"
)

// Snapshot is an immutable view of the session handed to subscribers.
type Snapshot struct {
	State   State
	User    *users.User
	Loading bool
}

// Manager drives the session state machine. All mutations of the
// persisted token and cached user flow through its CredentialStore.
type Manager struct {
	api    AuthAPI
	creds  *CredentialStore
	nav    Navigator
	logger zerolog.Logger

	// strictInit forces anonymous when a cached user exists without a
	// token instead of trusting the cache optimistically.
	strictInit    bool
	logoutTimeout time.Duration

	mu           sync.Mutex
	state        State
	user         *users.User
	loading      bool
	listeners    map[int]func(Snapshot)
	nextListener int
	// detached logout notifications, awaited by Close in tests
	background sync.WaitGroup
}

// Option modifies a Manager instance.
type Option func(*Manager)

// WithStrictInit makes initialization treat a cached user without a
// token as anonymous instead of trusting the cache.
func WithStrictInit() Option {
	return func(m *Manager) {
		m.strictInit = true
	}
}

// WithLogoutTimeout bounds the fire-and-forget remote logout call.
func WithLogoutTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.logoutTimeout = d
	}
}

// NewManager creates the session manager.
func NewManager(api AuthAPI, creds *CredentialStore, nav Navigator, options ...Option) (*Manager, error) {
	if api == nil {
		return nil, pkgerrors.New("[NewManager] auth API is required")
	}
	if creds == nil {
		return nil, pkgerrors.New("[NewManager] credential store is required")
	}
	if nav == nil {
		return nil, pkgerrors.New("[NewManager] navigator is required")
	}

	m := &Manager{
		api:           api,
		creds:         creds,
		nav:           nav,
		logger:        log.With().Str("component", "session").Logger(),
		logoutTimeout: 5 * time.Second,
		state:         StateUninitialized,
		loading:       true,
		listeners:     make(map[int]func(Snapshot)),
	}
	for _, opt := range options {
		opt(m)
	}

	// Forced expiry from the transport must be reflected in memory.
	creds.onExpireHook(func() {
		m.setState(StateAnonymous, nil)
	})
	return m, nil
}

// Current returns the session as seen right now.
func (m *Manager) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Loading reports whether initialization is still in flight. Consumers
// must not read session state until this is false.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Subscribe registers a listener invoked on every state change. The
// returned function cancels the subscription.
func (m *Manager) Subscribe(listener func(Snapshot)) func() {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = listener
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Initialize rehydrates the session from storage at application start.
// A stored token is validated with a current-user fetch; a fetch
// failure clears everything and settles into anonymous. A cached user
// without a token is trusted optimistically (weak consistency: a
// server-side expiry is only detected when the next authenticated
// request fails) unless strictInit is set. Failures are swallowed:
// startup degrades to anonymous rather than blocking.
func (m *Manager) Initialize(ctx context.Context) {
	m.mu.Lock()
	m.state = StateInitializing
	m.loading = true
	m.mu.Unlock()

	// Loading must clear regardless of outcome, including panics in
	// the fetch path.
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Msg("initialize panicked, degrading to anonymous")
			m.creds.Clear()
			m.setState(StateAnonymous, nil)
		}
		m.mu.Lock()
		m.loading = false
		snapshot := m.snapshotLocked()
		listeners := m.listenersLocked()
		m.mu.Unlock()
		for _, l := range listeners {
			l(snapshot)
		}
	}()

	token := m.creds.TokenRecord()
	cached := m.creds.User()

	switch {
	case token != nil:
		user, err := m.api.Me(ctx)
		if err != nil {
			m.logger.Warn().Err(err).Msg("stored token rejected, clearing session")
			m.creds.Clear()
			m.setState(StateAnonymous, nil)
			return
		}
		m.creds.SaveUser(user)
		m.setState(StateAuthenticated, user)

	case cached != nil && !m.strictInit:
		m.logger.Warn().Str("username", cached.Username).
			Msg("cached user without token, trusting cache until a request fails")
		m.setState(StateAuthenticated, cached)

	case cached != nil:
		m.creds.Clear()
		m.setState(StateAnonymous, nil)

	default:
		m.setState(StateAnonymous, nil)
	}
}

// Login authenticates and, on success, persists the token, fetches and
// persists the profile, and routes to the role's dashboard. A failed
// profile fetch after a successful login call clears the half-written
// token and surfaces the error.
func (m *Manager) Login(ctx context.Context, identifier, secret string) error {
	token, err := m.api.Login(ctx, identifier, secret)
	if err != nil {
		return clienterrors.Wrapf(err, "login")
	}
	m.creds.SaveToken(token)

	user, err := m.api.Me(ctx)
	if err != nil {
		m.creds.Clear()
		return clienterrors.Wrapf(err, "fetch profile after login")
	}
	m.creds.SaveUser(user)
	m.setState(StateAuthenticated, user)

	m.logger.Info().Str("username", user.Username).Str("role", string(user.Role)).Msg("logged in")
	m.nav.NavigateTo(HomeRoute(string(user.Role)))
	return nil
}

// Register creates an account and sends the user to the login page
// with a just-registered indicator. No session is established.
func (m *Manager) Register(ctx context.Context, reg users.Registration) error {
	if err := m.api.Register(ctx, reg); err != nil {
		return clienterrors.Wrapf(err, "register")
	}
	m.nav.NavigateTo(RouteRegistered)
	return nil
}

// ForgotPassword starts a password reset. Stateless pass-through.
func (m *Manager) ForgotPassword(ctx context.Context, email string) error {
	if err := m.api.ForgotPassword(ctx, email); err != nil {
		return clienterrors.Wrapf(err, "forgot password")
	}
	return nil
}

// ResetPassword completes a password reset. Stateless pass-through.
func (m *Manager) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if err := m.api.ResetPassword(ctx, resetToken, newPassword); err != nil {
		return clienterrors.Wrapf(err, "reset password")
	}
	return nil
}

// Logout notifies the backend on a detached best-effort task, then
// unconditionally clears local state and returns to the login page.
// The bearer is snapshotted before clearing so the notification still
// authenticates after the local session is gone.
func (m *Manager) Logout(ctx context.Context) {
	m.setState(StateLoggingOut, nil)

	token := m.creds.Token()
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		notifyCtx, cancel := context.WithTimeout(context.Background(), m.logoutTimeout)
		defer cancel()
		if err := m.api.Logout(notifyCtx, token); err != nil {
			m.logger.Warn().Err(err).Msg("remote logout failed, local state cleared anyway")
		}
	}()

	m.creds.Clear()
	m.setState(StateAnonymous, nil)
	m.nav.NavigateTo(RouteLogin)
}

// Close waits for detached background work. Intended for tests and
// orderly shutdown.
func (m *Manager) Close() {
	m.background.Wait()
}

func (m *Manager) setState(state State, user *users.User) {
	m.mu.Lock()
	m.state = state
	m.user = user
	snapshot := m.snapshotLocked()
	listeners := m.listenersLocked()
	m.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	var user *users.User
	if m.user != nil {
		copied := *m.user
		user = &copied
	}
	return Snapshot{State: m.state, User: user, Loading: m.loading}
}

func (m *Manager) listenersLocked() []func(Snapshot) {
	listeners := make([]func(Snapshot), 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	return listeners
}
