package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kombuchalyzer/kbclient/pkg/kbsdk"
)

// ErrNoChallenge is returned by CompleteTOTP when no TOTP challenge is
// pending, e.g. after a cancel or a completed login.
var ErrNoChallenge = errors.New("no TOTP challenge pending")

// State is the login lifecycle state.
type State int

const (
	// StateUnknown is the initial state before the first session probe
	// resolves. Consumers treat it as "loading".
	StateUnknown State = iota

	// StateAnonymous means no valid session exists.
	StateAnonymous

	// StateTotpPending is a login-flow sub-state layered on Anonymous: the
	// primary factor was accepted and a TOTP code is awaited. It carries
	// the intermediate token and only ever lives in memory.
	StateTotpPending

	// StateAuthenticated means the session cookie is valid and the current
	// user is cached.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateTotpPending:
		return "totp_pending"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Snapshot is a pure projection of the current state: computable with no
// network access, safe to evaluate on every navigation.
type Snapshot struct {
	State State
	User  *kbsdk.User
}

func (s Snapshot) IsLoading() bool       { return s.State == StateUnknown }
func (s Snapshot) IsAuthenticated() bool { return s.State == StateAuthenticated }
func (s Snapshot) IsAdmin() bool         { return s.State == StateAuthenticated && s.User.IsAdmin() }

// AuthAPI is the slice of the service client the manager composes.
type AuthAPI interface {
	UserSource
	Login(ctx context.Context, username, password string) (*kbsdk.TotpChallenge, error)
	CompleteTOTP(ctx context.Context, intermediateToken, code string) error
	Logout(ctx context.Context)
	EnableTOTP(ctx context.Context, code string) error
	DisableTOTP(ctx context.Context, code string) error
}

// Manager owns the login lifecycle. It composes the stateless AuthAPI and
// the Store, and is the only writer of the login state.
type Manager struct {
	api   AuthAPI
	store *Store
	log   *slog.Logger

	mu        sync.Mutex
	state     State
	challenge *kbsdk.TotpChallenge
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger overrides the manager's logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewManager creates a manager in the Unknown state with an empty store.
func NewManager(api AuthAPI, opts ...Option) *Manager {
	m := &Manager{
		api:   api,
		store: NewStore(api),
		log:   slog.Default(),
		state: StateUnknown,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store exposes the session store for consumers that only need the cached
// user, such as the admin roster's self-delete guard.
func (m *Manager) Store() *Store {
	return m.store
}

// CurrentUser returns the cached user without touching the network.
func (m *Manager) CurrentUser() *kbsdk.User {
	user, _ := m.store.Read()
	return user
}

// Snapshot returns the derived flags for the current state. No network.
func (m *Manager) Snapshot() Snapshot {
	user, _ := m.store.Read()
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, User: user}
}

// RefreshAuth re-probes the session and settles the state accordingly. It
// is idempotent and safe to call at any time; it never fails, a failed
// probe degrades to Anonymous. Concurrent calls coalesce to a single probe
// (see Store.Refresh).
func (m *Manager) RefreshAuth(ctx context.Context) Snapshot {
	user := m.store.Refresh(ctx)

	m.mu.Lock()
	m.resolveLocked(user)
	snap := Snapshot{State: m.state, User: user}
	m.mu.Unlock()
	return snap
}

// Login performs the primary credential exchange.
//
// Three outcomes: an error (credentials rejected; state unchanged), a move
// to TotpPending (the account wants a second factor), or a refresh into
// Authenticated.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	challenge, err := m.api.Login(ctx, username, password)
	if err != nil {
		return err
	}

	if challenge != nil {
		m.mu.Lock()
		m.challenge = challenge
		m.state = StateTotpPending
		m.mu.Unlock()
		m.log.Debug("login requires totp completion")
		return nil
	}

	m.refresh(ctx)
	return nil
}

// CompleteTOTP finishes a pending two-factor login. On success the
// challenge is discarded (the intermediate token is single-use) and the
// session is refreshed. On a rejected code the challenge stays pending so
// the user can retry with a fresh code.
func (m *Manager) CompleteTOTP(ctx context.Context, code string) error {
	m.mu.Lock()
	challenge := m.challenge
	m.mu.Unlock()

	if challenge == nil {
		return ErrNoChallenge
	}

	if err := m.api.CompleteTOTP(ctx, challenge.IntermediateToken, code); err != nil {
		return err
	}

	m.mu.Lock()
	m.challenge = nil
	m.mu.Unlock()

	m.refresh(ctx)
	return nil
}

// CancelTOTP abandons a pending two-factor login, discarding the
// intermediate token. A network call already sent is not chased; an
// authenticated response landing after the cancel is simply never acted on.
func (m *Manager) CancelTOTP() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challenge = nil
	if m.state == StateTotpPending {
		m.state = StateAnonymous
	}
}

// Logout tears the session down. The local clear is synchronous, so the
// caller observes IsAuthenticated == false before the remote call is even
// attempted; the remote notification is best-effort. The store's
// generation bump guarantees a refresh racing with the logout cannot
// resurrect the stale session.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.challenge = nil
	m.state = StateAnonymous
	m.mu.Unlock()
	m.store.Set(nil)

	m.api.Logout(ctx)
	m.log.Debug("logged out")
}

// EnableTOTP turns on two-factor login for the authenticated user and
// refreshes the cached user, whose totp_enabled flag changed.
func (m *Manager) EnableTOTP(ctx context.Context, code string) error {
	if err := m.api.EnableTOTP(ctx, code); err != nil {
		return err
	}
	m.refresh(ctx)
	return nil
}

// DisableTOTP turns off two-factor login and refreshes the cached user.
func (m *Manager) DisableTOTP(ctx context.Context, code string) error {
	if err := m.api.DisableTOTP(ctx, code); err != nil {
		return err
	}
	m.refresh(ctx)
	return nil
}

func (m *Manager) refresh(ctx context.Context) {
	user := m.store.Refresh(ctx)
	m.mu.Lock()
	m.resolveLocked(user)
	m.mu.Unlock()
}

// resolveLocked settles the state from a probed user. A pending TOTP
// challenge survives an anonymous probe: the probe merely confirms the
// session is not authenticated yet.
func (m *Manager) resolveLocked(user *kbsdk.User) {
	switch {
	case user != nil:
		m.state = StateAuthenticated
		m.challenge = nil
	case m.challenge != nil:
		m.state = StateTotpPending
	default:
		m.state = StateAnonymous
	}
}
