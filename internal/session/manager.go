// Package session implements the client-held session engine: credential
// persistence across reloads, the activity-driven expiry timer with its
// warning protocol, and permission queries over the current identity.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/garrison-hq/garrison/internal/rbac"
)

var (
	// ErrNotAuthenticated signals an operation that requires an active
	// session.
	ErrNotAuthenticated = errors.New("session: not authenticated")
	// ErrUnknownRole signals a role outside the closed role set.
	ErrUnknownRole = rbac.ErrUnknownRole
)

// Authenticator is the external authentication collaborator. It returns
// shared.ErrInvalidCredentials for rejected credentials; any other failure
// is surfaced unchanged.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*Identity, error)
}

// Metrics receives session lifecycle events. Implementations must be safe
// for concurrent use; a nil Metrics disables recording.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	SessionExpired()
	SessionExtended()
	SessionWarned()
}

// ManagerConfig collects the dependencies for one session engine instance.
type ManagerConfig struct {
	Authenticator Authenticator
	Store         Store
	Catalog       *rbac.Catalog
	Timer         TimerConfig
	Logger        *slog.Logger
	Metrics       Metrics

	// OnSignOut runs after every logout, voluntary or forced, so the
	// host can navigate to the anonymous entry point.
	OnSignOut func()
}

// Manager owns the single source of truth for the current identity. It
// composes the credential store, the permission catalog, and the session
// timer, and is constructed once per client scope and disposed with Close.
type Manager struct {
	authn     Authenticator
	store     Store
	catalog   *rbac.Catalog
	timer     *Timer
	logger    *slog.Logger
	metrics   Metrics
	onSignOut func()

	mu        sync.Mutex
	identity  *Identity
	simulated rbac.Role
	loading   bool
}

// NewManager wires a session engine. The timer starts Idle; call Restore
// to recover a persisted session, or Login to open a fresh one.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Authenticator == nil {
		return nil, errors.New("session: authenticator required")
	}
	if cfg.Store == nil {
		return nil, errors.New("session: store required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("session: catalog required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		authn:     cfg.Authenticator,
		store:     cfg.Store,
		catalog:   cfg.Catalog,
		logger:    logger,
		metrics:   cfg.Metrics,
		onSignOut: cfg.OnSignOut,
	}
	timer, err := NewTimer(cfg.Timer, m.handleWarning, m.handleExpire)
	if err != nil {
		return nil, err
	}
	m.timer = timer
	return m, nil
}

// Login authenticates against the collaborator. On failure no state
// changes and the error is surfaced to the caller; on success the identity
// is set, persisted with one store write, and the timer goes Active.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	m.setLoading(true)
	defer m.setLoading(false)

	identity, err := m.authn.Authenticate(ctx, email, password)
	if err != nil {
		return err
	}
	if identity == nil || !rbac.IsValid(identity.Role) {
		return ErrUnknownRole
	}

	m.mu.Lock()
	m.identity = identity
	m.simulated = ""
	m.mu.Unlock()

	if err := m.store.Save(ctx, identity); err != nil {
		m.logger.Warn("persist credential", slog.Any("error", err))
	}
	m.timer.Start()
	if m.metrics != nil {
		m.metrics.SessionOpened()
	}
	m.logger.Info("session opened", slog.String("user", identity.ID), slog.String("role", string(identity.Role)))
	return nil
}

// Restore recovers a persisted session at startup. A recovered identity
// triggers exactly one timer Active transition; an absent or corrupt
// credential leaves the engine anonymous without error.
func (m *Manager) Restore(ctx context.Context) error {
	identity, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	if identity == nil {
		return nil
	}

	m.mu.Lock()
	m.identity = identity
	m.simulated = ""
	m.mu.Unlock()

	m.timer.Start()
	if m.metrics != nil {
		m.metrics.SessionOpened()
	}
	m.logger.Info("session restored", slog.String("user", identity.ID))
	return nil
}

// Logout clears the identity, the credential store, and the timer, then
// invokes the sign-out hook. Idempotent: with no active session only the
// hook runs.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	wasActive := m.identity != nil
	m.identity = nil
	m.simulated = ""
	m.mu.Unlock()

	m.timer.Stop()
	_ = m.store.Clear(ctx)
	if wasActive {
		if m.metrics != nil {
			m.metrics.SessionClosed()
		}
		m.logger.Info("session closed")
	}
	if m.onSignOut != nil {
		m.onSignOut()
	}
	return nil
}

// HasRoleAtLeast reports whether the authenticated role carries at least
// the required privilege. Anonymous callers are never privileged.
func (m *Manager) HasRoleAtLeast(required rbac.Role) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return false
	}
	return rbac.AtLeast(m.identity.Role, required)
}

// HasPermission evaluates a permission token against the simulated role
// when one is set, otherwise against the authenticated role. Anonymous
// callers hold no permissions.
func (m *Manager) HasPermission(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return false
	}
	role := m.identity.Role
	if m.simulated != "" {
		role = m.simulated
	}
	return m.catalog.HasPermission(role, token)
}

// SimulateRole sets a transient role override consulted only by
// HasPermission. It never touches the stored identity and is rejected for
// anonymous callers.
func (m *Manager) SimulateRole(role rbac.Role) error {
	if !rbac.IsValid(role) {
		return ErrUnknownRole
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return ErrNotAuthenticated
	}
	m.simulated = role
	return nil
}

// ClearSimulatedRole drops the override.
func (m *Manager) ClearSimulatedRole() {
	m.mu.Lock()
	m.simulated = ""
	m.mu.Unlock()
}

// SimulatedRole returns the active override, empty when none.
func (m *Manager) SimulatedRole() rbac.Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.simulated
}

// ExtendSession reschedules the timer pair from now and clears the warning
// state. Used when the user acknowledges the expiry prompt.
func (m *Manager) ExtendSession() {
	m.timer.Extend()
	if m.metrics != nil && m.IsAuthenticated() {
		m.metrics.SessionExtended()
	}
}

// Touch forwards a user-activity signal to the timer. High-frequency
// signals are throttled there.
func (m *Manager) Touch() {
	m.timer.Touch()
}

// User returns a copy of the current identity, or nil when anonymous.
func (m *Manager) User() *Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return nil
	}
	copied := *m.identity
	return &copied
}

// IsAuthenticated reports whether an identity is active.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity != nil
}

// IsLoading reports whether a login call is in flight.
func (m *Manager) IsLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// SessionExpiring reports whether the timer is in the warning window.
func (m *Manager) SessionExpiring() bool {
	return m.timer.Warning()
}

// ExpiresAt returns the hard-expiry deadline, zero when anonymous.
func (m *Manager) ExpiresAt() time.Time {
	return m.timer.ExpiresAt()
}

// Close cancels outstanding timers without clearing the persisted
// credential; the session survives for the next Restore.
func (m *Manager) Close() {
	m.timer.Stop()
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

func (m *Manager) handleWarning() {
	if m.metrics != nil {
		m.metrics.SessionWarned()
	}
	m.logger.Info("session expiring soon")
}

// handleExpire runs on the expiry timer goroutine and forces a logout
// exactly once per session instance.
func (m *Manager) handleExpire() {
	m.mu.Lock()
	if m.identity == nil {
		m.mu.Unlock()
		return
	}
	m.identity = nil
	m.simulated = ""
	m.mu.Unlock()

	// Evict before the channel wipe: Clear can block on network I/O,
	// and no request may attach the engine during that window.
	if m.onSignOut != nil {
		m.onSignOut()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = m.store.Clear(ctx)

	if m.metrics != nil {
		m.metrics.SessionExpired()
	}
	m.logger.Info("session expired, forcing logout")
}
