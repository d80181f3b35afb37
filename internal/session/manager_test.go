package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garrison-hq/garrison/internal/rbac"
	_ "github.com/garrison-hq/garrison/internal/testing/guard"
)

var errBadCredentials = errors.New("invalid credentials")

type stubAuthenticator struct {
	identity *Identity
}

func (a *stubAuthenticator) Authenticate(_ context.Context, email, password string) (*Identity, error) {
	if a.identity == nil || email != a.identity.Email || password != "correct-horse" {
		return nil, errBadCredentials
	}
	copied := *a.identity
	return &copied, nil
}

type countingStore struct {
	mu       sync.Mutex
	identity *Identity
	saves    int
	clears   int
}

func (s *countingStore) Save(_ context.Context, identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *identity
	s.identity = &copied
	s.saves++
	return nil
}

func (s *countingStore) Load(context.Context) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil, nil
	}
	copied := *s.identity
	return &copied, nil
}

func (s *countingStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
	s.clears++
	return nil
}

func (s *countingStore) stored() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func newTestManager(t *testing.T, store Store, hooks ...func(*ManagerConfig)) *Manager {
	t.Helper()
	cfg := ManagerConfig{
		Authenticator: &stubAuthenticator{identity: testIdentity()},
		Store:         store,
		Catalog:       rbac.DefaultCatalog(),
		Timer:         testTimerConfig(),
	}
	for _, hook := range hooks {
		hook(&cfg)
	}
	m, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestLoginSuccess(t *testing.T) {
	store := &countingStore{}
	m := newTestManager(t, store)
	ctx := context.Background()

	require.False(t, m.IsAuthenticated())
	require.NoError(t, m.Login(ctx, "dana@garrison.test", "correct-horse"))

	require.True(t, m.IsAuthenticated())
	require.Equal(t, testIdentity(), m.User())
	require.False(t, m.ExpiresAt().IsZero())

	// Exactly one store write, and a reload would recover the identity.
	require.Equal(t, 1, store.saves)
	require.Equal(t, testIdentity(), store.stored())
}

func TestLoginFailureLeavesStateUntouched(t *testing.T) {
	store := &countingStore{}
	m := newTestManager(t, store)
	ctx := context.Background()

	err := m.Login(ctx, "dana@garrison.test", "wrong")
	require.ErrorIs(t, err, errBadCredentials)
	require.False(t, m.IsAuthenticated())
	require.Zero(t, store.saves)
}

func TestLoginFailureKeepsExistingSession(t *testing.T) {
	store := &countingStore{}
	m := newTestManager(t, store)
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, "dana@garrison.test", "correct-horse"))
	require.Error(t, m.Login(ctx, "dana@garrison.test", "wrong"))

	require.True(t, m.IsAuthenticated())
	require.NotNil(t, store.stored())
}

func TestStaffPermissionScenario(t *testing.T) {
	m := newTestManager(t, &countingStore{})
	require.NoError(t, m.Login(context.Background(), "dana@garrison.test", "correct-horse"))

	require.True(t, m.HasRoleAtLeast(rbac.RoleReservist))
	require.True(t, m.HasRoleAtLeast(rbac.RoleStaff))
	require.False(t, m.HasRoleAtLeast(rbac.RoleAdmin))

	require.True(t, m.HasPermission(rbac.PermApproveReservistAccounts))
	require.False(t, m.HasPermission(rbac.PermManageSystem))
}

func TestAnonymousHasNothing(t *testing.T) {
	m := newTestManager(t, &countingStore{})

	require.False(t, m.HasRoleAtLeast(rbac.RoleReservist))
	require.False(t, m.HasPermission(rbac.PermViewOwnProfile))
	require.Nil(t, m.User())
	require.False(t, m.SessionExpiring())
}

func TestSimulateRole(t *testing.T) {
	store := &countingStore{}
	m := newTestManager(t, store)
	require.NoError(t, m.Login(context.Background(), "dana@garrison.test", "correct-horse"))

	require.NoError(t, m.SimulateRole(rbac.RoleReservist))

	// Permission queries follow the override.
	require.False(t, m.HasPermission(rbac.PermApproveReservistAccounts))
	require.True(t, m.HasPermission(rbac.PermViewOwnProfile))

	// The authoritative identity and the stored credential are untouched.
	require.Equal(t, rbac.RoleStaff, m.User().Role)
	require.Equal(t, rbac.RoleStaff, store.stored().Role)

	// Coarse hierarchy checks keep using the real role.
	require.True(t, m.HasRoleAtLeast(rbac.RoleStaff))

	m.ClearSimulatedRole()
	require.True(t, m.HasPermission(rbac.PermApproveReservistAccounts))
}

func TestSimulateRoleRejectedWhenAnonymous(t *testing.T) {
	m := newTestManager(t, &countingStore{})
	require.ErrorIs(t, m.SimulateRole(rbac.RoleReservist), ErrNotAuthenticated)
}

func TestSimulateRoleRejectsUnknownRole(t *testing.T) {
	m := newTestManager(t, &countingStore{})
	require.NoError(t, m.Login(context.Background(), "dana@garrison.test", "correct-horse"))
	require.ErrorIs(t, m.SimulateRole(rbac.Role("INTERN")), ErrUnknownRole)
}

func TestLogout(t *testing.T) {
	store := &countingStore{}
	var signOuts atomic.Int32
	m := newTestManager(t, store, func(cfg *ManagerConfig) {
		cfg.OnSignOut = func() { signOuts.Add(1) }
	})
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, "dana@garrison.test", "correct-horse"))
	require.NoError(t, m.Logout(ctx))

	require.False(t, m.IsAuthenticated())
	require.Nil(t, store.stored())
	require.Equal(t, 1, store.clears)
	require.EqualValues(t, 1, signOuts.Load())

	// Idempotent: a second logout only navigates.
	require.NoError(t, m.Logout(ctx))
	require.EqualValues(t, 2, signOuts.Load())
}

func TestUnattendedExpiryForcesLogoutOnce(t *testing.T) {
	store := &countingStore{}
	var signOuts atomic.Int32
	m := newTestManager(t, store, func(cfg *ManagerConfig) {
		cfg.OnSignOut = func() { signOuts.Add(1) }
	})

	require.NoError(t, m.Login(context.Background(), "dana@garrison.test", "correct-horse"))

	// No activity, no extension: past the 250ms TTL the session is gone.
	time.Sleep(400 * time.Millisecond)
	require.False(t, m.IsAuthenticated())
	require.Nil(t, store.stored())
	require.EqualValues(t, 1, signOuts.Load())

	time.Sleep(300 * time.Millisecond)
	require.EqualValues(t, 1, signOuts.Load())
}

func TestExtendSessionClearsWarning(t *testing.T) {
	m := newTestManager(t, &countingStore{})
	require.NoError(t, m.Login(context.Background(), "dana@garrison.test", "correct-horse"))

	time.Sleep(200 * time.Millisecond)
	require.True(t, m.SessionExpiring())

	before := time.Now()
	m.ExtendSession()
	require.False(t, m.SessionExpiring())
	require.WithinDuration(t, before.Add(testTimerConfig().TTL), m.ExpiresAt(), 50*time.Millisecond)
}

func TestActivityKeepsSessionAlive(t *testing.T) {
	m := newTestManager(t, &countingStore{})
	require.NoError(t, m.Login(context.Background(), "dana@garrison.test", "correct-horse"))

	for i := 0; i < 4; i++ {
		time.Sleep(100 * time.Millisecond)
		m.Touch()
	}
	require.True(t, m.IsAuthenticated())
}

func TestRestore(t *testing.T) {
	store := &countingStore{}
	require.NoError(t, store.Save(context.Background(), testIdentity()))

	m := newTestManager(t, store)
	require.NoError(t, m.Restore(context.Background()))

	require.True(t, m.IsAuthenticated())
	require.Equal(t, testIdentity(), m.User())
	require.False(t, m.ExpiresAt().IsZero())
}

func TestRestoreEmptyStoreStaysAnonymous(t *testing.T) {
	m := newTestManager(t, &countingStore{})
	require.NoError(t, m.Restore(context.Background()))
	require.False(t, m.IsAuthenticated())
	require.True(t, m.ExpiresAt().IsZero())
}

func TestRestoreCorruptStoreStaysAnonymous(t *testing.T) {
	// Full stack: corrupted serialized identity in both real channels.
	primary := &memoryChannel{}
	fallback := &memoryChannel{}
	primary.set([]byte("garbage"))
	fallback.set([]byte("{{{"))
	store := NewCredentialStore(primary, fallback, nil)

	cfg := ManagerConfig{
		Authenticator: &stubAuthenticator{},
		Store:         store,
		Catalog:       rbac.DefaultCatalog(),
		Timer:         testTimerConfig(),
	}
	m, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	require.NoError(t, m.Restore(context.Background()))
	require.False(t, m.IsAuthenticated())
}
