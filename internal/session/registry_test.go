package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/garrison-hq/garrison/internal/rbac"
)

func newRegistryFactory(stores map[string]Store) ManagerFactory {
	return func(sid string) (*Manager, error) {
		store, ok := stores[sid]
		if !ok {
			store = &countingStore{}
			stores[sid] = store
		}
		return NewManager(ManagerConfig{
			Authenticator: &stubAuthenticator{identity: testIdentity()},
			Store:         store,
			Catalog:       rbac.DefaultCatalog(),
			Timer:         testTimerConfig(),
		})
	}
}

func TestRegistryAttachRestoresPersistedSession(t *testing.T) {
	stores := map[string]Store{}
	store := &countingStore{}
	require.NoError(t, store.Save(context.Background(), testIdentity()))
	stores["sid-1"] = store

	registry := NewRegistry(newRegistryFactory(stores), nil)
	t.Cleanup(registry.Close)

	m, err := registry.Attach(context.Background(), "sid-1")
	require.NoError(t, err)
	require.NotNil(t, m)
	require.True(t, m.IsAuthenticated())
	require.Equal(t, 1, registry.Len())

	// Second attach reuses the cached engine.
	again, err := registry.Attach(context.Background(), "sid-1")
	require.NoError(t, err)
	require.Same(t, m, again)
}

func TestRegistryAttachUnknownSessionStaysAnonymous(t *testing.T) {
	registry := NewRegistry(newRegistryFactory(map[string]Store{}), nil)
	t.Cleanup(registry.Close)

	m, err := registry.Attach(context.Background(), "sid-ghost")
	require.NoError(t, err)
	require.Nil(t, m)
	require.Zero(t, registry.Len())
}

func TestRegistryRemove(t *testing.T) {
	stores := map[string]Store{}
	registry := NewRegistry(newRegistryFactory(stores), nil)
	t.Cleanup(registry.Close)

	m, err := registry.Create("sid-2")
	require.NoError(t, err)
	require.NoError(t, m.Login(context.Background(), "dana@garrison.test", "correct-horse"))

	registry.Remove("sid-2")
	require.Zero(t, registry.Len())

	// Safe for unknown IDs.
	registry.Remove("sid-2")
}

func TestRegistryCloseRejectsNewEngines(t *testing.T) {
	registry := NewRegistry(newRegistryFactory(map[string]Store{}), nil)
	registry.Close()

	_, err := registry.Create("sid-3")
	require.ErrorIs(t, err, ErrRegistryClosed)
}
