package session

import (
	"context"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/garrison-hq/garrison/internal/rbac"
)

type memoryChannel struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func (c *memoryChannel) Save(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append([]byte(nil), data...)
	c.saves++
	return nil
}

func (c *memoryChannel) Load(context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		return nil, ErrNoCredential
	}
	return append([]byte(nil), c.data...), nil
}

func (c *memoryChannel) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
	return nil
}

func (c *memoryChannel) set(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append([]byte(nil), data...)
}

func (c *memoryChannel) empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data == nil
}

func testIdentity() *Identity {
	return &Identity{
		ID:          "u-100",
		DisplayName: "Dana Avci",
		Email:       "dana@garrison.test",
		Role:        rbac.RoleStaff,
		Company:     "2nd Company",
		Rank:        "Sergeant",
		Status:      "active",
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	primary := &memoryChannel{}
	fallback := &memoryChannel{}
	store := NewCredentialStore(primary, fallback, nil)
	ctx := context.Background()

	want := testIdentity()
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestStoreFallbackBackfillsPrimary(t *testing.T) {
	primary := &memoryChannel{}
	fallback := &memoryChannel{}
	store := NewCredentialStore(primary, fallback, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testIdentity()))

	// Simulate the keyed store losing its copy.
	require.NoError(t, primary.Clear(ctx))
	require.True(t, primary.empty())

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)

	// Reconciliation: both channels hold the credential again.
	require.False(t, primary.empty())
	require.False(t, fallback.empty())
}

func TestStoreCorruptDataTreatedAsAbsent(t *testing.T) {
	primary := &memoryChannel{}
	fallback := &memoryChannel{}
	store := NewCredentialStore(primary, fallback, nil)
	ctx := context.Background()

	primary.set([]byte("{not json"))
	fallback.set([]byte("also not json"))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreUnknownRoleTreatedAsAbsent(t *testing.T) {
	primary := &memoryChannel{}
	store := NewCredentialStore(primary, &memoryChannel{}, nil)
	ctx := context.Background()

	primary.set([]byte(`{"id":"u-1","role":"INTERN"}`))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreClearIdempotent(t *testing.T) {
	primary := &memoryChannel{}
	fallback := &memoryChannel{}
	store := NewCredentialStore(primary, fallback, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testIdentity()))
	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisAndJarChannels(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	origin, err := url.Parse("https://garrison.test/")
	require.NoError(t, err)

	primary := NewRedisChannel(client, "sid-1", time.Hour)
	fallback := NewJarChannel(jar, origin, "garrison_identity", time.Hour)
	store := NewCredentialStore(primary, fallback, nil)
	ctx := context.Background()

	want := testIdentity()
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)

	// Keyed store flushed (restart): the cookie jar recovers the session
	// and the keyed channel is rewritten.
	mr.FlushAll()
	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.True(t, mr.Exists("credential:sid-1"))

	require.NoError(t, store.Clear(ctx))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisChannelCorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, mr.Set("credential:sid-9", "%%%garbage%%%"))

	store := NewCredentialStore(
		NewRedisChannel(client, "sid-9", time.Hour),
		&memoryChannel{},
		nil,
	)
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, got)
}
