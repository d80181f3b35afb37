package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNoCredential signals that a channel holds no stored credential.
	ErrNoCredential = errors.New("session: no stored credential")
	// ErrCorruptCredential signals an undecodable stored credential.
	ErrCorruptCredential = errors.New("session: corrupt stored credential")
	// ErrChannelUnbound signals an HTTP cookie channel used outside a
	// request scope.
	ErrChannelUnbound = errors.New("session: cookie channel not bound to a request")
)

// Channel is one storage location for the serialized credential. Channels
// only move bytes; serialization and reconciliation belong to
// CredentialStore.
type Channel interface {
	Save(ctx context.Context, data []byte) error
	Load(ctx context.Context) ([]byte, error)
	Clear(ctx context.Context) error
}

// CredentialKeyPrefix namespaces credential keys in Redis. Maintenance
// sweeps match on it.
const CredentialKeyPrefix = "credential:"

// RedisChannel stores the credential under a single key in Redis. It is the
// durable keyed-store channel of the credential store.
type RedisChannel struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisChannel builds a channel scoped to one client session.
func NewRedisChannel(client *redis.Client, scope string, ttl time.Duration) *RedisChannel {
	return &RedisChannel{client: client, key: CredentialKeyPrefix + scope, ttl: ttl}
}

// Save writes the serialized credential with the channel TTL.
func (c *RedisChannel) Save(ctx context.Context, data []byte) error {
	return c.client.Set(ctx, c.key, data, c.ttl).Err()
}

// Load returns the stored credential or ErrNoCredential.
func (c *RedisChannel) Load(ctx context.Context) ([]byte, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoCredential
		}
		return nil, err
	}
	return data, nil
}

// Clear deletes the key. Deleting an absent key is not an error.
func (c *RedisChannel) Clear(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}

var _ Channel = (*RedisChannel)(nil)

// JarChannel stores the credential as a cookie in an http.CookieJar,
// the stand-in for a browser cookie jar when the engine runs inside a
// client shell.
type JarChannel struct {
	jar    http.CookieJar
	origin *url.URL
	name   string
	ttl    time.Duration
}

// NewJarChannel builds a cookie-jar channel for the given origin.
func NewJarChannel(jar http.CookieJar, origin *url.URL, name string, ttl time.Duration) *JarChannel {
	return &JarChannel{jar: jar, origin: origin, name: name, ttl: ttl}
}

// Save writes the credential cookie.
func (c *JarChannel) Save(_ context.Context, data []byte) error {
	c.jar.SetCookies(c.origin, []*http.Cookie{{
		Name:    c.name,
		Value:   base64.RawURLEncoding.EncodeToString(data),
		Path:    "/",
		Expires: time.Now().Add(c.ttl),
	}})
	return nil
}

// Load returns the credential cookie value or ErrNoCredential.
func (c *JarChannel) Load(context.Context) ([]byte, error) {
	for _, cookie := range c.jar.Cookies(c.origin) {
		if cookie.Name != c.name {
			continue
		}
		data, err := base64.RawURLEncoding.DecodeString(cookie.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptCredential, err)
		}
		return data, nil
	}
	return nil, ErrNoCredential
}

// Clear expires the credential cookie.
func (c *JarChannel) Clear(context.Context) error {
	c.jar.SetCookies(c.origin, []*http.Cookie{{
		Name:    c.name,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(1, 0),
	}})
	return nil
}

var _ Channel = (*JarChannel)(nil)

// HTTPCookieChannel is the server-side cookie channel. The session
// middleware binds it to the live request/response pair for the duration of
// a request; outside a binding, loads report absence and writes report
// ErrChannelUnbound, which the credential store treats as best-effort.
type HTTPCookieChannel struct {
	mu     sync.Mutex
	name   string
	ttl    time.Duration
	secure bool
	w      http.ResponseWriter
	r      *http.Request
}

// NewHTTPCookieChannel builds an unbound cookie channel.
func NewHTTPCookieChannel(name string, ttl time.Duration, secure bool) *HTTPCookieChannel {
	return &HTTPCookieChannel{name: name, ttl: ttl, secure: secure}
}

// Bind attaches the channel to the current request scope.
func (c *HTTPCookieChannel) Bind(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w = w
	c.r = r
}

// Release detaches the channel at the end of the request.
func (c *HTTPCookieChannel) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w = nil
	c.r = nil
}

// Save sets the credential cookie on the bound response.
func (c *HTTPCookieChannel) Save(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return ErrChannelUnbound
	}
	http.SetCookie(c.w, &http.Cookie{
		Name:     c.name,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(c.ttl),
	})
	return nil
}

// Load reads the credential cookie from the bound request.
func (c *HTTPCookieChannel) Load(context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return nil, ErrNoCredential
	}
	cookie, err := c.r.Cookie(c.name)
	if err != nil {
		return nil, ErrNoCredential
	}
	data, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCredential, err)
	}
	return data, nil
}

// Clear expires the credential cookie on the bound response.
func (c *HTTPCookieChannel) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return nil
	}
	http.SetCookie(c.w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

var _ Channel = (*HTTPCookieChannel)(nil)
