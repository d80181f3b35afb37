package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/garrison-hq/garrison/internal/rbac"
)

// WebConfig collects the dependencies for browser-facing session engines.
type WebConfig struct {
	Redis         *redis.Client
	Authenticator Authenticator
	Catalog       *rbac.Catalog
	Timer         TimerConfig
	Logger        *slog.Logger
	Metrics       Metrics

	// SIDCookie names the session-ID cookie; CredentialCookie names the
	// fallback channel cookie holding the serialized identity.
	SIDCookie        string
	CredentialCookie string
	// TTL bounds how long the persisted credential outlives activity.
	TTL    time.Duration
	Secure bool
}

// WebSessions hosts one session engine per browser client. It owns the
// registry, the per-session credential cookie channels, and the session-ID
// cookie plumbing; handlers and middleware go through it instead of the
// registry directly.
type WebSessions struct {
	cfg      WebConfig
	logger   *slog.Logger
	registry *Registry
	restores singleflight.Group

	mu      sync.Mutex
	cookies map[string]*HTTPCookieChannel
}

// NewWebSessions builds the host. Close releases every engine's timers.
func NewWebSessions(cfg WebConfig) (*WebSessions, error) {
	if err := cfg.Timer.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ws := &WebSessions{cfg: cfg, logger: logger, cookies: make(map[string]*HTTPCookieChannel)}
	ws.registry = NewRegistry(ws.newEngine, logger)
	return ws, nil
}

func (ws *WebSessions) newEngine(sid string) (*Manager, error) {
	cookie := NewHTTPCookieChannel(ws.cfg.CredentialCookie, ws.cfg.TTL, ws.cfg.Secure)
	store := NewCredentialStore(
		NewRedisChannel(ws.cfg.Redis, sid, ws.cfg.TTL),
		cookie,
		ws.logger,
	)
	m, err := NewManager(ManagerConfig{
		Authenticator: ws.cfg.Authenticator,
		Store:         store,
		Catalog:       ws.cfg.Catalog,
		Timer:         ws.cfg.Timer,
		Logger:        ws.logger,
		Metrics:       ws.cfg.Metrics,
		OnSignOut:     func() { ws.evict(sid) },
	})
	if err != nil {
		return nil, err
	}
	ws.mu.Lock()
	ws.cookies[sid] = cookie
	ws.mu.Unlock()
	return m, nil
}

// Begin opens a fresh engine for a login attempt. No cookie is written
// until the caller confirms the login with Issue; a failed attempt is
// thrown away with Discard and leaves any previous session's cookies
// untouched.
func (ws *WebSessions) Begin(w http.ResponseWriter, r *http.Request) (*Manager, string, error) {
	sid := uuid.NewString()
	m, err := ws.registry.Create(sid)
	if err != nil {
		return nil, "", err
	}
	ws.bind(sid, w, r)
	return m, sid, nil
}

// Issue writes the session-ID cookie after a successful login.
func (ws *WebSessions) Issue(w http.ResponseWriter, sid string) {
	http.SetCookie(w, ws.sidCookie(sid, ws.cfg.TTL))
}

// Discard drops an engine whose login never succeeded.
func (ws *WebSessions) Discard(sid string) {
	ws.evict(sid)
}

// Attach resolves the request's session engine: a cached engine when one
// is live, otherwise a restore from the credential channels. Anonymous
// requests yield a nil manager.
func (ws *WebSessions) Attach(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Manager, string, error) {
	cookie, err := r.Cookie(ws.cfg.SIDCookie)
	if err != nil || cookie.Value == "" {
		return nil, "", nil
	}
	sid := cookie.Value

	if m, ok := ws.registry.Lookup(sid); ok {
		// A cached engine whose session already expired is mid-teardown;
		// treat the request as anonymous rather than handing it out.
		if !m.IsAuthenticated() {
			ws.evict(sid)
			return nil, "", nil
		}
		ws.bind(sid, w, r)
		return m, sid, nil
	}

	// Concurrent requests for the same sid share one restore.
	v, err, _ := ws.restores.Do(sid, func() (any, error) {
		if m, ok := ws.registry.Lookup(sid); ok {
			return m, nil
		}
		m, err := ws.registry.Create(sid)
		if err != nil {
			return nil, err
		}
		ws.bind(sid, w, r)
		if err := m.Restore(ctx); err != nil {
			ws.evict(sid)
			return nil, err
		}
		if !m.IsAuthenticated() {
			ws.evict(sid)
			return (*Manager)(nil), nil
		}
		return m, nil
	})
	if err != nil {
		return nil, "", err
	}
	m, _ := v.(*Manager)
	if m == nil {
		return nil, "", nil
	}
	ws.bind(sid, w, r)
	return m, sid, nil
}

// SIDFromRequest reads the session-ID cookie off the request, empty
// when absent.
func (ws *WebSessions) SIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(ws.cfg.SIDCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// End expires the session-ID cookie and evicts the engine after a
// voluntary logout.
func (ws *WebSessions) End(w http.ResponseWriter, sid string) {
	http.SetCookie(w, ws.sidCookie("", -1))
	ws.evict(sid)
}

// Release unbinds the credential cookie channel at the end of a request.
func (ws *WebSessions) Release(sid string) {
	ws.mu.Lock()
	cookie, ok := ws.cookies[sid]
	ws.mu.Unlock()
	if ok {
		cookie.Release()
	}
}

// Registry exposes the underlying registry, mainly for teardown and
// introspection.
func (ws *WebSessions) Registry() *Registry {
	return ws.registry
}

// Close tears down every live engine.
func (ws *WebSessions) Close() {
	ws.registry.Close()
	ws.mu.Lock()
	ws.cookies = make(map[string]*HTTPCookieChannel)
	ws.mu.Unlock()
}

func (ws *WebSessions) bind(sid string, w http.ResponseWriter, r *http.Request) {
	ws.mu.Lock()
	cookie, ok := ws.cookies[sid]
	ws.mu.Unlock()
	if ok {
		cookie.Bind(w, r)
	}
}

func (ws *WebSessions) evict(sid string) {
	ws.registry.Remove(sid)
	ws.mu.Lock()
	delete(ws.cookies, sid)
	ws.mu.Unlock()
}

func (ws *WebSessions) sidCookie(value string, maxAge time.Duration) *http.Cookie {
	cookie := &http.Cookie{
		Name:     ws.cfg.SIDCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   ws.cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	if maxAge < 0 {
		cookie.MaxAge = -1
	} else {
		cookie.Expires = time.Now().Add(maxAge)
	}
	return cookie
}
