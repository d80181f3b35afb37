package session

import (
	"log/slog"
	"net/http"

	"github.com/garrison-hq/garrison/internal/rbac"
)

// Guard wires authorization checks for HTTP handlers. Denials answer 403;
// the engine itself never errors for "not permitted".
type Guard struct {
	Logger *slog.Logger
}

// RequireAny admits requests whose session holds at least one of the
// permission tokens.
func (g Guard) RequireAny(tokens ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(tokens) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			m := FromContext(r.Context())
			if m == nil {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			for _, token := range tokens {
				if m.HasPermission(token) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if g.Logger != nil {
				g.Logger.Warn("permission denied", slog.String("path", r.URL.Path))
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// RequireRole admits requests whose session role is at least as privileged
// as required.
func (g Guard) RequireRole(required rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := FromContext(r.Context())
			if m == nil || !m.HasRoleAtLeast(required) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
