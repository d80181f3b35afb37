package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/garrison-hq/garrison/internal/platform/httpx"
	"github.com/garrison-hq/garrison/internal/rbac"
	"github.com/garrison-hq/garrison/internal/session"
	"github.com/garrison-hq/garrison/internal/shared"
)

// Handler wires the JSON endpoints for the session engine: login, logout,
// extension, role simulation, and session state.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	sessions  *session.WebSessions
	catalog   *rbac.Catalog
	csrf      *shared.CSRFManager
	validator *validator.Validate
	secure    bool
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *session.WebSessions, catalog *rbac.Catalog, csrf *shared.CSRFManager, secure bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		sessions:  sessions,
		catalog:   catalog,
		csrf:      csrf,
		validator: validator.New(),
		secure:    secure,
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Post("/extend", h.handleExtend)
	r.Post("/simulate", h.handleSimulate)
	r.Delete("/simulate", h.handleClearSimulate)
	r.Get("/session", h.handleSession)
	r.Get("/permissions", h.handlePermissions)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type sessionResponse struct {
	IsAuthenticated bool              `json:"is_authenticated"`
	User            *session.Identity `json:"user,omitempty"`
	SessionExpiring bool              `json:"session_expiring"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty"`
	SimulatedRole   rbac.Role         `json:"simulated_role,omitempty"`
}

type loginResponse struct {
	sessionResponse
	CSRFToken string `json:"csrf_token"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email and password are required")
		return
	}

	m, sid, err := h.sessions.Begin(w, r)
	if err != nil {
		h.logger.Error("begin session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	if err := m.Login(r.Context(), req.Email, req.Password); err != nil {
		h.sessions.Discard(sid)
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Invalid Credentials", "email or password is not valid")
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	h.sessions.Issue(w, sid)
	token := h.csrf.IssueToken(sid)
	http.SetCookie(w, &http.Cookie{
		Name:     shared.CSRFCookieName,
		Value:    token,
		Path:     "/",
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})

	if err := h.service.RegisterSession(r.Context(), sid, m.User().ID, m.ExpiresAt(), r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}

	httpx.JSON(w, http.StatusOK, loginResponse{
		sessionResponse: h.snapshot(m),
		CSRFToken:       token,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	m := session.FromContext(r.Context())
	sid := session.SIDFromContext(r.Context())
	if m != nil {
		if err := h.service.RemoveSession(r.Context(), sid); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		if err := m.Logout(r.Context()); err != nil {
			h.logger.Warn("logout", slog.Any("error", err))
		}
	}
	if sid == "" {
		// The engine may already be gone (expired or evicted); still
		// expire the stale cookie so the client fully resets.
		sid = h.sessions.SIDFromRequest(r)
	}
	if sid != "" {
		h.sessions.End(w, sid)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleExtend(w http.ResponseWriter, r *http.Request) {
	m := session.FromContext(r.Context())
	if m == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	m.ExtendSession()
	httpx.JSON(w, http.StatusOK, h.snapshot(m))
}

type simulateRequest struct {
	Role rbac.Role `json:"role" validate:"required"`
}

func (h *Handler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	m := session.FromContext(r.Context())
	if m == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if !m.HasPermission(rbac.PermSimulateRoles) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	var req simulateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "request body must be valid JSON")
		return
	}
	if err := m.SimulateRole(req.Role); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Unknown Role", "role is not part of the role set")
		return
	}
	httpx.JSON(w, http.StatusOK, h.snapshot(m))
}

func (h *Handler) handleClearSimulate(w http.ResponseWriter, r *http.Request) {
	m := session.FromContext(r.Context())
	if m == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	m.ClearSimulatedRole()
	httpx.JSON(w, http.StatusOK, h.snapshot(m))
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	m := session.FromContext(r.Context())
	if m == nil {
		httpx.JSON(w, http.StatusOK, sessionResponse{})
		return
	}
	httpx.JSON(w, http.StatusOK, h.snapshot(m))
}

type permissionsResponse struct {
	Role        rbac.Role `json:"role"`
	Permissions []string  `json:"permissions"`
}

func (h *Handler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	m := session.FromContext(r.Context())
	if m == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	user := m.User()
	if user == nil {
		// The engine can outlive its identity briefly while an expiry
		// is being flushed; treat it the same as no session.
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	role := m.SimulatedRole()
	if role == "" {
		role = user.Role
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{
		Role:        role,
		Permissions: h.catalog.PermissionsFor(role),
	})
}

func (h *Handler) snapshot(m *session.Manager) sessionResponse {
	resp := sessionResponse{
		IsAuthenticated: m.IsAuthenticated(),
		User:            m.User(),
		SessionExpiring: m.SessionExpiring(),
		SimulatedRole:   m.SimulatedRole(),
	}
	if expires := m.ExpiresAt(); !expires.IsZero() {
		resp.ExpiresAt = &expires
	}
	return resp
}
