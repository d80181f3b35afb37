package personnel

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/garrison-hq/garrison/internal/platform/httpx"
	"github.com/garrison-hq/garrison/internal/rbac"
	"github.com/garrison-hq/garrison/internal/session"
	"github.com/garrison-hq/garrison/internal/shared"
)

// Handler wires the JSON endpoints for the personnel directory.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     session.Guard
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     session.Guard{Logger: logger},
		validator: validator.New(),
	}
}

// MountRoutes registers directory routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequireAny(rbac.PermViewOwnProfile)).Get("/me", h.handleProfile)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.PermViewPersonnel))
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.PermManagePersonnel))
		r.Post("/", h.handleEnroll)
		r.Post("/{id}/retire", h.handleRetire)
	})

	r.With(h.guard.RequireAny(rbac.PermApproveReservistAccounts)).
		Post("/{id}/approve", h.handleApprove)
}

type listResponse struct {
	Records    []Record          `json:"records"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	filter := ListFilter{
		Company: q.Get("company"),
		Status:  q.Get("status"),
		Search:  q.Get("search"),
		Page:    page,
		PerPage: perPage,
	}
	records, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list personnel", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if records == nil {
		records = []Record{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Records: records, Pagination: pagination})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "record id must be numeric")
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

// handleProfile returns the directory record backing the caller's own
// account. It never exposes other records, so RESERVIST access is safe.
func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	m := session.FromContext(r.Context())
	if m == nil || !m.IsAuthenticated() {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	rec, err := h.service.Profile(r.Context(), m.User().Email)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var input EnrollInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rec, err := h.service.Enroll(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateServiceNumber):
			httpx.Problem(w, http.StatusConflict, "Duplicate", "service number already enrolled")
		case errors.Is(err, rbac.ErrUnknownRole):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown role")
		default:
			h.logger.Error("enroll personnel", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "record id must be numeric")
		return
	}
	rec, err := h.service.Approve(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotPending) {
			httpx.Problem(w, http.StatusConflict, "Not Pending", "record is not awaiting approval")
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) handleRetire(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "record id must be numeric")
		return
	}
	if err := h.service.Retire(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": StatusRetired})
}
