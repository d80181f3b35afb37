package personnel

import (
	"context"
	"log/slog"

	"github.com/garrison-hq/garrison/internal/rbac"
	"github.com/garrison-hq/garrison/internal/shared"
)

// EnrollInput carries the fields for a new directory record.
type EnrollInput struct {
	ServiceNumber string    `json:"service_number" validate:"required,alphanum,min=4,max=16"`
	FullName      string    `json:"full_name" validate:"required,min=2,max=120"`
	Email         string    `json:"email" validate:"required,email"`
	Role          rbac.Role `json:"role" validate:"required"`
	Company       string    `json:"company" validate:"required,max=64"`
	ServiceRank   string    `json:"service_rank" validate:"required,max=64"`
}

// Service contains directory business logic.
type Service struct {
	logger *slog.Logger
	repo   Repository
}

// NewService constructs the personnel service.
func NewService(logger *slog.Logger, repo Repository) *Service {
	return &Service{logger: logger, repo: repo}
}

// List returns a directory page with pagination metadata.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Record, shared.Pagination, error) {
	if filter.PerPage < 1 || filter.PerPage > 100 {
		filter.PerPage = 20
	}
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return records, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Get fetches one directory record.
func (s *Service) Get(ctx context.Context, id int64) (*Record, error) {
	return s.repo.FindByID(ctx, id)
}

// Profile fetches the record backing the given account email.
func (s *Service) Profile(ctx context.Context, email string) (*Record, error) {
	return s.repo.FindByEmail(ctx, email)
}

// Enroll creates a new directory record. Reservists enter PENDING and
// need staff approval; every other role starts ACTIVE.
func (s *Service) Enroll(ctx context.Context, input EnrollInput) (*Record, error) {
	if !rbac.IsValid(input.Role) {
		return nil, rbac.ErrUnknownRole
	}
	status := StatusActive
	if input.Role == rbac.RoleReservist {
		status = StatusPending
	}
	rec := &Record{
		ServiceNumber: input.ServiceNumber,
		FullName:      input.FullName,
		Email:         input.Email,
		Role:          input.Role,
		Company:       input.Company,
		ServiceRank:   input.ServiceRank,
		Status:        status,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("personnel enrolled",
		slog.String("service_number", rec.ServiceNumber),
		slog.String("role", string(rec.Role)))
	return rec, nil
}

// Approve activates a pending reservist record and its login account.
func (s *Service) Approve(ctx context.Context, id int64) (*Record, error) {
	rec, err := s.repo.Approve(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("reservist approved", slog.Int64("id", rec.ID))
	return rec, nil
}

// Retire marks a record RETIRED without deleting its history.
func (s *Service) Retire(ctx context.Context, id int64) error {
	return s.repo.UpdateStatus(ctx, id, StatusRetired)
}
