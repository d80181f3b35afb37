package auth

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/garrison-hq/garrison/internal/session"
	"github.com/garrison-hq/garrison/internal/shared"
)

// Service wraps authentication business rules. It is the authentication
// collaborator consumed by the session engine.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials and issues the
// identity. Every rejection path collapses into ErrInvalidCredentials so
// callers cannot probe which part failed.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*session.Identity, error) {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !account.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return &session.Identity{
		ID:          strconv.FormatInt(account.ID, 10),
		DisplayName: account.DisplayName,
		Email:       account.Email,
		Role:        account.Role,
		Company:     account.Company,
		Rank:        account.ServiceRank,
		Status:      account.Status,
	}, nil
}

// RegisterSession persists session metadata in Postgres for auditing.
func (s *Service) RegisterSession(ctx context.Context, id, userID string, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session audit record.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// PurgeExpiredSessions removes session audit records whose deadline has
// passed. Used by the background sweep.
func (s *Service) PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, before)
}

var _ session.Authenticator = (*Service)(nil)
