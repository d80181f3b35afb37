package auth

import (
	"time"

	"github.com/garrison-hq/garrison/internal/rbac"
)

// Account is a credentialed personnel account as stored in Postgres.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	DisplayName  string
	Role         rbac.Role
	Company      string
	ServiceRank  string
	Status       string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
