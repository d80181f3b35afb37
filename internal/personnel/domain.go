package personnel

import (
	"time"

	"github.com/garrison-hq/garrison/internal/rbac"
)

// Record statuses. New reservist registrations start PENDING and become
// ACTIVE once staff approves them.
const (
	StatusPending = "PENDING"
	StatusActive  = "ACTIVE"
	StatusRetired = "RETIRED"
)

// Record is one entry in the personnel directory.
type Record struct {
	ID            int64     `json:"id"`
	ServiceNumber string    `json:"service_number"`
	FullName      string    `json:"full_name"`
	Email         string    `json:"email"`
	Role          rbac.Role `json:"role"`
	Company       string    `json:"company"`
	ServiceRank   string    `json:"service_rank"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ListFilter narrows directory listings.
type ListFilter struct {
	Company string
	Status  string
	Search  string
	Page    int
	PerPage int
}
