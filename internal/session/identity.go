package session

import "github.com/garrison-hq/garrison/internal/rbac"

// Identity is the authenticated principal as issued by the authentication
// collaborator. It is replaced wholesale on login and cleared wholesale on
// logout; the engine never mutates individual fields.
type Identity struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Role        rbac.Role `json:"role"`
	Company     string    `json:"company,omitempty"`
	Rank        string    `json:"rank,omitempty"`
	Status      string    `json:"status,omitempty"`
}
