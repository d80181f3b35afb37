package rbac

import "errors"

// ErrUnknownRole signals a role outside the closed role set.
var ErrUnknownRole = errors.New("rbac: unknown role")

// Role identifies a privilege tier in the personnel hierarchy.
type Role string

// Garrison role hierarchy, least to most privileged.
const (
	RoleReservist Role = "RESERVIST"
	RoleStaff     Role = "STAFF"
	RoleAdmin     Role = "ADMIN"
	RoleDirector  Role = "DIRECTOR"
)

// roleRanks orders roles by privilege. Ranks must stay unique; Catalog.Validate
// enforces that.
var roleRanks = map[Role]int{
	RoleReservist: 1,
	RoleStaff:     2,
	RoleAdmin:     3,
	RoleDirector:  4,
}

// Roles returns all known roles ordered by ascending rank.
func Roles() []Role {
	return []Role{RoleReservist, RoleStaff, RoleAdmin, RoleDirector}
}

// IsValid reports whether the role belongs to the closed role set.
func IsValid(role Role) bool {
	_, ok := roleRanks[role]
	return ok
}

// Rank returns the ordinal privilege level for a role, or -1 for an
// unknown role.
func Rank(role Role) int {
	if rank, ok := roleRanks[role]; ok {
		return rank
	}
	return -1
}

// AtLeast reports whether role carries at least the privilege of required.
// Unknown roles never satisfy any requirement.
func AtLeast(role, required Role) bool {
	roleRank := Rank(role)
	requiredRank := Rank(required)
	if roleRank < 0 || requiredRank < 0 {
		return false
	}
	return roleRank >= requiredRank
}
