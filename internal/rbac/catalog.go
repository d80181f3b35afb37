package rbac

import (
	"fmt"
	"sort"
)

// Catalog maps roles to their permission token sets. It is pure data,
// read-only after construction; hierarchy comparisons live in Rank and
// AtLeast, membership checks here.
type Catalog struct {
	grants map[Role]map[string]struct{}
}

// NewCatalog builds a catalog from role to token-list data. Duplicate
// tokens collapse; order is irrelevant.
func NewCatalog(grants map[Role][]string) *Catalog {
	c := &Catalog{grants: make(map[Role]map[string]struct{}, len(grants))}
	for role, tokens := range grants {
		set := make(map[string]struct{}, len(tokens))
		for _, token := range tokens {
			set[token] = struct{}{}
		}
		c.grants[role] = set
	}
	return c
}

// DefaultCatalog returns the static Garrison permission data.
//
// Permission sets are maintained independently of the rank order; a
// higher-ranked role is not implicitly a superset of a lower one.
func DefaultCatalog() *Catalog {
	return NewCatalog(map[Role][]string{
		RoleReservist: {
			PermViewOwnProfile,
			PermViewDocuments,
			PermSubmitDocuments,
			PermViewAnnouncements,
		},
		RoleStaff: {
			PermViewOwnProfile,
			PermViewDocuments,
			PermSubmitDocuments,
			PermViewAnnouncements,
			PermApproveReservistAccounts,
			PermManageDocuments,
			PermManageAnnouncements,
			PermViewPersonnel,
		},
		RoleAdmin: {
			PermViewOwnProfile,
			PermViewDocuments,
			PermViewAnnouncements,
			PermManageDocuments,
			PermManageAnnouncements,
			PermViewPersonnel,
			PermManagePersonnel,
			PermManageStaffAccounts,
			PermViewReports,
		},
		RoleDirector: {
			PermViewOwnProfile,
			PermViewDocuments,
			PermViewAnnouncements,
			PermViewPersonnel,
			PermManagePersonnel,
			PermManageStaffAccounts,
			PermViewReports,
			PermManageSystem,
			PermSimulateRoles,
		},
	})
}

// PermissionsFor returns the sorted token list granted to a role. It is a
// total function: unknown or unconfigured roles yield an empty list.
func (c *Catalog) PermissionsFor(role Role) []string {
	set, ok := c.grants[role]
	if !ok {
		return nil
	}
	tokens := make([]string, 0, len(set))
	for token := range set {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// HasPermission reports whether role is granted the permission token.
func (c *Catalog) HasPermission(role Role, token string) bool {
	set, ok := c.grants[role]
	if !ok {
		return false
	}
	_, granted := set[token]
	return granted
}

// Validate checks the catalog's structural invariants: every known role has
// an entry (possibly empty), no configured role is unknown, and no two
// roles alias the same rank.
func (c *Catalog) Validate() error {
	for _, role := range Roles() {
		if _, ok := c.grants[role]; !ok {
			return fmt.Errorf("rbac: role %s has no catalog entry", role)
		}
	}
	for role := range c.grants {
		if !IsValid(role) {
			return fmt.Errorf("rbac: unknown role %s in catalog", role)
		}
	}
	seen := make(map[int]Role, len(roleRanks))
	for role, rank := range roleRanks {
		if other, ok := seen[rank]; ok {
			return fmt.Errorf("rbac: roles %s and %s share rank %d", other, role, rank)
		}
		seen[rank] = role
	}
	return nil
}
