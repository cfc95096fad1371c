package authz

import (
	"sort"

	"github.com/rca-academy/school_mis/services/auth/internal/domain"
)

// Resolver answers permission questions about an identity. It keeps no state.
type Resolver struct{}

func NewResolver() *Resolver { return &Resolver{} }

// EffectivePermissions is the union of the permissions of every assigned role.
func (r *Resolver) EffectivePermissions(id *domain.Identity) PermissionSet {
	set := make(PermissionSet)
	if id == nil {
		return set
	}
	for _, role := range id.Roles {
		set.Add(role.Permissions...)
	}
	return set
}

func (r *Resolver) HasPermission(id *domain.Identity, perm string) bool {
	return r.EffectivePermissions(id).Allows(perm)
}

// HasAnyPermission is false for an empty list.
func (r *Resolver) HasAnyPermission(id *domain.Identity, perms ...string) bool {
	set := r.EffectivePermissions(id)
	for _, p := range perms {
		if set.Allows(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions is true for an empty list.
func (r *Resolver) HasAllPermissions(id *domain.Identity, perms ...string) bool {
	set := r.EffectivePermissions(id)
	for _, p := range perms {
		if !set.Allows(p) {
			return false
		}
	}
	return true
}

func (r *Resolver) RoleNames(id *domain.Identity) []string {
	if id == nil {
		return []string{}
	}
	seen := make(map[string]struct{}, len(id.Roles))
	names := make([]string, 0, len(id.Roles))
	for _, role := range id.Roles {
		if _, ok := seen[role.Name]; ok {
			continue
		}
		seen[role.Name] = struct{}{}
		names = append(names, role.Name)
	}
	sort.Strings(names)
	return names
}
