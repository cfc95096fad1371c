package authz

import (
	"sort"
	"strings"
)

// Wildcard grants every permission.
const Wildcard = "*"

// PermissionSet holds permission strings of the form domain:action.
// Membership is exact; there is no prefix or substring matching.
type PermissionSet map[string]struct{}

func NewPermissionSet(perms ...string) PermissionSet {
	s := make(PermissionSet, len(perms))
	s.Add(perms...)
	return s
}

func (s PermissionSet) Add(perms ...string) {
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p != "" {
			s[p] = struct{}{}
		}
	}
}

func (s PermissionSet) Contains(p string) bool {
	_, ok := s[p]
	return ok
}

// Allows is Contains with wildcard semantics.
func (s PermissionSet) Allows(p string) bool {
	if p == "" {
		return false
	}
	return s.Contains(Wildcard) || s.Contains(p)
}

func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Sorted returns the members in lexical order.
func (s PermissionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Valid reports whether p is "*" or a well formed domain:action pair.
func Valid(p string) bool {
	if p == Wildcard {
		return true
	}
	d, a, ok := strings.Cut(p, ":")
	return ok && d != "" && a != "" && !strings.ContainsAny(p, " *")
}
