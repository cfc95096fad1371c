package seed

import (
	"context"
	"fmt"

	"github.com/rca-academy/school_mis/pkg/logging"
	"github.com/rca-academy/school_mis/services/auth/internal/authz"
)

const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleTeacher    = "TEACHER"
	RoleStudent    = "STUDENT"
	RoleParent     = "PARENT"
	RoleGuardian   = "GUARDIAN"
)

type RoleDef struct {
	Name        string
	Description string
	Permissions []string
}

// DefaultRoles is the built-in role catalogue.
var DefaultRoles = []RoleDef{
	{
		Name:        RoleSuperAdmin,
		Description: "Super Administrator with full system access",
		Permissions: []string{authz.Wildcard},
	},
	{
		Name:        RoleAdmin,
		Description: "School Administrator",
		Permissions: []string{
			"users:read", "users:write",
			"students:read", "students:write",
			"teachers:read", "teachers:write",
			"classes:read", "classes:write",
			"subjects:read", "subjects:write",
			"assessments:read", "assessments:write",
			"reports:read", "reports:write",
		},
	},
	{
		Name:        RoleTeacher,
		Description: "Teacher",
		Permissions: []string{
			"students:read",
			"attendance:read", "attendance:write",
			"assessments:read", "assessments:write",
			"marks:read", "marks:write",
			"timetable:read",
		},
	},
	{
		Name:        RoleStudent,
		Description: "Student",
		Permissions: []string{
			"profile:read", "profile:write",
			"marks:read", "attendance:read", "timetable:read",
			"projects:read", "projects:write",
		},
	},
	{
		Name:        RoleParent,
		Description: "Parent",
		Permissions: []string{"child:read", "attendance:read", "marks:read", "timetable:read", "reports:read"},
	},
	{
		Name:        RoleGuardian,
		Description: "Guardian",
		Permissions: []string{"ward:read", "attendance:read", "marks:read", "timetable:read", "reports:read"},
	},
}

type RoleWriter interface {
	UpsertRole(ctx context.Context, name, description string, permissions []string) error
}

// Roles writes defs through w. Re-running it converges to the same state.
func Roles(ctx context.Context, w RoleWriter, defs []RoleDef) error {
	for _, d := range defs {
		for _, p := range d.Permissions {
			if !authz.Valid(p) {
				return fmt.Errorf("seed role %s: malformed permission %q", d.Name, p)
			}
		}
		if err := w.UpsertRole(ctx, d.Name, d.Description, d.Permissions); err != nil {
			return fmt.Errorf("seed role %s: %w", d.Name, err)
		}
	}
	logging.FromContext(ctx).Info("roles_seeded", "count", len(defs))
	return nil
}
