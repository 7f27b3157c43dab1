package service

import "github.com/noah-isme/perception-api/internal/models"

// Principal is the resolved caller of an operation.
type Principal struct {
	Email string
	Role  string
}

// IsTeacher reports whether the principal authors papers.
func (p Principal) IsTeacher() bool {
	return p.Role == models.RoleTeacher
}

// IsStudent reports whether the principal attempts papers.
func (p Principal) IsStudent() bool {
	return p.Role == models.RoleStudent
}

func requireRole(principal Principal, role string) error {
	if principal.Role != role {
		return ErrRoleNotPermitted
	}
	return nil
}
