package models

import (
	"strings"
	"time"
)

const (
	// RoleTeacher marks users that author and evaluate papers.
	RoleTeacher = "teacher"
	// RoleStudent marks users that attempt papers.
	RoleStudent = "student"
)

// User binds an authenticated email to its role. The role never changes after sign-up.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsValidRole reports whether role names one of the supported roles.
func IsValidRole(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleTeacher, RoleStudent:
		return true
	default:
		return false
	}
}

// NormalizeEmail lower-cases and trims an email so lookups are case insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
