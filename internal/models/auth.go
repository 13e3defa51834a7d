package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
)

// IsStaff reports whether the role may see every student's applications.
func (r UserRole) IsStaff() bool {
	return r == RoleAdmin || r == RoleTeacher
}

// JWTClaims represents the JWT payload for access tokens. For students UserID
// carries the student id.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
