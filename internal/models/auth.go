package models

import "github.com/golang-jwt/jwt/v5"

// UserRole identifies the caller's role for gating enrollment actions.
// Token issuance lives in the auth gateway; this API only verifies.
type UserRole string

// Roles recognised by the enrollment API.
const (
	RoleSuperAdmin UserRole = "SUPER_ADMIN"
	RoleModerator  UserRole = "MODERATOR"
	RoleStudent    UserRole = "STUDENT"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}
