package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole enumerates the two roles the ledger distinguishes.
type UserRole string

const (
	RoleAdmin       UserRole = "ADMIN"
	RoleContributor UserRole = "CONTRIBUTOR"
)

// SystemUserID marks rows created by automated imports rather than people.
// Revisions attributed to it do not count towards the sole-creator delete
// rule.
const SystemUserID = "system"

// User is an account able to upload and moderate transcriptions.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	DisplayName  string    `db:"display_name" json:"displayName"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         UserRole  `db:"role" json:"role"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// JWTClaims carries the authenticated identity through request handling.
type JWTClaims struct {
	UserID string   `json:"uid"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the actor holds the admin role.
func (c *JWTClaims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// CreateUserRequest provisions a new account; admin only.
type CreateUserRequest struct {
	Email       string   `json:"email" binding:"required,email"`
	DisplayName string   `json:"displayName" binding:"required"`
	Password    string   `json:"password" binding:"required,min=8"`
	Role        UserRole `json:"role" binding:"required,oneof=ADMIN CONTRIBUTOR"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"displayName"`
	Role        UserRole `json:"role"`
}
