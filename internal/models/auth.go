package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry one of the roles.
func (c *JWTClaims) HasRole(roles ...UserRole) bool {
	if c == nil {
		return false
	}
	for _, role := range roles {
		if c.Role == role {
			return true
		}
	}
	return false
}
