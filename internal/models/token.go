package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// FileTokenScope restricts a file token to reading the original essay file.
const FileTokenScope = "file:read"

// FileTokenClaims is the payload of a short-lived file access token.
type FileTokenClaims struct {
	EssayID string `json:"essay_id"`
	UserID  string `json:"user_id"`
	Scope   string `json:"scope"`
	jwt.RegisteredClaims
}

// FileToken is returned to clients requesting access to an essay file.
type FileToken struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
