package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken is returned for malformed or tampered tokens.
	ErrInvalidToken = errors.New("invalid download token")
	// ErrTokenExpired is returned once a token is past its expiry.
	ErrTokenExpired = errors.New("download token expired")
)

// SignedURLSigner creates and validates HMAC-signed download tokens for stored artifacts.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Generate returns a signed token binding the resource id to the stored key.
func (s *SignedURLSigner) Generate(resourceID, key string) (string, time.Time, error) {
	if resourceID == "" || key == "" {
		return "", time.Time{}, fmt.Errorf("resource id and key required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl)
	encodedKey := base64.RawURLEncoding.EncodeToString([]byte(key))
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	token := strings.Join([]string{resourceID, ts, encodedKey, s.sign(resourceID, ts, encodedKey)}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the resource id and stored key it grants.
func (s *SignedURLSigner) Parse(token string) (resourceID, key string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", time.Time{}, ErrInvalidToken
	}
	resourceID, ts, encodedKey, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(resourceID, ts, encodedKey)), []byte(signature)) {
		return "", "", time.Time{}, ErrInvalidToken
	}
	rawKey, err := base64.RawURLEncoding.DecodeString(encodedKey)
	if err != nil {
		return "", "", time.Time{}, ErrInvalidToken
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", time.Time{}, ErrInvalidToken
	}
	expiresAt = time.Unix(expUnix, 0)
	if time.Now().After(expiresAt) {
		return "", "", time.Time{}, ErrTokenExpired
	}
	return resourceID, string(rawKey), expiresAt, nil
}

func (s *SignedURLSigner) sign(resourceID, ts, encodedKey string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(resourceID + "|" + ts + "|" + encodedKey))
	return hex.EncodeToString(mac.Sum(nil))
}
