package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"opsdesk.org/internal/directory"
	"opsdesk.org/internal/ids"
)

// ErrInvalidToken indicates a refresh token that failed validation.
var ErrInvalidToken = errors.New("httpapi: invalid token")

// tokenIssuer mints HS256 access tokens and rotating opaque refresh
// tokens. Refresh tokens are `<id>.<secret>`; only the SHA-256 hash of
// the secret is stored.
type tokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	tokens     directory.RefreshTokenStore
}

type accessClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func (ti *tokenIssuer) issueAccessToken(user *directory.User) (string, time.Time, error) {
	now := ti.now().UTC()
	exp := now.Add(ti.accessTTL)
	claims := accessClaims{
		Name: user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (ti *tokenIssuer) issueRefreshToken(ctx context.Context, userID string) (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	tokenID := ids.New()
	sum := sha256.Sum256([]byte(secret))
	rec := &directory.RefreshToken{
		ID:        tokenID,
		UserID:    userID,
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: ti.now().Add(ti.refreshTTL),
	}
	if err := ti.tokens.Create(ctx, rec); err != nil {
		return "", err
	}
	return tokenID + "." + secret, nil
}

// redeemRefreshToken validates and revokes the presented token, returning
// the owning user id. Every redemption consumes the token; the caller
// issues a fresh pair.
func (ti *tokenIssuer) redeemRefreshToken(ctx context.Context, raw string) (string, error) {
	tokenID, secret, err := splitRefreshToken(raw)
	if err != nil {
		return "", ErrInvalidToken
	}
	rec, err := ti.tokens.Find(ctx, tokenID)
	if err != nil {
		return "", ErrInvalidToken
	}
	if rec.Revoked || ti.now().After(rec.ExpiresAt) {
		return "", ErrInvalidToken
	}
	if !secureCompareHash(rec.TokenHash, secret) {
		// A bad secret against a live id suggests theft; burn the token.
		_ = ti.tokens.MarkRevoked(ctx, rec.ID)
		return "", ErrInvalidToken
	}
	if err := ti.tokens.MarkRevoked(ctx, rec.ID); err != nil {
		return "", err
	}
	return rec.UserID, nil
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func secureCompareHash(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
