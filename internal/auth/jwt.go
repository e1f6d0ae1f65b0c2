// Package auth - jwt.go handles JWT token creation, signing, and verification
// using a shared secret injected at construction time.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the JWT claims structure
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenVerifier signs and verifies HS256 tokens. Identity is issued
// elsewhere; this only establishes who the caller is at the perimeter.
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier builds a verifier from a shared secret.
// Secrets shorter than 32 bytes are rejected.
func NewTokenVerifier(secret, issuer string) (*TokenVerifier, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	if issuer == "" {
		issuer = "leadpilot"
	}
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}, nil
}

// Generate creates a signed token for an authenticated user
func (v *TokenVerifier) Generate(userID, email string, expiresIn time.Duration) (string, error) {
	if expiresIn == 0 {
		expiresIn = 1 * time.Hour
	}

	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    v.issuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify parses and validates a token, returning its claims
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if claims.UserID == "" {
		return nil, errors.New("token missing user_id claim")
	}

	return claims, nil
}
