// Package auth provides perimeter authentication primitives: service key
// generation/validation with bcrypt hashing, and JWT creation/verification.
// The platform never mints identities itself; these helpers only resolve the
// caller's user id so it can be passed explicitly into governance calls.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// ServiceKeyLength is the length of the random part of the key in bytes
	ServiceKeyLength = 32

	// DisplayPrefixLength is the number of characters to show in displays
	DisplayPrefixLength = 10

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

// GenerateServiceKey creates a new random service key with the given prefix.
// Returns: full key (to show once), bcrypt hash (to store), display prefix.
func GenerateServiceKey(prefix string) (key string, hash string, displayPrefix string, err error) {
	randomBytes := make([]byte, ServiceKeyLength)
	_, err = rand.Read(randomBytes)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	randomPart := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullKey := fmt.Sprintf("%s_%s", prefix, randomPart)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), BcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash service key: %w", err)
	}

	displayPrefixStr := fullKey
	if len(fullKey) > DisplayPrefixLength {
		displayPrefixStr = fullKey[:DisplayPrefixLength]
	}

	return fullKey, string(hashBytes), displayPrefixStr, nil
}

// ValidateServiceKey checks if a provided key matches the stored hash
func ValidateServiceKey(providedKey, storedHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedKey))
	return err == nil
}

// ExtractBearerToken extracts the credential from an Authorization header.
// Expected format: "Bearer lpg_abc123xyz..." or "Bearer <jwt>".
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("credential is empty after Bearer prefix")
	}

	return token, nil
}
