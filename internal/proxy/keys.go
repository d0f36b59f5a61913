package proxy

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// API keys are "px_" followed by 64 hex characters.
var apiKeyPattern = regexp.MustCompile(`^px_[a-f0-9]{64}$`)

// GenerateAPIKey returns a new proxy credential from a cryptographic
// random source.
func GenerateAPIKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("proxy: generate api key: %w", err)
	}
	return "px_" + hex.EncodeToString(raw), nil
}

// ValidateAPIKey reports whether key has the expected shape. Shape
// checking lets the server reject garbage before touching the database.
func ValidateAPIKey(key string) bool {
	return apiKeyPattern.MatchString(key)
}
