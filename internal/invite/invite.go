// Package invite hashes and verifies session invite codes.
package invite

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hash returns the bcrypt hash of an invite code for storage on the session
// policy. The plaintext code is never stored.
func Hash(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash invite code: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether code matches the stored hash.
func Verify(hash, code string) bool {
	if hash == "" || code == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
