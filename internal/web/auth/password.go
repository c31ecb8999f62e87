package auth

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown email or wrong password
var ErrInvalidCredentials = errors.New("invalid email or password")

// HashPassword validates the password length and returns its bcrypt hash
func HashPassword(password string, minLength int) (string, error) {
	if utf8.RuneCountInString(password) < minLength {
		return "", fmt.Errorf("password must be at least %d characters", minLength)
	}
	// bcrypt ignores everything after 72 bytes.
	if len(password) > 72 {
		return "", fmt.Errorf("password must be at most 72 bytes")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a password with a stored hash. Accounts without a
// password, such as OIDC users, never match.
func CheckPassword(hash, password string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
