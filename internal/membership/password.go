// internal/membership/password.go
package membership

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"

	"gymbooking/internal/domain"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	minPassword  = 8
)

// hashPassword generates a salted Argon2id credential for the password.
func hashPassword(password string) (domain.Credential, error) {
	if len(password) < minPassword {
		return domain.Credential{}, domain.NewError(domain.CodeInvalidValue, "member.password",
			fmt.Sprintf("password must be at least %d characters", minPassword), nil)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return domain.Credential{}, err
	}
	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return domain.NewCredential(
		base64.StdEncoding.EncodeToString(hash),
		base64.StdEncoding.EncodeToString(salt),
	)
}

// verifyPassword compares a password with a stored credential in constant time.
func verifyPassword(password string, c domain.Credential) (bool, error) {
	salt, err := base64.StdEncoding.DecodeString(c.Salt())
	if err != nil {
		return false, fmt.Errorf("failed to decode salt: %w", err)
	}
	want, err := base64.StdEncoding.DecodeString(c.Hash())
	if err != nil {
		return false, fmt.Errorf("failed to decode hash: %w", err)
	}

	got := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}
