package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor used when hashing new passwords.
const BcryptCost = 12

// PasswordVerifier checks plaintext passwords against stored hashes.
type PasswordVerifier interface {
	// Compare returns nil when the password matches the hash, and
	// ErrInvalidCredentials when it does not.
	Compare(hashedPassword, password string) error

	// Hash produces a bcrypt hash of the given password.
	Hash(password string) (string, error)
}

type bcryptVerifier struct {
	cost int
}

var _ PasswordVerifier = (*bcryptVerifier)(nil)

// NewBcryptVerifier creates a PasswordVerifier using bcrypt.
func NewBcryptVerifier() PasswordVerifier {
	return &bcryptVerifier{cost: BcryptCost}
}

func (v *bcryptVerifier) Compare(hashedPassword, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	if err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func (v *bcryptVerifier) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
