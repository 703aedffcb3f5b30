package auth

import (
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Interface to create or verify user password hashes
type PasswordHasher interface {
	// Generate salted hash from password
	Hash(password string) (string, error)

	// Check user provided password against known hash
	// Mismatch is reported as false, not as error
	// Must be protected against timing attacks
	Verify(password string, hashedPassword string) bool
}

var DefaultHasher PasswordHasher = BcryptHasher{}

var errEmptyPassword = errors.New("password must not be empty")

// Bcrypt password hasher
// Will be used as default one if user not provide it's own
// Password is pre-hashed with sha256, so passwords longer than bcrypt limit (72 bytes) are not truncated
type BcryptHasher struct {
	// bcrypt cost; bcrypt.DefaultCost if zero
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errEmptyPassword
	}

	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	sum := sha256.Sum256([]byte(password))
	hash, err := bcrypt.GenerateFromPassword(sum[:], cost)
	return string(hash), err
}

func (h BcryptHasher) Verify(password string, hashedPassword string) bool {
	sum := sha256.Sum256([]byte(password))
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), sum[:]) == nil
}
