// Package credential hashes and compares passwords and checks password strength.
package credential

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrMismatch indicates the password does not match the stored hash.
	ErrMismatch = errors.New("credential: password mismatch")
	// ErrWeakPassword wraps every strength rule violation.
	ErrWeakPassword = errors.New("credential: password too weak")
)

// Hasher produces and verifies bcrypt hashes.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given cost, falling back to bcrypt.DefaultCost
// when cost is outside bcrypt's accepted range.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Hasher{Cost: cost}
}

// Hash returns the bcrypt hash of the NFKC-normalized password.
func (h Hasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(normalize(password)), cost)
	if err != nil {
		return "", fmt.Errorf("credential: hash: %w", err)
	}
	return string(hashed), nil
}

// Compare checks password against hash. It returns ErrMismatch on a wrong password.
func (h Hasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(normalize(password)))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrMismatch
	default:
		return fmt.Errorf("credential: compare: %w", err)
	}
}

func normalize(password string) string {
	return norm.NFKC.String(password)
}
