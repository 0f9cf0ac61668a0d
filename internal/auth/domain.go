package auth

import (
	"strconv"
	"time"

	"github.com/civicconnect/civic/internal/access"
)

// User is an account as seen by the authentication layer.
type User struct {
	ID            int64
	Email         string
	Name          string
	PasswordHash  string
	Role          access.Role
	EmailVerified bool
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Principal projects the user onto the access layer.
func (u *User) Principal() *access.Principal {
	if u == nil {
		return nil
	}
	return &access.Principal{
		ID:            strconv.FormatInt(u.ID, 10),
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
	}
}

// NewUser carries the fields required to create an account.
type NewUser struct {
	Email        string
	Name         string
	PasswordHash string
	Role         access.Role
}
