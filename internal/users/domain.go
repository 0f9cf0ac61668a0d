package users

import (
	"errors"
	"time"

	"github.com/civicconnect/civic/internal/access"
)

// User represents a user account for management.
type User struct {
	ID            int64       `json:"id"`
	Email         string      `json:"email"`
	Name          string      `json:"name"`
	Role          access.Role `json:"role"`
	EmailVerified bool        `json:"emailVerified"`
	IsActive      bool        `json:"isActive"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// ListFilter narrows List results. A zero Role matches every role.
type ListFilter struct {
	Role   access.Role
	Limit  int
	Offset int
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// ErrSelfModification prevents an admin from demoting or deactivating themselves.
var ErrSelfModification = errors.New("users: cannot modify own account")
