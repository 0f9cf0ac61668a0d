package users

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/civicconnect/civic/internal/access"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]User, error)
	Get(ctx context.Context, id int64) (*User, error)
	UpdateRole(ctx context.Context, id int64, role access.Role) error
	SetEmailVerified(ctx context.Context, id int64) error
	SetActive(ctx context.Context, id int64, active bool) error
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// List returns users matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]User, error) {
	return s.repo.List(ctx, filter.normalized())
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.Get(ctx, id)
}

// ChangeRole assigns role to the target account on behalf of actorID.
func (s *Service) ChangeRole(ctx context.Context, actorID, id int64, role access.Role) (*User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %s", access.ErrUnknownRole, role)
	}
	if actorID == id && role != access.RoleAdmin {
		return nil, ErrSelfModification
	}
	if err := s.repo.UpdateRole(ctx, id, role); err != nil {
		return nil, err
	}
	s.logger.Info("user role changed", slog.Int64("actor_id", actorID), slog.Int64("user_id", id), slog.String("role", role.String()))
	return s.repo.Get(ctx, id)
}

// ApproveVerification marks the account's email as verified without a token.
func (s *Service) ApproveVerification(ctx context.Context, actorID, id int64) (*User, error) {
	if err := s.repo.SetEmailVerified(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info("email verification approved", slog.Int64("actor_id", actorID), slog.Int64("user_id", id))
	return s.repo.Get(ctx, id)
}

// SetActive enables or disables sign-in for the account. Disabled accounts
// lose their principal on the next request.
func (s *Service) SetActive(ctx context.Context, actorID, id int64, active bool) (*User, error) {
	if actorID == id && !active {
		return nil, ErrSelfModification
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	s.logger.Info("user activation changed", slog.Int64("actor_id", actorID), slog.Int64("user_id", id), slog.Bool("active", active))
	return s.repo.Get(ctx, id)
}
