package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/civicconnect/civic/internal/access"
	"github.com/civicconnect/civic/internal/credential"
	"github.com/civicconnect/civic/internal/shared"
)

// Tokens issues and redeems email verification tokens.
type Tokens interface {
	Issue(ctx context.Context, userID int64) (string, error)
	Consume(ctx context.Context, token string) (int64, error)
}

// Mailer hands verification mail to the delivery pipeline.
type Mailer interface {
	SendVerification(ctx context.Context, to, name, token string) error
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	hasher credential.Hasher
	rules  credential.Rules
	tokens Tokens
	mailer Mailer
	logger *slog.Logger
}

// ServiceConfig collects Service dependencies. Tokens and Mailer are optional.
type ServiceConfig struct {
	Repo   Repository
	Hasher credential.Hasher
	Rules  credential.Rules
	Tokens Tokens
	Mailer Mailer
	Logger *slog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	rules := cfg.Rules
	if rules == nil {
		rules = credential.DefaultRules()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   cfg.Repo,
		hasher: cfg.Hasher,
		rules:  rules,
		tokens: cfg.Tokens,
		mailer: cfg.Mailer,
		logger: logger,
	}
}

// Registration is a validated sign-up request.
type Registration struct {
	Email    string
	Name     string
	Password string
	Role     access.Role
}

// Register creates an unverified account and queues its verification mail.
// Admin accounts cannot be self-registered.
func (s *Service) Register(ctx context.Context, reg Registration) (*User, error) {
	if !reg.Role.Valid() || reg.Role == access.RoleAdmin {
		return nil, fmt.Errorf("%w: role not allowed", ErrRegistration)
	}
	local := reg.Email
	if at := strings.IndexByte(local, '@'); at > 0 {
		local = local[:at]
	}
	if err := s.rules.With(credential.NotContaining(local, reg.Name)).Validate(reg.Password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.Create(ctx, NewUser{
		Email:        strings.ToLower(strings.TrimSpace(reg.Email)),
		Name:         reg.Name,
		PasswordHash: hash,
		Role:         reg.Role,
	})
	if err != nil {
		return nil, err
	}
	if err := s.SendVerification(ctx, user); err != nil {
		s.logger.Warn("queue verification mail", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	return user, nil
}

// ErrRegistration marks a rejected registration request.
var ErrRegistration = errors.New("auth: registration rejected")

// ErrAlreadyVerified is returned when resending to a verified account.
var ErrAlreadyVerified = errors.New("auth: email already verified")

// SendVerification issues a token and hands it to the mailer.
func (s *Service) SendVerification(ctx context.Context, user *User) error {
	if user.EmailVerified {
		return ErrAlreadyVerified
	}
	if s.tokens == nil || s.mailer == nil {
		return errors.New("auth: verification mail not configured")
	}
	token, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return err
	}
	return s.mailer.SendVerification(ctx, user.Email, user.Name, token)
}

// VerifyEmail redeems a token and marks the owner verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*User, error) {
	if s.tokens == nil {
		return nil, shared.ErrInvalidToken
	}
	id, err := s.tokens.Consume(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.repo.MarkEmailVerified(ctx, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidToken
		}
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, credential.ErrMismatch) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	return user, nil
}

// FindUser loads a user by id.
func (s *Service) FindUser(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// RegisterSession persists the session metadata.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
