package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/civicconnect/civic/internal/shared"
)

// VerificationTTL is how long an email verification link stays valid.
const VerificationTTL = 24 * time.Hour

// TokenStore keeps single-use email verification tokens in Redis.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenStore constructs a TokenStore; ttl <= 0 uses VerificationTTL.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = VerificationTTL
	}
	return &TokenStore{client: client, ttl: ttl}
}

// Issue creates a token bound to userID.
func (s *TokenStore) Issue(ctx context.Context, userID int64) (string, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, tokenKey(token), strconv.FormatInt(userID, 10), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: issue token: %w", err)
	}
	return token, nil
}

// Consume returns the user bound to token and invalidates it.
func (s *TokenStore) Consume(ctx context.Context, token string) (int64, error) {
	if _, err := uuid.Parse(token); err != nil {
		return 0, shared.ErrInvalidToken
	}
	raw, err := s.client.GetDel(ctx, tokenKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, shared.ErrInvalidToken
		}
		return 0, fmt.Errorf("auth: consume token: %w", err)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, shared.ErrInvalidToken
	}
	return id, nil
}

func tokenKey(token string) string {
	return "civic:verify:" + token
}
