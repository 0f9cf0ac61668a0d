package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicconnect/civic/internal/auth"
	"github.com/civicconnect/civic/internal/shared"
)

func TestTokenStoreSingleUse(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := auth.NewTokenStore(client, 0)
	ctx := context.Background()

	token, err := store.Issue(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, auth.VerificationTTL, mr.TTL("civic:verify:"+token))

	id, err := store.Consume(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	_, err = store.Consume(ctx, token)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestTokenStoreExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	store := auth.NewTokenStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	ctx := context.Background()

	token, err := store.Issue(ctx, 3)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	_, err = store.Consume(ctx, token)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestTokenStoreRejectsMalformedToken(t *testing.T) {
	mr := miniredis.RunT(t)
	store := auth.NewTokenStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	_, err := store.Consume(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}
