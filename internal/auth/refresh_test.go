package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

// newTestRedis starts an in-process miniredis and returns a client connected to it.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRefreshTokenLifecycle(t *testing.T) {
	t.Parallel()
	rdb := newTestRedis(t)
	ctx := context.Background()
	userID := snowflake.UserID(42)

	token, err := CreateRefreshToken(ctx, rdb, userID, time.Hour)
	if err != nil {
		t.Fatalf("CreateRefreshToken() error = %v", err)
	}

	got, err := ValidateRefreshToken(ctx, rdb, token)
	if err != nil {
		t.Fatalf("ValidateRefreshToken() error = %v", err)
	}
	if got != userID {
		t.Errorf("user = %s, want %s", got, userID)
	}
}

func TestRotateRefreshToken(t *testing.T) {
	t.Parallel()
	rdb := newTestRedis(t)
	ctx := context.Background()
	userID := snowflake.UserID(42)

	oldToken, err := CreateRefreshToken(ctx, rdb, userID, time.Hour)
	if err != nil {
		t.Fatalf("CreateRefreshToken() error = %v", err)
	}

	newToken, got, err := RotateRefreshToken(ctx, rdb, oldToken, time.Hour)
	if err != nil {
		t.Fatalf("RotateRefreshToken() error = %v", err)
	}
	if got != userID {
		t.Errorf("user = %s, want %s", got, userID)
	}

	// The old token is consumed; presenting it again signals reuse.
	if _, _, err := RotateRefreshToken(ctx, rdb, oldToken, time.Hour); !errors.Is(err, ErrRefreshTokenReused) {
		t.Errorf("second rotation error = %v, want ErrRefreshTokenReused", err)
	}

	// The new token is live.
	if _, err := ValidateRefreshToken(ctx, rdb, newToken); err != nil {
		t.Errorf("ValidateRefreshToken(new) error = %v", err)
	}
}

func TestValidateRefreshToken_Unknown(t *testing.T) {
	t.Parallel()
	rdb := newTestRedis(t)

	_, err := ValidateRefreshToken(context.Background(), rdb, "nope")
	if !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Errorf("error = %v, want ErrRefreshTokenNotFound", err)
	}
}

func TestRevokeAllRefreshTokens(t *testing.T) {
	t.Parallel()
	rdb := newTestRedis(t)
	ctx := context.Background()
	userID := snowflake.UserID(42)

	first, err := CreateRefreshToken(ctx, rdb, userID, time.Hour)
	if err != nil {
		t.Fatalf("CreateRefreshToken() error = %v", err)
	}
	second, err := CreateRefreshToken(ctx, rdb, userID, time.Hour)
	if err != nil {
		t.Fatalf("CreateRefreshToken() error = %v", err)
	}

	if err := RevokeAllRefreshTokens(ctx, rdb, userID); err != nil {
		t.Fatalf("RevokeAllRefreshTokens() error = %v", err)
	}

	for _, token := range []string{first, second} {
		if _, err := ValidateRefreshToken(ctx, rdb, token); !errors.Is(err, ErrRefreshTokenNotFound) {
			t.Errorf("token %s still valid after revoke", token)
		}
	}
}
