package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// SessionRepository keeps upstream session tokens in Redis so they expire
// on their own when the upstream cookie would.
type SessionRepository struct {
	client *redis.Client
}

// NewSessionRepository constructs a session repository.
func NewSessionRepository(client *redis.Client) *SessionRepository {
	return &SessionRepository{client: client}
}

// Save stores a user's session token with the given TTL.
func (r *SessionRepository) Save(ctx context.Context, userID int64, token string, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	key := fmt.Sprintf("%s%d", sessionKeyPrefix, userID)
	if err := r.client.Set(ctx, key, token, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Token returns the stored token, empty when none survives.
func (r *SessionRepository) Token(ctx context.Context, userID int64) (string, error) {
	if r.client == nil {
		return "", nil
	}
	key := fmt.Sprintf("%s%d", sessionKeyPrefix, userID)
	token, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return token, nil
}

// Drop discards a user's session token.
func (r *SessionRepository) Drop(ctx context.Context, userID int64) error {
	if r.client == nil {
		return nil
	}
	key := fmt.Sprintf("%s%d", sessionKeyPrefix, userID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}
