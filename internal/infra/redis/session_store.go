package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore keeps session-token-to-player mappings in Redis so player
// identity survives process restarts and is shared across instances.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Put(ctx context.Context, token string, playerID int64) error {
	return s.client.Set(ctx, s.key(token), playerID, s.ttl).Err()
}

func (s *SessionStore) Lookup(ctx context.Context, token string) (int64, bool, error) {
	raw, err := s.client.Get(ctx, s.key(token)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, err
	}
	// sliding expiry: active sessions stay alive
	_ = s.client.Expire(ctx, s.key(token), s.ttl).Err()
	return id, true, nil
}

func (s *SessionStore) key(token string) string {
	return "psychout:session:" + token
}
