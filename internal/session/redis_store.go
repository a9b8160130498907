package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/bastion/internal/models"
)

const defaultPrefix = "bastion:link:"

// RedisStore keeps link-session markers in Redis so any instance can
// finish a callback started on another.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed store
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Put stores the marker with a TTL, replacing any previous one
func (s *RedisStore) Put(ctx context.Context, sessionID string, session *models.LinkSession, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redis link session: encode failed: %w", err)
	}

	if err := s.client.Set(ctx, s.key(sessionID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis link session: put failed: %w", err)
	}
	return nil
}

// Take atomically reads and deletes the marker (GETDEL)
func (s *RedisStore) Take(ctx context.Context, sessionID string) (*models.LinkSession, error) {
	payload, err := s.client.GetDel(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis link session: take failed: %w", err)
	}

	var session models.LinkSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("redis link session: decode failed: %w", err)
	}
	return &session, nil
}

// Ping checks connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
