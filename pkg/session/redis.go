package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/restyle/pkg/cache"
)

// RedisStore keeps sessions as JSON values with a Redis TTL matching
// ExpiresAt. Expiry is handled by Redis, so Cleanup is a no-op.
type RedisStore struct {
	client redis.UniversalClient
	keyer  cache.Keyer
}

// NewRedisStore wraps a connected client. If keyer is nil, a DefaultKeyer
// is used.
func NewRedisStore(client redis.UniversalClient, keyer cache.Keyer) *RedisStore {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	return &RedisStore{client: client, keyer: keyer}
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	var data []byte
	err := cache.RetryWithBackoff(ctx, func() error {
		b, err := s.client.Get(ctx, s.keyer.SessionKey(id)).Bytes()
		if err != nil {
			return cache.ClassifyNetError(err)
		}
		data = b
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	if sess.IsExpired() {
		return nil, nil
	}
	return &sess, nil
}

func (s *RedisStore) Set(ctx context.Context, sess *Session) error {
	if sess == nil {
		return ErrNilSession
	}
	if err := ValidateID(sess.ID); err != nil {
		return err
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, sess.ID)
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	err = cache.RetryWithBackoff(ctx, func() error {
		return cache.ClassifyNetError(s.client.Set(ctx, s.keyer.SessionKey(sess.ID), data, ttl).Err())
	})
	if err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.keyer.SessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) Cleanup(ctx context.Context) error { return nil }

// Close closes the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }

var _ Store = (*RedisStore)(nil)
