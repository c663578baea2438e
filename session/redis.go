package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "authkit:session"

// RedisStore keeps the session record in Redis under one key per install id.
// Meant for kiosk and shared-terminal deployments where several processes on
// the same device must see the same session.
//
// Records are stored without TTL: an expired session must stay loadable so
// the state machine can show its refresh-failed grace state. Clear is the
// only way a record leaves the store.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	key    string
}

// NewRedisStore returns a store for the given install id. An empty prefix
// falls back to "authkit:session".
func NewRedisStore(client redis.UniversalClient, prefix, installID string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		key:    prefix + ":" + installID,
	}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return errors.New("nil session")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := s.redis.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
