package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix        = "notefs:session:"
	redisOperationTimeout = 5 * time.Second
)

// RedisStore keeps the session under notefs:session:<name>. The name comes
// from the DSN's "key" query parameter and defaults to "default".
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(dsn string) (*RedisStore, error) {
	parsed, err := url.Parse(strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDSN, err)
	}
	query := parsed.Query()
	name := strings.TrimSpace(query.Get("key"))
	if name == "" {
		name = defaultSessionKey
	}
	query.Del("key")
	parsed.RawQuery = query.Encode()

	opts, err := redis.ParseURL(parsed.String())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStoreWithClient(redis.NewClient(opts), name), nil
}

func NewRedisStoreWithClient(client *redis.Client, name string) *RedisStore {
	return &RedisStore{client: client, key: redisKeyPrefix + name}
}

func (s *RedisStore) Load() (*Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOperationTimeout)
	defer cancel()

	payload, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var out Session
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, fmt.Errorf("session key %s: %w", s.key, err)
	}
	return &out, nil
}

func (s *RedisStore) Save(sess *Session) error {
	if sess == nil {
		return s.Clear()
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOperationTimeout)
	defer cancel()
	if err := s.client.Set(ctx, s.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOperationTimeout)
	defer cancel()
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
