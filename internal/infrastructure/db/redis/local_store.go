package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/memberhub/memberdash/internal/core/ports"
)

const scanBatch = 100

// LocalStore persists client-side state in Redis under a key prefix.
// Key format: <prefix><key>
type LocalStore struct {
	client *redis.Client
	prefix string
}

// NewLocalStore creates a LocalStore wrapping the given Redis client.
func NewLocalStore(client *redis.Client, prefix string) *LocalStore {
	return &LocalStore{client: client, prefix: prefix}
}

// Get returns the stored value or ports.ErrLocalKeyNotFound.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ports.ErrLocalKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("local store get: %w", err)
	}
	return b, nil
}

// Set stores value without expiry.
func (s *LocalStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("local store set: %w", err)
	}
	return nil
}

// Delete removes a single key; deleting an absent key is not an error.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("local store delete: %w", err)
	}
	return nil
}

// Clear deletes every key under the prefix. Keys outside the prefix are untouched.
func (s *LocalStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()

	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("local store clear: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("local store clear: %w", err)
	}
	if len(batch) > 0 {
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("local store clear: %w", err)
		}
	}
	return nil
}

func (s *LocalStore) key(k string) string {
	return s.prefix + k
}
