package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/forenvision/case-console/internal/core/ports"
)

// updateRetries bounds optimistic retries when a watched key changes.
const updateRetries = 8

var _ ports.KeyValueStore = (*CredentialStore)(nil)

// CredentialStore is a KeyValueStore on Redis strings. Multi-key writes run
// in a MULTI/EXEC transaction so no reader sees half a session.
type CredentialStore struct {
	client *redis.Client
}

func NewCredentialStore(client *redis.Client) *CredentialStore {
	return &CredentialStore{client: client}
}

func (s *CredentialStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *CredentialStore) SetMany(ctx context.Context, entries map[string]string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range entries {
			pipe.Set(ctx, k, v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (s *CredentialStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// Update is an optimistic transaction: WATCH the keys, read them, run edit,
// then MULTI/EXEC. A concurrent writer aborts EXEC and the cycle restarts.
func (s *CredentialStore) Update(ctx context.Context, keys []string, edit func(entries map[string]string) bool) error {
	txf := func(tx *redis.Tx) error {
		values, err := tx.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		entries := make(map[string]string, len(keys))
		for i, v := range values {
			if str, ok := v.(string); ok {
				entries[keys[i]] = str
			}
		}
		if !edit(entries) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, k := range keys {
				if v, ok := entries[k]; ok {
					pipe.Set(ctx, k, v, 0)
				} else {
					pipe.Del(ctx, k)
				}
			}
			return nil
		})
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := s.client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis update session: %w", err)
		}
		return nil
	}
	return fmt.Errorf("redis update session: %w", redis.TxFailedErr)
}
