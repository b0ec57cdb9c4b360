package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/i474232898/trail-status/internal/trail"
)

// DefaultRedisKey holds the JSON snapshot when no key is configured.
const DefaultRedisKey = "trail_statuses_v1"

// RedisStore keeps the snapshot as one JSON value. CompareAndSwap runs under
// WATCH/MULTI so concurrent writers from separate processes cannot both commit
// against the same revision.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (Snapshot, error) {
	return s.get(ctx, s.client)
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, expected int64, statuses map[string]trail.Status) error {
	data, err := json.Marshal(Snapshot{Revision: expected + 1, Statuses: statuses})
	if err != nil {
		return fmt.Errorf("encode statuses: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx)
		if err != nil {
			return err
		}
		if current.Revision != expected {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, data, 0)
			return nil
		})
		return err
	}, s.key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c getter) (Snapshot, error) {
	raw, err := c.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return emptySnapshot(), nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode statuses %s: %w", s.key, err)
	}
	if snap.Statuses == nil {
		snap.Statuses = map[string]trail.Status{}
	}
	return snap, nil
}
