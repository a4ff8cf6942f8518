package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/obs-watcher/internal/domain"
)

const snapshotKey = "obswatch:snapshot"

// RedisStore is the alternative snapshot backend for deployments without a
// writable filesystem. Selected by SNAPSHOT_BACKEND=redis.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisStore(addr string, logger *zap.Logger) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: rdb, logger: logger}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Load mirrors the file backend's forgiveness: a missing or unparsable key
// yields an empty snapshot.
func (s *RedisStore) Load(ctx context.Context) (domain.Snapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("snapshot key unreadable, starting empty", zap.Error(err))
		}
		return nil, nil
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("snapshot key corrupt, starting empty", zap.Error(err))
		return nil, nil
	}
	return snap, nil
}

func (s *RedisStore) Save(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	// No TTL: the snapshot stays until the next completed run replaces it.
	if err := s.client.Set(ctx, snapshotKey, data, 0).Err(); err != nil {
		return fmt.Errorf("set snapshot key: %w", err)
	}
	return nil
}
