package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elec-mate/coursepages/internal/platform/cache"
)

// RedisStore keeps mounts in Redis so they survive restarts and are shared
// between replicas.
type RedisStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewRedisStore creates a store whose keys expire ttl after their last save.
func NewRedisStore(c *cache.Cache, ttl time.Duration) *RedisStore {
	return &RedisStore{cache: c, ttl: ttl}
}

func mountKey(id string) string {
	return "mount:" + id
}

func (s *RedisStore) Save(ctx context.Context, st MountState) error {
	if st.ID == "" {
		return fmt.Errorf("mount id is required")
	}
	return s.cache.SetJSON(ctx, mountKey(st.ID), st, s.ttl)
}

func (s *RedisStore) Get(ctx context.Context, id string) (MountState, error) {
	var st MountState
	err := s.cache.GetJSON(ctx, mountKey(id), &st)
	if errors.Is(err, cache.ErrMiss) {
		return MountState{}, fmt.Errorf("%w: %s", ErrMountNotFound, id)
	}
	if err != nil {
		return MountState{}, err
	}
	return st, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.cache.Client.Del(ctx, s.cache.Key(mountKey(id))).Result()
	if err != nil {
		return fmt.Errorf("delete mount %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrMountNotFound, id)
	}
	return nil
}
