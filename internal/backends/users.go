package backends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gridassist/server/internal/support/model"
	"github.com/gridassist/server/internal/support/services"
)

// RedisUserStore resolves user profiles from JSON records written by the
// provisioning pipeline. Keys are "user:<id>:profile".
type RedisUserStore struct {
	rdb redis.Cmdable
}

func NewRedisUserStore(rdb redis.Cmdable) *RedisUserStore {
	return &RedisUserStore{rdb: rdb}
}

func userKey(id string) string {
	return fmt.Sprintf("user:%s:profile", id)
}

func (s *RedisUserStore) Get(ctx context.Context, id string) (*model.UserProfile, error) {
	raw, err := s.rdb.Get(ctx, userKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user profile %s: %w", id, err)
	}

	var profile model.UserProfile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return nil, fmt.Errorf("decode user profile %s: %w", id, err)
	}
	if profile.ID == "" {
		profile.ID = id
	}
	return &profile, nil
}

// Put stores a profile; provisioning and tests use it.
func (s *RedisUserStore) Put(ctx context.Context, profile *model.UserProfile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode user profile: %w", err)
	}
	return s.rdb.Set(ctx, userKey(profile.ID), raw, 0).Err()
}

var _ services.UserStore = (*RedisUserStore)(nil)
