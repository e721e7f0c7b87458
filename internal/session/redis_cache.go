package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"medicore-client/internal/model"
)

const redisUserKey = "medicore:session:user"

// RedisCache keeps the cached user record in Redis, for deployments where
// the portal runs on a shared kiosk host and restarts should not lose the
// optimistic seed. Same contract as FileCache: one key, corrupt reads as
// absent.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(addr, password string) *RedisCache {
	return &RedisCache{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       0,
		}),
	}
}

func (c *RedisCache) Read(ctx context.Context) (*model.User, error) {
	raw, err := c.rdb.Get(ctx, redisUserKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var u model.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil || u.ID == "" {
		return nil, nil
	}
	return &u, nil
}

func (c *RedisCache) Write(ctx context.Context, u *model.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, redisUserKey, b, 0).Err()
}

func (c *RedisCache) Clear(ctx context.Context) error {
	return c.rdb.Del(ctx, redisUserKey).Err()
}

func (c *RedisCache) Close() error { return c.rdb.Close() }
