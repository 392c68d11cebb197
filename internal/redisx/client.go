package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Cache adapts a redis client to the small key/value surface the sync
// service needs.
type Cache struct{ RDB *redis.Client }

func (c Cache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.RDB.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.RDB.Set(ctx, key, value, ttl).Err()
}

func (c Cache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.RDB.SetNX(ctx, key, value, ttl).Result()
}

func (c Cache) Exists(ctx context.Context, key string) (bool, error) {
	return Exists(ctx, c.RDB, key)
}

func (c Cache) Del(ctx context.Context, key string) error {
	return c.RDB.Del(ctx, key).Err()
}
