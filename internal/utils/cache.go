package utils

import (
	"context"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	app_error "github.com/xenn00/teamchat/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GetCacheData returns nil, nil on a cache miss.
func GetCacheData[T any](ctx context.Context, rdb *redis.Client, cacheKey string) (*T, error) {
	val, err := rdb.Get(ctx, cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, app_error.TransientStore("unexpected error occur when trying to get from redis", err)
	}

	var data T
	if err := json.Unmarshal(val, &data); err != nil {
		return nil, app_error.From(err)
	}

	return &data, nil
}

func SetCacheData[T any](ctx context.Context, rdb *redis.Client, cacheKey string, data *T, expire time.Duration) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return app_error.From(err)
	}

	if err := rdb.Set(ctx, cacheKey, bytes, expire).Err(); err != nil {
		return app_error.TransientStore("unexpected error occur when trying to write to redis", err)
	}
	return nil
}

func DeleteCacheData(ctx context.Context, rdb *redis.Client, cacheKey string) error {
	if err := rdb.Del(ctx, cacheKey).Err(); err != nil {
		return app_error.TransientStore("unexpected error occur when trying to delete from redis", err)
	}
	return nil
}
