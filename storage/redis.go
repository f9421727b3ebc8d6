package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-redis/redis/v8"
)

// RedisAdapter persists the checkpoint as a single JSON-encoded string
// value per storage key, using github.com/go-redis/redis/v8.
type RedisAdapter struct {
	client *redis.Client
}

// NewRedisAdapter wraps an already-configured *redis.Client.
func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) GetItem(ctx context.Context, key string) (map[string]interface{}, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var value map[string]interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	return value, nil
}

func (r *RedisAdapter) SetItem(ctx context.Context, key string, value map[string]interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, 0).Err()
}
