package repository

import (
	"context"
	"errors"
	"fmt"

	"localservices/internal/config"

	"github.com/redis/go-redis/v9"
)

const availabilityKeyPrefix = "provider:available:"

// NewRedisClient builds a Redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisAvailabilityStore keeps one flag per provider. A provider with no key is available.
type RedisAvailabilityStore struct {
	client *redis.Client
}

func NewRedisAvailabilityStore(client *redis.Client) *RedisAvailabilityStore {
	return &RedisAvailabilityStore{client: client}
}

func availabilityKey(providerID string) string {
	return availabilityKeyPrefix + providerID
}

func (r *RedisAvailabilityStore) SetAvailable(ctx context.Context, providerID string, available bool) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	value := "0"
	if available {
		value = "1"
	}
	if err := r.client.Set(ctx, availabilityKey(providerID), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set availability in redis: %w", err)
	}
	return nil
}

func (r *RedisAvailabilityStore) IsAvailable(ctx context.Context, providerID string) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, availabilityKey(providerID)).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get availability from redis: %w", err)
	}
	return val != "0", nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
