package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-support-chat/internal/config"
	"github.com/weiawesome/wes-support-chat/internal/domain"
)

type RedisIdentityCache struct {
	client *redis.Client
	prefix string
}

func NewRedisIdentityCache(cfg config.RedisConfig, prefix string) (*RedisIdentityCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisIdentityCacheFromClient(client, prefix), nil
}

// NewRedisIdentityCacheFromClient wraps an existing client.
func NewRedisIdentityCacheFromClient(client *redis.Client, prefix string) *RedisIdentityCache {
	return &RedisIdentityCache{
		client: client,
		prefix: prefix,
	}
}

func (c *RedisIdentityCache) BuildKey(userID string) string {
	return fmt.Sprintf("%s:identity:%s", c.prefix, userID)
}

func (c *RedisIdentityCache) Get(ctx context.Context, userID string) (*domain.Identity, error) {
	data, err := c.client.Get(ctx, c.BuildKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var identity domain.Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	return &identity, nil
}

func (c *RedisIdentityCache) Set(ctx context.Context, identity *domain.Identity, ttl time.Duration) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(ctx, c.BuildKey(identity.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	return nil
}

func (c *RedisIdentityCache) Delete(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = c.BuildKey(id)
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}

	return nil
}

func (c *RedisIdentityCache) Close() error {
	return c.client.Close()
}
