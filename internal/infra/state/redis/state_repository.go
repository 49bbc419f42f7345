// Package redisstate 提供 StateRepository 接口的 Redis 实现。
package redisstate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStateRepository 是 StateRepository 接口的 Redis 实现。
// 游标和揭示标志都是简单 KV：只有 admin 连接会写，last-write-wins 足够。
type RedisStateRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "mrj:" // 默认前缀 (murojaah)
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (r *RedisStateRepository) roomCursorKey(roomID uint) string {
	return fmt.Sprintf("%sroom:%d:cursor", r.keyPrefix, roomID)
}

func (r *RedisStateRepository) roomRevealKey(roomID uint) string {
	return fmt.Sprintf("%sroom:%d:reveal", r.keyPrefix, roomID)
}

func (r *RedisStateRepository) rateLimitKey(key string) string {
	return fmt.Sprintf("%sratelimit:%s", r.keyPrefix, key)
}

// --- StateRepository Interface Implementation ---

// GetCursor 获取房间当前的 ayat 游标。key 不存在视为 0。
func (r *RedisStateRepository) GetCursor(ctx context.Context, roomID uint) (int, error) {
	key := r.roomCursorKey(roomID)
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis: failed to get cursor for room %d from %s: %w", roomID, key, err)
	}
	cursor, parseErr := strconv.Atoi(val)
	if parseErr != nil {
		return 0, fmt.Errorf("redis: invalid cursor value '%s' for room %d: %w", val, roomID, parseErr)
	}
	return cursor, nil
}

// SetCursor 设置房间的 ayat 游标。
func (r *RedisStateRepository) SetCursor(ctx context.Context, roomID uint, index int) error {
	key := r.roomCursorKey(roomID)
	if err := r.client.Set(ctx, key, index, 0).Err(); err != nil {
		return fmt.Errorf("redis: failed to set cursor for room %d on %s: %w", roomID, key, err)
	}
	return nil
}

// GetReveal 获取揭示标志。key 不存在视为 false。
func (r *RedisStateRepository) GetReveal(ctx context.Context, roomID uint) (bool, error) {
	key := r.roomRevealKey(roomID)
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis: failed to get reveal flag for room %d from %s: %w", roomID, key, err)
	}
	return val == "1", nil
}

// SetReveal 设置揭示标志。
func (r *RedisStateRepository) SetReveal(ctx context.Context, roomID uint, revealed bool) error {
	key := r.roomRevealKey(roomID)
	val := "0"
	if revealed {
		val = "1"
	}
	if err := r.client.Set(ctx, key, val, 0).Err(); err != nil {
		return fmt.Errorf("redis: failed to set reveal flag for room %d on %s: %w", roomID, key, err)
	}
	return nil
}

// CleanupRoomState 删除房间相关的全部 Redis key，在房间删除时调用。
func (r *RedisStateRepository) CleanupRoomState(ctx context.Context, roomID uint) error {
	keys := []string{
		r.roomCursorKey(roomID),
		r.roomRevealKey(roomID),
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: failed to cleanup state keys for room %d: %w", roomID, err)
	}
	return nil
}

// CheckRateLimit 基于 INCR + EXPIRE 的简单固定窗口限流。返回 true 表示超限。
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, error) {
	redisKey := r.rateLimitKey(key)
	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to incr rate limit key %s: %w", redisKey, err)
	}
	if count == 1 {
		// 第一个请求负责设置窗口过期
		if err := r.client.Expire(ctx, redisKey, duration).Err(); err != nil {
			return false, fmt.Errorf("redis: failed to expire rate limit key %s: %w", redisKey, err)
		}
	}
	return count > int64(limit), nil
}
