// Redis 缓存实现
// 链接模型按内容哈希缓存；估值完成事件写入 Stream
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ploxoy666/finanalyzer/pkg/config"
	apperrors "github.com/ploxoy666/finanalyzer/pkg/errors"
	"github.com/ploxoy666/finanalyzer/pkg/metrics"
)

// 缓存键前缀
const (
	ModelKeyPrefix     = "finmodel:model:"
	ValuationKeyPrefix = "finmodel:valuation:"
)

// RedisCache Redis 缓存客户端
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	stream string
}

// NewRedisCache 创建 Redis 缓存客户端并检查连接
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: failed to connect to Redis: %v", apperrors.ErrCacheUnavailable, err)
	}

	return NewRedisCacheFromClient(client, cfg), nil
}

// NewRedisCacheFromClient 使用已有客户端（测试中为 redismock）
func NewRedisCacheFromClient(client *redis.Client, cfg config.RedisConfig) *RedisCache {
	return &RedisCache{client: client, ttl: cfg.ModelTTL, stream: cfg.EventStream}
}

// ModelKey 链接模型缓存键
func ModelKey(hash string) string {
	return ModelKeyPrefix + hash
}

// ValuationKey 估值结果缓存键，variant 区分同一情景下不同的显式假设
func ValuationKey(hash, scenario, variant string) string {
	if scenario == "" {
		scenario = "default"
	}
	key := ValuationKeyPrefix + hash + ":" + scenario
	if variant != "" {
		key += ":" + variant
	}
	return key
}

// Get 获取缓存，键不存在时返回空串
func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	result, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return result, err
}

// Set 设置缓存，ttl 为 0 时使用配置的模型 TTL
func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.ttl
	}
	return r.client.Set(ctx, key, value, ttl).Err()
}

// GetJSON 读取并反序列化，命中返回 true
func (r *RedisCache) GetJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		metrics.CacheOperations.WithLabelValues("get", "miss").Inc()
		return false, nil
	case err != nil:
		metrics.CacheOperations.WithLabelValues("get", "error").Inc()
		return false, fmt.Errorf("%w: %v", apperrors.ErrCacheUnavailable, err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		metrics.CacheOperations.WithLabelValues("get", "error").Inc()
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	metrics.CacheOperations.WithLabelValues("get", "hit").Inc()
	return true, nil
}

// SetJSON 序列化后写入，ttl 为 0 时使用配置的模型 TTL
func (r *RedisCache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if ttl == 0 {
		ttl = r.ttl
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		metrics.CacheOperations.WithLabelValues("set", "error").Inc()
		return fmt.Errorf("%w: %v", apperrors.ErrCacheUnavailable, err)
	}
	metrics.CacheOperations.WithLabelValues("set", "ok").Inc()
	return nil
}

// Delete 删除缓存
func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		metrics.CacheOperations.WithLabelValues("delete", "error").Inc()
		return err
	}
	metrics.CacheOperations.WithLabelValues("delete", "ok").Inc()
	return nil
}

// DeletePrefix 按前缀删除（SCAN 遍历，不阻塞服务端）
func (r *RedisCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			if err := r.Delete(ctx, keys...); err != nil {
				return deleted, err
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Publish 写入估值事件流
func (r *RedisCache) Publish(ctx context.Context, values map[string]interface{}) (string, error) {
	id, err := r.XAdd(ctx, r.stream, values)
	if err != nil {
		metrics.CacheOperations.WithLabelValues("xadd", "error").Inc()
		return "", fmt.Errorf("%w: %v", apperrors.ErrCacheUnavailable, err)
	}
	metrics.CacheOperations.WithLabelValues("xadd", "ok").Inc()
	return id, nil
}

// XAdd 添加到 Stream
func (r *RedisCache) XAdd(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
}

// Close 关闭连接
func (r *RedisCache) Close() error {
	return r.client.Close()
}
