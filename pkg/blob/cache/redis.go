// Package cache 提供 blob.URLCache 的 Redis 实现
// 多个服务实例共享同一份签名 URL 缓存时用它替换默认的进程内缓存
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	RedisURL string // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
}

// URLCache 把签名 URL 存进 Redis，TTL 由调用方逐条指定
type URLCache struct {
	client *redis.Client
}

func NewURLCache(cfg Config) (*URLCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &URLCache{client: client}, nil
}

// cacheKey 加前缀防止和别的业务键冲突
func (c *URLCache) cacheKey(key string) string {
	return "dv:url:" + key
}

// Get 查缓存
// 架构决策：缓存故障降级 —— Redis 挂了就当 miss 处理，上层会重签一次，
// 绝不因为缓存不可用让主流程崩掉
func (c *URLCache) Get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	val, err := c.client.Get(ctx, c.cacheKey(key)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		slog.Warn("redis url cache get failed, degrading to re-sign", "error", err)
		return "", false
	}
	return val, true
}

// Set 写缓存，错误只记日志不上抛 (条目是建议性质的)
func (c *URLCache) Set(key string, url string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, c.cacheKey(key), url, ttl).Err(); err != nil {
		slog.Warn("redis url cache set failed", "error", err)
	}
}
