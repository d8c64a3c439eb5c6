package redisx

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// Config Redis 配置
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient 创建 Redis 客户端
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping 测试 Redis 连接
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}
