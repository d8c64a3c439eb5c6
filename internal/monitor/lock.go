package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// DefaultLockTTL 领导权租约时长
const DefaultLockTTL = 30 * time.Second

// LeaderLock 单实例领导权锁
// 绑定独占 OS 资源（UDP 端口）的监控器在绑定前必须先取得该锁；
// 取不到属正常待机条件，不是错误。实现可以是 Redis 租约、文件锁或数据库行租约，
// 要保持的是 active/standby/崩溃接管 协议本身
type LeaderLock interface {
	// TryAcquire 尝试取得（或续上自己已持有的）租约
	TryAcquire(ctx context.Context) (bool, error)
	// Refresh 续约，返回是否仍持有
	Refresh(ctx context.Context) (bool, error)
	// Release 释放自己持有的租约（他人持有时不动）
	Release(ctx context.Context) error
}

// RedisLeaderLock 基于 Redis SET NX PX 的租约实现
// 键由 (site_id, listen_port) 标识；持有方崩溃后租约到期，待机实例接管。
// 同一持有标识只有一个续约者，GET 与 EXPIRE 之间无并发竞争
type RedisLeaderLock struct {
	client *redis.Client
	key    string
	holder string
	ttl    time.Duration
}

// NewRedisLeaderLock 创建 Redis 领导权锁
func NewRedisLeaderLock(client *redis.Client, siteID string, listenPort int, ttl time.Duration) *RedisLeaderLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLeaderLock{
		client: client,
		key:    fmt.Sprintf("carecall:leader:%s:%d", siteID, listenPort),
		holder: uuid.New().String(),
		ttl:    ttl,
	}
}

// TryAcquire 尝试取得租约
func (l *RedisLeaderLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.holder, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire leader lock: %w", err)
	}
	if ok {
		return true, nil
	}

	// 自己已是持有者时视为成功并顺带续约
	current, err := l.client.Get(ctx, l.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect leader lock: %w", err)
	}
	if current != l.holder {
		return false, nil
	}

	if err := l.client.Expire(ctx, l.key, l.ttl).Err(); err != nil {
		return false, fmt.Errorf("failed to refresh leader lock: %w", err)
	}
	return true, nil
}

// Refresh 续约
func (l *RedisLeaderLock) Refresh(ctx context.Context) (bool, error) {
	current, err := l.client.Get(ctx, l.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect leader lock: %w", err)
	}
	if current != l.holder {
		return false, nil
	}

	if err := l.client.Expire(ctx, l.key, l.ttl).Err(); err != nil {
		return false, fmt.Errorf("failed to refresh leader lock: %w", err)
	}
	return true, nil
}

// Release 释放租约
func (l *RedisLeaderLock) Release(ctx context.Context) error {
	current, err := l.client.Get(ctx, l.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to inspect leader lock: %w", err)
	}
	if current != l.holder {
		return nil
	}

	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("failed to release leader lock: %w", err)
	}
	return nil
}
