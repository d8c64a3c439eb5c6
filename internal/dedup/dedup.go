package dedup

import (
	"sync"
	"time"
)

// DefaultTTL 默认去重窗口
// 设施硬件会把同一事件多播给多个显示组，窗口内的重复上报只处理一次
const DefaultTTL = 5 * time.Second

type entry struct {
	key    string
	action string
}

// Engine 事件去重引擎（站点内共享，带 TTL 的内存表）
type Engine struct {
	mu       sync.Mutex
	ttl      time.Duration
	lastSeen map[entry]time.Time
}

// NewEngine 创建去重引擎，ttl <= 0 时使用 DefaultTTL
func NewEngine(ttl time.Duration) *Engine {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Engine{
		ttl:      ttl,
		lastSeen: make(map[entry]time.Time),
	}
}

// ShouldProcess 判断 (key, action) 是否应当被处理
// 先清理过期条目；窗口内已出现过则抑制，否则记录 now 并放行
func (e *Engine) ShouldProcess(key, action string, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for k, seen := range e.lastSeen {
		if now.Sub(seen) > e.ttl {
			delete(e.lastSeen, k)
		}
	}

	k := entry{key: key, action: action}
	if _, ok := e.lastSeen[k]; ok {
		return false
	}

	e.lastSeen[k] = now
	return true
}

// Reset 清空全部去重状态（监控器重启时调用）
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = make(map[entry]time.Time)
}
