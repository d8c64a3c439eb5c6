package adapter

import (
	"context"
	"sync/atomic"
	"time"

	"carecall-monitor/internal/models"
)

// 重连与读取节奏
const (
	// ReconnectBackoff 意外断开后到下一次重连的固定退避
	ReconnectBackoff = 30 * time.Second
	// ReadTimeout 阻塞读的单次超时，Stop 信号最迟一个周期内被观察到
	ReadTimeout = time.Second
)

// ConnState 适配器连接状态机
// Disconnected → Connecting → Listening → {Disconnected(出错退避) | Stopped(显式停止)}
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateListening
	StateStopped
)

// String 返回状态名称
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	default:
		return "disconnected"
	}
}

// EventHandler 归一化事件回调（由 SiteMonitor 实现）
type EventHandler interface {
	// HandleRaise 处理呼叫发起事件
	HandleRaise(ctx context.Context, event models.CallEvent)
	// HandleCancel 处理呼叫解除事件（roomOrKey 可能是房间名或完整 room_key）
	HandleCancel(ctx context.Context, roomOrKey string, eventID string)
}

// Adapter 协议适配器统一契约
// Connect 建立/绑定底层资源；Run 阻塞运行读取循环（内部含单一重连循环）；
// Stop 通知退出并释放资源，可从其他 goroutine 调用
type Adapter interface {
	Kind() string
	Connect(ctx context.Context) error
	Run(ctx context.Context) error
	Stop() error
	State() ConnState
	Stats() Stats
}

// Stats 适配器层计数器快照
type Stats struct {
	EventsReceived uint64 `json:"events_received"`
	ParseDrops     uint64 `json:"parse_drops"`
}

// counters 原子计数器（适配器内部共用）
type counters struct {
	received uint64
	dropped  uint64
}

func (c *counters) stats() Stats {
	return Stats{
		EventsReceived: atomic.LoadUint64(&c.received),
		ParseDrops:     atomic.LoadUint64(&c.dropped),
	}
}

// connState 原子状态封装
type connState struct {
	v int32
}

func (s *connState) set(state ConnState) {
	atomic.StoreInt32(&s.v, int32(state))
}

func (s *connState) get() ConnState {
	return ConnState(atomic.LoadInt32(&s.v))
}
