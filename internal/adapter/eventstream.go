package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"carecall-monitor/internal/metrics"
	"carecall-monitor/internal/models"
)

// KindEventStream 事件流适配器类型标识
const KindEventStream = "eventstream"

const (
	// HeartbeatInterval 时间同步心跳间隔
	HeartbeatInterval = 6 * time.Minute
	// pingInterval 链路保活 ping 间隔
	pingInterval = 30 * time.Second
	// keepAliveTimeout 读超时：超过该时长没有任何帧/Pong 即判定链路断开
	keepAliveTimeout = 75 * time.Second
	// dialTimeout 单个候选端点的握手超时
	dialTimeout = 10 * time.Second
)

// EventStreamConfig 事件流适配器配置
type EventStreamConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DeviceID string `yaml:"device_id"`
	// Endpoint 显式端点（测试或非标准部署用），设置后跳过 wss/ws 逐级协商
	Endpoint string `yaml:"endpoint,omitempty"`
}

// endpoints 候选端点列表，按能力从高到低逐个尝试
func (c EventStreamConfig) endpoints() []string {
	if c.Endpoint != "" {
		return []string{c.Endpoint}
	}
	return []string{
		fmt.Sprintf("wss://%s:%d/eventhub", c.Host, c.Port),
		fmt.Sprintf("ws://%s:%d/eventhub", c.Host, c.Port),
	}
}

// streamFrame 设备端推送的结构化事件
// raiseCall 携带全部字段；cancelCall 只有 messageText 与 eventInstanceId
type streamFrame struct {
	Channel        string `json:"channel"`
	MessageText    string `json:"messageText"`
	MessageSubText string `json:"messageSubText"`
	Priority       int    `json:"priority"`
	EventInstanceID string `json:"eventInstanceId"`
	Colour         string `json:"colour"`
	EventDatetime  int64  `json:"eventDatetime"` // 毫秒时间戳
}

// outboundMessage 发往设备端的控制消息（订阅/心跳/确认）
type outboundMessage struct {
	Type            string `json:"type"`
	Channel         string `json:"channel,omitempty"`
	DeviceID        string `json:"deviceId,omitempty"`
	EventInstanceID string `json:"eventInstanceId,omitempty"`
	Time            int64  `json:"time,omitempty"`
}

// RemapVendorPriority 厂商优先级（0/1/2）到标准优先级的映射
// 注意该厂商的 priority 1 表示最低紧急度：
//
//	1 → Normal(3)，2 → StaffAssist(2)，其余 → Emergency(1)
//
// 与 Syslog 侧编号不对称，属既有硬件行为，不要"修正"
func RemapVendorPriority(vendorPriority int) models.CallType {
	switch vendorPriority {
	case 1:
		return models.CallTypeNormal
	case 2:
		return models.CallTypeStaffAssist
	default:
		return models.CallTypeEmergency
	}
}

// EventStreamAdapter 持久双向连接的事件流适配器
// 订阅设备的 raiseCall / cancelCall 通道，周期发送时间同步心跳，
// 每处理一条 raise 事件回发一条按事件 ID 确认的 ack
type EventStreamAdapter struct {
	cfg     EventStreamConfig
	handler EventHandler
	logger  *zap.Logger

	state    connState
	counters counters

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewEventStreamAdapter 创建事件流适配器
func NewEventStreamAdapter(cfg EventStreamConfig, handler EventHandler, logger *zap.Logger) *EventStreamAdapter {
	return &EventStreamAdapter{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Kind 适配器类型
func (a *EventStreamAdapter) Kind() string {
	return KindEventStream
}

// State 当前连接状态
func (a *EventStreamAdapter) State() ConnState {
	return a.state.get()
}

// Stats 计数器快照
func (a *EventStreamAdapter) Stats() Stats {
	return a.counters.stats()
}

// Connect 逐个尝试候选端点建立连接并订阅事件通道
func (a *EventStreamAdapter) Connect(ctx context.Context) error {
	a.state.set(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}

	var lastErr error
	for _, endpoint := range a.cfg.endpoints() {
		conn, _, err := dialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			// 能力不足或不可达，降级尝试下一个传输
			a.logger.Debug("Event stream endpoint unavailable, trying next",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		if err := a.subscribe(conn); err != nil {
			_ = conn.Close()
			lastErr = err
			continue
		}

		a.mu.Lock()
		a.conn = conn
		a.mu.Unlock()

		a.state.set(StateListening)
		a.logger.Info("Event stream connected",
			zap.String("endpoint", endpoint),
			zap.String("device_id", a.cfg.DeviceID),
		)
		return nil
	}

	a.state.set(StateDisconnected)
	return fmt.Errorf("failed to connect event stream for device %s: %w", a.cfg.DeviceID, lastErr)
}

// subscribe 注册 raiseCall / cancelCall 两个通道（按设备 ID 限定范围）
func (a *EventStreamAdapter) subscribe(conn *websocket.Conn) error {
	for _, channel := range []string{"raiseCall", "cancelCall"} {
		msg := outboundMessage{Type: "subscribe", Channel: channel, DeviceID: a.cfg.DeviceID}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("failed to subscribe channel %s: %w", channel, err)
		}
	}
	return nil
}

// Run 阻塞运行读取循环与心跳，直到 Stop 或 ctx 取消
func (a *EventStreamAdapter) Run(ctx context.Context) error {
	hbDone := make(chan struct{})
	go a.heartbeatLoop(hbDone)
	defer close(hbDone)

	for {
		if a.stopped(ctx) {
			a.shutdown()
			return nil
		}

		conn := a.currentConn()
		if conn == nil {
			if err := a.reconnect(ctx); err != nil {
				a.shutdown()
				return nil
			}
			continue
		}

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(keepAliveTimeout))
		})

		_ = conn.SetReadDeadline(time.Now().Add(keepAliveTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if a.stopped(ctx) {
				a.shutdown()
				return nil
			}

			a.logger.Warn("Event stream read error, reconnecting after backoff", zap.Error(err))
			a.closeConn()
			a.state.set(StateDisconnected)
			if err := a.reconnect(ctx); err != nil {
				a.shutdown()
				return nil
			}
			continue
		}

		a.handleFrame(ctx, data)
	}
}

// Stop 通知退出并关闭连接（幂等，可跨 goroutine 调用）
func (a *EventStreamAdapter) Stop() error {
	a.stopOnce.Do(func() {
		close(a.stopCh)
		a.closeConn()
	})
	return nil
}

// handleFrame 处理一条入站帧
func (a *EventStreamAdapter) handleFrame(ctx context.Context, data []byte) {
	var frame streamFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		atomic.AddUint64(&a.counters.dropped, 1)
		metrics.ParseDrops.WithLabelValues(KindEventStream).Inc()
		return
	}

	switch frame.Channel {
	case "raiseCall":
		atomic.AddUint64(&a.counters.received, 1)

		callType := RemapVendorPriority(frame.Priority)
		startTime := time.Now()
		if frame.EventDatetime > 0 {
			startTime = time.UnixMilli(frame.EventDatetime)
		}

		a.handler.HandleRaise(ctx, models.CallEvent{
			Room:      frame.MessageText,
			CallType:  callType,
			Priority:  callType.Priority(),
			StartTime: startTime,
			EventID:   frame.EventInstanceID,
			Text:      frame.MessageText,
			Subtext:   frame.MessageSubText,
			Color:     frame.Colour,
		})

		// 每条已处理的 raise 事件按事件 ID 回发确认
		a.send(outboundMessage{Type: "ack", EventInstanceID: frame.EventInstanceID})

	case "cancelCall":
		atomic.AddUint64(&a.counters.received, 1)
		a.handler.HandleCancel(ctx, frame.MessageText, frame.EventInstanceID)

	default:
		atomic.AddUint64(&a.counters.dropped, 1)
		metrics.ParseDrops.WithLabelValues(KindEventStream).Inc()
	}
}

// heartbeatLoop 周期发送链路 ping 与时间同步消息
func (a *EventStreamAdapter) heartbeatLoop(done <-chan struct{}) {
	pingTicker := time.NewTicker(pingInterval)
	syncTicker := time.NewTicker(HeartbeatInterval)
	defer pingTicker.Stop()
	defer syncTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-a.stopCh:
			return
		case <-pingTicker.C:
			a.ping()
		case <-syncTicker.C:
			a.send(outboundMessage{
				Type:     "timeSync",
				DeviceID: a.cfg.DeviceID,
				Time:     time.Now().UnixMilli(),
			})
		}
	}
}

// send 序列化并写出一条控制消息（与心跳共用写锁）
func (a *EventStreamAdapter) send(msg outboundMessage) {
	conn := a.currentConn()
	if conn == nil {
		return
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		a.logger.Debug("Failed to write event stream message",
			zap.String("type", msg.Type),
			zap.Error(err),
		)
	}
}

func (a *EventStreamAdapter) ping() {
	conn := a.currentConn()
	if conn == nil {
		return
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// reconnect 固定退避后重连，期间可被 Stop 中断
func (a *EventStreamAdapter) reconnect(ctx context.Context) error {
	select {
	case <-a.stopCh:
		return errors.New("adapter stopped")
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(ReconnectBackoff):
	}
	return a.Connect(ctx)
}

func (a *EventStreamAdapter) currentConn() *websocket.Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn
}

func (a *EventStreamAdapter) stopped(ctx context.Context) bool {
	select {
	case <-a.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (a *EventStreamAdapter) closeConn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}

func (a *EventStreamAdapter) shutdown() {
	a.closeConn()
	a.state.set(StateStopped)
}
