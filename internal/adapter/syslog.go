package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"carecall-monitor/internal/metrics"
	"carecall-monitor/internal/models"
)

// KindSyslog Syslog 适配器类型标识
const KindSyslog = "syslog"

// SyslogConfig Syslog 适配器配置
type SyslogConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`     // 监听地址，默认 0.0.0.0
	ListenPort     int      `yaml:"listen_port"`     // UDP 端口（独占 OS 资源，需领导权锁）
	AllowedSources []string `yaml:"allowed_sources"` // 来源 IP 白名单，为空则全部放行
}

// SyslogAdapter 接收寻呼网关 UDP 报文的协议适配器
// 绑定独占 UDP 端口，逐条解码数据报并派发归一化事件
type SyslogAdapter struct {
	cfg     SyslogConfig
	handler EventHandler
	logger  *zap.Logger

	state    connState
	counters counters
	allowed  map[string]struct{}

	mu       sync.Mutex
	conn     *net.UDPConn
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSyslogAdapter 创建 Syslog 适配器
func NewSyslogAdapter(cfg SyslogConfig, handler EventHandler, logger *zap.Logger) *SyslogAdapter {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "0.0.0.0"
	}

	var allowed map[string]struct{}
	if len(cfg.AllowedSources) > 0 {
		allowed = make(map[string]struct{}, len(cfg.AllowedSources))
		for _, src := range cfg.AllowedSources {
			allowed[src] = struct{}{}
		}
	}

	return &SyslogAdapter{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		allowed: allowed,
		stopCh:  make(chan struct{}),
	}
}

// Kind 适配器类型
func (a *SyslogAdapter) Kind() string {
	return KindSyslog
}

// State 当前连接状态
func (a *SyslogAdapter) State() ConnState {
	return a.state.get()
}

// Stats 计数器快照
func (a *SyslogAdapter) Stats() Stats {
	return a.counters.stats()
}

// Connect 绑定 UDP 监听端口
// 端口被其他进程占用时返回错误，由 SiteMonitor 按绑定重试计划处理
func (a *SyslogAdapter) Connect(ctx context.Context) error {
	a.state.set(StateConnecting)

	addr := &net.UDPAddr{
		IP:   net.ParseIP(a.cfg.ListenAddr),
		Port: a.cfg.ListenPort,
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		a.state.set(StateDisconnected)
		return fmt.Errorf("failed to bind UDP port %d: %w", a.cfg.ListenPort, err)
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	a.state.set(StateListening)
	a.logger.Info("Syslog adapter listening",
		zap.String("addr", a.cfg.ListenAddr),
		zap.Int("port", a.cfg.ListenPort),
	)
	return nil
}

// Run 阻塞运行读取循环，直到 Stop 或 ctx 取消
// 读取出错时进入固定退避后重新绑定（单一重连循环，不按报文重试）
func (a *SyslogAdapter) Run(ctx context.Context) error {
	buf := make([]byte, 4096)

	for {
		if a.stopped(ctx) {
			a.shutdown()
			return nil
		}

		a.mu.Lock()
		conn := a.conn
		a.mu.Unlock()
		if conn == nil {
			if err := a.reconnect(ctx); err != nil {
				a.shutdown()
				return nil
			}
			continue
		}

		_ = conn.SetReadDeadline(time.Now().Add(ReadTimeout))
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if a.stopped(ctx) {
				a.shutdown()
				return nil
			}

			a.logger.Warn("Syslog read error, reconnecting after backoff", zap.Error(err))
			a.closeConn()
			a.state.set(StateDisconnected)
			if err := a.reconnect(ctx); err != nil {
				a.shutdown()
				return nil
			}
			continue
		}

		a.handleDatagram(ctx, string(buf[:n]), src)
	}
}

// LocalAddr 实际绑定的本地地址（配置端口为 0 时由 OS 分配）
func (a *SyslogAdapter) LocalAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	return a.conn.LocalAddr()
}

// Stop 通知读取循环退出并关闭套接字（可跨 goroutine 调用，幂等）
func (a *SyslogAdapter) Stop() error {
	a.stopOnce.Do(func() {
		close(a.stopCh)
		a.closeConn()
	})
	return nil
}

// handleDatagram 处理一条数据报：来源过滤 → 解析 → 派发
func (a *SyslogAdapter) handleDatagram(ctx context.Context, raw string, src *net.UDPAddr) {
	if a.allowed != nil {
		if _, ok := a.allowed[src.IP.String()]; !ok {
			a.logger.Debug("Dropping datagram from disallowed source", zap.String("source", src.IP.String()))
			return
		}
	}

	atomic.AddUint64(&a.counters.received, 1)

	parsed, ok := ParseSyslogFrame(raw)
	if !ok {
		// 非 "dispatched" 框架或未知类型，静默丢弃并计数
		atomic.AddUint64(&a.counters.dropped, 1)
		metrics.ParseDrops.WithLabelValues(KindSyslog).Inc()
		return
	}

	if parsed.Cancelled {
		a.handler.HandleCancel(ctx, models.RoomKey(parsed.Room, parsed.CallType), "")
		return
	}

	a.handler.HandleRaise(ctx, models.CallEvent{
		Room:      parsed.Room,
		CallType:  parsed.CallType,
		Priority:  parsed.Priority,
		StartTime: time.Now(),
		Text:      parsed.Room,
	})
}

// reconnect 固定退避后重新绑定，期间可被 Stop 中断
func (a *SyslogAdapter) reconnect(ctx context.Context) error {
	select {
	case <-a.stopCh:
		return errors.New("adapter stopped")
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(ReconnectBackoff):
	}
	return a.Connect(ctx)
}

func (a *SyslogAdapter) stopped(ctx context.Context) bool {
	select {
	case <-a.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (a *SyslogAdapter) closeConn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}

func (a *SyslogAdapter) shutdown() {
	a.closeConn()
	a.state.set(StateStopped)
}
