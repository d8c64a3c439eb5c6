package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"carecall-monitor/internal/adapter"
	"carecall-monitor/internal/dedup"
	"carecall-monitor/internal/metrics"
	"carecall-monitor/internal/models"
	"carecall-monitor/internal/store"
)

// 监控器状态
const (
	MonitorStandby = "standby"
	MonitorActive  = "active"
	MonitorFailed  = "failed"
	MonitorStopped = "stopped"
)

// timings 生命周期节奏（测试中可缩短）
type timings struct {
	standbyPoll  time.Duration // 待机时的锁轮询间隔
	bindRetry    time.Duration // 绑定失败后的重试间隔
	bindAttempts int           // 绑定重试上限，超过即判定 failed to bind
	lockRefresh  time.Duration // 租约续约间隔
	stopJoin     time.Duration // Stop 等待工作协程退出的超时
}

func defaultTimings() timings {
	return timings{
		standbyPoll:  10 * time.Second,
		bindRetry:    5 * time.Second,
		bindAttempts: 12,
		lockRefresh:  DefaultLockTTL / 2,
		stopJoin:     10 * time.Second,
	}
}

// SiteMonitor 站点监控器
// 独占持有一个协议适配器、一个站点呼叫存储分区和一个去重引擎；
// 适配器跑在专属后台 goroutine 上。进程内每个 site_id 只会构造一个实例
type SiteMonitor struct {
	siteID   string
	siteName string
	adapter  adapter.Adapter
	store    *store.CallStore
	dedup    *dedup.Engine
	lock     LeaderLock // 适配器不独占 OS 资源时为 nil
	logger   *zap.Logger
	timings  timings

	processed uint64
	cancelled uint64
	dedupHits uint64

	mu        sync.Mutex
	state     string
	lastError string
	started   bool
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// AdapterFactory 适配器构造函数：监控器自身作为事件回调传入
type AdapterFactory func(handler adapter.EventHandler) adapter.Adapter

// NewSiteMonitor 创建站点监控器（lock 仅对需要独占资源的适配器传入）
func NewSiteMonitor(
	siteID string,
	siteName string,
	factory AdapterFactory,
	callStore *store.CallStore,
	lock LeaderLock,
	logger *zap.Logger,
) *SiteMonitor {
	m := &SiteMonitor{
		siteID:   siteID,
		siteName: siteName,
		store:    callStore,
		dedup:    dedup.NewEngine(dedup.DefaultTTL),
		lock:     lock,
		logger:   logger.With(zap.String("site_id", siteID)),
		timings:  defaultTimings(),
		state:    MonitorStopped,
	}
	m.adapter = factory(m)
	return m
}

// SiteID 所属站点
func (m *SiteMonitor) SiteID() string {
	return m.siteID
}

// SiteName 站点名称
func (m *SiteMonitor) SiteName() string {
	return m.siteName
}

// Store 站点呼叫存储分区
func (m *SiteMonitor) Store() *store.CallStore {
	return m.store
}

// Start 启动后台工作协程（幂等；与 Stop 的并发调用由调用方串行化）
func (m *SiteMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.started = true
	m.startedAt = time.Now()
	m.cancel = cancel
	m.done = make(chan struct{})
	m.dedup.Reset()
	m.mu.Unlock()

	m.logger.Info("Starting site monitor", zap.String("adapter", m.adapter.Kind()))
	go m.run(runCtx)
	return nil
}

// Stop 通知工作协程退出、释放资源锁并带超时等待其结束（幂等）
func (m *SiteMonitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	_ = m.adapter.Stop()
	cancel()

	select {
	case <-done:
	case <-time.After(m.timings.stopJoin):
		m.logger.Warn("Timed out waiting for monitor worker to exit")
	case <-ctx.Done():
	}

	if m.lock != nil {
		if err := m.lock.Release(context.Background()); err != nil {
			m.logger.Warn("Failed to release leader lock", zap.Error(err))
		}
	}

	m.setState(MonitorStopped)
	m.logger.Info("Site monitor stopped")
	return nil
}

// run 工作协程：领导权 → 绑定 → 适配器读取循环
func (m *SiteMonitor) run(ctx context.Context) {
	defer close(m.done)

	// 领导权：取不到锁就进入待机轮询，持有方消失后接管
	if m.lock != nil {
		for {
			ok, err := m.lock.TryAcquire(ctx)
			if err != nil {
				m.recordError(err)
			}
			if ok {
				break
			}

			m.setState(MonitorStandby)
			if !m.sleep(ctx, m.timings.standbyPoll) {
				return
			}
		}
	}

	m.setState(MonitorActive)

	// 绑定：锁到手后端口仍可能被崩溃进程的 OS 残留占用，按固定计划重试
	bound := false
	for attempt := 1; attempt <= m.timings.bindAttempts; attempt++ {
		err := m.adapter.Connect(ctx)
		if err == nil {
			bound = true
			break
		}

		m.recordError(err)
		m.logger.Warn("Adapter bind failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.timings.bindAttempts),
			zap.Error(err),
		)
		if !m.sleep(ctx, m.timings.bindRetry) {
			m.releaseLock()
			return
		}
	}
	if !bound {
		m.setState(MonitorFailed)
		m.setLastError("failed to bind")
		m.releaseLock()
		m.logger.Error("Giving up binding adapter", zap.String("site_name", m.siteName))
		return
	}

	refreshDone := make(chan struct{})
	if m.lock != nil {
		go m.refreshLoop(ctx, refreshDone)
	}

	// 阻塞运行，内部处理断线重连，Stop 后返回
	if err := m.adapter.Run(ctx); err != nil {
		m.recordError(err)
	}

	close(refreshDone)
	m.releaseLock()
}

// refreshLoop 周期续约
// 续约失败只记诊断：端口仍被本进程持有，advisory 锁丢失不改变资源归属
func (m *SiteMonitor) refreshLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(m.timings.lockRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := m.lock.Refresh(ctx)
			if err != nil {
				m.logger.Warn("Leader lock refresh error", zap.Error(err))
				continue
			}
			if !held {
				m.setLastError("leader lock lost")
				m.logger.Error("Leader lock no longer held")
			}
		}
	}
}

// HandleRaise 实现 adapter.EventHandler：去重后写入活跃呼叫
func (m *SiteMonitor) HandleRaise(ctx context.Context, event models.CallEvent) {
	metrics.EventsReceived.WithLabelValues(m.siteID).Inc()

	key := models.RoomKey(event.Room, event.CallType)
	if !m.dedup.ShouldProcess(key, "raise", time.Now()) {
		atomic.AddUint64(&m.dedupHits, 1)
		metrics.DedupDrops.WithLabelValues(m.siteID).Inc()
		return
	}

	atomic.AddUint64(&m.processed, 1)
	metrics.EventsProcessed.WithLabelValues(m.siteID).Inc()
	m.store.SaveCall(ctx, event)
}

// HandleCancel 实现 adapter.EventHandler：去重后归档
// 先按标识直接归档（键或事件 ID），未命中且有事件 ID 时再按事件 ID 归档
func (m *SiteMonitor) HandleCancel(ctx context.Context, roomOrKey, eventID string) {
	metrics.EventsReceived.WithLabelValues(m.siteID).Inc()

	dedupKey := roomOrKey
	if dedupKey == "" {
		dedupKey = eventID
	}
	if !m.dedup.ShouldProcess(dedupKey, "cancel", time.Now()) {
		atomic.AddUint64(&m.dedupHits, 1)
		metrics.DedupDrops.WithLabelValues(m.siteID).Inc()
		return
	}

	atomic.AddUint64(&m.cancelled, 1)
	metrics.EventsCancelled.WithLabelValues(m.siteID).Inc()

	if roomOrKey != "" {
		if m.store.ArchiveCall(ctx, roomOrKey) {
			return
		}
	}
	if eventID != "" {
		m.store.ArchiveCall(ctx, eventID)
	}
}

// Snapshot 诊断快照
func (m *SiteMonitor) Snapshot() models.MonitorSnapshot {
	m.mu.Lock()
	state := m.state
	lastError := m.lastError
	startedAt := m.startedAt
	m.mu.Unlock()

	if lastError == "" {
		lastError = m.store.LastError()
	}

	stats := m.adapter.Stats()
	return models.MonitorSnapshot{
		SiteID:          m.siteID,
		SiteName:        m.siteName,
		AdapterKind:     m.adapter.Kind(),
		MonitorState:    state,
		ConnState:       m.adapter.State().String(),
		LastError:       lastError,
		EventsReceived:  stats.EventsReceived,
		EventsProcessed: atomic.LoadUint64(&m.processed),
		EventsCancelled: atomic.LoadUint64(&m.cancelled),
		ParseDrops:      stats.ParseDrops,
		DedupDrops:      atomic.LoadUint64(&m.dedupHits),
		StartedAt:       startedAt,
	}
}

// State 当前监控器状态
func (m *SiteMonitor) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// sleep 可被 ctx 取消打断的等待，返回是否应继续运行
func (m *SiteMonitor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (m *SiteMonitor) releaseLock() {
	if m.lock == nil {
		return
	}
	if err := m.lock.Release(context.Background()); err != nil {
		m.logger.Warn("Failed to release leader lock", zap.Error(err))
	}
}

func (m *SiteMonitor) setState(state string) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *SiteMonitor) setLastError(msg string) {
	m.mu.Lock()
	m.lastError = msg
	m.mu.Unlock()
}

func (m *SiteMonitor) recordError(err error) {
	m.setLastError(err.Error())
}
