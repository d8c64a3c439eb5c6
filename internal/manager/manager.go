package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"carecall-monitor/internal/adapter"
	"carecall-monitor/internal/config"
	"carecall-monitor/internal/models"
	"carecall-monitor/internal/monitor"
	"carecall-monitor/internal/notify"
	"carecall-monitor/internal/repository"
	"carecall-monitor/internal/store"
	"carecall-monitor/internal/urgency"
)

// ErrMonitorExists 站点重复注册
var ErrMonitorExists = errors.New("monitor already registered for site")

// ErrMonitorNotFound 站点未注册
var ErrMonitorNotFound = errors.New("monitor not registered for site")

// Aggregated 聚合查询结果（附带分级阈值，供调用方渲染倒计时）
type Aggregated struct {
	models.AggregatedCalls
	Settings urgency.Settings `json:"settings"`
}

// Deps 构造站点监控器所需的共享依赖
type Deps struct {
	ActiveRepo  *repository.ActiveCallsRepository
	HistoryRepo *repository.CallHistoryRepository
	Settings    notify.SettingsSource
	Publisher   store.EventPublisher // 可为 nil（不发布事件流）
	Redis       *redis.Client        // 可为 nil（无领导权锁，单实例部署）
	Dispatcher  *notify.Dispatcher   // 可为 nil（不推送）
}

// MultiSiteManager 站点监控器注册表
// 注册、生命周期与跨站点聚合查询的唯一入口
type MultiSiteManager struct {
	mu       sync.RWMutex
	monitors map[string]*monitor.SiteMonitor
	order    []string // 注册顺序，聚合输出按此排列

	deps   Deps
	logger *zap.Logger
}

func NewMultiSiteManager(deps Deps, logger *zap.Logger) *MultiSiteManager {
	return &MultiSiteManager{
		monitors: make(map[string]*monitor.SiteMonitor),
		deps:     deps,
		logger:   logger,
	}
}

// RegisterMonitor 注册并启动站点监控器
// 未激活或缺少适配器配置的站点跳过（返回 nil），重复注册返回 ErrMonitorExists
func (m *MultiSiteManager) RegisterMonitor(ctx context.Context, site config.SiteConfig) error {
	if !site.IsActive {
		m.logger.Info("Skipping inactive site", zap.String("site_id", site.ID))
		return nil
	}

	kind, err := site.ResolveAdapterKind()
	if err != nil {
		m.logger.Warn("Skipping site without usable adapter config",
			zap.String("site_id", site.ID),
			zap.Error(err),
		)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.monitors[site.ID]; ok {
		return fmt.Errorf("%w: %s", ErrMonitorExists, site.ID)
	}

	callStore := store.NewCallStore(site.ID, m.deps.ActiveRepo, m.deps.HistoryRepo, m.deps.Publisher, m.logger)
	if m.deps.Dispatcher != nil {
		dispatcher := m.deps.Dispatcher
		callStore.OnSaved(func(call models.ActiveCall) {
			// 推送走独立协程：通知旁路不得阻塞事件落库
			go dispatcher.CallSaved(context.Background(), call)
		})
	}

	var factory monitor.AdapterFactory
	var lock monitor.LeaderLock
	switch kind {
	case config.AdapterSyslog:
		cfg := *site.Syslog
		factory = func(h adapter.EventHandler) adapter.Adapter {
			return adapter.NewSyslogAdapter(cfg, h, m.logger)
		}
		// UDP 端口是独占 OS 资源，跨进程部署需领导权锁
		if m.deps.Redis != nil {
			lock = monitor.NewRedisLeaderLock(m.deps.Redis, site.ID, cfg.ListenPort, monitor.DefaultLockTTL)
		}
	case config.AdapterEventStream:
		cfg := *site.EventStream
		factory = func(h adapter.EventHandler) adapter.Adapter {
			return adapter.NewEventStreamAdapter(cfg, h, m.logger)
		}
	}

	sm := monitor.NewSiteMonitor(site.ID, site.SiteName, factory, callStore, lock, m.logger)
	if err := sm.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitor for site %s: %w", site.ID, err)
	}

	m.monitors[site.ID] = sm
	m.order = append(m.order, site.ID)
	m.logger.Info("Registered site monitor",
		zap.String("site_id", site.ID),
		zap.String("site_name", site.SiteName),
		zap.String("adapter", kind),
	)
	return nil
}

// GetMonitor 按站点查找监控器
func (m *MultiSiteManager) GetMonitor(siteID string) (*monitor.SiteMonitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sm, ok := m.monitors[siteID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMonitorNotFound, siteID)
	}
	return sm, nil
}

// GetSiteActiveCalls 单站点活跃呼叫（按紧急度排序，读取时分级）
func (m *MultiSiteManager) GetSiteActiveCalls(ctx context.Context, siteID string) ([]models.DecoratedCall, error) {
	sm, err := m.GetMonitor(siteID)
	if err != nil {
		return nil, err
	}
	return sm.Store().GetActiveCalls(ctx, time.Now(), m.settings(ctx, siteID)), nil
}

// GetAllActiveCalls 全部已注册站点的活跃呼叫拼接
func (m *MultiSiteManager) GetAllActiveCalls(ctx context.Context) []models.DecoratedCall {
	var out []models.DecoratedCall
	for _, sm := range m.ordered() {
		out = append(out, sm.Store().GetActiveCalls(ctx, time.Now(), m.settings(ctx, sm.SiteID()))...)
	}
	return out
}

// GetAggregatedCalls 权限范围内的跨站点聚合
// allowedSites 为站点名集合；allSites 为真时忽略集合。过滤发生在逐站点取数之前，
// 未授权站点连条数都不会出现在结果里
func (m *MultiSiteManager) GetAggregatedCalls(ctx context.Context, allowedSites map[string]bool, allSites bool) Aggregated {
	result := Aggregated{
		AggregatedCalls: models.AggregatedCalls{
			CallsBySite: make(map[string][]models.DecoratedCall),
		},
		Settings: m.settings(ctx, ""),
	}

	for _, sm := range m.ordered() {
		if !allSites && !allowedSites[sm.SiteName()] {
			continue
		}

		calls := sm.Store().GetActiveCalls(ctx, time.Now(), m.settings(ctx, sm.SiteID()))
		result.Sites = append(result.Sites, models.SiteMeta{
			SiteID:    sm.SiteID(),
			SiteName:  sm.SiteName(),
			CallCount: len(calls),
		})
		result.CallsBySite[sm.SiteID()] = calls
		result.TotalCount += len(calls)
	}
	return result
}

// CancelCall 人工解除呼叫，identifier 为 room_key 或上游事件 ID
// 返回是否实际归档（解除不存在的呼叫不是错误）
func (m *MultiSiteManager) CancelCall(ctx context.Context, siteID, identifier string) (bool, error) {
	sm, err := m.GetMonitor(siteID)
	if err != nil {
		return false, err
	}
	return sm.Store().ArchiveCall(ctx, identifier), nil
}

// ResetSiteCalls 清空单站点活跃呼叫表
func (m *MultiSiteManager) ResetSiteCalls(ctx context.Context, siteID string) error {
	sm, err := m.GetMonitor(siteID)
	if err != nil {
		return err
	}
	if !sm.Store().ClearAll(ctx) {
		return fmt.Errorf("failed to reset active calls for site %s", siteID)
	}
	return nil
}

// ResetAllCalls 清空所有站点的活跃呼叫表（启动时恢复上次异常退出的残留）
func (m *MultiSiteManager) ResetAllCalls(ctx context.Context) {
	for _, sm := range m.ordered() {
		if !sm.Store().ClearAll(ctx) {
			m.logger.Warn("Failed to reset active calls", zap.String("site_id", sm.SiteID()))
		}
	}
}

// StopAll 停止全部监控器，单个失败只记日志不中断其余站点
func (m *MultiSiteManager) StopAll(ctx context.Context) {
	for _, sm := range m.ordered() {
		if err := sm.Stop(ctx); err != nil {
			m.logger.Error("Failed to stop site monitor",
				zap.String("site_id", sm.SiteID()),
				zap.Error(err),
			)
		}
	}
	m.logger.Info("All site monitors stopped")
}

// Snapshots 全部监控器的诊断快照
func (m *MultiSiteManager) Snapshots() []models.MonitorSnapshot {
	monitors := m.ordered()
	out := make([]models.MonitorSnapshot, 0, len(monitors))
	for _, sm := range monitors {
		out = append(out, sm.Snapshot())
	}
	return out
}

// ordered 按注册顺序返回监控器
func (m *MultiSiteManager) ordered() []*monitor.SiteMonitor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*monitor.SiteMonitor, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.monitors[id])
	}
	return out
}

// settings 读取分级阈值，取不到时退回内置默认值（降级不中断查询）
func (m *MultiSiteManager) settings(ctx context.Context, siteID string) urgency.Settings {
	if m.deps.Settings == nil {
		return urgency.DefaultSettings()
	}
	s, err := m.deps.Settings.Get(ctx, siteID)
	if err != nil {
		m.logger.Warn("Failed to load urgency settings, using defaults",
			zap.String("site_id", siteID),
			zap.Error(err),
		)
		return urgency.DefaultSettings()
	}
	return s
}
