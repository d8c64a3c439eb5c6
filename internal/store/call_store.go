package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"carecall-monitor/internal/models"
	"carecall-monitor/internal/repository"
	"carecall-monitor/internal/urgency"
)

// SavedHook 新活跃呼叫落库后的回调（通知分发器挂接于此）
type SavedHook func(call models.ActiveCall)

// EventPublisher 呼叫事件对外发布接口（Redis Streams 实现见 redisx）
type EventPublisher interface {
	PublishJSON(ctx context.Context, data any) error
}

// CallEventRecord 发布到事件流的呼叫生命周期记录
type CallEventRecord struct {
	Action    string            `json:"action"` // raised / archived / cleared
	Call      models.ActiveCall `json:"call"`
	Timestamp int64             `json:"timestamp"`
}

// CallStore 单站点活跃呼叫存储门面
//
// 站点内的所有写操作（save/archive/clear）经内部互斥锁串行化；
// 跨站点操作互不竞争。读操作可与写并发，读到即将消失的呼叫属可接受行为。
//
// 失败语义：任何持久化错误在此边界捕获并记日志、写入 last error 诊断字段，
// 调用方得到空/false 结果——临时无数据，而不是故障
type CallStore struct {
	siteID      string
	activeRepo  *repository.ActiveCallsRepository
	historyRepo *repository.CallHistoryRepository
	publisher   EventPublisher
	logger      *zap.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	lastError string
	onSaved   SavedHook
}

// NewCallStore 创建站点呼叫存储（publisher 可为 nil）
func NewCallStore(
	siteID string,
	activeRepo *repository.ActiveCallsRepository,
	historyRepo *repository.CallHistoryRepository,
	publisher EventPublisher,
	logger *zap.Logger,
) *CallStore {
	return &CallStore{
		siteID:      siteID,
		activeRepo:  activeRepo,
		historyRepo: historyRepo,
		publisher:   publisher,
		logger:      logger.With(zap.String("site_id", siteID)),
	}
}

// SiteID 所属站点
func (s *CallStore) SiteID() string {
	return s.siteID
}

// OnSaved 注册新呼叫落库回调
func (s *CallStore) OnSaved(hook SavedHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSaved = hook
}

// LastError 最近一次持久化错误（诊断用）
func (s *CallStore) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// SaveCall 幂等写入活跃呼叫
// room_key 已存在时为 no-op；只有实际插入新行才触发回调与事件发布
func (s *CallStore) SaveCall(ctx context.Context, call models.CallEvent) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	active := models.ActiveCall{
		SiteID:      s.siteID,
		RoomKey:     models.RoomKey(call.Room, call.CallType),
		CallType:    call.CallType,
		Priority:    call.Priority,
		StartTime:   call.StartTime,
		EventID:     call.EventID,
		DisplayText: call.Text,
		Subtext:     call.Subtext,
		ColorHint:   call.Color,
	}

	inserted, err := s.activeRepo.InsertIfAbsent(ctx, active)
	if err != nil {
		s.recordError("SaveCall", err)
		return false
	}
	if !inserted {
		return false
	}

	s.logger.Info("Active call saved",
		zap.String("room_key", active.RoomKey),
		zap.String("call_type", string(active.CallType)),
	)

	s.publish(ctx, "raised", active)

	s.mu.Lock()
	hook := s.onSaved
	s.mu.Unlock()
	if hook != nil {
		hook(active)
	}
	return true
}

// ArchiveCall 归档活跃呼叫
// 先按 room_key 查找，找不到再按上游事件 ID；均未命中时为 no-op（解除一个
// 已归档或从未见过的呼叫不是错误）。命中时计算时长、追加历史、删除活跃行
func (s *CallStore) ArchiveCall(ctx context.Context, roomKeyOrEventID string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	call, err := s.activeRepo.FindByRoomKey(ctx, s.siteID, roomKeyOrEventID)
	if err != nil {
		s.recordError("ArchiveCall", err)
		return false
	}
	if call == nil {
		call, err = s.activeRepo.FindByEventID(ctx, s.siteID, roomKeyOrEventID)
		if err != nil {
			s.recordError("ArchiveCall", err)
			return false
		}
	}
	if call == nil {
		return false
	}

	endTime := time.Now()
	record := models.CallHistoryRecord{
		SiteID:          call.SiteID,
		RoomKey:         call.RoomKey,
		CallType:        call.CallType,
		Priority:        call.Priority,
		StartTime:       call.StartTime,
		EndTime:         endTime,
		DurationSeconds: int64(endTime.Sub(call.StartTime).Seconds()),
		EventID:         call.EventID,
		DisplayText:     call.DisplayText,
		Subtext:         call.Subtext,
	}
	if err := s.historyRepo.Append(ctx, record); err != nil {
		s.recordError("ArchiveCall", err)
		return false
	}

	if err := s.activeRepo.Delete(ctx, s.siteID, call.RoomKey); err != nil {
		s.recordError("ArchiveCall", err)
		return false
	}

	s.logger.Info("Active call archived",
		zap.String("room_key", call.RoomKey),
		zap.Int64("duration_seconds", record.DurationSeconds),
	)

	s.publish(ctx, "archived", *call)
	return true
}

// GetActiveCalls 读取站点全部活跃呼叫并按紧急度装饰
// 排序：紧急度 Rank 升序（最紧急在前），同级按已等待时间降序（等最久在前）
func (s *CallStore) GetActiveCalls(ctx context.Context, now time.Time, settings urgency.Settings) []models.DecoratedCall {
	calls, err := s.activeRepo.ListBySite(ctx, s.siteID)
	if err != nil {
		s.recordError("GetActiveCalls", err)
		return nil
	}

	decorated := make([]models.DecoratedCall, 0, len(calls))
	for _, call := range calls {
		elapsed := now.Sub(call.StartTime)
		level := urgency.Classify(elapsed, call.Priority, settings)
		decorated = append(decorated, models.DecoratedCall{
			ActiveCall:     call,
			ElapsedSeconds: int64(elapsed.Seconds()),
			UrgencyLevel:   level.String(),
		})
	}

	sort.SliceStable(decorated, func(i, j int) bool {
		ri := urgencyRank(decorated[i].UrgencyLevel)
		rj := urgencyRank(decorated[j].UrgencyLevel)
		if ri != rj {
			return ri < rj
		}
		return decorated[i].ElapsedSeconds > decorated[j].ElapsedSeconds
	})

	return decorated
}

// ClearAll 清空站点活跃呼叫（管理性重置，不写历史）
func (s *CallStore) ClearAll(ctx context.Context) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.activeRepo.DeleteBySite(ctx, s.siteID); err != nil {
		s.recordError("ClearAll", err)
		return false
	}

	s.logger.Info("Active calls cleared")
	s.publish(ctx, "cleared", models.ActiveCall{SiteID: s.siteID})
	return true
}

// RecentHistory 站点最近的呼叫历史
func (s *CallStore) RecentHistory(ctx context.Context, limit int) []models.CallHistoryRecord {
	records, err := s.historyRepo.ListRecent(ctx, s.siteID, limit)
	if err != nil {
		s.recordError("RecentHistory", err)
		return nil
	}
	return records
}

func (s *CallStore) publish(ctx context.Context, action string, call models.ActiveCall) {
	if s.publisher == nil {
		return
	}

	record := CallEventRecord{Action: action, Call: call, Timestamp: time.Now().Unix()}
	if err := s.publisher.PublishJSON(ctx, record); err != nil {
		// 事件流只是旁路，不影响存储结果
		s.logger.Warn("Failed to publish call event", zap.String("action", action), zap.Error(err))
	}
}

func (s *CallStore) recordError(op string, err error) {
	s.logger.Error("Call store operation failed", zap.String("op", op), zap.Error(err))
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

func urgencyRank(level string) int {
	switch level {
	case urgency.LevelRed.String():
		return 0
	case urgency.LevelYellow.String():
		return 1
	case urgency.LevelGreen.String():
		return 2
	default:
		return 3
	}
}
