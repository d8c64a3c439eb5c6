package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"carecall-monitor/internal/manager"
)

// CallHandler 呼叫查询与人工操作 Handler
// 权限判定在外部 CRUD/API 层完成，这里只接收调用方传入的授权站点范围
type CallHandler struct {
	manager *manager.MultiSiteManager
	logger  *zap.Logger
}

// NewCallHandler 创建呼叫 Handler
func NewCallHandler(m *manager.MultiSiteManager, logger *zap.Logger) *CallHandler {
	return &CallHandler{
		manager: m,
		logger:  logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *CallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/calls" && r.Method == http.MethodGet:
		h.GetAggregatedCalls(w, r)
	case path == "/api/v1/monitors" && r.Method == http.MethodGet:
		h.GetMonitors(w, r)
	case strings.HasPrefix(path, "/api/v1/sites/"):
		h.routeSite(w, r, strings.TrimPrefix(path, "/api/v1/sites/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// routeSite 分发 /api/v1/sites/{id}/... 子路由
func (h *CallHandler) routeSite(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	siteID := parts[0]
	action := strings.Join(parts[1:], "/")

	switch {
	case action == "calls" && r.Method == http.MethodGet:
		h.GetSiteCalls(w, r, siteID)
	case action == "calls/reset" && r.Method == http.MethodPost:
		h.ResetSiteCalls(w, r, siteID)
	case action == "calls/cancel" && r.Method == http.MethodPost:
		h.CancelCall(w, r, siteID)
	case action == "history" && r.Method == http.MethodGet:
		h.GetSiteHistory(w, r, siteID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// GetSiteCalls 单站点活跃呼叫列表（按紧急度排序）
func (h *CallHandler) GetSiteCalls(w http.ResponseWriter, r *http.Request, siteID string) {
	calls, err := h.manager.GetSiteActiveCalls(r.Context(), siteID)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": calls,
		"total": len(calls),
	}))
}

// GetAggregatedCalls 权限范围内的跨站点聚合
// sites=逗号分隔的站点名集合；all=true 表示全站点权限
func (h *CallHandler) GetAggregatedCalls(w http.ResponseWriter, r *http.Request) {
	allSites := r.URL.Query().Get("all") == "true"

	allowed := make(map[string]bool)
	if raw := r.URL.Query().Get("sites"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				allowed[name] = true
			}
		}
	}

	result := h.manager.GetAggregatedCalls(r.Context(), allowed, allSites)
	writeJSON(w, http.StatusOK, Ok(result))
}

// ResetSiteCalls 清空单站点活跃呼叫表（管理操作）
func (h *CallHandler) ResetSiteCalls(w http.ResponseWriter, r *http.Request, siteID string) {
	if err := h.manager.ResetSiteCalls(r.Context(), siteID); err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	h.logger.Info("Active calls reset", zap.String("site_id", siteID))
	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}

// CancelCall 人工解除呼叫，body 提供 room_key 或 event_id
func (h *CallHandler) CancelCall(w http.ResponseWriter, r *http.Request, siteID string) {
	var body struct {
		RoomKey string `json:"room_key"`
		EventID string `json:"event_id"`
	}
	if err := readBodyJSON(r, 1<<16, &body); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	identifier := body.RoomKey
	if identifier == "" {
		identifier = body.EventID
	}
	if identifier == "" {
		writeJSON(w, http.StatusOK, Fail("room_key or event_id is required"))
		return
	}

	archived, err := h.manager.CancelCall(r.Context(), siteID, identifier)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"archived": archived}))
}

// GetSiteHistory 最近归档记录
func (h *CallHandler) GetSiteHistory(w http.ResponseWriter, r *http.Request, siteID string) {
	sm, err := h.manager.GetMonitor(siteID)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 50)
	records := sm.Store().RecentHistory(r.Context(), limit)
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": records,
		"total": len(records),
	}))
}

// GetMonitors 全部监控器诊断快照
func (h *CallHandler) GetMonitors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": h.manager.Snapshots(),
	}))
}
