package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"carecall-monitor/internal/repository"
	"carecall-monitor/internal/urgency"
)

// SettingsHandler 紧急度阈值 Handler
type SettingsHandler struct {
	settings *repository.UrgencySettingsRepository
	logger   *zap.Logger
}

// NewSettingsHandler 创建阈值 Handler
func NewSettingsHandler(settings *repository.UrgencySettingsRepository, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		logger:   logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/urgency-settings" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.GetSettings(w, r)
	case http.MethodPut:
		h.SaveSettings(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// GetSettings 读取阈值，site_id 为空时返回全局默认
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	siteID := r.URL.Query().Get("site_id")
	settings, err := h.settings.Get(r.Context(), siteID)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(settings))
}

// SaveSettings 保存阈值，保存前校验 0 < green < yellow < red
func (h *SettingsHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SiteID string `json:"site_id"`
		urgency.Settings
	}
	if err := readBodyJSON(r, 1<<16, &body); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	if err := h.settings.Save(r.Context(), body.SiteID, body.Settings); err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	h.logger.Info("Urgency settings saved",
		zap.String("site_id", body.SiteID),
		zap.Int("green_minutes", body.GreenMinutes),
		zap.Int("yellow_minutes", body.YellowMinutes),
		zap.Int("red_minutes", body.RedMinutes),
	)
	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}
