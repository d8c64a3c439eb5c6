package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"carecall-monitor/internal/repository"
)

// DeviceTokenHandler 设备令牌注册 Handler
// 移动端登录时注册推送令牌，退出时按会话注销
type DeviceTokenHandler struct {
	tokens *repository.DeviceTokensRepository
	logger *zap.Logger
}

// NewDeviceTokenHandler 创建设备令牌 Handler
func NewDeviceTokenHandler(tokens *repository.DeviceTokensRepository, logger *zap.Logger) *DeviceTokenHandler {
	return &DeviceTokenHandler{
		tokens: tokens,
		logger: logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *DeviceTokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/device-tokens" && r.Method == http.MethodPost:
		h.RegisterToken(w, r)
	case strings.HasPrefix(path, "/api/v1/device-tokens/sessions/") && r.Method == http.MethodDelete:
		sessionID := strings.TrimPrefix(path, "/api/v1/device-tokens/sessions/")
		if sessionID != "" && !strings.Contains(sessionID, "/") {
			h.UnregisterSession(w, r, sessionID)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// RegisterToken 注册（或更新）推送令牌
func (h *DeviceTokenHandler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	var token repository.DeviceToken
	if err := readBodyJSON(r, 1<<16, &token); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	if err := h.tokens.RegisterToken(r.Context(), token); err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	h.logger.Info("Device token registered",
		zap.String("site_id", token.SiteID),
		zap.String("session_id", token.SessionID),
	)
	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}

// UnregisterSession 注销会话下全部令牌
func (h *DeviceTokenHandler) UnregisterSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := h.tokens.UnregisterTokensForSession(r.Context(), sessionID); err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}
