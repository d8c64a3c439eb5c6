package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 promhttp 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterCallRoutes 注册呼叫查询与人工操作路由
func (r *Router) RegisterCallRoutes(h *CallHandler) {
	r.HandleHandler("/api/v1/calls", h)
	r.HandleHandler("/api/v1/monitors", h)
	r.HandleHandler("/api/v1/sites/", h)
}

// RegisterDeviceTokenRoutes 注册设备令牌路由
func (r *Router) RegisterDeviceTokenRoutes(h *DeviceTokenHandler) {
	r.HandleHandler("/api/v1/device-tokens", h)
	r.HandleHandler("/api/v1/device-tokens/", h)
}

// RegisterSettingsRoutes 注册紧急度阈值路由
func (r *Router) RegisterSettingsRoutes(h *SettingsHandler) {
	r.HandleHandler("/api/v1/urgency-settings", h)
}
