package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"carecall-monitor/internal/metrics"
	"carecall-monitor/internal/models"
	"carecall-monitor/internal/urgency"
)

// TokenRegistry 设备令牌注册表（repository.DeviceTokensRepository 实现）
type TokenRegistry interface {
	TokensForSite(ctx context.Context, siteID string) ([]string, error)
	DeleteToken(ctx context.Context, token string) error
}

// SettingsSource 紧急度阈值来源（repository.UrgencySettingsRepository 实现）
type SettingsSource interface {
	Get(ctx context.Context, siteID string) (urgency.Settings, error)
}

// Config 推送网关配置
type Config struct {
	PushURL string        // 推送网关地址（FCM 风格的 HTTP 端点）
	APIKey  string        // 网关鉴权密钥
	Timeout time.Duration // 单次推送超时
}

// pushRequest 单令牌推送请求（逐个发送，不做组播，容忍部分失败）
type pushRequest struct {
	To      string            `json:"to"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Urgency string            `json:"urgency"`
	Data    map[string]string `json:"data,omitempty"`
}

// pushResponse 推送网关响应
type pushResponse struct {
	Result string `json:"result"` // ok / unregistered / not_found / ...
	Error  string `json:"error,omitempty"`
}

// Dispatcher 通知分发器
// 新呼叫落库后向站点内全部注册设备逐个推送紧急度标注的通知；
// 上游判定令牌失效时从注册表删除该令牌（淘汰失效的移动端安装）。
// 本层不做重试：呼叫仍可通过轮询看到，at-most-once 足够
type Dispatcher struct {
	client   *resty.Client
	pushURL  string
	tokens   TokenRegistry
	settings SettingsSource
	logger   *zap.Logger
}

// NewDispatcher 创建通知分发器
func NewDispatcher(cfg Config, tokens TokenRegistry, settings SettingsSource, logger *zap.Logger) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &Dispatcher{
		client:   client,
		pushURL:  cfg.PushURL,
		tokens:   tokens,
		settings: settings,
		logger:   logger,
	}
}

// CallSaved 新呼叫落库回调（store.SavedHook 经 goroutine 接入）
func (d *Dispatcher) CallSaved(ctx context.Context, call models.ActiveCall) {
	if d.pushURL == "" {
		return
	}

	tokens, err := d.tokens.TokensForSite(ctx, call.SiteID)
	if err != nil {
		d.logger.Error("Failed to load site tokens", zap.String("site_id", call.SiteID), zap.Error(err))
		return
	}
	if len(tokens) == 0 {
		return
	}

	// 通知标签来自分类结果，不是原始优先级
	settings, err := d.settings.Get(ctx, call.SiteID)
	if err != nil {
		d.logger.Warn("Failed to load urgency settings, using defaults", zap.Error(err))
		settings = urgency.DefaultSettings()
	}
	level := urgency.Classify(time.Since(call.StartTime), call.Priority, settings)

	req := pushRequest{
		Title:   fmt.Sprintf("[%s] %s", level, call.DisplayText),
		Body:    notificationBody(call),
		Urgency: level.String(),
		Data: map[string]string{
			"site_id":   call.SiteID,
			"room_key":  call.RoomKey,
			"call_type": string(call.CallType),
		},
	}

	for _, token := range tokens {
		d.pushOne(ctx, call.SiteID, token, req)
	}
}

// pushOne 向单个令牌推送
func (d *Dispatcher) pushOne(ctx context.Context, siteID, token string, req pushRequest) {
	req.To = token

	var result pushResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&result).
		Post(d.pushURL)
	if err != nil {
		// 网络层失败：记日志后放弃，本层不重试
		d.logger.Warn("Push delivery failed", zap.String("site_id", siteID), zap.Error(err))
		return
	}

	if tokenGone(resp.StatusCode(), result.Result) {
		d.logger.Info("Pruning stale device token", zap.String("site_id", siteID))
		if err := d.tokens.DeleteToken(ctx, token); err != nil {
			d.logger.Error("Failed to prune device token", zap.Error(err))
			return
		}
		metrics.NotificationsPruned.WithLabelValues(siteID).Inc()
		return
	}

	if resp.IsError() {
		d.logger.Warn("Push rejected by gateway",
			zap.String("site_id", siteID),
			zap.Int("status", resp.StatusCode()),
			zap.String("result", result.Result),
		)
		return
	}

	metrics.NotificationsSent.WithLabelValues(siteID).Inc()
}

// tokenGone 上游判定令牌已失效
func tokenGone(status int, result string) bool {
	if status == http.StatusNotFound || status == http.StatusGone {
		return true
	}
	switch result {
	case "unregistered", "not_found", "invalid_token":
		return true
	}
	return false
}

func notificationBody(call models.ActiveCall) string {
	if call.Subtext != "" {
		return call.Subtext
	}
	return fmt.Sprintf("%s call at %s", call.CallType, call.DisplayText)
}
