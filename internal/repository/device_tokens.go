package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// DeviceToken 员工设备推送令牌
type DeviceToken struct {
	SessionID   string `json:"session_id"`
	Token       string `json:"token"`
	SiteID      string `json:"site_id"`
	DisplayName string `json:"display_name"`
}

// DeviceTokensRepository 设备令牌注册表仓库
// 无效令牌由通知分发器在推送失败时删除，以此淘汰失效的移动端安装
type DeviceTokensRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceTokensRepository 创建设备令牌仓库
func NewDeviceTokensRepository(db *sql.DB, logger *zap.Logger) *DeviceTokensRepository {
	return &DeviceTokensRepository{
		db:     db,
		logger: logger,
	}
}

// RegisterToken 注册/刷新令牌（同一令牌重新注册时更新会话与站点）
func (r *DeviceTokensRepository) RegisterToken(ctx context.Context, token DeviceToken) error {
	if token.Token == "" {
		return fmt.Errorf("token is required")
	}
	if token.SiteID == "" {
		return fmt.Errorf("site_id is required")
	}

	query := `
		INSERT INTO device_tokens (session_id, token, site_id, display_name, registered_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (token) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			site_id = EXCLUDED.site_id,
			display_name = EXCLUDED.display_name,
			registered_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query, token.SessionID, token.Token, token.SiteID, token.DisplayName)
	if err != nil {
		return fmt.Errorf("failed to register device token: %w", err)
	}
	return nil
}

// UnregisterTokensForSession 注销会话下的全部令牌（登出时调用）
func (r *DeviceTokensRepository) UnregisterTokensForSession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM device_tokens WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to unregister session tokens: %w", err)
	}
	return nil
}

// TokensForSite 查询站点下注册的全部令牌
func (r *DeviceTokensRepository) TokensForSite(ctx context.Context, siteID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT token FROM device_tokens WHERE site_id = $1`, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to query site tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tokens: %w", err)
	}

	return tokens, nil
}

// DeleteToken 删除单个令牌（上游返回"令牌已失效"时调用）
func (r *DeviceTokensRepository) DeleteToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM device_tokens WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to delete device token: %w", err)
	}
	return nil
}
