package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"carecall-monitor/internal/urgency"
)

// defaultSettingsKey 全局默认阈值使用的 site_id 占位
const defaultSettingsKey = "default"

// UrgencySettingsRepository 紧急度阈值仓库
// 阈值允许运行时修改，分类时每次读取
type UrgencySettingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUrgencySettingsRepository 创建紧急度阈值仓库
func NewUrgencySettingsRepository(db *sql.DB, logger *zap.Logger) *UrgencySettingsRepository {
	return &UrgencySettingsRepository{
		db:     db,
		logger: logger,
	}
}

// Get 读取站点阈值；站点无覆盖时退回全局默认行，再无则用内置默认
func (r *UrgencySettingsRepository) Get(ctx context.Context, siteID string) (urgency.Settings, error) {
	if siteID != "" {
		settings, err := r.getRow(ctx, siteID)
		if err == nil {
			return settings, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return urgency.DefaultSettings(), err
		}
	}

	settings, err := r.getRow(ctx, defaultSettingsKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return urgency.DefaultSettings(), nil
		}
		return urgency.DefaultSettings(), err
	}
	return settings, nil
}

// Save 保存阈值（siteID 为空时写全局默认行），保存前校验 0 < green < yellow < red
func (r *UrgencySettingsRepository) Save(ctx context.Context, siteID string, settings urgency.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if siteID == "" {
		siteID = defaultSettingsKey
	}

	query := `
		INSERT INTO urgency_settings (site_id, green_minutes, yellow_minutes, red_minutes, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (site_id) DO UPDATE SET
			green_minutes = EXCLUDED.green_minutes,
			yellow_minutes = EXCLUDED.yellow_minutes,
			red_minutes = EXCLUDED.red_minutes,
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		siteID, settings.GreenMinutes, settings.YellowMinutes, settings.RedMinutes)
	if err != nil {
		return fmt.Errorf("failed to save urgency settings: %w", err)
	}
	return nil
}

func (r *UrgencySettingsRepository) getRow(ctx context.Context, siteID string) (urgency.Settings, error) {
	var settings urgency.Settings
	err := r.db.QueryRowContext(ctx,
		`SELECT green_minutes, yellow_minutes, red_minutes FROM urgency_settings WHERE site_id = $1`,
		siteID,
	).Scan(&settings.GreenMinutes, &settings.YellowMinutes, &settings.RedMinutes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return urgency.Settings{}, err
		}
		return urgency.Settings{}, fmt.Errorf("failed to get urgency settings: %w", err)
	}
	return settings, nil
}
