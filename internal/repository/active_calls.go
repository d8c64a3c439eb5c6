package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"carecall-monitor/internal/models"
)

// ActiveCallsRepository 活跃呼叫表仓库
// 不变量：(site_id, room_key) 为主键，每站点每房间键最多一条活跃记录
type ActiveCallsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewActiveCallsRepository 创建活跃呼叫仓库
func NewActiveCallsRepository(db *sql.DB, logger *zap.Logger) *ActiveCallsRepository {
	return &ActiveCallsRepository{
		db:     db,
		logger: logger,
	}
}

// InsertIfAbsent 插入活跃呼叫，已存在时不做任何事（幂等）
// 返回是否实际插入了新行
func (r *ActiveCallsRepository) InsertIfAbsent(ctx context.Context, call models.ActiveCall) (bool, error) {
	query := `
		INSERT INTO active_calls (
			site_id, room_key, call_type, priority, start_time,
			event_id, display_text, subtext, color_hint
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (site_id, room_key) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		call.SiteID,
		call.RoomKey,
		string(call.CallType),
		call.Priority,
		call.StartTime,
		nullString(call.EventID),
		call.DisplayText,
		nullString(call.Subtext),
		nullString(call.ColorHint),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert active call: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// FindByRoomKey 按房间键查找活跃呼叫，不存在时返回 (nil, nil)
func (r *ActiveCallsRepository) FindByRoomKey(ctx context.Context, siteID, roomKey string) (*models.ActiveCall, error) {
	query := selectActiveCalls + ` WHERE site_id = $1 AND room_key = $2`
	return r.queryOne(ctx, query, siteID, roomKey)
}

// FindByEventID 按上游事件 ID 查找活跃呼叫，不存在时返回 (nil, nil)
func (r *ActiveCallsRepository) FindByEventID(ctx context.Context, siteID, eventID string) (*models.ActiveCall, error) {
	if eventID == "" {
		return nil, nil
	}
	query := selectActiveCalls + ` WHERE site_id = $1 AND event_id = $2`
	return r.queryOne(ctx, query, siteID, eventID)
}

// Delete 删除活跃呼叫行
func (r *ActiveCallsRepository) Delete(ctx context.Context, siteID, roomKey string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM active_calls WHERE site_id = $1 AND room_key = $2`,
		siteID, roomKey,
	)
	if err != nil {
		return fmt.Errorf("failed to delete active call: %w", err)
	}
	return nil
}

// ListBySite 列出站点的全部活跃呼叫
func (r *ActiveCallsRepository) ListBySite(ctx context.Context, siteID string) ([]models.ActiveCall, error) {
	query := selectActiveCalls + ` WHERE site_id = $1`

	rows, err := r.db.QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active calls: %w", err)
	}
	defer rows.Close()

	var calls []models.ActiveCall
	for rows.Next() {
		call, err := scanActiveCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate active calls: %w", err)
	}

	return calls, nil
}

// DeleteBySite 清空站点的全部活跃呼叫（管理性重置，不写历史）
func (r *ActiveCallsRepository) DeleteBySite(ctx context.Context, siteID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM active_calls WHERE site_id = $1`, siteID)
	if err != nil {
		return fmt.Errorf("failed to clear active calls: %w", err)
	}
	return nil
}

const selectActiveCalls = `
	SELECT site_id, room_key, call_type, priority, start_time,
	       event_id, display_text, subtext, color_hint
	FROM active_calls`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActiveCall(row rowScanner) (models.ActiveCall, error) {
	var call models.ActiveCall
	var callType string
	var eventID, subtext, colorHint sql.NullString

	err := row.Scan(
		&call.SiteID,
		&call.RoomKey,
		&callType,
		&call.Priority,
		&call.StartTime,
		&eventID,
		&call.DisplayText,
		&subtext,
		&colorHint,
	)
	if err != nil {
		return models.ActiveCall{}, fmt.Errorf("failed to scan active call: %w", err)
	}

	call.CallType = models.CallType(callType)
	call.EventID = eventID.String
	call.Subtext = subtext.String
	call.ColorHint = colorHint.String
	return call, nil
}

func (r *ActiveCallsRepository) queryOne(ctx context.Context, query string, args ...any) (*models.ActiveCall, error) {
	call, err := scanActiveCall(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &call, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
