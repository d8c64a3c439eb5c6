package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"carecall-monitor/internal/models"
)

// CallHistoryRepository 呼叫历史仓库（append-only）
type CallHistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCallHistoryRepository 创建呼叫历史仓库
func NewCallHistoryRepository(db *sql.DB, logger *zap.Logger) *CallHistoryRepository {
	return &CallHistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append 追加一条历史记录（每条归档的活跃呼叫只写一次）
func (r *CallHistoryRepository) Append(ctx context.Context, record models.CallHistoryRecord) error {
	query := `
		INSERT INTO call_history (
			site_id, room_key, call_type, priority, start_time,
			end_time, duration_seconds, event_id, display_text, subtext
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.SiteID,
		record.RoomKey,
		string(record.CallType),
		record.Priority,
		record.StartTime,
		record.EndTime,
		record.DurationSeconds,
		nullString(record.EventID),
		record.DisplayText,
		nullString(record.Subtext),
	)
	if err != nil {
		return fmt.Errorf("failed to append call history: %w", err)
	}
	return nil
}

// ListRecent 按结束时间倒序列出站点最近的历史记录
func (r *CallHistoryRepository) ListRecent(ctx context.Context, siteID string, limit int) ([]models.CallHistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT site_id, room_key, call_type, priority, start_time,
		       end_time, duration_seconds, event_id, display_text, subtext
		FROM call_history
		WHERE site_id = $1
		ORDER BY end_time DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list call history: %w", err)
	}
	defer rows.Close()

	var records []models.CallHistoryRecord
	for rows.Next() {
		var rec models.CallHistoryRecord
		var callType string
		var eventID, subtext sql.NullString

		err := rows.Scan(
			&rec.SiteID,
			&rec.RoomKey,
			&callType,
			&rec.Priority,
			&rec.StartTime,
			&rec.EndTime,
			&rec.DurationSeconds,
			&eventID,
			&rec.DisplayText,
			&subtext,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call history: %w", err)
		}

		rec.CallType = models.CallType(callType)
		rec.EventID = eventID.String
		rec.Subtext = subtext.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate call history: %w", err)
	}

	return records, nil
}
