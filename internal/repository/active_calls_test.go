package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carecall-monitor/internal/models"
)

func setupMockActiveCallsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *ActiveCallsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewActiveCallsRepository(db, logger)

	return db, mock, repo
}

func activeCallColumns() []string {
	return []string{
		"site_id", "room_key", "call_type", "priority", "start_time",
		"event_id", "display_text", "subtext", "color_hint",
	}
}

func TestInsertIfAbsent_NewRow(t *testing.T) {
	db, mock, repo := setupMockActiveCallsDB(t)
	defer db.Close()

	call := models.ActiveCall{
		SiteID:      "site-1",
		RoomKey:     "RM 12 BED:Emergency",
		CallType:    models.CallTypeEmergency,
		Priority:    1,
		StartTime:   time.Now(),
		DisplayText: "RM 12 BED",
	}

	mock.ExpectExec(`INSERT INTO active_calls`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	inserted, err := repo.InsertIfAbsent(context.Background(), call)

	require.NoError(t, err)
	assert.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIfAbsent_DuplicateIsNoop(t *testing.T) {
	db, mock, repo := setupMockActiveCallsDB(t)
	defer db.Close()

	call := models.ActiveCall{
		SiteID:    "site-1",
		RoomKey:   "RM 12 BED:Emergency",
		CallType:  models.CallTypeEmergency,
		Priority:  1,
		StartTime: time.Now(),
	}

	// ON CONFLICT DO NOTHING：冲突时影响 0 行，不是错误
	mock.ExpectExec(`INSERT INTO active_calls`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.InsertIfAbsent(context.Background(), call)

	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByRoomKey_Found(t *testing.T) {
	db, mock, repo := setupMockActiveCallsDB(t)
	defer db.Close()

	startTime := time.Now().Add(-2 * time.Minute)
	rows := sqlmock.NewRows(activeCallColumns()).AddRow(
		"site-1", "RM 12 BED:Emergency", "Emergency", 1, startTime,
		"evt-1", "RM 12 BED", nil, nil,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs("site-1", "RM 12 BED:Emergency").
		WillReturnRows(rows)

	call, err := repo.FindByRoomKey(context.Background(), "site-1", "RM 12 BED:Emergency")

	require.NoError(t, err)
	require.NotNil(t, call)
	assert.Equal(t, models.CallTypeEmergency, call.CallType)
	assert.Equal(t, "evt-1", call.EventID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByRoomKey_NotFound(t *testing.T) {
	db, mock, repo := setupMockActiveCallsDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("site-1", "nope").
		WillReturnError(sql.ErrNoRows)

	call, err := repo.FindByRoomKey(context.Background(), "site-1", "nope")

	require.NoError(t, err)
	assert.Nil(t, call)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEventID_EmptyIDShortCircuits(t *testing.T) {
	db, mock, repo := setupMockActiveCallsDB(t)
	defer db.Close()

	call, err := repo.FindByEventID(context.Background(), "site-1", "")

	require.NoError(t, err)
	assert.Nil(t, call)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBySite(t *testing.T) {
	db, mock, repo := setupMockActiveCallsDB(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(activeCallColumns()).
		AddRow("site-1", "RM 1:Normal", "Normal", 3, now, nil, "RM 1", nil, nil).
		AddRow("site-1", "RM 2:Emergency", "Emergency", 1, now, nil, "RM 2", "bed sensor", "#FF0000")

	mock.ExpectQuery(`SELECT`).
		WithArgs("site-1").
		WillReturnRows(rows)

	calls, err := repo.ListBySite(context.Background(), "site-1")

	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "RM 1:Normal", calls[0].RoomKey)
	assert.Equal(t, "#FF0000", calls[1].ColorHint)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteBySite(t *testing.T) {
	db, mock, repo := setupMockActiveCallsDB(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM active_calls WHERE site_id`).
		WithArgs("site-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := repo.DeleteBySite(context.Background(), "site-1")

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
