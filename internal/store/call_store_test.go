package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carecall-monitor/internal/models"
	"carecall-monitor/internal/repository"
	"carecall-monitor/internal/urgency"
)

func setupCallStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *CallStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	activeRepo := repository.NewActiveCallsRepository(db, logger)
	historyRepo := repository.NewCallHistoryRepository(db, logger)
	store := NewCallStore("site-1", activeRepo, historyRepo, nil, logger)

	return db, mock, store
}

func activeCallColumns() []string {
	return []string{
		"site_id", "room_key", "call_type", "priority", "start_time",
		"event_id", "display_text", "subtext", "color_hint",
	}
}

func emergencyEvent() models.CallEvent {
	return models.CallEvent{
		Room:      "RM 12 BED",
		CallType:  models.CallTypeEmergency,
		Priority:  1,
		StartTime: time.Now(),
		Text:      "RM 12 BED",
	}
}

func TestSaveCall_InsertsAndFiresHook(t *testing.T) {
	db, mock, store := setupCallStore(t)
	defer db.Close()

	var hooked *models.ActiveCall
	store.OnSaved(func(call models.ActiveCall) { hooked = &call })

	mock.ExpectExec(`INSERT INTO active_calls`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	saved := store.SaveCall(context.Background(), emergencyEvent())

	assert.True(t, saved)
	require.NotNil(t, hooked)
	assert.Equal(t, "RM 12 BED:Emergency", hooked.RoomKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCall_DuplicateIsNoopAndSkipsHook(t *testing.T) {
	db, mock, store := setupCallStore(t)
	defer db.Close()

	hookFired := false
	store.OnSaved(func(models.ActiveCall) { hookFired = true })

	mock.ExpectExec(`INSERT INTO active_calls`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	saved := store.SaveCall(context.Background(), emergencyEvent())

	assert.False(t, saved)
	assert.False(t, hookFired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveCall_RoundTrip(t *testing.T) {
	db, mock, store := setupCallStore(t)
	defer db.Close()

	startTime := time.Now().Add(-90 * time.Second)
	rows := sqlmock.NewRows(activeCallColumns()).AddRow(
		"site-1", "RM 12 BED:Emergency", "Emergency", 1, startTime,
		nil, "RM 12 BED", nil, nil,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs("site-1", "RM 12 BED:Emergency").
		WillReturnRows(rows)
	mock.ExpectExec(`INSERT INTO call_history`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`DELETE FROM active_calls`).
		WithArgs("site-1", "RM 12 BED:Emergency").
		WillReturnResult(sqlmock.NewResult(0, 1))

	archived := store.ArchiveCall(context.Background(), "RM 12 BED:Emergency")

	assert.True(t, archived)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveCall_FallsBackToEventID(t *testing.T) {
	db, mock, store := setupCallStore(t)
	defer db.Close()

	// room_key 未命中，按事件 ID 再查一次
	mock.ExpectQuery(`SELECT`).
		WithArgs("site-1", "evt-77").
		WillReturnError(sql.ErrNoRows)

	rows := sqlmock.NewRows(activeCallColumns()).AddRow(
		"site-1", "RM 7:Normal", "Normal", 3, time.Now().Add(-time.Minute),
		"evt-77", "RM 7", nil, nil,
	)
	mock.ExpectQuery(`SELECT`).
		WithArgs("site-1", "evt-77").
		WillReturnRows(rows)
	mock.ExpectExec(`INSERT INTO call_history`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`DELETE FROM active_calls`).
		WithArgs("site-1", "RM 7:Normal").
		WillReturnResult(sqlmock.NewResult(0, 1))

	archived := store.ArchiveCall(context.Background(), "evt-77")

	assert.True(t, archived)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveCall_MissingIsNoop(t *testing.T) {
	db, mock, store := setupCallStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("site-1", "nope").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT`).
		WithArgs("site-1", "nope").
		WillReturnError(sql.ErrNoRows)

	archived := store.ArchiveCall(context.Background(), "nope")

	assert.False(t, archived)
	assert.Empty(t, store.LastError())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveCalls_SortsByUrgencyThenElapsed(t *testing.T) {
	db, mock, store := setupCallStore(t)
	defer db.Close()

	now := time.Now()
	settings := urgency.Settings{GreenMinutes: 3, YellowMinutes: 5, RedMinutes: 7}

	rows := sqlmock.NewRows(activeCallColumns()).
		// Normal，等待 4 分钟 → Green
		AddRow("site-1", "RM 1:Normal", "Normal", 3, now.Add(-4*time.Minute), nil, "RM 1", nil, nil).
		// Emergency，刚发起 → Red
		AddRow("site-1", "RM 2:Emergency", "Emergency", 1, now, nil, "RM 2", nil, nil).
		// Normal，等待 8 分钟 → Red，且比上面的 Red 等得久
		AddRow("site-1", "RM 3:Normal", "Normal", 3, now.Add(-8*time.Minute), nil, "RM 3", nil, nil).
		// StaffAssist，刚发起 → Yellow（不低于 Yellow）
		AddRow("site-1", "RM 4:StaffAssist", "StaffAssist", 2, now, nil, "RM 4", nil, nil)

	mock.ExpectQuery(`SELECT`).
		WithArgs("site-1").
		WillReturnRows(rows)

	calls := store.GetActiveCalls(context.Background(), now, settings)

	require.Len(t, calls, 4)
	assert.Equal(t, "RM 3:Normal", calls[0].RoomKey) // Red，等最久
	assert.Equal(t, "RM 2:Emergency", calls[1].RoomKey)
	assert.Equal(t, "Red", calls[1].UrgencyLevel)
	assert.Equal(t, "RM 4:StaffAssist", calls[2].RoomKey)
	assert.Equal(t, "Yellow", calls[2].UrgencyLevel)
	assert.Equal(t, "RM 1:Normal", calls[3].RoomKey)
	assert.Equal(t, "Green", calls[3].UrgencyLevel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveCalls_EmergencyAtZeroElapsedIsRed(t *testing.T) {
	db, mock, store := setupCallStore(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(activeCallColumns()).
		AddRow("site-1", "RM 12 BED:Emergency", "Emergency", 1, now, nil, "RM 12 BED", nil, nil)

	mock.ExpectQuery(`SELECT`).
		WithArgs("site-1").
		WillReturnRows(rows)

	calls := store.GetActiveCalls(context.Background(), now, urgency.DefaultSettings())

	require.Len(t, calls, 1)
	assert.Equal(t, "Red", calls[0].UrgencyLevel)
	assert.Equal(t, int64(0), calls[0].ElapsedSeconds)
}

func TestGetActiveCalls_ThresholdCrossings(t *testing.T) {
	db, mock, store := setupCallStore(t)
	defer db.Close()

	t0 := time.Now()
	settings := urgency.Settings{GreenMinutes: 3, YellowMinutes: 5, RedMinutes: 7}

	for _, tc := range []struct {
		queryAt time.Time
		want    string
	}{
		{t0.Add(4 * time.Minute), "Green"},
		{t0.Add(6 * time.Minute), "Yellow"},
		{t0.Add(8 * time.Minute), "Red"},
	} {
		rows := sqlmock.NewRows(activeCallColumns()).
			AddRow("site-1", "RM 1:Normal", "Normal", 3, t0, nil, "RM 1", nil, nil)
		mock.ExpectQuery(`SELECT`).
			WithArgs("site-1").
			WillReturnRows(rows)

		calls := store.GetActiveCalls(context.Background(), tc.queryAt, settings)
		require.Len(t, calls, 1)
		assert.Equal(t, tc.want, calls[0].UrgencyLevel)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreFailure_ReturnsEmptyAndRecordsLastError(t *testing.T) {
	db, mock, store := setupCallStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("site-1").
		WillReturnError(errors.New("connection refused"))

	calls := store.GetActiveCalls(context.Background(), time.Now(), urgency.DefaultSettings())

	assert.Empty(t, calls)
	assert.Contains(t, store.LastError(), "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearAll(t *testing.T) {
	db, mock, store := setupCallStore(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM active_calls WHERE site_id`).
		WithArgs("site-1").
		WillReturnResult(sqlmock.NewResult(0, 5))

	assert.True(t, store.ClearAll(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
