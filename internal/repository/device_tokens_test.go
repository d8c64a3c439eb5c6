package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockTokensDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *DeviceTokensRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewDeviceTokensRepository(db, zap.NewNop())
	return db, mock, repo
}

func TestRegisterToken_Success(t *testing.T) {
	db, mock, repo := setupMockTokensDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO device_tokens`).
		WithArgs("sess-1", "tok-abc", "site-1", "Nurse Kim").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RegisterToken(context.Background(), DeviceToken{
		SessionID:   "sess-1",
		Token:       "tok-abc",
		SiteID:      "site-1",
		DisplayName: "Nurse Kim",
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterToken_RequiresTokenAndSite(t *testing.T) {
	db, mock, repo := setupMockTokensDB(t)
	defer db.Close()

	err := repo.RegisterToken(context.Background(), DeviceToken{SiteID: "site-1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "token is required")

	err = repo.RegisterToken(context.Background(), DeviceToken{Token: "tok"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "site_id is required")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokensForSite(t *testing.T) {
	db, mock, repo := setupMockTokensDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"token"}).
		AddRow("tok-1").
		AddRow("tok-2")

	mock.ExpectQuery(`SELECT token FROM device_tokens`).
		WithArgs("site-1").
		WillReturnRows(rows)

	tokens, err := repo.TokensForSite(context.Background(), "site-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"tok-1", "tok-2"}, tokens)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnregisterTokensForSession(t *testing.T) {
	db, mock, repo := setupMockTokensDB(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM device_tokens WHERE session_id`).
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.UnregisterTokensForSession(context.Background(), "sess-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteToken(t *testing.T) {
	db, mock, repo := setupMockTokensDB(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM device_tokens WHERE token`).
		WithArgs("tok-stale").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.DeleteToken(context.Background(), "tok-stale"))
	require.NoError(t, mock.ExpectationsWereMet())
}
