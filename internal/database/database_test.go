package database

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pulsetrack/pulse/internal/config"
	"github.com/pulsetrack/pulse/internal/models"
)

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(config.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared", logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() { Close(db) })
	require.NoError(t, Migrate(db))
	return db
}

func TestOpenRejectsBadInput(t *testing.T) {
	_, err := Open("postgres", "x", logger.Silent)
	assert.ErrorContains(t, err, "unsupported database driver")

	_, err = Open(config.DriverMySQL, "not-a-dsn", logger.Silent)
	assert.ErrorContains(t, err, "invalid mysql dsn")
}

func TestDuplicateTokenIsTranslated(t *testing.T) {
	db := openMemory(t)

	require.NoError(t, db.Create(&models.TokenModel{Token: "abcd1234"}).Error)
	err := db.Create(&models.TokenModel{Token: "abcd1234"}).Error
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)
}

func TestModelsGetIDsAndTimestamps(t *testing.T) {
	db := openMemory(t)

	tok := models.TokenModel{Token: "site01"}
	require.NoError(t, db.Create(&tok).Error)
	assert.Len(t, tok.ID, 36)
	assert.False(t, tok.CreatedAt.IsZero())

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := models.EventModel{Token: "site01", VisitorID: "v_1", Type: models.EventPageview, Path: "/", CreatedAt: at}
	require.NoError(t, db.Create(&ev).Error)

	var got models.EventModel
	require.NoError(t, db.First(&got, "id = ?", ev.ID).Error)
	assert.True(t, at.Equal(got.CreatedAt))
	require.NoError(t, Ping(db))
}
