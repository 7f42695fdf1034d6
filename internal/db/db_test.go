package db

import (
	"path/filepath"
	"testing"
	"v4corner/internal/config"
	"v4corner/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "a.db?_foreign_keys=on&_busy_timeout=5000", sqliteDSN("a.db"))
	assert.Equal(t, "file:a.db?mode=rwc&_foreign_keys=on&_busy_timeout=5000", sqliteDSN("file:a.db?mode=rwc"))
	assert.Equal(t, "a.db?_foreign_keys=off", sqliteDSN("a.db?_foreign_keys=off"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "whatever")
	assert.Error(t, err)
}

func TestInitMigratesAndTranslatesDuplicates(t *testing.T) {
	cfg := config.Default()
	cfg.DBDriver = config.DriverSQLite
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "test.db")

	require.NoError(t, Init(cfg))
	require.NotNil(t, DB)

	u := models.User{Username: "alice"}
	require.NoError(t, DB.Create(&u).Error)

	err := DB.Create(&models.User{Username: "alice"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	for _, table := range []any{&models.Comment{}, &models.Like{}, &models.Favorite{}, &models.FavoriteFolder{}, &models.Notification{}} {
		assert.True(t, DB.Migrator().HasTable(table))
	}
}
