// Package testutil builds throwaway SQLite databases and fixtures for tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"testing"
	"v4corner/internal/config"
	"v4corner/internal/db"
	"v4corner/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB returns a migrated SQLite database living in t.TempDir.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := db.Open(config.DriverSQLite, filepath.Join(t.TempDir(), "engagement.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))

	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return conn
}

func CreateUser(t *testing.T, conn *gorm.DB, username string) models.User {
	t.Helper()
	u := models.User{Username: username, Nickname: username + "_nick"}
	require.NoError(t, conn.Create(&u).Error)
	return u
}

func CreatePost(t *testing.T, conn *gorm.DB, author models.User) models.Post {
	t.Helper()
	var n int64
	conn.Model(&models.Post{}).Count(&n)
	p := models.Post{UserID: author.ID, Title: fmt.Sprintf("post %d", n+1), Content: "body"}
	require.NoError(t, conn.Create(&p).Error)
	return p
}

// ReloadPost reads the post's counters back from the database.
func ReloadPost(t *testing.T, conn *gorm.DB, id uint) models.Post {
	t.Helper()
	var p models.Post
	require.NoError(t, conn.First(&p, id).Error)
	return p
}
