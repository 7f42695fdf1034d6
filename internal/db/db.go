package db

import (
	"fmt"
	"strings"
	"time"
	"v4corner/internal/config"
	"v4corner/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init opens the configured database, migrates it and stores it in DB.
func Init(cfg *config.Config) error {
	conn, err := Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	log.Info().Str("driver", cfg.DBDriver).Msg("Database connection established")

	if err := Migrate(conn); err != nil {
		return err
	}
	log.Info().Msg("Database migration completed")

	DB = conn
	return nil
}

// Open connects without migrating.
func Open(driver, dsn string) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		// 唯一索引冲突统一翻译成 gorm.ErrDuplicatedKey
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	var (
		conn *gorm.DB
		err  error
	)
	switch driver {
	case config.DriverPostgres:
		conn, err = gorm.Open(postgres.Open(dsn), gormCfg)
	case config.DriverSQLite:
		conn, err = gorm.Open(sqlite.Open(sqliteDSN(dsn)), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == config.DriverSQLite {
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		// SQLite 只允许一个写者
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}
	return conn, nil
}

// Migrate creates or updates every table the engagement core owns.
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Comment{},
		&models.Like{},
		&models.FavoriteFolder{},
		&models.Favorite{},
		&models.Notification{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_busy_timeout=5000"
}
