package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// CommentConfig holds the comment throttling and tree limits.
type CommentConfig struct {
	RateLimit   time.Duration // 两次评论尝试之间的最小间隔
	DailyLimit  int           // 每人每天评论上限
	MaxDepth    int           // 0=顶级, 1=回复
	PageSizeMax int
	MaxLength   int
}

type Config struct {
	Port             string
	DBDriver         string
	DatabaseURL      string
	SessionSecret    string
	LogLevel         string
	LogFormat        string
	RateGateCapacity int
	ReconcileHour    int
	Comment          CommentConfig
}

// Default returns the configuration used when no environment is set.
func Default() *Config {
	return &Config{
		Port:             "8080",
		DBDriver:         DriverPostgres,
		DatabaseURL:      "host=localhost user=postgres password=postgres dbname=v4corner port=5432 sslmode=disable TimeZone=UTC",
		SessionSecret:    "secret_key_change_me",
		LogLevel:         "info",
		LogFormat:        "json",
		RateGateCapacity: 10000,
		ReconcileHour:    3,
		Comment: CommentConfig{
			RateLimit:   2 * time.Second,
			DailyLimit:  500,
			MaxDepth:    1,
			PageSizeMax: 50,
			MaxLength:   2000,
		},
	}
}

// Load reads .env (if any) and overlays environment variables on Default.
func Load() (*Config, error) {
	for _, location := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(location); err == nil {
			break
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Default()

	if v := getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := getenv("DB_DRIVER"); v != "" {
		if v != DriverPostgres && v != DriverSQLite {
			return nil, fmt.Errorf("DB_DRIVER: unsupported driver %q", v)
		}
		cfg.DBDriver = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	} else if cfg.DBDriver == DriverSQLite {
		cfg.DatabaseURL = "v4corner.db"
	}
	if v := getenv("SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		if v != "json" && v != "console" {
			return nil, fmt.Errorf("LOG_FORMAT: must be json or console, got %q", v)
		}
		cfg.LogFormat = v
	}

	var err error
	if cfg.Comment.RateLimit, err = durationVar(getenv, "COMMENT_RATE_LIMIT", cfg.Comment.RateLimit); err != nil {
		return nil, err
	}
	if cfg.Comment.DailyLimit, err = intVar(getenv, "COMMENT_DAILY_LIMIT", cfg.Comment.DailyLimit, 1); err != nil {
		return nil, err
	}
	if cfg.Comment.MaxDepth, err = intVar(getenv, "COMMENT_MAX_DEPTH", cfg.Comment.MaxDepth, 0); err != nil {
		return nil, err
	}
	if cfg.Comment.PageSizeMax, err = intVar(getenv, "COMMENT_PAGE_SIZE_MAX", cfg.Comment.PageSizeMax, 1); err != nil {
		return nil, err
	}
	if cfg.RateGateCapacity, err = intVar(getenv, "RATE_GATE_CAPACITY", cfg.RateGateCapacity, 1); err != nil {
		return nil, err
	}
	if cfg.ReconcileHour, err = intVar(getenv, "RECONCILE_HOUR", cfg.ReconcileHour, 0); err != nil {
		return nil, err
	}
	if cfg.ReconcileHour > 23 {
		return nil, fmt.Errorf("RECONCILE_HOUR: must be between 0 and 23, got %d", cfg.ReconcileHour)
	}

	return cfg, nil
}

func intVar(getenv func(string) string, name string, fallback, min int) (int, error) {
	v := getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if n < min {
		return 0, fmt.Errorf("%s: must be at least %d, got %d", name, min, n)
	}
	return n, nil
}

func durationVar(getenv func(string) string, name string, fallback time.Duration) (time.Duration, error) {
	v := getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", name)
	}
	return d, nil
}
