// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Logger    LoggerConfig
	Database  DatabaseConfig
	Scheduler SchedulerConfig
	Kafka     KafkaConfig
	Backup    BackupConfig

	// Location is resolved from Scheduler.Timezone by Validate.
	Location *time.Location
}

type ServerConfig struct {
	AppEnv      string
	Port        string
	CORSOrigins []string
}

type LoggerConfig struct {
	Development       bool
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string
	Path   string
	URL    string
}

// DSN is the path for SQLite and the URL for PostgreSQL.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "postgres" {
		return d.URL
	}
	return d.Path
}

type SchedulerConfig struct {
	Enabled  bool
	Cron     string
	Mode     string
	Timezone string
	Workers  int
	Timeout  time.Duration
}

type KafkaConfig struct {
	Brokers      []string
	HistoryTopic string
}

type BackupConfig struct {
	Dir      string
	S3Bucket string
	S3Prefix string
}

// Load reads .env (when present) and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := LoadEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv reads the environment without validating.
func LoadEnv() *Config {
	appEnv := getEnv("APP_ENV", "production")
	dev := appEnv == "development"
	return &Config{
		Server: ServerConfig{
			AppEnv:      appEnv,
			Port:        getEnv("PORT", "8080"),
			CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"*"}),
		},
		Logger: LoggerConfig{
			Development:       getEnvBool("LOGGER_DEVELOPMENT", dev),
			Level:             getEnv("LOGGER_LEVEL", "info"),
			Encoding:          getEnv("LOGGER_ENCODING", "json"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			Path:   getEnv("DB_PATH", "./data/tabletto.db"),
			URL:    getEnv("DATABASE_URL", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:  !getEnvIsFalse("ENABLE_STOCK_SCHEDULER"),
			Cron:     getEnv("STOCK_SCHEDULER_CRON", ""),
			Mode:     getEnv("STOCK_SCHEDULER_MODE", "elapsed"),
			Timezone: getEnv("TZ", "Europe/Berlin"),
			Workers:  getEnvInt("STOCK_SCHEDULER_WORKERS", 1),
			Timeout:  time.Duration(getEnvInt("STOCK_SCHEDULER_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:      getEnvSlice("KAFKA_BROKERS", nil),
			HistoryTopic: getEnv("KAFKA_HISTORY_TOPIC", "tabletto.stock-history"),
		},
		Backup: BackupConfig{
			Dir:      getEnv("BACKUP_DIR", "./data/backups"),
			S3Bucket: getEnv("BACKUP_S3_BUCKET", ""),
			S3Prefix: getEnv("BACKUP_S3_PREFIX", "tabletto"),
		},
	}
}

// Validate resolves the timezone and rejects values no component accepts.
// The cron expression is validated by the scheduler at Start.
func (c *Config) Validate() error {
	var errs []error

	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("TZ %q: %w", c.Scheduler.Timezone, err))
	} else {
		c.Location = loc
	}

	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when DB_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q: want sqlite or postgres", c.Database.Driver))
	}

	switch strings.ToLower(c.Scheduler.Mode) {
	case "", "elapsed", "timepoint":
	default:
		errs = append(errs, fmt.Errorf("STOCK_SCHEDULER_MODE %q: want elapsed or timepoint", c.Scheduler.Mode))
	}
	if c.Scheduler.Workers < 1 {
		errs = append(errs, fmt.Errorf("STOCK_SCHEDULER_WORKERS must be at least 1, got %d", c.Scheduler.Workers))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvIsFalse reports whether key is set to exactly "false". Switches that
// default to on only turn off for that value.
func getEnvIsFalse(key string) bool {
	return os.Getenv(key) == "false"
}

func getEnvSlice(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
