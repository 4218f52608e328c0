// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds process configuration
type Config struct {
	DataDir      string // Base directory for all databases (always absolute)
	LogLevel     string
	Port         int
	DevMode      bool
	SweepWorkers int // 0 = one per CPU

	PriceSync PriceSyncConfig
	Archive   ArchiveConfig
}

// PriceSyncConfig controls the scheduled price download
type PriceSyncConfig struct {
	Schedule     string   // cron spec with seconds field; empty disables the job
	Symbols      []string // symbols refreshed on every run
	LookbackDays int
}

// ArchiveConfig holds optional R2 credentials for backups and run reports
type ArchiveConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	RetentionDays   int // 0 = keep forever
	BackupSchedule  string
}

// Enabled reports whether every credential needed to reach the bucket is set
func (a ArchiveConfig) Enabled() bool {
	return a.AccountID != "" && a.AccessKeyID != "" && a.SecretAccessKey != "" && a.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("QF_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		Port:         getEnvAsInt("QF_PORT", 8080),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		SweepWorkers: getEnvAsInt("QF_SWEEP_WORKERS", 0),
		PriceSync: PriceSyncConfig{
			Schedule:     getEnv("QF_PRICE_SYNC_SCHEDULE", "0 30 22 * * MON-FRI"),
			Symbols:      getEnvAsList("QF_PRICE_SYNC_SYMBOLS"),
			LookbackDays: getEnvAsInt("QF_PRICE_SYNC_LOOKBACK_DAYS", 10),
		},
		Archive: ArchiveConfig{
			AccountID:       getEnv("QF_ARCHIVE_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("QF_ARCHIVE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("QF_ARCHIVE_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("QF_ARCHIVE_BUCKET", ""),
			RetentionDays:   getEnvAsInt("QF_ARCHIVE_RETENTION_DAYS", 30),
			BackupSchedule:  getEnv("QF_ARCHIVE_BACKUP_SCHEDULE", "0 0 3 * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Same field layout as the scheduler's cron.WithSeconds().
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks ranges and schedules
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SweepWorkers < 0 {
		return fmt.Errorf("sweep workers must not be negative, got %d", c.SweepWorkers)
	}
	if c.PriceSync.LookbackDays <= 0 {
		return fmt.Errorf("price sync lookback must be positive, got %d", c.PriceSync.LookbackDays)
	}
	if c.Archive.RetentionDays < 0 {
		return fmt.Errorf("archive retention must not be negative, got %d", c.Archive.RetentionDays)
	}
	for name, spec := range map[string]string{
		"QF_PRICE_SYNC_SCHEDULE":     c.PriceSync.Schedule,
		"QF_ARCHIVE_BACKUP_SCHEDULE": c.Archive.BackupSchedule,
	} {
		if spec == "" {
			continue
		}
		if _, err := cronParser.Parse(spec); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, spec, err)
		}
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
