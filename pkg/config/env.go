package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from .env files. Existing
// environment variables are not overwritten.
//
// Search order (first found wins per location):
//  1. Explicit paths if provided
//  2. .env in the current directory
//  3. .env in the home directory
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if path != "" {
			if err := loadIfExists(path); err != nil {
				return err
			}
		}
	}

	if err := loadIfExists(".env"); err != nil {
		return err
	}

	if home, err := os.UserHomeDir(); err == nil {
		if err := loadIfExists(filepath.Join(home, ".env")); err != nil {
			return err
		}
	}

	return nil
}

func loadIfExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

// Load builds a Config from the environment, applying defaults. Call
// LoadDotEnv first when .env support is wanted.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:  envString("LAUNCHER_LOG_LEVEL", "info"),
		LogFormat: envString("LAUNCHER_LOG_FORMAT", "text"),
		SecretKey: os.Getenv("LAUNCHER_SECRET_KEY"),
		Database: DatabaseConfig{
			Driver:   envString("LAUNCHER_DATABASE_DRIVER", "sqlite"),
			DSN:      envString("LAUNCHER_DATABASE_DSN", ".launcher/launcher.db"),
			MaxConns: envInt("LAUNCHER_DATABASE_MAX_CONNS", 10),
			MaxIdle:  envInt("LAUNCHER_DATABASE_MAX_IDLE", 5),
		},
		Scheduler: SchedulerConfig{
			Workers:      envInt("LAUNCHER_WORKERS", 4),
			ScanInterval: envDuration("LAUNCHER_SCAN_INTERVAL", 60*time.Second),
			QueueSize:    envInt("LAUNCHER_QUEUE_SIZE", 100),
		},
		Fetch: FetchConfig{
			Production:    envBool("LAUNCHER_PRODUCTION", false),
			S3Bucket:      os.Getenv("AWS_STORAGE_BUCKET_NAME"),
			MaxFileSizeMB: envInt("LAUNCHER_MAX_FILE_SIZE_MB", 50),
			Timeout:       envDuration("LAUNCHER_FETCH_TIMEOUT", 30*time.Second),
			UserAgent:     envString("LAUNCHER_USER_AGENT", "Agent-Launcher/1.0 (Content Fetcher)"),
		},
		Remote: RemoteConfig{
			Enabled:         envBool("USE_REMOTE_EXECUTION", false),
			Region:          os.Getenv("AWS_LAMBDA_REGION"),
			FunctionName:    os.Getenv("LAMBDA_AGENT_FUNCTION_NAME"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			BedrockModelID:  os.Getenv("BEDROCK_MODEL_ID"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.ToLower(os.Getenv(key))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
