// Package config centralises reeltime's runtime configuration, loaded with
// cleanenv from environment variables (with optional TOML file support), matching
// the struct-tag convention used throughout the teacher codebase this module
// is descended from.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/arcflux/reeltime/internal/database"
)

type (
	HTTPConfig struct {
		HostAddr string `toml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
		// CORSOrigins and MaxUploadSize are external-collaborator concerns only;
		// the core never reads them.
		CORSOrigins   []string `toml:"cors_origins" env:"CORS_ORIGINS" env-separator:"," env-default:"*"`
		MaxUploadSize string   `toml:"max_upload_size" env:"MAX_UPLOAD_SIZE" env-default:"2G"`
	}

	AuthConfig struct {
		SecretKey                string `toml:"secret_key" env:"SECRET_KEY" env-required:"true"`
		Algorithm                string `toml:"algorithm" env:"ALGORITHM" env-default:"HS256"`
		AccessTokenExpireMinutes int    `toml:"access_token_expire_minutes" env:"ACCESS_TOKEN_EXPIRE_MINUTES" env-default:"30"`
		TokenRateLimitPerMinute  int    `toml:"token_rate_limit_per_minute" env:"TOKEN_RATE_LIMIT_PER_MINUTE" env-default:"5"`
	}

	TranscodeConfig struct {
		WorkspaceRoot                      string `toml:"workspace_root" env:"WORKSPACE_ROOT" env-default:"~/.reeltime/workspace"`
		FfmpegBinaryPath                    string `toml:"ffmpeg_binary_path" env:"FFMPEG_BIN_PATH" env-default:"ffmpeg"`
		FfprobeBinaryPath                   string `toml:"ffprobe_binary_path" env:"FFPROBE_BIN_PATH" env-default:"ffprobe"`
		MaxConcurrentTasks                  int    `toml:"max_concurrent_tasks" env:"MAX_CONCURRENT_TASKS" env-default:"1"`
		StallTimeoutSeconds                 int    `toml:"stall_timeout_seconds" env:"STALL_TIMEOUT_SECONDS" env-default:"30"`
		EnableHardwareAccelerationDetection bool   `toml:"enable_hardware_acceleration_detection" env:"ENABLE_HARDWARE_ACCELERATION_DETECTION" env-default:"true"`
		CapabilityVendorOverride            string `toml:"capability_vendor_override" env:"CAPABILITY_VENDOR_OVERRIDE" env-default:""`
	}

	Config struct {
		HTTP      HTTPConfig      `toml:"http"`
		Auth      AuthConfig      `toml:"auth"`
		Transcode TranscodeConfig `toml:"transcode"`
		Database  database.Config `toml:"database"`
	}
)

// Load reads configuration from environment variables alone when path is
// empty. Otherwise it reads the TOML file at path and then the environment,
// with environment variables taking precedence over the file's values; a
// missing or unreadable file is an error.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}

	return &cfg, nil
}
