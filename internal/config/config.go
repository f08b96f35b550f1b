package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inkwell-notes/inkwell-backend/internal/platform/envutil"
)

// Config collects process-level settings. Values come from an optional YAML
// file first, then environment variables on top; env always wins so
// container deployments can override a baked-in file.
type Config struct {
	Server struct {
		Address string `yaml:"address"`
	} `yaml:"server"`

	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`

	Vector struct {
		// Provider is "qdrant" or "memory".
		Provider string `yaml:"provider"`
	} `yaml:"vector"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	RateLimit struct {
		PerMinute int           `yaml:"per_minute"`
		Window    time.Duration `yaml:"window"`
	} `yaml:"rate_limit"`
}

func defaults() Config {
	var cfg Config
	cfg.Server.Address = ":8080"
	cfg.Log.Mode = "development"
	cfg.Vector.Provider = "qdrant"
	cfg.RateLimit.PerMinute = 60
	cfg.RateLimit.Window = time.Minute
	return cfg
}

// Load reads CONFIG_PATH (default config.yaml) when the file exists, then
// applies environment overrides.
func Load() (Config, error) {
	cfg := defaults()

	path := envutil.Str("CONFIG_PATH", "config.yaml")
	if raw, err := os.ReadFile(path); err == nil {
		if uErr := yaml.Unmarshal(raw, &cfg); uErr != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, uErr)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.Server.Address = envutil.Str("SERVER_ADDRESS", cfg.Server.Address)
	cfg.Log.Mode = envutil.Str("LOG_MODE", cfg.Log.Mode)
	cfg.Vector.Provider = envutil.Str("VECTOR_PROVIDER", cfg.Vector.Provider)
	cfg.Redis.Addr = envutil.Str("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envutil.Str("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envutil.Int("REDIS_DB", cfg.Redis.DB)
	cfg.RateLimit.PerMinute = envutil.Int("RATE_LIMIT_PER_MINUTE", cfg.RateLimit.PerMinute)
	cfg.RateLimit.Window = envutil.Dur("RATE_LIMIT_WINDOW", cfg.RateLimit.Window)

	if cfg.RateLimit.PerMinute < 1 {
		return cfg, fmt.Errorf("rate limit must be positive, got %d", cfg.RateLimit.PerMinute)
	}
	switch cfg.Vector.Provider {
	case "qdrant", "memory":
	default:
		return cfg, fmt.Errorf("unknown vector provider %q", cfg.Vector.Provider)
	}
	return cfg, nil
}
