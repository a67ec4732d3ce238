package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the fact-check client engine
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Transport TransportConfig `mapstructure:"transport"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Recovery  RecoveryConfig  `mapstructure:"recovery"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// BackendConfig describes the fact-check API the engine talks to
type BackendConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	WSBaseURL  string        `mapstructure:"ws_base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// TransportConfig tunes the polling loop and the push channel
type TransportConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	Debounce          time.Duration `mapstructure:"debounce"`
	MaxPollDuration   time.Duration `mapstructure:"max_poll_duration"`
	PushEnabled       bool          `mapstructure:"push_enabled"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectBase     time.Duration `mapstructure:"reconnect_base"`
}

// StorageConfig selects and configures the session persistence backend
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // inmemory, file, redis
	File  FileConfig  `mapstructure:"file"`
	Redis RedisConfig `mapstructure:"redis"`
}

// FileConfig configures the file-backed store
type FileConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig configures the redis-backed store
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Validate() error {
	if r.Addr == "" {
		return fmt.Errorf("storage.redis.addr is required when storage.type is redis")
	}
	return nil
}

// RecoveryConfig tunes session recovery behaviour
type RecoveryConfig struct {
	Window          time.Duration `mapstructure:"window"`
	AutoResumeDelay time.Duration `mapstructure:"auto_resume_delay"`
	WatchInterval   time.Duration `mapstructure:"watch_interval"`
}

func setDefaults() {
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("backend.base_url", "http://localhost:8000/api")
	viper.SetDefault("backend.timeout", 60*time.Second)
	viper.SetDefault("backend.max_retries", 3)
	viper.SetDefault("transport.poll_interval", 5*time.Second)
	viper.SetDefault("transport.debounce", 100*time.Millisecond)
	viper.SetDefault("transport.max_poll_duration", 10*time.Minute)
	viper.SetDefault("transport.push_enabled", true)
	viper.SetDefault("transport.reconnect_attempts", 5)
	viper.SetDefault("transport.reconnect_base", 2*time.Second)
	viper.SetDefault("storage.type", "file")
	viper.SetDefault("recovery.window", 2*time.Hour)
	viper.SetDefault("recovery.auto_resume_delay", time.Second)
	viper.SetDefault("recovery.watch_interval", 10*time.Second)
}

// LoadConfig reads configuration from file and environment. A missing config
// file is tolerated when no explicit path was given; defaults plus
// FACTCHECK_* env vars apply.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	setDefaults()

	if path == "" {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		if dir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(filepath.Join(dir, "fact-check"))
		}
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("FACTCHECK")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if config.Backend.WSBaseURL == "" {
		config.Backend.WSBaseURL = deriveWSBase(config.Backend.BaseURL)
	}
	if config.Storage.Type == "redis" {
		if err := config.Storage.Redis.Validate(); err != nil {
			panic(err)
		}
	}
	if config.Storage.Type == "file" && config.Storage.File.Path == "" {
		config.Storage.File.Path = defaultStatePath()
	}
	return &config
}

// deriveWSBase maps an http(s) API base onto the matching ws(s) endpoint.
func deriveWSBase(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "fact-check-sessions.json"
	}
	return filepath.Join(dir, "fact-check", "sessions.json")
}
