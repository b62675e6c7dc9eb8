package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig points the client at the platform backend.
type ServerConfig struct {
	// BaseURL is the REST API root (e.g., https://obra.example.com/api).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// HubURL is the realtime hub endpoint. When empty it is derived from
	// BaseURL by switching the scheme to ws(s) and appending HubPath.
	HubURL string `mapstructure:"hub_url" yaml:"hub_url"`

	// HubPath is appended to BaseURL when HubURL is empty.
	HubPath string `mapstructure:"hub_path" yaml:"hub_path"`

	// TimeoutSec is the default per-request timeout.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// CreateTimeoutSec is the widened timeout used by the create path's
	// secondary attempt.
	CreateTimeoutSec int `mapstructure:"create_timeout_sec" yaml:"create_timeout_sec"`
}

// RealtimeConfig controls the reconnect policy of the realtime transport.
type RealtimeConfig struct {
	Enabled         bool `mapstructure:"enabled" yaml:"enabled"`
	FastAttempts    int  `mapstructure:"fast_attempts" yaml:"fast_attempts"`
	MediumAttempts  int  `mapstructure:"medium_attempts" yaml:"medium_attempts"`
	MaxAttempts     int  `mapstructure:"max_attempts" yaml:"max_attempts"`
	FastDelayMs     int  `mapstructure:"fast_delay_ms" yaml:"fast_delay_ms"`
	MediumDelayMs   int  `mapstructure:"medium_delay_ms" yaml:"medium_delay_ms"`
	SlowDelayMs     int  `mapstructure:"slow_delay_ms" yaml:"slow_delay_ms"`
	PingIntervalSec int  `mapstructure:"ping_interval_sec" yaml:"ping_interval_sec"`
}

// PollConfig controls the best-effort check-new poller.
type PollConfig struct {
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`

	// RefreshPerMinute caps manual refreshes.
	RefreshPerMinute int `mapstructure:"refresh_per_minute" yaml:"refresh_per_minute"`
}

// SoundConfig locates the audio assets used by the sound notifier.
type SoundConfig struct {
	// Dir holds error.wav, warning.wav, success.wav and default.wav.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// Command overrides the platform player (afplay or paplay).
	Command string `mapstructure:"command" yaml:"command"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	File        string `mapstructure:"file" yaml:"file"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// StoreConfig locates the local SQLite cache.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Realtime RealtimeConfig `mapstructure:"realtime" yaml:"realtime"`
	Poll     PollConfig     `mapstructure:"poll" yaml:"poll"`
	Sound    SoundConfig    `mapstructure:"sound" yaml:"sound"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
}

// ConfigDir returns ~/.config/obranotify, falling back to the working
// directory when the home directory cannot be resolved.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "obranotify")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/obranotify/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	dir := ConfigDir()
	return &AppConfig{
		Server: ServerConfig{
			BaseURL:          "http://localhost:8080/api",
			HubPath:          "/hubs/notifications",
			TimeoutSec:       15,
			CreateTimeoutSec: 45,
		},
		Realtime: RealtimeConfig{
			Enabled:         true,
			FastAttempts:    3,
			MediumAttempts:  3,
			MaxAttempts:     10,
			FastDelayMs:     1000,
			MediumDelayMs:   5000,
			SlowDelayMs:     15000,
			PingIntervalSec: 30,
		},
		Poll: PollConfig{
			IntervalSec:      60,
			RefreshPerMinute: 6,
		},
		Sound: SoundConfig{
			Dir: filepath.Join(dir, "sounds"),
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(dir, "obranotify.log"),
		},
		Store: StoreConfig{
			Path: filepath.Join(dir, "cache.db"),
		},
	}
}

// setDefaults registers every default so missing keys resolve.
func setDefaults(v *viper.Viper, cfg *AppConfig) {
	v.SetDefault("server.base_url", cfg.Server.BaseURL)
	v.SetDefault("server.hub_url", cfg.Server.HubURL)
	v.SetDefault("server.hub_path", cfg.Server.HubPath)
	v.SetDefault("server.timeout_sec", cfg.Server.TimeoutSec)
	v.SetDefault("server.create_timeout_sec", cfg.Server.CreateTimeoutSec)
	v.SetDefault("realtime.enabled", cfg.Realtime.Enabled)
	v.SetDefault("realtime.fast_attempts", cfg.Realtime.FastAttempts)
	v.SetDefault("realtime.medium_attempts", cfg.Realtime.MediumAttempts)
	v.SetDefault("realtime.max_attempts", cfg.Realtime.MaxAttempts)
	v.SetDefault("realtime.fast_delay_ms", cfg.Realtime.FastDelayMs)
	v.SetDefault("realtime.medium_delay_ms", cfg.Realtime.MediumDelayMs)
	v.SetDefault("realtime.slow_delay_ms", cfg.Realtime.SlowDelayMs)
	v.SetDefault("realtime.ping_interval_sec", cfg.Realtime.PingIntervalSec)
	v.SetDefault("poll.interval_sec", cfg.Poll.IntervalSec)
	v.SetDefault("poll.refresh_per_minute", cfg.Poll.RefreshPerMinute)
	v.SetDefault("sound.dir", cfg.Sound.Dir)
	v.SetDefault("sound.command", cfg.Sound.Command)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("store.path", cfg.Store.Path)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// OBRANOTIFY_* environment variables override file values (for example
// OBRANOTIFY_SERVER_BASE_URL). If the file does not exist, defaults plus
// environment overrides are returned.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("OBRANOTIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultAppConfig())

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Server.TimeoutSec <= 0 {
		cfg.Server.TimeoutSec = 15
	}
	if cfg.Server.CreateTimeoutSec < cfg.Server.TimeoutSec {
		cfg.Server.CreateTimeoutSec = cfg.Server.TimeoutSec * 3
	}
	if cfg.Poll.IntervalSec <= 0 {
		cfg.Poll.IntervalSec = 60
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("realtime", cfg.Realtime)
	v.Set("poll", cfg.Poll)
	v.Set("sound", cfg.Sound)
	v.Set("log", cfg.Log)
	v.Set("store", cfg.Store)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// RequestTimeout returns the default REST timeout.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// CreateTimeout returns the widened timeout for the create path.
func (c ServerConfig) CreateTimeout() time.Duration {
	return time.Duration(c.CreateTimeoutSec) * time.Second
}

// ResolvedHubURL returns HubURL, or derives it from BaseURL and HubPath.
func (c ServerConfig) ResolvedHubURL() string {
	if c.HubURL != "" {
		return c.HubURL
	}
	base := strings.TrimRight(c.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + c.HubPath
}
