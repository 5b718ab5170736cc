// Package config handles configuration loading and management for Foreman.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Foreman.
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Resources ResourcesConfig `mapstructure:"resources"`
	History   HistoryConfig   `mapstructure:"history"`
	Watch     WatchConfig     `mapstructure:"watch"`
	TUI       TUIConfig       `mapstructure:"tui"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// SchedulerConfig holds the intervals for the background loops.
type SchedulerConfig struct {
	// DispatchInterval is how often the scheduler scans the queue.
	DispatchInterval time.Duration `mapstructure:"dispatch_interval"`
	// HealthInterval is how often agent health is swept.
	HealthInterval time.Duration `mapstructure:"health_interval"`
	// CleanupInterval is how often finished records are pruned.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	// MessageInterval is how often coordinator messages are processed.
	MessageInterval time.Duration `mapstructure:"message_interval"`
	// CommCleanupInterval is how often the bus drops expired requests.
	CommCleanupInterval time.Duration `mapstructure:"comm_cleanup_interval"`
	// InactivityWindow is how long a busy agent may stay silent before
	// being flagged unhealthy.
	InactivityWindow time.Duration `mapstructure:"inactivity_window"`
}

// RetryConfig holds task retry defaults.
type RetryConfig struct {
	// MaxRetries is applied to tasks that do not set their own limit.
	MaxRetries int `mapstructure:"max_retries"`
}

// ApprovalConfig holds workflow approval gate settings.
type ApprovalConfig struct {
	// Timeout is how long a pending approval waits before rejecting.
	Timeout time.Duration `mapstructure:"timeout"`
}

// ResourcesConfig holds pooled resource capacities.
type ResourcesConfig struct {
	CPU     float64 `mapstructure:"cpu"`
	Memory  float64 `mapstructure:"memory"`
	Network float64 `mapstructure:"network"`
	Storage float64 `mapstructure:"storage"`
}

// Capacities returns the capacities keyed by resource type.
func (rc ResourcesConfig) Capacities() map[string]float64 {
	return map[string]float64{
		"cpu":     rc.CPU,
		"memory":  rc.Memory,
		"network": rc.Network,
		"storage": rc.Storage,
	}
}

// HistoryConfig holds the sqlite journal settings.
type HistoryConfig struct {
	// Path is the sqlite database file. Empty selects the XDG data path.
	Path string `mapstructure:"path"`
	// TaskRetention is how long completed tasks stay in memory.
	TaskRetention time.Duration `mapstructure:"task_retention"`
	// WorkflowRetention is how long finished workflows stay in memory.
	WorkflowRetention time.Duration `mapstructure:"workflow_retention"`
}

// WatchConfig holds workflow drop-directory settings.
type WatchConfig struct {
	// Dir is the directory watched for workflow YAML files.
	Dir string `mapstructure:"dir"`
}

// TUIConfig holds dashboard settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// DebugConfig holds debug logging settings.
type DebugConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	LogFile string `mapstructure:"log_file"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (FOREMAN_*)
// 2. Project config (.foreman.yaml in current directory or parent)
// 3. User config (~/.config/foreman/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Project config takes precedence over the user config.
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("FOREMAN")
	v.AutomaticEnv()
	v.BindEnv("history.path", "FOREMAN_HISTORY_PATH")
	v.BindEnv("watch.dir", "FOREMAN_WATCH_DIR")
	v.BindEnv("debug.enabled", "FOREMAN_DEBUG")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.History.Path = os.ExpandEnv(cfg.History.Path)
	cfg.Watch.Dir = os.ExpandEnv(cfg.Watch.Dir)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// DefaultHistoryPath returns the XDG data path for the history database.
func DefaultHistoryPath() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "foreman", "history.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", "foreman", "history.db")
	}
	return filepath.Join(home, ".local", "share", "foreman", "history.db")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("scheduler.dispatch_interval", "5s")
	v.SetDefault("scheduler.health_interval", "30s")
	v.SetDefault("scheduler.cleanup_interval", "300s")
	v.SetDefault("scheduler.message_interval", "1s")
	v.SetDefault("scheduler.comm_cleanup_interval", "60s")
	v.SetDefault("scheduler.inactivity_window", "5m")

	v.SetDefault("retry.max_retries", 3)

	v.SetDefault("approval.timeout", "300s")

	v.SetDefault("resources.cpu", 100.0)
	v.SetDefault("resources.memory", 100.0)
	v.SetDefault("resources.network", 100.0)
	v.SetDefault("resources.storage", 100.0)

	v.SetDefault("history.path", "")
	v.SetDefault("history.task_retention", "1h")
	v.SetDefault("history.workflow_retention", "24h")

	v.SetDefault("watch.dir", "")

	v.SetDefault("tui.refresh_rate", "1s")

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.log_file", "")
}

// getUserConfigDir returns the XDG config directory for Foreman.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "foreman")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "foreman")
	}
	return filepath.Join(home, ".config", "foreman")
}

// findProjectConfig searches for .foreman.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".foreman.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			DispatchInterval:    5 * time.Second,
			HealthInterval:      30 * time.Second,
			CleanupInterval:     300 * time.Second,
			MessageInterval:     time.Second,
			CommCleanupInterval: 60 * time.Second,
			InactivityWindow:    5 * time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
		},
		Approval: ApprovalConfig{
			Timeout: 300 * time.Second,
		},
		Resources: ResourcesConfig{
			CPU:     100,
			Memory:  100,
			Network: 100,
			Storage: 100,
		},
		History: HistoryConfig{
			TaskRetention:     time.Hour,
			WorkflowRetention: 24 * time.Hour,
		},
		TUI: TUIConfig{
			RefreshRate: time.Second,
		},
	}
}
