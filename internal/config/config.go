// Package config holds all configuration types and loading logic for
// ThreadFlow. Config structure never shrinks — fields are only added, never
// renamed or removed.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a ThreadFlow server instance.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	AI        AIConfig        `yaml:"ai"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Threads   ThreadsConfig   `yaml:"threads"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds network and storage settings for this instance.
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

// AuthConfig controls API key authentication on the HTTP transport.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
}

// AIConfig controls the text-generation collaborator.
type AIConfig struct {
	// BaseURL is the generation endpoint. Empty disables generation.
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	// GenerationLimit is the per-session ceiling on generation calls.
	// Requests beyond the ceiling are refused locally without contacting
	// the collaborator.
	GenerationLimit int `yaml:"generation_limit"`
	TimeoutMs       int `yaml:"timeout_ms"`
}

// SchedulerConfig bounds the automatic queue-to-calendar placement search.
type SchedulerConfig struct {
	// HorizonDays is how many calendar days forward a single placement
	// search may walk before the entry is deferred.
	HorizonDays int `yaml:"horizon_days"`
	// Timezone is the IANA zone used to interpret slot dates and times.
	Timezone string `yaml:"timezone"`
}

// DispatchConfig controls the periodic due-post publisher.
type DispatchConfig struct {
	Enabled bool `yaml:"enabled"`
	// Spec is a cron expression. The default fires at the top of every hour.
	Spec string `yaml:"spec"`
}

// ThreadsConfig holds the app credentials used for the brokered OAuth
// token exchange against the publishing platform.
type ThreadsConfig struct {
	AppID     string `yaml:"app_id"`
	AppSecret string `yaml:"app_secret"`
	// GraphBaseURL and PublishBaseURL are overridable for tests.
	GraphBaseURL   string `yaml:"graph_base_url"`
	PublishBaseURL string `yaml:"publish_base_url"`
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a Config populated with safe, sensible defaults.
// It is the canonical source of truth for default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			DataDir: "./data",
		},
		Auth: AuthConfig{
			Enabled: false,
			APIKey:  "",
		},
		AI: AIConfig{
			BaseURL:         "https://generativelanguage.googleapis.com",
			Model:           "gemini-2.5-flash",
			GenerationLimit: 30,
			TimeoutMs:       30_000,
		},
		Scheduler: SchedulerConfig{
			HorizonDays: 365,
			Timezone:    "UTC",
		},
		Dispatch: DispatchConfig{
			Enabled: true,
			Spec:    "0 * * * *",
		},
		Threads: ThreadsConfig{
			GraphBaseURL:   "https://graph.facebook.com",
			PublishBaseURL: "https://graph.threads.net",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads a YAML config file at path and overlays it on top of Default().
// If the file does not exist the default config is returned without error,
// making it easy to run ThreadFlow with no config file at all.
//
// After loading the file, environment variables are applied as overrides:
//
//	THREADFLOW_AUTH_API_KEY — sets auth.api_key and enables auth
//	THREADFLOW_AI_API_KEY   — sets ai.api_key
//	THREADFLOW_DATA_DIR     — sets server.data_dir
//	THREADFLOW_PORT         — sets server.port
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays environment variable overrides onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("THREADFLOW_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
		cfg.Auth.Enabled = true
	}
	if v := os.Getenv("THREADFLOW_AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("THREADFLOW_DATA_DIR"); v != "" {
		cfg.Server.DataDir = v
	}
	if v := os.Getenv("THREADFLOW_PORT"); v != "" {
		var p int
		if _, err := fmt.Sscanf(v, "%d", &p); err == nil && p > 0 {
			cfg.Server.Port = p
		}
	}
}

// Validate checks that the config values are consistent and within acceptable
// ranges. It returns the first error found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Server.DataDir == "" {
		return errors.New("server.data_dir must not be empty")
	}
	if c.AI.GenerationLimit < 1 {
		return errors.New("ai.generation_limit must be at least 1")
	}
	if c.AI.TimeoutMs < 1 {
		return errors.New("ai.timeout_ms must be at least 1")
	}
	if c.Scheduler.HorizonDays < 1 {
		return errors.New("scheduler.horizon_days must be at least 1")
	}
	if c.Scheduler.Timezone == "" {
		return errors.New("scheduler.timezone must not be empty")
	}
	if c.Dispatch.Enabled && c.Dispatch.Spec == "" {
		return errors.New("dispatch.spec must not be empty when dispatch is enabled")
	}
	return nil
}
