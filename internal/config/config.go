// Package config loads the inbox daemon configuration from YAML with
// environment variable expansion and sensible defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for the inbox daemon.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	LLM       LLMConfig       `yaml:"llm"`
	Routing   RoutingConfig   `yaml:"routing"`
	Approvals ApprovalsConfig `yaml:"approvals"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Agents    []AgentConfig   `yaml:"agents"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

type StoreConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `yaml:"driver"`
	// Path is the SQLite database file. Ignored for the memory driver.
	Path string `yaml:"path"`
}

type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
}

type RoutingConfig struct {
	// Provider and Model select the classifier backend. Empty provider
	// disables LLM classification and routing falls back to the default
	// agent.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type ApprovalsConfig struct {
	// TTL is how long a pending approval stays resolvable before the
	// janitor expires it.
	TTL time.Duration `yaml:"ttl"`
	// SweepSchedule is a cron expression for the expiry sweep.
	SweepSchedule string `yaml:"sweep_schedule"`
}

type DispatchConfig struct {
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	MaxToolCalls int           `yaml:"max_tool_calls"`
	TurnTimeout  time.Duration `yaml:"turn_timeout"`
}

type AgentConfig struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	SystemPrompt string   `yaml:"system_prompt"`
	Model        string   `yaml:"model"`
	Provider     string   `yaml:"provider"`
	Generalist   bool     `yaml:"generalist"`
	Agentic      bool     `yaml:"agentic"`
	Tools        []string `yaml:"tools"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "agentinbox.db"
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}
	if cfg.Approvals.TTL == 0 {
		cfg.Approvals.TTL = 24 * time.Hour
	}
	if cfg.Approvals.SweepSchedule == "" {
		cfg.Approvals.SweepSchedule = "*/5 * * * *"
	}
	if cfg.Dispatch.Workers == 0 {
		cfg.Dispatch.Workers = 4
	}
	if cfg.Dispatch.QueueSize == 0 {
		cfg.Dispatch.QueueSize = 256
	}
	if cfg.Dispatch.MaxToolCalls == 0 {
		cfg.Dispatch.MaxToolCalls = 10
	}
	if cfg.Dispatch.TurnTimeout == 0 {
		cfg.Dispatch.TurnTimeout = 2 * time.Minute
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func (cfg *Config) validate() error {
	switch cfg.Store.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	seen := make(map[string]bool, len(cfg.Agents))
	generalists := 0
	for i, a := range cfg.Agents {
		if a.ID == "" {
			return fmt.Errorf("agents[%d]: id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("agents[%d]: duplicate id %q", i, a.ID)
		}
		seen[a.ID] = true
		if a.Generalist {
			generalists++
		}
	}
	if len(cfg.Agents) > 0 && generalists == 0 {
		return fmt.Errorf("at least one agent must be marked generalist")
	}
	return nil
}
