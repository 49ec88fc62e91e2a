package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Europarl   Europarl   `yaml:"europarl"`
	Classifier Classifier `yaml:"classifier"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

// Europarl configures the upstream Parliament endpoints and fetch behavior.
type Europarl struct {
	DocumentBaseURL   string `yaml:"document_base_url"`
	APIBaseURL        string `yaml:"api_base_url"`
	UserAgent         string `yaml:"user_agent"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	PolitenessDelayMS int    `yaml:"politeness_delay_ms"`
	FetchConcurrency  int    `yaml:"fetch_concurrency"`
	DiscoveryPageSize int    `yaml:"discovery_page_size"`
}

// Classifier configures the LLM topic classifier and its budgets.
type Classifier struct {
	BaseURL               string  `yaml:"base_url"`
	Model                 string  `yaml:"model"`
	APIKeyEnv             string  `yaml:"api_key_env"`
	Mode                  string  `yaml:"mode"` // "speech" or "topic"
	Concurrency           int     `yaml:"concurrency"`
	RequestsPerMinute     int     `yaml:"requests_per_minute"`
	TokensPerMinute       int     `yaml:"tokens_per_minute"`
	BudgetHeadroom        float64 `yaml:"budget_headroom"`
	MaxTokens             int     `yaml:"max_tokens"`
	PricePerMillionInput  float64 `yaml:"price_per_million_input"`
	PricePerMillionOutput float64 `yaml:"price_per_million_output"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for eurowatch.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "eurowatch")
}

// DataDir returns the XDG data directory for eurowatch.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "eurowatch")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/eurowatch/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'eurowatch init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Europarl: Europarl{
			DocumentBaseURL:   "https://www.europarl.europa.eu",
			APIBaseURL:        "https://data.europarl.europa.eu/api/v2",
			UserAgent:         "eurowatch/1.0 (plenary research; contact: ops@eurowatch.eu)",
			TimeoutSeconds:    20,
			PolitenessDelayMS: 150,
			FetchConcurrency:  2,
			DiscoveryPageSize: 100,
		},
		Classifier: Classifier{
			BaseURL:               "https://api.openai.com/v1",
			Model:                 "gpt-4o-mini",
			APIKeyEnv:             "OPENAI_API_KEY",
			Mode:                  "speech",
			Concurrency:           10,
			RequestsPerMinute:     5000,
			TokensPerMinute:       2_000_000,
			BudgetHeadroom:        0.9,
			MaxTokens:             128,
			PricePerMillionInput:  0.15,
			PricePerMillionOutput: 0.60,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Classifier.Mode != "speech" && cfg.Classifier.Mode != "topic" {
		return nil, fmt.Errorf("classifier.mode must be \"speech\" or \"topic\", got %q", cfg.Classifier.Mode)
	}
	if cfg.Classifier.BudgetHeadroom <= 0 || cfg.Classifier.BudgetHeadroom > 1 {
		return nil, fmt.Errorf("classifier.budget_headroom must be in (0, 1], got %v", cfg.Classifier.BudgetHeadroom)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// FetchTimeout returns the per-request timeout for Parliament fetches.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Europarl.TimeoutSeconds) * time.Second
}

// PolitenessDelay returns the delay between consecutive Parliament requests.
func (c *Config) PolitenessDelay() time.Duration {
	return time.Duration(c.Europarl.PolitenessDelayMS) * time.Millisecond
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
