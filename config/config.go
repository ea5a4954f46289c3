// Package config resolves server settings. Precedence, highest first:
// command-line flags (applied by the caller), environment variables, the
// YAML config file, built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	projectConfigName = "perplexity-mcp.yaml"
	homeConfigDir     = ".perplexity-mcp"
	homeConfigName    = "config.yaml"

	DefaultBaseURL         = "https://api.perplexity.ai"
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 3000
	DefaultCORSOrigin      = "*"
	DefaultHeartbeat       = 30 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultJournalPrune    = "@hourly"
)

// Config is the resolved server configuration.
type Config struct {
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	AuthToken       string        `yaml:"auth_token"`
	CORSOrigin      string        `yaml:"cors_origin"`
	Heartbeat       time.Duration `yaml:"heartbeat"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	OTLPEndpoint    string        `yaml:"otlp_endpoint"`
	Journal         JournalConfig `yaml:"journal"`
}

// JournalConfig configures the optional SQLite event journal.
type JournalConfig struct {
	// Path of the SQLite file. Empty disables the journal.
	Path string `yaml:"path"`
	// Retention deletes events older than this. Zero keeps everything.
	Retention time.Duration `yaml:"retention"`
	// Prune is a cron spec for retention passes.
	Prune string `yaml:"prune"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		Host:            DefaultHost,
		Port:            DefaultPort,
		CORSOrigin:      DefaultCORSOrigin,
		Heartbeat:       DefaultHeartbeat,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogLevel:        "info",
		Journal: JournalConfig{
			Prune: DefaultJournalPrune,
		},
	}
}

// Load resolves defaults, then the config file at path (if non-empty), then
// environment variables read through getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := mergeEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdown_timeout must not be negative"))
	}
	if c.Journal.Retention < 0 {
		errs = append(errs, errors.New("journal.retention must not be negative"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func mergeEnv(cfg *Config, getenv func(string) string) error {
	if v := strings.TrimSpace(getenv("PERPLEXITY_API_KEY")); v != "" {
		cfg.APIKey = v
	}
	if v := strings.TrimSpace(getenv("PERPLEXITY_BASE_URL")); v != "" {
		cfg.BaseURL = v
	}
	if v := strings.TrimSpace(getenv("HOST")); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Port = port
	}
	if v := strings.TrimSpace(getenv("MCP_AUTH_TOKEN")); v != "" {
		cfg.AuthToken = v
	}
	if v := strings.TrimSpace(getenv("MCP_CORS_ORIGIN")); v != "" {
		cfg.CORSOrigin = v
	}
	if v := strings.TrimSpace(getenv("PERPLEXITY_MCP_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(getenv("PERPLEXITY_MCP_JOURNAL")); v != "" {
		cfg.Journal.Path = v
	}
	if v := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.OTLPEndpoint = v
	}
	return nil
}

// DiscoverPath resolves the config file location with first-match semantics.
func DiscoverPath(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = ""
	}
	return DiscoverPathFrom(explicitPath, cwd, homeDir)
}

// DiscoverPathFrom is a testable variant of DiscoverPath. An explicit path
// that does not exist is an error; missing default locations are not.
func DiscoverPathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		if homeDir != "" {
			candidates = append(candidates, filepath.Join(homeDir, homeConfigDir, homeConfigName))
		}
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}
