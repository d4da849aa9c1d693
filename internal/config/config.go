package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Provider contains configuration for the video platform search API.
type Provider struct {
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	QuotaBudget       int     `toml:"quota_budget"`
	SearchCost        int     `toml:"search_cost"`
	DetailsCost       int     `toml:"details_cost"`
	MaxPagesPerQuery  int     `toml:"max_pages_per_query"`
	PageSize          int     `toml:"page_size"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
}

// Evaluator contains configuration for the external LLM quality evaluator.
type Evaluator struct {
	APIKey                 string `toml:"api_key"`
	BaseURL                string `toml:"base_url"`
	Model                  string `toml:"model"`
	TimeoutSeconds         int    `toml:"timeout_seconds"`
	BreakerFailureLimit    int    `toml:"breaker_failure_limit"`
	BreakerCooldownSeconds int    `toml:"breaker_cooldown_seconds"`
}

// Discovery contains the curation thresholds and batch tuning knobs.
type Discovery struct {
	BatchSize            int     `toml:"batch_size"`
	PriorityDrainLimit   int     `toml:"priority_drain_limit"`
	PriorityTopicCount   int     `toml:"priority_topic_count"`
	SaturationThreshold  int     `toml:"saturation_threshold"`
	SaturationPenalty    float64 `toml:"saturation_penalty"`
	AcceptanceThreshold  float64 `toml:"acceptance_threshold"`
	CredibilityThreshold int     `toml:"credibility_threshold"`
	MinDurationSeconds   int     `toml:"min_duration_seconds"`
	MaxDurationSeconds   int     `toml:"max_duration_seconds"`
	SparseTopicCutoff    int     `toml:"sparse_topic_cutoff"`
	SaturatedTopicCutoff int     `toml:"saturated_topic_cutoff"`
	ErrorBudget          int     `toml:"error_budget"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for rollscout.
//
// Configuration sections by subsystem:
//   - Paths: catalog database and log directories
//   - Provider: search API credentials, quota budget, and call costs
//   - Evaluator: LLM evaluator connection and circuit breaker settings
//   - Discovery: batch sizing, saturation, and admission thresholds
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Provider  Provider  `toml:"provider"`
	Evaluator Evaluator `toml:"evaluator"`
	Discovery Discovery `toml:"discovery"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/rollscout/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/rollscout/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("rollscout.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the path to the catalog database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "catalog.db")
}

// LockPath returns the path to the single-flight run lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "rollscout.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
