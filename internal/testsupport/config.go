package testsupport

import (
	"path/filepath"
	"testing"

	"rollscout/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Provider.APIKey = "test-provider-key"
	cfg.Evaluator.APIKey = "test-evaluator-key"
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithBatchSize overrides the discovery batch size on the test config.
func WithBatchSize(size int) ConfigOption {
	return func(c *config.Config) {
		c.Discovery.BatchSize = size
	}
}

// WithQuotaBudget overrides the provider quota budget on the test config.
func WithQuotaBudget(budget int) ConfigOption {
	return func(c *config.Config) {
		c.Provider.QuotaBudget = budget
	}
}
