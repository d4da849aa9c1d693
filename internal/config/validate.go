package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateEvaluator(); err != nil {
		return err
	}
	if err := c.validateDiscovery(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateProvider() error {
	if c.Provider.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/rollscout/config.toml"
		}
		return fmt.Errorf("provider.api_key is required. Set ROLLSCOUT_PROVIDER_API_KEY env var or edit %s (create with 'rollscout config init')", defaultPath)
	}
	if strings.TrimSpace(c.Provider.BaseURL) == "" {
		return errors.New("provider.base_url must be set")
	}
	if err := ensurePositiveMap(map[string]int{
		"provider.quota_budget":        c.Provider.QuotaBudget,
		"provider.search_cost":         c.Provider.SearchCost,
		"provider.details_cost":        c.Provider.DetailsCost,
		"provider.max_pages_per_query": c.Provider.MaxPagesPerQuery,
		"provider.page_size":           c.Provider.PageSize,
		"provider.timeout_seconds":     c.Provider.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Provider.RequestsPerSecond <= 0 {
		return errors.New("provider.requests_per_second must be positive")
	}
	if c.Provider.SearchCost > c.Provider.QuotaBudget {
		return errors.New("provider.search_cost must not exceed provider.quota_budget")
	}
	return nil
}

func (c *Config) validateEvaluator() error {
	if strings.TrimSpace(c.Evaluator.BaseURL) == "" {
		return errors.New("evaluator.base_url must be set")
	}
	if strings.TrimSpace(c.Evaluator.Model) == "" {
		return errors.New("evaluator.model must be set")
	}
	return ensurePositiveMap(map[string]int{
		"evaluator.timeout_seconds":          c.Evaluator.TimeoutSeconds,
		"evaluator.breaker_failure_limit":    c.Evaluator.BreakerFailureLimit,
		"evaluator.breaker_cooldown_seconds": c.Evaluator.BreakerCooldownSeconds,
	})
}

func (c *Config) validateDiscovery() error {
	d := c.Discovery
	if err := ensurePositiveMap(map[string]int{
		"discovery.batch_size":            d.BatchSize,
		"discovery.priority_drain_limit":  d.PriorityDrainLimit,
		"discovery.priority_topic_count":  d.PriorityTopicCount,
		"discovery.saturation_threshold":  d.SaturationThreshold,
		"discovery.min_duration_seconds":  d.MinDurationSeconds,
		"discovery.max_duration_seconds":  d.MaxDurationSeconds,
		"discovery.error_budget":          d.ErrorBudget,
		"discovery.sparse_topic_cutoff":   d.SparseTopicCutoff,
		"discovery.credibility_threshold": d.CredibilityThreshold,
	}); err != nil {
		return err
	}
	if d.SaturationPenalty < 0 {
		return errors.New("discovery.saturation_penalty must be >= 0")
	}
	if d.AcceptanceThreshold < 0 || d.AcceptanceThreshold > 10 {
		return errors.New("discovery.acceptance_threshold must be between 0 and 10")
	}
	if d.MaxDurationSeconds <= d.MinDurationSeconds {
		return errors.New("discovery.max_duration_seconds must be greater than discovery.min_duration_seconds")
	}
	if d.SaturatedTopicCutoff <= d.SparseTopicCutoff {
		return errors.New("discovery.saturated_topic_cutoff must be greater than discovery.sparse_topic_cutoff")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
