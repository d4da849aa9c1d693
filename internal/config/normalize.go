package config

import (
	"os"
	"strings"
)

// normalize expands paths, trims string fields, and applies environment
// variable overrides for secrets.
func (c *Config) normalize() error {
	if key := strings.TrimSpace(os.Getenv("ROLLSCOUT_PROVIDER_API_KEY")); key != "" {
		c.Provider.APIKey = key
	}
	if key := strings.TrimSpace(os.Getenv("ROLLSCOUT_EVALUATOR_API_KEY")); key != "" {
		c.Evaluator.APIKey = key
	}
	if key := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")); key != "" && c.Evaluator.APIKey == "" {
		c.Evaluator.APIKey = key
	}

	c.Provider.APIKey = strings.TrimSpace(c.Provider.APIKey)
	c.Provider.BaseURL = strings.TrimRight(strings.TrimSpace(c.Provider.BaseURL), "/")
	c.Evaluator.APIKey = strings.TrimSpace(c.Evaluator.APIKey)
	c.Evaluator.BaseURL = strings.TrimSpace(c.Evaluator.BaseURL)
	c.Evaluator.Model = strings.TrimSpace(c.Evaluator.Model)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	for _, field := range []*string{&c.Paths.DataDir, &c.Paths.LogDir} {
		expanded, err := expandPath(strings.TrimSpace(*field))
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}
