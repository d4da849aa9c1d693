package config

// Default returns the baseline configuration before any file overrides.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: "~/.local/share/rollscout",
			LogDir:  "~/.local/share/rollscout/logs",
		},
		Provider: Provider{
			BaseURL:           "https://www.googleapis.com/youtube/v3",
			QuotaBudget:       10000,
			SearchCost:        100,
			DetailsCost:       1,
			MaxPagesPerQuery:  2,
			PageSize:          25,
			RequestsPerSecond: 2,
			TimeoutSeconds:    15,
		},
		Evaluator: Evaluator{
			BaseURL:                "https://openrouter.ai/api/v1/chat/completions",
			Model:                  "openai/gpt-4o-mini",
			TimeoutSeconds:         30,
			BreakerFailureLimit:    5,
			BreakerCooldownSeconds: 120,
		},
		Discovery: Discovery{
			BatchSize:            12,
			PriorityDrainLimit:   3,
			PriorityTopicCount:   3,
			SaturationThreshold:  4,
			SaturationPenalty:    1.5,
			AcceptanceThreshold:  6.0,
			CredibilityThreshold: 50,
			MinDurationSeconds:   180,
			MaxDurationSeconds:   10800,
			SparseTopicCutoff:    3,
			SaturatedTopicCutoff: 12,
			ErrorBudget:          10,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
