package config

// DefaultConfig returns the built-in configuration. User YAML is merged on
// top; any unset value falls back to these.
func DefaultConfig() *Config {
	return &Config{
		DataRoot: "./data",
		LLM: &LLMConfig{
			Provider:       "openai",
			ModelQueryGen:  "gpt-4o-mini",
			ModelRelevance: "gpt-4o-mini",
			ModelSynthesis: "gpt-4o",
			MaxParallel:    8,
			TimeoutSeconds: 30,
			APIKeyEnv:      "OPENAI_API_KEY",
		},
		Research: &ResearchConfig{
			MaxTasks:             10,
			MaxRetriesPerTask:    2,
			MaxTimeMinutes:       60,
			MaxConcurrentTasks:   4,
			MinResultsPerTask:    3,
			RelevanceThreshold:   3,
			MinSourceUtilization: 0.5,
		},
		Executor: &ExecutorConfig{
			Concurrency:             8,
			RelevanceTimeoutSeconds: 5,
			QueryGenTimeoutSeconds:  30,
			TimeoutSeconds:          60,
		},
		Integrations:       make(map[string]*IntegrationConfig),
		Alerts:             &AlertsConfig{Slack: &SlackAlertConfig{TokenEnv: "SLACK_BOT_TOKEN"}},
		SensitivityMarkers: DefaultSensitivityMarkers(),
	}
}

// DefaultSensitivityMarkers is the built-in vocabulary of terms that mark
// a question sensitive. Public sources carry only sparse, oblique evidence
// for these topics, so matching any marker lowers the run's relevance
// threshold to 1.
func DefaultSensitivityMarkers() []string {
	return []string{
		"classified",
		"special access program",
		"sap",
		"sci",
		"compartmented",
		"covert",
		"clandestine",
		"black program",
		"black budget",
		"waived program",
		"unacknowledged",
		"code word",
		"top secret",
		"ts/sci",
	}
}
