package config

import (
	"os"
	"time"
)

// Config is the process-wide configuration. Populated once during
// initialization and treated as read-only afterwards; readers need no
// synchronization.
type Config struct {
	configDir string

	DataRoot string

	LLM          *LLMConfig
	Research     *ResearchConfig
	Executor     *ExecutorConfig
	Integrations map[string]*IntegrationConfig
	Alerts       *AlertsConfig

	// SensitivityMarkers is the vocabulary that lowers the relevance
	// threshold for a run when matched in the question.
	SensitivityMarkers []string
}

// LLMConfig selects models per call site and bounds gateway concurrency.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "openai" or "anthropic"
	BaseURL  string `yaml:"base_url,omitempty"`

	ModelQueryGen  string `yaml:"model_query_gen"`
	ModelRelevance string `yaml:"model_relevance"`
	ModelSynthesis string `yaml:"model_synthesis"`

	MaxParallel    int    `yaml:"max_parallel"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	APIKeyEnv      string `yaml:"api_key_env"`
}

// Timeout returns the per-call LLM timeout.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// APIKey reads the provider credential from the environment. Credentials
// are never stored in configuration files.
func (c *LLMConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// ResearchConfig bounds deep research runs.
type ResearchConfig struct {
	MaxTasks             int     `yaml:"max_tasks"`
	MaxRetriesPerTask    int     `yaml:"max_retries_per_task"`
	MaxTimeMinutes       int     `yaml:"max_time_minutes"`
	MaxConcurrentTasks   int     `yaml:"max_concurrent_tasks"`
	MinResultsPerTask    int     `yaml:"min_results_per_task"`
	RelevanceThreshold   int     `yaml:"relevance_threshold"`
	MinSourceUtilization float64 `yaml:"min_source_utilization"`
}

// ExecutorConfig bounds the parallel executor's phases.
type ExecutorConfig struct {
	Concurrency             int      `yaml:"concurrency"`
	RelevanceTimeoutSeconds int      `yaml:"relevance_timeout_seconds"`
	QueryGenTimeoutSeconds  int      `yaml:"query_gen_timeout_seconds"`
	TimeoutSeconds          int      `yaml:"timeout_seconds"`
	CriticalSources         []string `yaml:"critical_sources,omitempty"`
}

// RelevanceTimeout is the phase-wide budget for the relevance gate.
func (c *ExecutorConfig) RelevanceTimeout() time.Duration {
	return time.Duration(c.RelevanceTimeoutSeconds) * time.Second
}

// QueryGenTimeout is the per-call query-generation budget.
func (c *ExecutorConfig) QueryGenTimeout() time.Duration {
	return time.Duration(c.QueryGenTimeoutSeconds) * time.Second
}

// SearchTimeout is the per-call search-execution budget.
func (c *ExecutorConfig) SearchTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IntegrationConfig carries per-source overrides.
type IntegrationConfig struct {
	Enabled       *bool             `yaml:"enabled,omitempty"`
	BaseURL       string            `yaml:"base_url,omitempty"`
	APIKeyEnv     string            `yaml:"api_key_env,omitempty"`
	RateLimitRPS  float64           `yaml:"rate_limit_rps,omitempty"`
	MaxLookback   string            `yaml:"max_lookback,omitempty"`
	ExtraSettings map[string]string `yaml:"extra,omitempty"`
}

// IsEnabled defaults to true when unset.
func (c *IntegrationConfig) IsEnabled() bool {
	if c == nil || c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// APIKey reads the source credential from the environment.
func (c *IntegrationConfig) APIKey() string {
	if c == nil || c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// AlertsConfig configures alert delivery channels.
type AlertsConfig struct {
	Slack *SlackAlertConfig `yaml:"slack,omitempty"`
}

// SlackAlertConfig holds Slack delivery settings. The token is resolved
// from the environment at send time.
type SlackAlertConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env"`
	Channel  string `yaml:"channel"`
}

// Integration returns the override block for a source id, which may be nil.
func (c *Config) Integration(sourceID string) *IntegrationConfig {
	return c.Integrations[sourceID]
}

// CredentialValues collects all configured credential values currently in
// the environment, for the log masker.
func (c *Config) CredentialValues() []string {
	var vals []string
	if c.LLM != nil {
		if v := c.LLM.APIKey(); v != "" {
			vals = append(vals, v)
		}
	}
	for _, ic := range c.Integrations {
		if v := ic.APIKey(); v != "" {
			vals = append(vals, v)
		}
	}
	if c.Alerts != nil && c.Alerts.Slack != nil {
		if v := os.Getenv(c.Alerts.Slack.TokenEnv); v != "" {
			vals = append(vals, v)
		}
	}
	return vals
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// MonitorConfigDir returns the directory of user-edited monitor YAML files.
func (c *Config) MonitorConfigDir() string {
	return c.DataRoot + "/monitors/configs"
}

// MonitorStateDir returns the directory of persisted monitor state files.
func (c *Config) MonitorStateDir() string {
	return c.DataRoot + "/monitors/state"
}

// MonitorAlertDir returns the directory where alert emissions are archived.
func (c *Config) MonitorAlertDir() string {
	return c.DataRoot + "/monitors/alerts"
}

// ResearchDir returns the root for per-run research artifacts.
func (c *Config) ResearchDir() string {
	return c.DataRoot + "/research"
}

// OpsLogDir returns the aggregated ops log directory.
func (c *Config) OpsLogDir() string {
	return c.DataRoot + "/logs"
}
