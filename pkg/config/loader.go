package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// yamlConfig mirrors the osint.yaml file structure.
type yamlConfig struct {
	DataRoot           string                        `yaml:"data_root"`
	LLM                *LLMConfig                    `yaml:"llm"`
	Research           *ResearchConfig               `yaml:"research"`
	Executor           *ExecutorConfig               `yaml:"executor"`
	Integrations       map[string]*IntegrationConfig `yaml:"integrations"`
	Alerts             *AlertsConfig                 `yaml:"alerts"`
	SensitivityMarkers []string                      `yaml:"sensitivity_markers"`
}

// Initialize loads, merges, and validates configuration from configDir.
// This is the primary entry point; configuration errors here are fatal to
// process startup.
//
// Steps performed:
//  1. Load osint.yaml (optional; defaults apply when absent)
//  2. Expand environment variables ({{.VAR}} template syntax)
//  3. Merge user YAML over built-in defaults
//  4. Apply documented environment-variable overrides
//  5. Validate
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg := DefaultConfig()
	cfg.configDir = configDir

	user, err := loadYAMLFile(filepath.Join(configDir, "osint.yaml"))
	if err != nil {
		return nil, NewLoadError("osint.yaml", err)
	}
	if user != nil {
		if err := mergeUserConfig(cfg, user); err != nil {
			return nil, fmt.Errorf("merging configuration: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	log.Info("Configuration initialized",
		"data_root", cfg.DataRoot,
		"llm_provider", cfg.LLM.Provider,
		"integration_overrides", len(cfg.Integrations))
	return cfg, nil
}

// loadYAMLFile reads and parses one YAML file. A missing file returns
// (nil, nil): every option has a built-in default.
func loadYAMLFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("Configuration file not found, using defaults", "path", path)
			return nil, nil
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var cfg yamlConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &cfg, nil
}

// mergeUserConfig layers user YAML over the built-in defaults. Non-zero
// user values win.
func mergeUserConfig(cfg *Config, user *yamlConfig) error {
	if user.DataRoot != "" {
		cfg.DataRoot = user.DataRoot
	}
	if user.LLM != nil {
		if err := mergo.Merge(cfg.LLM, user.LLM, mergo.WithOverride); err != nil {
			return fmt.Errorf("llm section: %w", err)
		}
	}
	if user.Research != nil {
		if err := mergo.Merge(cfg.Research, user.Research, mergo.WithOverride); err != nil {
			return fmt.Errorf("research section: %w", err)
		}
	}
	if user.Executor != nil {
		if err := mergo.Merge(cfg.Executor, user.Executor, mergo.WithOverride); err != nil {
			return fmt.Errorf("executor section: %w", err)
		}
	}
	if user.Alerts != nil {
		if err := mergo.Merge(cfg.Alerts, user.Alerts, mergo.WithOverride); err != nil {
			return fmt.Errorf("alerts section: %w", err)
		}
	}
	for id, ic := range user.Integrations {
		cfg.Integrations[id] = ic
	}
	if len(user.SensitivityMarkers) > 0 {
		cfg.SensitivityMarkers = user.SensitivityMarkers
	}
	return nil
}

// applyEnvOverrides applies the documented OSINT_* environment overrides
// on top of file configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OSINT_DATA_ROOT"); v != "" {
		cfg.DataRoot = v
	}
	if v := os.Getenv("OSINT_LLM_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LLM.MaxParallel = n
		} else {
			slog.Warn("Ignoring invalid OSINT_LLM_MAX_PARALLEL", "value", v)
		}
	}
	if v := os.Getenv("OSINT_EXECUTOR_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Executor.Concurrency = n
		} else {
			slog.Warn("Ignoring invalid OSINT_EXECUTOR_CONCURRENCY", "value", v)
		}
	}
	if v := os.Getenv("OSINT_RESEARCH_MAX_TASKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Research.MaxTasks = n
		} else {
			slog.Warn("Ignoring invalid OSINT_RESEARCH_MAX_TASKS", "value", v)
		}
	}
}

// validate rejects configurations the process cannot start with.
func validate(cfg *Config) error {
	if cfg.DataRoot == "" {
		return &ValidationError{Section: "data_root", Err: ErrMissingRequiredField}
	}
	if cfg.LLM.Provider != "openai" && cfg.LLM.Provider != "anthropic" {
		return &ValidationError{Section: "llm", Field: "provider",
			Err: fmt.Errorf("%w: %q (want openai or anthropic)", ErrInvalidValue, cfg.LLM.Provider)}
	}
	if cfg.LLM.ModelQueryGen == "" || cfg.LLM.ModelRelevance == "" || cfg.LLM.ModelSynthesis == "" {
		return &ValidationError{Section: "llm", Field: "models", Err: ErrMissingRequiredField}
	}
	if cfg.LLM.MaxParallel < 1 {
		return &ValidationError{Section: "llm", Field: "max_parallel",
			Err: fmt.Errorf("%w: must be >= 1", ErrInvalidValue)}
	}
	if cfg.Executor.Concurrency < 1 {
		return &ValidationError{Section: "executor", Field: "concurrency",
			Err: fmt.Errorf("%w: must be >= 1", ErrInvalidValue)}
	}
	r := cfg.Research
	if r.MaxTasks < 1 || r.MaxConcurrentTasks < 1 {
		return &ValidationError{Section: "research", Field: "max_tasks",
			Err: fmt.Errorf("%w: task bounds must be >= 1", ErrInvalidValue)}
	}
	if r.RelevanceThreshold < 0 || r.RelevanceThreshold > 10 {
		return &ValidationError{Section: "research", Field: "relevance_threshold",
			Err: fmt.Errorf("%w: must be 0-10", ErrInvalidValue)}
	}
	return nil
}
