package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

const defaultRelevanceThreshold = 6

// LoadConfigs reads every *.yaml monitor definition under dir, sorted by
// file name. Invalid files fail the load; a monitoring system that
// silently skips a misconfigured monitor is worse than one that refuses
// to start.
func LoadConfigs(dir string) ([]*models.MonitorConfig, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading monitor config directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	configs := make([]*models.MonitorConfig, 0, len(names))
	seen := make(map[string]string)
	for _, name := range names {
		path := filepath.Join(dir, name)
		cfg, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}
		if prior, dup := seen[cfg.Name]; dup {
			return nil, fmt.Errorf("monitor %q defined in both %s and %s", cfg.Name, prior, name)
		}
		seen[cfg.Name] = name
		configs = append(configs, cfg)
	}
	return configs, nil
}

func loadConfigFile(path string) (*models.MonitorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading monitor config: %w", err)
	}
	var cfg models.MonitorConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing monitor config %s: %w", filepath.Base(path), err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("monitor config %s: %w", filepath.Base(path), err)
	}
	return &cfg, nil
}

func validateConfig(cfg *models.MonitorConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(cfg.Name, "/\\") {
		return fmt.Errorf("name %q must not contain path separators", cfg.Name)
	}
	if len(cfg.Keywords) == 0 {
		return fmt.Errorf("at least one keyword is required")
	}
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	switch {
	case cfg.Schedule == "daily", cfg.Schedule == "hourly", cfg.Schedule == "manual":
	case strings.HasPrefix(cfg.Schedule, "cron:"):
		if strings.TrimPrefix(cfg.Schedule, "cron:") == "" {
			return fmt.Errorf("empty cron expression")
		}
	default:
		return fmt.Errorf("schedule %q is not daily, hourly, manual, or cron:<expr>", cfg.Schedule)
	}
	if cfg.RelevanceThreshold == nil {
		def := defaultRelevanceThreshold
		cfg.RelevanceThreshold = &def
	}
	if *cfg.RelevanceThreshold < 0 || *cfg.RelevanceThreshold > 10 {
		return fmt.Errorf("relevance_threshold %d out of range 0-10", *cfg.RelevanceThreshold)
	}
	return nil
}
