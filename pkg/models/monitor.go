package models

import "time"

// AlertChannels names the delivery targets for a monitor's alerts.
type AlertChannels struct {
	Email   []string `yaml:"email,omitempty" json:"email,omitempty"`
	Webhook string   `yaml:"webhook,omitempty" json:"webhook,omitempty"`
	Slack   string   `yaml:"slack,omitempty" json:"slack,omitempty"` // channel id
}

// MonitorConfig is the user-edited definition of one scheduled monitor.
// State (last run, seen fingerprints) lives in a sibling state file, never
// in this struct's YAML.
type MonitorConfig struct {
	Name          string        `yaml:"name" json:"name"`
	Keywords      []string      `yaml:"keywords" json:"keywords"`
	Sources       []string      `yaml:"sources" json:"sources"`
	Schedule      string        `yaml:"schedule" json:"schedule"` // daily | hourly | manual | cron:<expr>
	AlertChannels AlertChannels `yaml:"alert_channels" json:"alert_channels"`

	// RelevanceThreshold is a pointer so that an explicit 0 (alert on
	// everything that scores) is distinguishable from an absent field,
	// which takes the default.
	RelevanceThreshold *int `yaml:"relevance_threshold,omitempty" json:"relevance_threshold,omitempty"`

	Enabled bool `yaml:"enabled" json:"enabled"`
}

// MonitorState is persisted across runs via write-temp-then-rename.
// SeenFingerprints is monotonically non-decreasing during a run and written
// back only after a successful run.
type MonitorState struct {
	LastRunAt        time.Time `json:"last_run_at"`
	SeenFingerprints []string  `json:"seen_fingerprints"`
}

// ScoredItem is a deduplicated result item with its monitor relevance score.
type ScoredItem struct {
	Item           ResultItem `json:"item"`
	Score          int        `json:"score"`
	MatchedKeyword string     `json:"matched_keyword"`
}

// AlertSummary is the outcome of one monitor cycle. Channels carries the
// monitor's delivery targets so channel implementations can honor
// per-monitor overrides.
type AlertSummary struct {
	MonitorName    string                    `json:"monitor_name"`
	RunAt          time.Time                 `json:"run_at"`
	NewMatches     int                       `json:"new_matches"`
	Items          []ScoredItem              `json:"items"`
	SourceOutcomes map[string]*SourceOutcome `json:"source_outcomes,omitempty"`
	Channels       AlertChannels             `json:"channels,omitempty"`
	AlertSent      bool                      `json:"alert_sent"`
}
