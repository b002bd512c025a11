package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ArchiveChannel writes every alert to disk under the monitor alert
// directory, one JSON file per run. It doubles as the audit trail and
// as the delivery target when no external channel is configured.
type ArchiveChannel struct {
	dir string
}

// NewArchive builds an archive channel rooted at dir.
func NewArchive(dir string) *ArchiveChannel {
	if dir == "" {
		return nil
	}
	return &ArchiveChannel{dir: dir}
}

func (a *ArchiveChannel) Name() string { return "archive" }

// Send writes <monitor>/<timestamp>.json via temp-file-then-rename so a
// crash mid-write never leaves a truncated alert on disk.
func (a *ArchiveChannel) Send(_ context.Context, msg Message) error {
	if a == nil || msg.Summary == nil {
		return nil
	}
	dir := filepath.Join(a.dir, msg.Summary.MonitorName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating alert directory: %w", err)
	}

	data, err := json.MarshalIndent(msg.Summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}

	final := filepath.Join(dir, msg.Summary.RunAt.UTC().Format("20060102-150405")+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing alert: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("publishing alert: %w", err)
	}
	return nil
}
