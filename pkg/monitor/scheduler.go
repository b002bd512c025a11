package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron"

	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
	"github.com/BrianMills2718/OSINT-sub001/pkg/runlog"
)

// Scheduler trigger errors.
var (
	ErrMonitorNotFound = errors.New("monitor not found")
	ErrMonitorBusy     = errors.New("monitor is already running")
)

// Scheduler drives monitor cycles from cron triggers and hot-reloads
// monitor definitions when their config files change. It guarantees
// at-most-one concurrent execution per monitor: a trigger that fires
// while the previous cycle is still in flight is dropped and logged.
type Scheduler struct {
	runner    *Runner
	configDir string
	log       *runlog.Logger
	logger    *slog.Logger

	mu       sync.Mutex
	cron     *cron.Cron
	configs  map[string]*models.MonitorConfig
	inFlight map[string]bool

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler builds a scheduler over the config directory.
func NewScheduler(runner *Runner, configDir string, log *runlog.Logger) *Scheduler {
	return &Scheduler{
		runner:    runner,
		configDir: configDir,
		log:       log,
		logger:    slog.Default().With("component", "monitor-scheduler"),
		configs:   make(map[string]*models.MonitorConfig),
		inFlight:  make(map[string]bool),
		done:      make(chan struct{}),
	}
}

// Start loads configs, installs cron entries, and begins watching the
// config directory for changes.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.reload(ctx); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	if err := w.Add(s.configDir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching monitor config directory: %w", err)
	}
	s.watcher = w

	s.wg.Add(1)
	go s.watch(ctx)
	return nil
}

// Stop halts cron triggers and the config watcher. In-flight cycles run
// to completion.
func (s *Scheduler) Stop() {
	close(s.done)
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	s.mu.Lock()
	if s.cron != nil {
		s.cron.Stop()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Monitors returns the currently loaded configs keyed by name.
func (s *Scheduler) Monitors() map[string]*models.MonitorConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*models.MonitorConfig, len(s.configs))
	for name, cfg := range s.configs {
		out[name] = cfg
	}
	return out
}

// Trigger runs one monitor immediately (the manual path and the API).
// It honors the same at-most-one guarantee as cron triggers.
func (s *Scheduler) Trigger(ctx context.Context, name string) (*models.AlertSummary, error) {
	s.mu.Lock()
	cfg, ok := s.configs[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("monitor %q: %w", name, ErrMonitorNotFound)
	}
	if !s.claim(name) {
		return nil, fmt.Errorf("monitor %q: %w", name, ErrMonitorBusy)
	}
	defer s.release(name)
	return s.runner.RunOnce(ctx, cfg)
}

// reload re-reads the config directory and rebuilds the cron table.
func (s *Scheduler) reload(ctx context.Context) error {
	configs, err := LoadConfigs(s.configDir)
	if err != nil {
		return err
	}

	c := cron.New()
	byName := make(map[string]*models.MonitorConfig, len(configs))
	for _, cfg := range configs {
		byName[cfg.Name] = cfg
		if !cfg.Enabled || cfg.Schedule == "manual" {
			continue
		}
		spec, err := cronSpec(cfg.Schedule)
		if err != nil {
			return fmt.Errorf("monitor %q: %w", cfg.Name, err)
		}
		cfg := cfg
		if err := c.AddFunc(spec, func() { s.fire(ctx, cfg) }); err != nil {
			return fmt.Errorf("monitor %q: scheduling: %w", cfg.Name, err)
		}
	}

	s.mu.Lock()
	if s.cron != nil {
		s.cron.Stop()
	}
	s.cron = c
	s.configs = byName
	s.mu.Unlock()

	c.Start()
	s.logger.Info("Monitor schedule loaded", "monitors", len(byName))
	return nil
}

// fire is the cron callback: skip and log when the previous cycle of
// this monitor is still running, otherwise execute a cycle.
func (s *Scheduler) fire(ctx context.Context, cfg *models.MonitorConfig) {
	if !s.claim(cfg.Name) {
		s.log.ForRun("scheduler").Event(runlog.EventScheduleSkipped, map[string]any{
			"monitor": cfg.Name,
			"reason":  "previous run still in flight",
		})
		s.logger.Warn("Skipping monitor trigger, previous run still in flight", "monitor", cfg.Name)
		return
	}
	defer s.release(cfg.Name)

	if _, err := s.runner.RunOnce(ctx, cfg); err != nil {
		s.logger.Error("Monitor cycle failed", "monitor", cfg.Name, "error", err)
	}
}

func (s *Scheduler) claim(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[name] {
		return false
	}
	s.inFlight[name] = true
	return true
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	delete(s.inFlight, name)
	s.mu.Unlock()
}

// watch reloads the schedule whenever a monitor config file changes.
func (s *Scheduler) watch(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			ext := filepath.Ext(ev.Name)
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.logger.Info("Monitor config change detected", "file", filepath.Base(ev.Name))
			if err := s.reload(ctx); err != nil {
				// Keep the last good schedule on a bad edit.
				s.logger.Error("Monitor config reload failed, keeping previous schedule", "error", err)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Config watcher error", "error", err)
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cronSpec maps the schedule field to a cron expression.
func cronSpec(schedule string) (string, error) {
	switch {
	case schedule == "daily":
		return "@daily", nil
	case schedule == "hourly":
		return "@hourly", nil
	case strings.HasPrefix(schedule, "cron:"):
		return strings.TrimPrefix(schedule, "cron:"), nil
	default:
		return "", fmt.Errorf("schedule %q has no cron mapping", schedule)
	}
}
