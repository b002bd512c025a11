// osintd is the investigative research server: it exposes the research
// and monitor HTTP API, runs the monitor scheduler, and writes per-run
// artifacts under the data root.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BrianMills2718/OSINT-sub001/pkg/alert"
	"github.com/BrianMills2718/OSINT-sub001/pkg/api"
	"github.com/BrianMills2718/OSINT-sub001/pkg/config"
	"github.com/BrianMills2718/OSINT-sub001/pkg/executor"
	"github.com/BrianMills2718/OSINT-sub001/pkg/integration"
	"github.com/BrianMills2718/OSINT-sub001/pkg/integration/sources"
	"github.com/BrianMills2718/OSINT-sub001/pkg/llm"
	"github.com/BrianMills2718/OSINT-sub001/pkg/masking"
	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
	"github.com/BrianMills2718/OSINT-sub001/pkg/monitor"
	"github.com/BrianMills2718/OSINT-sub001/pkg/research"
	"github.com/BrianMills2718/OSINT-sub001/pkg/runlog"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")

	slog.Info("Starting osintd", "http_port", httpPort, "config_dir", *configDir)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Credential masker and the aggregated ops log
	masker := masking.New(cfg.CredentialValues())
	opsLogPath := filepath.Join(cfg.OpsLogDir(), time.Now().UTC().Format("2006-01-02")+".jsonl")
	opsLog, err := runlog.NewFile(opsLogPath, runlog.WithMasker(masker))
	if err != nil {
		slog.Error("Failed to open ops log", "path", opsLogPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = opsLog.Close() }()

	// 3. LLM gateway
	gateway, err := llm.NewFromConfig(cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize LLM gateway", "error", err)
		os.Exit(1)
	}
	slog.Info("LLM gateway initialized", "provider", cfg.LLM.Provider)

	// 4. Integration registry
	httpClient := sources.NewClient()
	registry := integration.NewRegistry(integration.Deps{LLM: gateway, HTTP: httpClient})
	if err := sources.RegisterAll(registry, cfg); err != nil {
		slog.Error("Failed to register integrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Integrations registered", "count", len(registry.IDs()))

	// 5. Executor and research engine
	exec := executor.New(registry, cfg.Executor)
	engine := research.New(exec, registry, gateway,
		cfg.SensitivityMarkers, cfg.ResearchDir(), masker)

	// 6. Monitors: state store, alert channels, runner, scheduler
	states, err := monitor.NewStateStore(cfg.MonitorStateDir())
	if err != nil {
		slog.Error("Failed to initialize monitor state store", "error", err)
		os.Exit(1)
	}

	var slackCh *alert.SlackChannel
	if sc := cfg.Alerts.Slack; sc != nil && sc.Enabled {
		slackCh = alert.NewSlack(os.Getenv(sc.TokenEnv), sc.Channel)
		if slackCh == nil {
			slog.Warn("Slack alerts enabled but token or channel missing, continuing without Slack")
		}
	}
	dispatcher := alert.NewDispatcher(
		alert.NewArchive(cfg.MonitorAlertDir()),
		alert.NewWebhook(),
		slackCh,
	)
	slog.Info("Alert channels ready", "channels", dispatcher.Channels())

	runner := monitor.NewRunner(exec, registry, gateway, states, dispatcher, opsLog)
	scheduler := monitor.NewScheduler(runner, cfg.MonitorConfigDir(), opsLog)
	if err := os.MkdirAll(cfg.MonitorConfigDir(), 0o755); err != nil {
		slog.Error("Failed to create monitor config directory", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(ctx); err != nil {
		slog.Error("Failed to start monitor scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	// 7. HTTP server
	constraints := defaultConstraints(cfg)
	server := api.NewServer(engine, scheduler, registry, cfg.ResearchDir(), constraints)
	httpServer := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 8. Wait for shutdown signal, then drain: HTTP first so no new
	// work arrives, then the scheduler, then the ops log.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("Shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}

// defaultConstraints maps the research config onto run constraints.
func defaultConstraints(cfg *config.Config) models.Constraints {
	c := models.DefaultConstraints()
	r := cfg.Research
	if r.MaxTasks > 0 {
		c.MaxTasks = r.MaxTasks
	}
	if r.MaxRetriesPerTask > 0 {
		c.MaxRetriesPerTask = r.MaxRetriesPerTask
	}
	if r.MaxTimeMinutes > 0 {
		c.MaxTime = time.Duration(r.MaxTimeMinutes) * time.Minute
	}
	if r.MinResultsPerTask > 0 {
		c.MinResultsPerTask = r.MinResultsPerTask
	}
	if r.MaxConcurrentTasks > 0 {
		c.MaxConcurrentTasks = r.MaxConcurrentTasks
	}
	if r.RelevanceThreshold > 0 {
		c.RelevanceThreshold = r.RelevanceThreshold
	}
	if r.MinSourceUtilization > 0 {
		c.MinSourceUtilization = r.MinSourceUtilization
	}
	c.CriticalSources = cfg.Executor.CriticalSources
	return c
}
