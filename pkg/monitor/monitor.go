package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BrianMills2718/OSINT-sub001/pkg/alert"
	"github.com/BrianMills2718/OSINT-sub001/pkg/dedup"
	"github.com/BrianMills2718/OSINT-sub001/pkg/executor"
	"github.com/BrianMills2718/OSINT-sub001/pkg/integration"
	"github.com/BrianMills2718/OSINT-sub001/pkg/llm"
	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
	"github.com/BrianMills2718/OSINT-sub001/pkg/runlog"
)

const itemsPerSource = 25

// Runner executes monitor cycles. One Runner serves all monitors; the
// scheduler guarantees at most one concurrent cycle per monitor name.
type Runner struct {
	exec     *executor.Executor
	registry *integration.Registry
	gateway  llm.Caller
	states   *StateStore
	alerts   *alert.Dispatcher
	log      *runlog.Logger
	logger   *slog.Logger
}

// NewRunner wires a monitor runner.
func NewRunner(exec *executor.Executor, registry *integration.Registry, gateway llm.Caller,
	states *StateStore, alerts *alert.Dispatcher, log *runlog.Logger) *Runner {
	return &Runner{
		exec:     exec,
		registry: registry,
		gateway:  gateway,
		states:   states,
		alerts:   alerts,
		log:      log,
		logger:   slog.Default().With("component", "monitor"),
	}
}

type pooledItem struct {
	item    models.ResultItem
	keyword string
}

// RunOnce executes one full monitor cycle: fan keywords across sources,
// pool and deduplicate the results, score relevance, alert, and commit
// the new seen-set. State is persisted only when the cycle reached the
// commit step; earlier failures leave the prior state untouched.
func (r *Runner) RunOnce(ctx context.Context, cfg *models.MonitorConfig) (*models.AlertSummary, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("monitor %q is disabled", cfg.Name)
	}

	runAt := time.Now()
	rl := r.runLogger(cfg.Name, runAt)

	state, err := r.states.Load(cfg.Name)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(state.SeenFingerprints))
	for _, fp := range state.SeenFingerprints {
		seen[fp] = true
	}

	pool, outcomes := r.collect(ctx, rl, cfg)

	items := make([]models.ResultItem, len(pool))
	for i, p := range pool {
		items[i] = p.item
	}
	outcome := dedup.Deduplicate(items, seen, 0)
	keywordFor := make(map[string]string, len(pool))
	for i, p := range pool {
		fp := outcome.Processed[i]
		if _, ok := keywordFor[fp]; !ok {
			keywordFor[fp] = p.keyword
		}
	}
	for _, d := range outcome.NearDupDrops {
		rl.Event(runlog.EventFilterDecision, map[string]any{
			"monitor":       cfg.Name,
			"decision":      "near_duplicate",
			"dropped_url":   d.Dropped.URL,
			"dropped_title": d.Dropped.Title,
			"kept_url":      d.Kept.URL,
			"similarity":    d.Similarity,
		})
	}
	rl.Event(runlog.EventFilterDecision, map[string]any{
		"monitor":          cfg.Name,
		"pooled":           len(pool),
		"dropped_seen":     outcome.DroppedSeen,
		"dropped_exact":    outcome.DroppedExact,
		"dropped_near_dup": outcome.DroppedNearDup,
		"survivors":        len(outcome.Retained),
	})

	scored := r.scoreRelevance(ctx, rl, cfg, outcome.Retained, keywordFor)

	summary := &models.AlertSummary{
		MonitorName:    cfg.Name,
		RunAt:          runAt,
		NewMatches:     len(scored),
		Items:          scored,
		SourceOutcomes: outcomes,
		Channels:       cfg.AlertChannels,
	}

	if len(scored) > 0 {
		msg := alert.Render(summary, r.displayNames())
		sent := r.alerts.Dispatch(ctx, msg)
		summary.AlertSent = sent > 0
		rl.Event(runlog.EventAlertEmitted, map[string]any{
			"monitor":     cfg.Name,
			"new_matches": len(scored),
			"deliveries":  sent,
		})
	}

	// Commit every processed fingerprint, retained or not. A once-seen
	// item must not re-alert even if its relevance later rises.
	for _, fp := range outcome.Processed {
		if !seen[fp] {
			seen[fp] = true
			state.SeenFingerprints = append(state.SeenFingerprints, fp)
		}
	}
	state.LastRunAt = runAt
	if err := r.states.Save(cfg.Name, state); err != nil {
		return nil, fmt.Errorf("persisting state for monitor %q: %w", cfg.Name, err)
	}

	rl.Event(runlog.EventMonitorCycle, map[string]any{
		"monitor":           cfg.Name,
		"keywords":          len(cfg.Keywords),
		"sources":           len(cfg.Sources),
		"new_matches":       len(scored),
		"seen_fingerprints": len(state.SeenFingerprints),
		"alert_sent":        summary.AlertSent,
	})
	return summary, nil
}

// collect fans every keyword across the monitor's sources. Sources with
// upstream boolean support receive the keyword verbatim; the rest get
// the stripped form, with NOT terms applied as a post-filter.
func (r *Runner) collect(ctx context.Context, rl *runlog.RunLogger, cfg *models.MonitorConfig) ([]pooledItem, map[string]*models.SourceOutcome) {
	var pool []pooledItem
	outcomes := make(map[string]*models.SourceOutcome)

	boolean, plain := r.partitionSources(cfg.Sources)
	for _, keyword := range cfg.Keywords {
		norm := NormalizeKeyword(keyword, false)

		type cohortSpec struct {
			query   string
			sources []string
			filter  bool
		}
		cohorts := []cohortSpec{
			{query: keyword, sources: boolean},
			{query: norm.Query, sources: plain, filter: true},
		}
		for _, spec := range cohorts {
			if len(spec.sources) == 0 || spec.query == "" {
				continue
			}
			res := r.exec.Execute(ctx, rl, executor.Request{
				Question:  spec.query,
				SourceIDs: spec.sources,
				Limit:     itemsPerSource,
				TaskID:    -1,
			})
			for id, qr := range res.Results {
				mergeOutcome(outcomes, id, qr)
				if !qr.Success {
					continue
				}
				for _, item := range qr.Items {
					if spec.filter && !norm.Matches(item.Title+" "+item.Description) {
						continue
					}
					pool = append(pool, pooledItem{item: item, keyword: keyword})
				}
			}
			for _, rej := range res.Rejections {
				out := ensureOutcome(outcomes, rej.SourceID)
				out.Rejections++
			}
		}
	}
	return pool, outcomes
}

type monitorScore struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

// scoreRelevance asks the gateway to rate each surviving item against
// the monitor's keyword set and keeps those at or above the threshold.
// A scoring failure drops the item for this run; its fingerprint is
// still committed by the caller.
func (r *Runner) scoreRelevance(ctx context.Context, rl *runlog.RunLogger, cfg *models.MonitorConfig,
	items []models.ResultItem, keywordFor map[string]string) []models.ScoredItem {

	threshold := defaultRelevanceThreshold
	if cfg.RelevanceThreshold != nil {
		threshold = *cfg.RelevanceThreshold
	}

	var scored []models.ScoredItem
	for _, item := range items {
		fp := dedup.Fingerprint(item)
		prompt := llm.Prompt{
			System: "You rate how relevant a search result is to a monitoring profile. " +
				"Score 0-10: 0 means unrelated, 10 means a direct match for the profile's interests.",
			User: fmt.Sprintf("Monitoring keywords: %s\n\nResult:\nTitle: %s\nSource: %s\nDate: %s\nDescription: %s",
				strings.Join(cfg.Keywords, "; "), item.Title, item.SourceID, item.Date, item.Description),
		}
		var ms monitorScore
		if err := r.gateway.CompleteJSON(ctx, llm.SiteMonitorRelevance, llm.PurposeRelevance, prompt, &ms); err != nil {
			r.logger.Warn("Relevance scoring failed, dropping item",
				"monitor", cfg.Name, "title", item.Title, "error", err)
			continue
		}
		rl.Event(runlog.EventRelevanceScoring, map[string]any{
			"monitor":   cfg.Name,
			"title":     item.Title,
			"score":     ms.Score,
			"threshold": threshold,
			"retained":  ms.Score >= threshold,
		})
		if ms.Score < threshold {
			continue
		}
		scored = append(scored, models.ScoredItem{
			Item:           item,
			Score:          ms.Score,
			MatchedKeyword: keywordFor[fp],
		})
	}
	return scored
}

func (r *Runner) partitionSources(ids []string) (boolean, plain []string) {
	for _, id := range ids {
		meta, ok := r.registry.Metadata(id)
		if ok && meta.SupportsBooleanOperators {
			boolean = append(boolean, id)
			continue
		}
		plain = append(plain, id)
	}
	return boolean, plain
}

func (r *Runner) displayNames() map[string]string {
	names := make(map[string]string)
	for _, meta := range r.registry.List() {
		names[meta.ID] = meta.DisplayName
	}
	return names
}

func (r *Runner) runLogger(name string, at time.Time) *runlog.RunLogger {
	return r.log.ForRun(models.NewRunID("monitor "+name, at))
}

func ensureOutcome(outcomes map[string]*models.SourceOutcome, id string) *models.SourceOutcome {
	out, ok := outcomes[id]
	if !ok {
		out = &models.SourceOutcome{SourceID: id}
		outcomes[id] = out
	}
	return out
}

func mergeOutcome(outcomes map[string]*models.SourceOutcome, id string, qr *models.QueryResult) {
	out := ensureOutcome(outcomes, id)
	if qr.Success {
		out.Items += len(qr.Items)
		return
	}
	out.Failed = true
	if qr.Error != nil {
		out.ErrorKind = qr.Error.Kind
	}
}
