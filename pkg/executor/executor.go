// Package executor runs a cohort of integrations through the three-phase
// pipeline: relevance gate, query generation, search execution. Each
// phase fans out across the cohort under a shared concurrency bound, and
// per-source failures never escape as Go errors.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/BrianMills2718/OSINT-sub001/pkg/config"
	"github.com/BrianMills2718/OSINT-sub001/pkg/integration"
	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
	"github.com/BrianMills2718/OSINT-sub001/pkg/runlog"
)

// Request describes one executor invocation.
type Request struct {
	Question  string
	SourceIDs []string
	Limit     int

	// TaskID and Attempt scope log events; TaskID < 0 means the cohort
	// runs outside a research task (monitors use this).
	TaskID  int
	Attempt int
}

// Rejection records a source dropped during query generation.
type Rejection struct {
	SourceID string           `json:"source_id"`
	Kind     models.ErrorKind `json:"kind"`
	Reason   string           `json:"reason"`
}

// CohortResult is the aggregate outcome of one invocation: exactly one
// QueryResult per source that survived query generation, keyed by
// source id, plus the rejections from earlier phases.
type CohortResult struct {
	Results    map[string]*models.QueryResult
	Rejections []Rejection

	// Degraded is set when any configured critical source failed;
	// CriticalFailures lists which.
	Degraded         bool
	CriticalFailures []string
}

// Items flattens all successful results' items in source-id map order.
func (c *CohortResult) Items() []models.ResultItem {
	var out []models.ResultItem
	for _, qr := range c.Results {
		if qr.Success {
			out = append(out, qr.Items...)
		}
	}
	return out
}

// Executor coordinates cohort runs against the registry.
type Executor struct {
	registry *integration.Registry
	cfg      *config.ExecutorConfig
	logger   *slog.Logger
	critical map[string]struct{}
}

// New builds an executor bound to a registry and config.
func New(registry *integration.Registry, cfg *config.ExecutorConfig) *Executor {
	critical := make(map[string]struct{}, len(cfg.CriticalSources))
	for _, id := range cfg.CriticalSources {
		critical[id] = struct{}{}
	}
	return &Executor{
		registry: registry,
		cfg:      cfg,
		logger:   slog.Default().With("component", "executor"),
		critical: critical,
	}
}

type candidate struct {
	id      string
	adapter integration.Integration
	params  *models.QueryParams
}

// Execute runs the three phases for one question over the requested
// sources. It always returns a CohortResult; a cancelled parent context
// yields partial results with per-source cancelled errors.
func (e *Executor) Execute(ctx context.Context, rl *runlog.RunLogger, req Request) *CohortResult {
	out := &CohortResult{Results: make(map[string]*models.QueryResult)}

	survivors := e.relevanceGate(ctx, req.Question, req.SourceIDs)
	candidates := e.generateQueries(ctx, rl, req, survivors, out)
	e.executeSearches(ctx, rl, req, candidates, out)

	for id, qr := range out.Results {
		if qr.Success {
			continue
		}
		if _, isCritical := e.critical[id]; isCritical {
			out.Degraded = true
			out.CriticalFailures = append(out.CriticalFailures, id)
			e.logEvent(rl, req, runlog.EventCriticalSourceFailure, map[string]any{
				"source_id": id,
				"error":     qr.Error.Error(),
			})
		}
	}
	return out
}

// relevanceGate runs IsRelevant across the cohort under one phase-wide
// timeout. Sources that return false, miss the deadline, or fail to
// resolve from the registry are dropped.
func (e *Executor) relevanceGate(ctx context.Context, question string, sourceIDs []string) []string {
	phaseCtx, cancel := context.WithTimeout(ctx, e.cfg.RelevanceTimeout())
	defer cancel()

	type verdict struct {
		id       string
		relevant bool
	}
	results := make(chan verdict, len(sourceIDs))
	sem := semaphore.NewWeighted(int64(e.cfg.Concurrency))

	var wg sync.WaitGroup
	for _, id := range sourceIDs {
		adapter, err := e.registry.Get(id)
		if err != nil {
			e.logger.Warn("Unknown source requested for cohort", "source_id", id)
			continue
		}
		wg.Add(1)
		go func(id string, adapter integration.Integration) {
			defer wg.Done()
			if err := sem.Acquire(phaseCtx, 1); err != nil {
				return
			}
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("Relevance check panicked", "source_id", id, "panic", r)
				}
			}()
			results <- verdict{id: id, relevant: adapter.IsRelevant(question)}
		}(id, adapter)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	kept := make(map[string]bool)
	for {
		select {
		case v, ok := <-results:
			if !ok {
				return orderedSubset(sourceIDs, kept)
			}
			if v.relevant {
				kept[v.id] = true
			}
		case <-phaseCtx.Done():
			// Verdicts that missed the phase deadline count as drops.
			return orderedSubset(sourceIDs, kept)
		}
	}
}

// generateQueries runs GenerateQuery per survivor with a per-call
// timeout. NotApplicable answers, errors, timeouts, and panics become
// logged rejections; successes become (adapter, params) candidates.
func (e *Executor) generateQueries(ctx context.Context, rl *runlog.RunLogger, req Request, sourceIDs []string, out *CohortResult) []candidate {
	var (
		mu         sync.Mutex
		candidates []candidate
	)
	sem := semaphore.NewWeighted(int64(e.cfg.Concurrency))
	var wg sync.WaitGroup

	reject := func(id string, kind models.ErrorKind, reason string) {
		mu.Lock()
		out.Rejections = append(out.Rejections, Rejection{SourceID: id, Kind: kind, Reason: reason})
		mu.Unlock()
		e.logEvent(rl, req, runlog.EventIntegrationRejected, map[string]any{
			"source_id": id,
			"kind":      string(kind),
			"reason":    reason,
		})
	}

	for _, id := range sourceIDs {
		adapter, err := e.registry.Get(id)
		if err != nil {
			continue
		}
		wg.Add(1)
		go func(id string, adapter integration.Integration) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				reject(id, models.ErrKindCancelled, ctx.Err().Error())
				return
			}
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					reject(id, models.ErrKindParseError, fmt.Sprintf("query generation panicked: %v", r))
				}
			}()

			callCtx, cancel := context.WithTimeout(ctx, e.cfg.QueryGenTimeout())
			defer cancel()

			params, err := adapter.GenerateQuery(callCtx, req.Question)
			if err != nil {
				se := models.ClassifyError(id, err)
				reject(id, se.Kind, se.Message)
				return
			}
			if params.NotApplicable {
				reject(id, models.ErrKindNotApplicable, params.Reason)
				return
			}
			mu.Lock()
			candidates = append(candidates, candidate{id: id, adapter: adapter, params: params})
			mu.Unlock()
		}(id, adapter)
	}
	wg.Wait()
	return candidates
}

// executeSearches runs Phase 3: one QueryResult per candidate, always.
func (e *Executor) executeSearches(ctx context.Context, rl *runlog.RunLogger, req Request, candidates []candidate, out *CohortResult) {
	sem := semaphore.NewWeighted(int64(e.cfg.Concurrency))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	record := func(id string, qr *models.QueryResult) {
		mu.Lock()
		out.Results[id] = qr
		mu.Unlock()
	}

	for _, c := range candidates {
		wg.Add(1)
		go func(c candidate) {
			defer wg.Done()
			meta, _ := e.registry.Metadata(c.id)

			if err := sem.Acquire(ctx, 1); err != nil {
				record(c.id, models.FailedResult(meta, models.NewSourceError(
					models.ErrKindCancelled, c.id, "cohort cancelled before execution")))
				return
			}
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					record(c.id, models.FailedResult(meta, models.NewSourceError(
						models.ErrKindParseError, c.id, "search panicked: %v", r)))
				}
			}()

			callCtx, cancel := context.WithTimeout(ctx, e.cfg.SearchTimeout())
			defer cancel()

			start := time.Now()
			qr := c.adapter.ExecuteSearch(callCtx, c.params, req.Limit)
			if qr == nil {
				qr = models.FailedResult(meta, models.NewSourceError(
					models.ErrKindParseError, c.id, "adapter returned no result"))
			}
			if !qr.Success && qr.Error != nil && ctx.Err() != nil {
				// Parent cancellation overrides whatever the deadline
				// surfaced inside the adapter.
				qr.Error = models.NewSourceError(models.ErrKindCancelled, c.id, "cohort cancelled")
			}
			record(c.id, qr)

			e.logEvent(rl, req, runlog.EventAPICall, map[string]any{
				"source_id":        c.id,
				"success":          qr.Success,
				"items":            len(qr.Items),
				"total_upstream":   qr.TotalUpstream,
				"response_time_ms": qr.ResponseTimeMS,
				"elapsed_ms":       time.Since(start).Milliseconds(),
				"query_params":     qr.QueryParams,
			})
		}(c)
	}
	wg.Wait()
}

func (e *Executor) logEvent(rl *runlog.RunLogger, req Request, t runlog.EventType, payload map[string]any) {
	if rl == nil {
		return
	}
	if req.TaskID >= 0 {
		rl.TaskEvent(req.TaskID, req.Attempt, t, payload)
		return
	}
	rl.Event(t, payload)
}

// orderedSubset filters ids to those in keep, preserving request order
// so downstream logging is deterministic.
func orderedSubset(ids []string, keep map[string]bool) []string {
	out := make([]string, 0, len(keep))
	for _, id := range ids {
		if keep[id] {
			out = append(out, id)
		}
	}
	return out
}
