// Package research implements the deep research engine: sensitivity
// classification, question decomposition, the bounded task loop with
// retries and follow-ups, entity extraction, synthesis, and report
// output.
package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BrianMills2718/OSINT-sub001/pkg/dedup"
	"github.com/BrianMills2718/OSINT-sub001/pkg/executor"
	"github.com/BrianMills2718/OSINT-sub001/pkg/integration"
	"github.com/BrianMills2718/OSINT-sub001/pkg/llm"
	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
	"github.com/BrianMills2718/OSINT-sub001/pkg/runlog"
)

const (
	itemsPerSource     = 25
	relevanceSample    = 10
	sensitiveThreshold = 1
)

// Engine orchestrates research runs. The run record is owned by the
// orchestrator goroutine; concurrent task executions return outcomes
// that are merged between batches.
type Engine struct {
	exec        *executor.Executor
	registry    *integration.Registry
	gateway     llm.Caller
	markers     []string
	researchDir string
	masker      runlog.Masker
	logger      *slog.Logger
}

// New wires a research engine. researchDir is the root under which each
// run writes its artifacts; masker scrubs credentials from the per-run
// execution log (nil disables masking).
func New(exec *executor.Executor, registry *integration.Registry, gateway llm.Caller,
	markers []string, researchDir string, masker runlog.Masker) *Engine {
	return &Engine{
		exec:        exec,
		registry:    registry,
		gateway:     gateway,
		markers:     markers,
		researchDir: researchDir,
		masker:      masker,
		logger:      slog.Default().With("component", "research"),
	}
}

// Run executes a full research run and writes its report directory.
// The returned run record is complete even when individual tasks failed;
// only setup failures (log file, decomposition) return an error.
func (e *Engine) Run(ctx context.Context, question string, c models.Constraints) (*models.ResearchRun, error) {
	run := models.NewResearchRun(question, c, time.Now())
	return run, e.execute(ctx, run)
}

// Launch starts a run in the background and returns its record
// immediately. Callers must treat the record as opaque until done is
// closed; the run directory holds the durable result.
func (e *Engine) Launch(ctx context.Context, question string, c models.Constraints) (run *models.ResearchRun, done <-chan error) {
	run = models.NewResearchRun(question, c, time.Now())
	ch := make(chan error, 1)
	go func() {
		ch <- e.execute(context.WithoutCancel(ctx), run)
		close(ch)
	}()
	return run, ch
}

func (e *Engine) execute(ctx context.Context, run *models.ResearchRun) error {
	runDir := filepath.Join(e.researchDir, run.RunID)
	log, err := runlog.NewFile(filepath.Join(runDir, "execution_log.jsonl"), runlog.WithMasker(e.masker))
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()
	rl := log.ForRun(run.RunID)

	rl.Event(runlog.EventRunStart, map[string]any{
		"question":    run.RootQuestion,
		"constraints": run.Constraints,
	})

	e.classifySensitivity(run, rl)
	if run.Sensitive {
		run.Constraints.RelevanceThreshold = sensitiveThreshold
	}

	runCtx, cancel := context.WithDeadline(ctx, run.DeadlineAt)
	defer cancel()

	if err := e.decompose(runCtx, run, rl); err != nil {
		run.TerminatedReason = "decomposition failed"
		run.CompletedAt = time.Now()
		rl.Event(runlog.EventRunComplete, map[string]any{"error": err.Error()})
		return err
	}

	e.taskLoop(runCtx, run, rl)

	synthesis := e.synthesize(runCtx, run, rl)
	run.CompletedAt = time.Now()

	rl.Event(runlog.EventRunComplete, map[string]any{
		"tasks":             len(run.Tasks),
		"evidence":          len(run.Evidence),
		"terminated_reason": run.TerminatedReason,
		"critical_failures": run.CriticalFailures,
	})

	if err := WriteReport(runDir, run, synthesis, e.sourceDisplayNames()); err != nil {
		e.logger.Error("Writing research report failed", "run_id", run.RunID, "error", err)
	}
	return nil
}

// classifySensitivity scans the question for the configured marker
// vocabulary. Public sources carry only sparse, oblique evidence for
// sensitive topics, so a sensitive run gets the lowest relevance bar.
func (e *Engine) classifySensitivity(run *models.ResearchRun, rl *runlog.RunLogger) {
	q := strings.ToLower(run.RootQuestion)
	for _, marker := range e.markers {
		if strings.Contains(q, strings.ToLower(marker)) {
			run.Sensitive = true
			run.SensitivityMarkers = append(run.SensitivityMarkers, marker)
		}
	}
	if run.Sensitive {
		rl.Event(runlog.EventSensitivity, map[string]any{
			"sensitive":          true,
			"matched_markers":    run.SensitivityMarkers,
			"threshold_override": sensitiveThreshold,
		})
	}
}

type decomposition struct {
	Tasks []struct {
		Query     string `json:"query"`
		Rationale string `json:"rationale"`
	} `json:"tasks"`
}

// decompose asks the gateway for initial sub-questions, capped at half
// the task budget to leave room for follow-ups.
func (e *Engine) decompose(ctx context.Context, run *models.ResearchRun, rl *runlog.RunLogger) error {
	budget := run.Constraints.MaxTasks / 2
	if budget < 1 {
		budget = 1
	}
	prompt := llm.Prompt{
		System: fmt.Sprintf(
			"You decompose a research question into at most %d self-contained sub-questions, "+
				"each answerable by searching the sources below. Order them most promising first.\n\n"+
				"Available sources:\n%s", budget, e.sourceCatalog()),
		User: run.RootQuestion,
	}
	var d decomposition
	if err := e.gateway.CompleteJSON(ctx, llm.SiteDecompose, llm.PurposeQueryGen, prompt, &d); err != nil {
		return fmt.Errorf("decomposing question: %w", err)
	}
	if len(d.Tasks) == 0 {
		return fmt.Errorf("decomposition produced no tasks")
	}
	if len(d.Tasks) > budget {
		d.Tasks = d.Tasks[:budget]
	}
	for _, t := range d.Tasks {
		run.Tasks = append(run.Tasks, &models.ResearchTask{
			ID:     len(run.Tasks) + 1,
			Query:  t.Query,
			Status: models.TaskStatusPending,
		})
	}
	return nil
}

// taskLoop runs batches of pending tasks until a termination condition
// fires: task budget, wall clock, cancellation, or quiescence.
func (e *Engine) taskLoop(ctx context.Context, run *models.ResearchRun, rl *runlog.RunLogger) {
	for {
		if err := ctx.Err(); err != nil {
			run.TerminatedReason = terminationFor(err)
			e.abortPending(run)
			return
		}
		if time.Now().After(run.DeadlineAt) {
			run.TerminatedReason = "deadline_exceeded"
			e.abortPending(run)
			return
		}

		batch := e.nextBatch(run)
		if len(batch) == 0 {
			run.TerminatedReason = "no pending tasks remain"
			return
		}

		outcomes := make([]*taskOutcome, len(batch))
		var g errgroup.Group
		for i, task := range batch {
			i, task := i, task
			g.Go(func() error {
				outcomes[i] = e.runTask(ctx, run, task, rl)
				return nil
			})
		}
		_ = g.Wait()

		for _, oc := range outcomes {
			e.merge(run, oc)
		}
		for _, oc := range outcomes {
			if oc.task.Status == models.TaskStatusSuccess {
				e.generateFollowups(ctx, run, oc.task, rl)
			}
		}

		if len(run.Tasks) >= run.Constraints.MaxTasks && !hasPending(run) {
			run.TerminatedReason = "task budget exhausted"
			return
		}
	}
}

func (e *Engine) nextBatch(run *models.ResearchRun) []*models.ResearchTask {
	var batch []*models.ResearchTask
	for _, t := range run.Tasks {
		if t.Status != models.TaskStatusPending {
			continue
		}
		batch = append(batch, t)
		if len(batch) == run.Constraints.MaxConcurrentTasks {
			break
		}
	}
	return batch
}

func hasPending(run *models.ResearchRun) bool {
	for _, t := range run.Tasks {
		if t.Status == models.TaskStatusPending {
			return true
		}
	}
	return false
}

func (e *Engine) abortPending(run *models.ResearchRun) {
	for _, t := range run.Tasks {
		if !t.Status.Terminal() && t.Status != models.TaskStatusRunning {
			t.Status = models.TaskStatusAborted
		}
	}
}

// taskOutcome carries everything a task execution produced back to the
// orchestrator for merging into the run record.
type taskOutcome struct {
	task     *models.ResearchTask
	results  map[string]*models.QueryResult
	entities []models.EntityMention
	critical []string
}

// merge folds one task outcome into the run. Only the orchestrator
// goroutine calls this, between batches.
func (e *Engine) merge(run *models.ResearchRun, oc *taskOutcome) {
	for _, qr := range oc.results {
		run.RecordSourceOutcome(qr)
	}
	for _, id := range oc.critical {
		if !containsString(run.CriticalFailures, id) {
			run.CriticalFailures = append(run.CriticalFailures, id)
		}
	}
	if oc.task.Status == models.TaskStatusSuccess {
		for _, item := range oc.task.Results {
			run.AddEvidence(dedup.Fingerprint(item), item, oc.task.ID)
		}
	}
	if len(oc.entities) > 0 {
		run.MergeEntities(oc.entities)
	}
}

// generateFollowups appends up to three follow-up tasks for a success,
// within the remaining budget.
func (e *Engine) generateFollowups(ctx context.Context, run *models.ResearchRun, task *models.ResearchTask, rl *runlog.RunLogger) {
	remaining := run.Constraints.MaxTasks - len(run.Tasks)
	if remaining <= 0 || ctx.Err() != nil {
		return
	}

	var sb strings.Builder
	for i, item := range task.Results {
		if i == relevanceSample {
			break
		}
		fmt.Fprintf(&sb, "- %s: %s\n", item.Title, llm.Truncate(item.Description, 200))
	}
	prompt := llm.Prompt{
		System: "Given a research question, a completed sub-question, and its findings, " +
			"propose at most 3 follow-up sub-questions that would deepen the investigation. " +
			"Only propose follow-ups the findings genuinely motivate.",
		User: fmt.Sprintf("Research question: %s\n\nCompleted sub-question: %s\n\nFindings:\n%s",
			run.RootQuestion, task.Query, sb.String()),
	}

	var f struct {
		Followups []struct {
			Query     string `json:"query"`
			Rationale string `json:"rationale"`
		} `json:"followups"`
	}
	if err := e.gateway.CompleteJSON(ctx, llm.SiteFollowups, llm.PurposeQueryGen, prompt, &f); err != nil {
		e.logger.Warn("Follow-up generation failed", "task_id", task.ID, "error", err)
		return
	}

	for _, fu := range f.Followups {
		if remaining == 0 {
			break
		}
		parent := task.ID
		next := &models.ResearchTask{
			ID:       len(run.Tasks) + 1,
			Query:    fu.Query,
			ParentID: &parent,
			Status:   models.TaskStatusPending,
		}
		run.Tasks = append(run.Tasks, next)
		remaining--
		rl.TaskEvent(task.ID, task.Attempt, runlog.EventFollowupGenerated, map[string]any{
			"followup_task_id": next.ID,
			"query":            fu.Query,
			"rationale":        fu.Rationale,
		})
	}
}

func (e *Engine) sourceCatalog() string {
	var b strings.Builder
	for _, meta := range e.registry.List() {
		fmt.Fprintf(&b, "- %s (%s): %s\n", meta.ID, meta.Category, meta.Description)
	}
	return b.String()
}

func (e *Engine) sourceDisplayNames() map[string]string {
	names := make(map[string]string)
	for _, meta := range e.registry.List() {
		names[meta.ID] = meta.DisplayName
	}
	return names
}

// terminationFor distinguishes deadline expiry from caller cancellation
// on the run context.
func terminationFor(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "deadline_exceeded"
	}
	return "cancelled"
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
