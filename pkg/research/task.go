package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BrianMills2718/OSINT-sub001/pkg/dedup"
	"github.com/BrianMills2718/OSINT-sub001/pkg/executor"
	"github.com/BrianMills2718/OSINT-sub001/pkg/llm"
	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
	"github.com/BrianMills2718/OSINT-sub001/pkg/runlog"
)

// runTask executes one research task through its retry budget. It only
// mutates the task itself; run-level state is merged by the orchestrator
// from the returned outcome.
func (e *Engine) runTask(ctx context.Context, run *models.ResearchRun, task *models.ResearchTask, rl *runlog.RunLogger) *taskOutcome {
	oc := &taskOutcome{task: task, results: make(map[string]*models.QueryResult)}

	for {
		task.Status = models.TaskStatusRunning
		task.StartedAt = time.Now()
		rl.TaskEvent(task.ID, task.Attempt, runlog.EventTaskStart, map[string]any{
			"query":     task.Query,
			"parent_id": task.ParentID,
		})

		verdict, reasoning := e.attemptTask(ctx, run, task, oc, rl)

		switch verdict {
		case attemptSuccess:
			task.Status = models.TaskStatusSuccess
			task.CompletedAt = time.Now()
			e.extractEntities(ctx, task, oc, rl)
			rl.TaskEvent(task.ID, task.Attempt, runlog.EventTaskComplete, map[string]any{
				"status":  string(task.Status),
				"results": len(task.Results),
				"score":   task.RelevanceScore,
			})
			return oc

		case attemptCancelled:
			// Deadline expiry fails the task; only an explicit caller
			// cancel aborts it.
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				task.Status = models.TaskStatusFailed
				task.ReasonForFailure = "deadline_exceeded"
			} else {
				task.Status = models.TaskStatusAborted
				task.ReasonForFailure = "run cancelled"
			}
			task.CompletedAt = time.Now()
			rl.TaskEvent(task.ID, task.Attempt, runlog.EventTaskComplete, map[string]any{
				"status": string(task.Status),
				"reason": task.ReasonForFailure,
			})
			return oc

		default: // insufficient or off-topic
			if task.Attempt >= run.Constraints.MaxRetriesPerTask {
				task.Status = models.TaskStatusFailed
				task.CompletedAt = time.Now()
				task.ReasonForFailure = fmt.Sprintf("%s after %d attempts", verdict, task.Attempt+1)
				rl.TaskEvent(task.ID, task.Attempt, runlog.EventTaskComplete, map[string]any{
					"status": string(task.Status),
					"reason": task.ReasonForFailure,
				})
				return oc
			}
			if !e.reformulate(ctx, run, task, string(verdict), reasoning, rl) {
				task.Status = models.TaskStatusFailed
				task.CompletedAt = time.Now()
				task.ReasonForFailure = "reformulation failed"
				rl.TaskEvent(task.ID, task.Attempt, runlog.EventTaskComplete, map[string]any{
					"status": string(task.Status),
					"reason": task.ReasonForFailure,
				})
				return oc
			}
			task.Status = models.TaskStatusRetrying
			task.Attempt++
		}
	}
}

type attemptVerdict string

const (
	attemptSuccess      attemptVerdict = "success"
	attemptInsufficient attemptVerdict = "insufficient"
	attemptOffTopic     attemptVerdict = "off-topic"
	attemptCancelled    attemptVerdict = "cancelled"
)

// attemptTask runs one attempt: source selection, cohort execution,
// in-task dedup, relevance validation, decision. The returned reasoning
// text feeds a later reformulation.
func (e *Engine) attemptTask(ctx context.Context, run *models.ResearchRun, task *models.ResearchTask, oc *taskOutcome, rl *runlog.RunLogger) (attemptVerdict, string) {
	if ctx.Err() != nil {
		return attemptCancelled, ""
	}

	sources := e.selectSources(ctx, run, task, rl)
	if len(sources) == 0 {
		return attemptInsufficient, "no sources selected"
	}
	task.SelectedSources = sources

	res := e.exec.Execute(ctx, rl, executor.Request{
		Question:  task.Query,
		SourceIDs: sources,
		Limit:     itemsPerSource,
		TaskID:    task.ID,
		Attempt:   task.Attempt,
	})
	for id, qr := range res.Results {
		oc.results[id+attemptKey(task.Attempt)] = qr
	}
	oc.critical = append(oc.critical, res.CriticalFailures...)
	if ctx.Err() != nil {
		return attemptCancelled, ""
	}

	// In-task exact dedup; cross-task duplicates are handled by the
	// run's evidence index, which counts repeat matches.
	seen := make(map[string]bool)
	var items []models.ResultItem
	for _, qr := range res.Results {
		if !qr.Success {
			continue
		}
		for _, item := range qr.Items {
			fp := dedup.Fingerprint(item)
			if seen[fp] {
				continue
			}
			seen[fp] = true
			items = append(items, item)
		}
	}
	task.Results = items

	if len(items) < run.Constraints.MinResultsPerTask {
		return attemptInsufficient, fmt.Sprintf("%d results, need %d", len(items), run.Constraints.MinResultsPerTask)
	}

	score, reasoning, err := e.validateRelevance(ctx, run, task, items, rl)
	if err != nil {
		if ctx.Err() != nil {
			return attemptCancelled, ""
		}
		return attemptInsufficient, fmt.Sprintf("relevance validation failed: %v", err)
	}
	task.RelevanceScore = &score
	if score < run.Constraints.RelevanceThreshold {
		return attemptOffTopic, reasoning
	}
	return attemptSuccess, reasoning
}

type sourceSelection struct {
	Sources []struct {
		SourceID string `json:"source_id"`
		Reason   string `json:"reason"`
	} `json:"sources"`
}

// selectSources asks the gateway for the most relevant sources for this
// task. Unknown ids are dropped; the full reasoning is logged.
func (e *Engine) selectSources(ctx context.Context, run *models.ResearchRun, task *models.ResearchTask, rl *runlog.RunLogger) []string {
	prompt := llm.Prompt{
		System: "Select the 2-5 sources most likely to answer the sub-question, from the " +
			"catalog below. Give a concrete reason per source.\n\nAvailable sources:\n" + e.sourceCatalog(),
		User: fmt.Sprintf("Research question: %s\n\nSub-question: %s", run.RootQuestion, task.Query),
	}
	var sel sourceSelection
	if err := e.gateway.CompleteJSON(ctx, llm.SiteSourceSelect, llm.PurposeQueryGen, prompt, &sel); err != nil {
		e.logger.Warn("Source selection failed", "task_id", task.ID, "error", err)
		return nil
	}

	var ids []string
	reasons := make(map[string]string, len(sel.Sources))
	for _, s := range sel.Sources {
		if _, known := e.registry.Metadata(s.SourceID); !known {
			e.logger.Warn("Source selection named unknown source", "task_id", task.ID, "source_id", s.SourceID)
			continue
		}
		if containsString(ids, s.SourceID) {
			continue
		}
		ids = append(ids, s.SourceID)
		reasons[s.SourceID] = s.Reason
	}
	rl.TaskEvent(task.ID, task.Attempt, runlog.EventSourceSelection, map[string]any{
		"selected": ids,
		"reasons":  reasons,
	})
	return ids
}

// validateRelevance samples the task's items and asks the gateway how
// well they answer the sub-question in the context of the root question.
func (e *Engine) validateRelevance(ctx context.Context, run *models.ResearchRun, task *models.ResearchTask, items []models.ResultItem, rl *runlog.RunLogger) (int, string, error) {
	var sb strings.Builder
	for i, item := range items {
		if i == relevanceSample {
			break
		}
		fmt.Fprintf(&sb, "%d. [%s] %s — %s\n", i+1, item.SourceID, item.Title, llm.Truncate(item.Description, 200))
	}
	prompt := llm.Prompt{
		System: "Rate 0-10 how well the sampled results answer the sub-question, given the " +
			"overall research question. 0 means entirely off-topic, 10 means directly on point. " +
			"Explain the score.",
		User: fmt.Sprintf("Research question: %s\n\nSub-question: %s\n\nSampled results:\n%s",
			run.RootQuestion, task.Query, sb.String()),
	}
	var v struct {
		Score     int    `json:"score"`
		Reasoning string `json:"reasoning"`
	}
	if err := e.gateway.CompleteJSON(ctx, llm.SiteRelevance, llm.PurposeRelevance, prompt, &v); err != nil {
		return 0, "", err
	}
	rl.TaskEvent(task.ID, task.Attempt, runlog.EventRelevanceScoring, map[string]any{
		"score":     v.Score,
		"threshold": run.Constraints.RelevanceThreshold,
		"reasoning": v.Reasoning,
		"sampled":   minInt(len(items), relevanceSample),
	})
	return v.Score, v.Reasoning, nil
}

// reformulate rewrites the task query for the next attempt, informed by
// the failure reasoning. Returns false when the gateway call fails.
func (e *Engine) reformulate(ctx context.Context, run *models.ResearchRun, task *models.ResearchTask, verdict, reasoning string, rl *runlog.RunLogger) bool {
	if ctx.Err() != nil {
		return false
	}
	prompt := llm.Prompt{
		System: "A research sub-question produced a " + verdict + " search attempt. Rewrite " +
			"it with different phrasing and keywords so the same underlying question gets " +
			"better results. Keep the meaning; change the words.",
		User: fmt.Sprintf("Research question: %s\n\nSub-question: %s\n\nWhat went wrong: %s",
			run.RootQuestion, task.Query, reasoning),
	}
	var ref struct {
		Query     string `json:"query"`
		Rationale string `json:"rationale"`
	}
	if err := e.gateway.CompleteJSON(ctx, llm.SiteReformulate, llm.PurposeQueryGen, prompt, &ref); err != nil {
		e.logger.Warn("Reformulation failed", "task_id", task.ID, "error", err)
		return false
	}
	rl.TaskEvent(task.ID, task.Attempt, runlog.EventFilterDecision, map[string]any{
		"decision":  "retry",
		"verdict":   verdict,
		"old_query": task.Query,
		"new_query": ref.Query,
		"rationale": ref.Rationale,
	})
	task.Query = ref.Query
	return true
}

// extractEntities mines named entities from a successful task's items
// and records them on the task. Failures are logged and skipped; entity
// extraction is opportunistic.
func (e *Engine) extractEntities(ctx context.Context, task *models.ResearchTask, oc *taskOutcome, rl *runlog.RunLogger) {
	if ctx.Err() != nil || len(task.Results) == 0 {
		return
	}
	var sb strings.Builder
	for i, item := range task.Results {
		if i == relevanceSample {
			break
		}
		fmt.Fprintf(&sb, "%d. %s — %s\n", i+1, item.Title, llm.Truncate(item.Description, 200))
	}
	prompt := llm.Prompt{
		System: "Extract the named entities (organizations, people, programs, places, " +
			"systems) mentioned in these search results. Only list entities that actually " +
			"appear in the text.",
		User: sb.String(),
	}
	var ex struct {
		Entities []struct {
			Name        string `json:"name"`
			Type        string `json:"type"`
			ItemIndexes []int  `json:"item_indexes"`
		} `json:"entities"`
	}
	if err := e.gateway.CompleteJSON(ctx, llm.SiteEntities, llm.PurposeRelevance, prompt, &ex); err != nil {
		e.logger.Warn("Entity extraction failed", "task_id", task.ID, "error", err)
		return
	}

	task.Entities = make(map[string]int, len(ex.Entities))
	for _, ent := range ex.Entities {
		mentions := len(ent.ItemIndexes)
		if mentions == 0 {
			mentions = 1
		}
		task.Entities[ent.Name] += mentions
		oc.entities = append(oc.entities, models.EntityMention{
			Name:        ent.Name,
			ItemIndexes: ent.ItemIndexes,
		})
	}
	rl.TaskEvent(task.ID, task.Attempt, runlog.EventEntityExtraction, map[string]any{
		"entities": len(task.Entities),
	})
}

// attemptKey disambiguates per-attempt cohort results in the outcome map
// so a retry does not overwrite the failed attempt's record.
func attemptKey(attempt int) string {
	if attempt == 0 {
		return ""
	}
	return fmt.Sprintf("#%d", attempt)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
