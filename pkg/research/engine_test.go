package research

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrianMills2718/OSINT-sub001/pkg/config"
	"github.com/BrianMills2718/OSINT-sub001/pkg/executor"
	"github.com/BrianMills2718/OSINT-sub001/pkg/integration"
	"github.com/BrianMills2718/OSINT-sub001/pkg/llm"
	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

// scriptCaller replays per-site response sequences; the last entry of a
// sequence repeats once exhausted.
type scriptCaller struct {
	mu        sync.Mutex
	responses map[llm.CallSite][]string
	calls     map[llm.CallSite]int
}

func newScriptCaller(responses map[llm.CallSite][]string) *scriptCaller {
	return &scriptCaller{responses: responses, calls: make(map[llm.CallSite]int)}
}

func (c *scriptCaller) CompleteJSON(_ context.Context, site llm.CallSite, _ llm.Purpose, _ llm.Prompt, out any) error {
	c.mu.Lock()
	seq, ok := c.responses[site]
	idx := c.calls[site]
	c.calls[site]++
	c.mu.Unlock()

	if !ok || len(seq) == 0 {
		return models.NewSourceError(models.ErrKindLLMInvalidOutput, "", "no script for call site %s", site)
	}
	if idx >= len(seq) {
		idx = len(seq) - 1
	}
	return json.Unmarshal([]byte(seq[idx]), out)
}

func (c *scriptCaller) callCount(site llm.CallSite) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[site]
}

// evidenceAdapter returns a fixed batch of items; failing instances
// return a classified error instead, and blocking instances hold the
// search open until the context expires.
type evidenceAdapter struct {
	id    string
	items []models.ResultItem
	fail  *models.SourceError
	block bool
}

func (a *evidenceAdapter) Metadata() models.SourceMetadata {
	return models.SourceMetadata{ID: a.id, DisplayName: a.id, Description: "test source"}
}

func (a *evidenceAdapter) IsRelevant(string) bool { return true }

func (a *evidenceAdapter) GenerateQuery(_ context.Context, question string) (*models.QueryParams, error) {
	return &models.QueryParams{SourceID: a.id, Fields: map[string]any{"q": question}}, nil
}

func (a *evidenceAdapter) ExecuteSearch(ctx context.Context, _ *models.QueryParams, _ int) *models.QueryResult {
	if a.block {
		<-ctx.Done()
		return models.FailedResult(a.Metadata(),
			models.NewSourceError(models.ErrKindTimeout, a.id, "search timed out"))
	}
	if a.fail != nil {
		return models.FailedResult(a.Metadata(), a.fail)
	}
	return &models.QueryResult{SourceID: a.id, SourceDisplayName: a.id, Success: true, Items: a.items}
}

func feedItems(n int) []models.ResultItem {
	items := make([]models.ResultItem, n)
	for i := range items {
		items[i] = models.ResultItem{
			Title:       fmt.Sprintf("Feed item %d", i+1),
			URL:         fmt.Sprintf("https://example.com/feed/%d", i+1),
			Date:        "2026-08-01T00:00:00Z",
			Description: fmt.Sprintf("Body of feed item number %d with its own distinct wording.", i+1),
			SourceID:    "feed",
		}
	}
	return items
}

func testConstraints() models.Constraints {
	c := models.DefaultConstraints()
	c.MaxTasks = 4
	c.MaxRetriesPerTask = 1
	c.MaxConcurrentTasks = 2
	c.MaxTime = 5 * time.Minute
	return c
}

func baseScript() map[llm.CallSite][]string {
	return map[llm.CallSite][]string{
		llm.SiteDecompose: {
			`{"tasks": [{"query": "initial sub-question", "rationale": "start here"}]}`,
		},
		llm.SiteSourceSelect: {
			`{"sources": [{"source_id": "feed", "reason": "covers the topic"}]}`,
		},
		llm.SiteRelevance: {
			`{"score": 8, "reasoning": "directly on point"}`,
		},
		llm.SiteEntities: {
			`{"entities": [{"name": "Anduril", "type": "org", "item_indexes": [0, 1]}, {"name": "SOCOM", "type": "org", "item_indexes": [0]}]}`,
		},
		llm.SiteFollowups: {
			`{"followups": []}`,
		},
		llm.SiteSynthesis: {
			`{"executive_summary": "The evidence shows steady activity.",
			  "key_findings": [
			    {"finding": "Feed reported the activity", "citations": [{"title": "Feed item 1", "url": "https://example.com/feed/1"}]},
			    {"finding": "Unsupported claim", "citations": [{"title": "Invented Source Nobody Collected"}]}
			  ],
			  "detailed_analysis": "One line of inquiry completed.",
			  "gaps": ["funding details unknown"]}`,
		},
	}
}

type engineFixture struct {
	engine *Engine
	caller *scriptCaller
	dir    string
}

func newEngineFixture(t *testing.T, script map[llm.CallSite][]string, adapters ...*evidenceAdapter) *engineFixture {
	t.Helper()
	return newEngineFixtureCritical(t, script, nil, adapters...)
}

func newEngineFixtureCritical(t *testing.T, script map[llm.CallSite][]string, critical []string, adapters ...*evidenceAdapter) *engineFixture {
	t.Helper()
	registry := integration.NewRegistry(integration.Deps{})
	if len(adapters) == 0 {
		adapters = []*evidenceAdapter{{id: "feed", items: feedItems(4)}}
	}
	for _, a := range adapters {
		a := a
		require.NoError(t, registry.Register(a.id, func(integration.Deps) integration.Integration { return a }))
	}

	exec := executor.New(registry, &config.ExecutorConfig{
		Concurrency:             4,
		RelevanceTimeoutSeconds: 5,
		QueryGenTimeoutSeconds:  5,
		TimeoutSeconds:          5,
		CriticalSources:         critical,
	})

	caller := newScriptCaller(script)
	dir := t.TempDir()
	engine := New(exec, registry, caller, config.DefaultSensitivityMarkers(), dir, nil)
	return &engineFixture{engine: engine, caller: caller, dir: dir}
}

func TestRun_HappyPath(t *testing.T) {
	fx := newEngineFixture(t, baseScript())

	run, err := fx.engine.Run(context.Background(), "What is the state of tactical drone programs?", testConstraints())
	require.NoError(t, err)

	require.Len(t, run.Tasks, 1)
	task := run.Tasks[0]
	assert.Equal(t, models.TaskStatusSuccess, task.Status)
	assert.Equal(t, "initial sub-question", task.Query)
	assert.Len(t, task.Results, 4)
	assert.Len(t, run.Evidence, 4)
	assert.Equal(t, "no pending tasks remain", run.TerminatedReason)
	assert.False(t, run.CompletedAt.IsZero())

	// Entity network built from the extraction script.
	assert.Equal(t, 1, run.EntityNetwork["Anduril"]["SOCOM"])

	runDir := filepath.Join(fx.dir, run.RunID)
	for _, f := range []string{"research_data.json", "report.md", "execution_log.jsonl"} {
		_, statErr := os.Stat(filepath.Join(runDir, f))
		assert.NoError(t, statErr, f)
	}

	report, err := os.ReadFile(filepath.Join(runDir, "report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "## Executive Summary")
	assert.Contains(t, string(report), "[Feed item 1](https://example.com/feed/1)")
	assert.NotContains(t, string(report), "Invented Source Nobody Collected",
		"citations naming uncollected evidence are stripped")
}

func TestRun_RetryAfterOffTopicAttempt(t *testing.T) {
	script := baseScript()
	script[llm.SiteRelevance] = []string{
		`{"score": 1, "reasoning": "results drifted off the question"}`,
		`{"score": 8, "reasoning": "reformulated query landed"}`,
	}
	script[llm.SiteReformulate] = []string{
		`{"query": "rephrased sub-question", "rationale": "different keywords"}`,
	}
	fx := newEngineFixture(t, script)

	run, err := fx.engine.Run(context.Background(), "question", testConstraints())
	require.NoError(t, err)

	require.Len(t, run.Tasks, 1)
	task := run.Tasks[0]
	assert.Equal(t, models.TaskStatusSuccess, task.Status)
	assert.Equal(t, 1, task.Attempt)
	assert.Equal(t, "rephrased sub-question", task.Query)
	assert.Equal(t, 1, fx.caller.callCount(llm.SiteReformulate))
}

func TestRun_TaskFailsAfterRetryBudget(t *testing.T) {
	script := baseScript()
	script[llm.SiteRelevance] = []string{`{"score": 0, "reasoning": "never on topic"}`}
	script[llm.SiteReformulate] = []string{`{"query": "still hopeless", "rationale": "try again"}`}
	fx := newEngineFixture(t, script)

	run, err := fx.engine.Run(context.Background(), "question", testConstraints())
	require.NoError(t, err, "task failures do not fail the run")

	require.Len(t, run.Tasks, 1)
	task := run.Tasks[0]
	assert.Equal(t, models.TaskStatusFailed, task.Status)
	assert.Contains(t, task.ReasonForFailure, "off-topic after 2 attempts")
	assert.Empty(t, run.Evidence, "failed tasks contribute no evidence")
}

func TestRun_InsufficientResultsFailAfterRetries(t *testing.T) {
	script := baseScript()
	script[llm.SiteReformulate] = []string{`{"query": "broader phrasing", "rationale": "widen"}`}
	fx := newEngineFixture(t, script, &evidenceAdapter{id: "feed", items: feedItems(1)})

	run, err := fx.engine.Run(context.Background(), "question", testConstraints())
	require.NoError(t, err)

	task := run.Tasks[0]
	assert.Equal(t, models.TaskStatusFailed, task.Status)
	assert.Contains(t, task.ReasonForFailure, "insufficient")
}

func TestRun_DeadlineExpiryFailsRunningTask(t *testing.T) {
	fx := newEngineFixture(t, baseScript(), &evidenceAdapter{id: "feed", block: true})

	c := testConstraints()
	c.MaxTime = 300 * time.Millisecond
	run, err := fx.engine.Run(context.Background(), "question", c)
	require.NoError(t, err)

	assert.Equal(t, "deadline_exceeded", run.TerminatedReason)
	require.Len(t, run.Tasks, 1)
	task := run.Tasks[0]
	assert.Equal(t, models.TaskStatusFailed, task.Status,
		"running past the wall clock is a failure, not an abort")
	assert.Equal(t, "deadline_exceeded", task.ReasonForFailure)
}

func TestRun_ExplicitCancelAbortsRunningTask(t *testing.T) {
	fx := newEngineFixture(t, baseScript(), &evidenceAdapter{id: "feed", block: true})

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(100*time.Millisecond, cancel)
	defer timer.Stop()

	run, err := fx.engine.Run(ctx, "question", testConstraints())
	require.NoError(t, err)

	assert.Equal(t, "cancelled", run.TerminatedReason)
	require.Len(t, run.Tasks, 1)
	task := run.Tasks[0]
	assert.Equal(t, models.TaskStatusAborted, task.Status)
	assert.Equal(t, "run cancelled", task.ReasonForFailure)
}

func TestRun_SensitiveQuestionLowersThreshold(t *testing.T) {
	script := baseScript()
	// Score 2 sits below the default threshold of 3 but above the
	// sensitive-topic floor of 1.
	script[llm.SiteRelevance] = []string{`{"score": 2, "reasoning": "sparse oblique evidence"}`}
	fx := newEngineFixture(t, script)

	run, err := fx.engine.Run(context.Background(),
		"What is known about the classified program budget line?", testConstraints())
	require.NoError(t, err)

	assert.True(t, run.Sensitive)
	assert.Contains(t, run.SensitivityMarkers, "classified")
	assert.Equal(t, 1, run.Constraints.RelevanceThreshold)
	assert.Equal(t, models.TaskStatusSuccess, run.Tasks[0].Status)
}

func TestRun_NonSensitiveQuestionKeepsThreshold(t *testing.T) {
	fx := newEngineFixture(t, baseScript())

	run, err := fx.engine.Run(context.Background(), "Who supplies radar components?", testConstraints())
	require.NoError(t, err)
	assert.False(t, run.Sensitive)
	assert.Equal(t, testConstraints().RelevanceThreshold, run.Constraints.RelevanceThreshold)
}

func TestRun_CriticalSourceFailureMarksRunDegraded(t *testing.T) {
	script := baseScript()
	script[llm.SiteSourceSelect] = []string{
		`{"sources": [{"source_id": "sam", "reason": "contracts"}, {"source_id": "feed", "reason": "news"}]}`,
	}
	fx := newEngineFixtureCritical(t, script, []string{"sam"},
		&evidenceAdapter{id: "sam", fail: models.NewSourceError(models.ErrKindAuthFailed, "sam", "bad key")},
		&evidenceAdapter{id: "feed", items: feedItems(4)},
	)

	run, err := fx.engine.Run(context.Background(), "question", testConstraints())
	require.NoError(t, err)

	assert.Equal(t, []string{"sam"}, run.CriticalFailures)
	assert.Equal(t, models.TaskStatusSuccess, run.Tasks[0].Status, "remaining sources still complete the task")

	report, err := os.ReadFile(filepath.Join(fx.dir, run.RunID, "report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "Degraded run")
}

func TestRun_FollowupsExpandWithinBudget(t *testing.T) {
	script := baseScript()
	script[llm.SiteFollowups] = []string{
		`{"followups": [
			{"query": "first follow-up question", "rationale": "dig deeper"},
			{"query": "second follow-up question", "rationale": "adjacent thread"}
		]}`,
		`{"followups": []}`,
	}
	fx := newEngineFixture(t, script)

	run, err := fx.engine.Run(context.Background(), "question", testConstraints())
	require.NoError(t, err)

	require.Len(t, run.Tasks, 3)
	assert.Nil(t, run.Tasks[0].ParentID)
	require.NotNil(t, run.Tasks[1].ParentID)
	assert.Equal(t, 1, *run.Tasks[1].ParentID)
	for _, task := range run.Tasks {
		assert.Equal(t, models.TaskStatusSuccess, task.Status)
	}
	assert.LessOrEqual(t, len(run.Tasks), testConstraints().MaxTasks)
}

func TestRun_DecompositionFailureAbortsRun(t *testing.T) {
	script := baseScript()
	delete(script, llm.SiteDecompose)
	fx := newEngineFixture(t, script)

	run, err := fx.engine.Run(context.Background(), "question", testConstraints())
	require.Error(t, err)
	assert.Equal(t, "decomposition failed", run.TerminatedReason)
}

func TestRun_EmptyDecompositionIsAnError(t *testing.T) {
	script := baseScript()
	script[llm.SiteDecompose] = []string{`{"tasks": []}`}
	fx := newEngineFixture(t, script)

	_, err := fx.engine.Run(context.Background(), "question", testConstraints())
	assert.Error(t, err)
}

func TestRun_NoEvidenceSynthesisFastPath(t *testing.T) {
	script := baseScript()
	script[llm.SiteRelevance] = []string{`{"score": 0, "reasoning": "nothing useful"}`}
	script[llm.SiteReformulate] = []string{`{"query": "still nothing", "rationale": "retry"}`}
	fx := newEngineFixture(t, script)

	run, err := fx.engine.Run(context.Background(), "question", testConstraints())
	require.NoError(t, err)

	report, readErr := os.ReadFile(filepath.Join(fx.dir, run.RunID, "report.md"))
	require.NoError(t, readErr)
	assert.Contains(t, string(report), "No evidence was found")
	assert.Zero(t, fx.caller.callCount(llm.SiteSynthesis), "no synthesis call without evidence")
}

func TestRun_SynthesisFailureDegradesGracefully(t *testing.T) {
	script := baseScript()
	delete(script, llm.SiteSynthesis)
	fx := newEngineFixture(t, script)

	run, err := fx.engine.Run(context.Background(), "question", testConstraints())
	require.NoError(t, err, "a failed synthesis still produces a run record")

	data, readErr := os.ReadFile(filepath.Join(fx.dir, run.RunID, "research_data.json"))
	require.NoError(t, readErr)

	var stored struct {
		Synthesis *Synthesis `json:"synthesis"`
	}
	require.NoError(t, json.Unmarshal(data, &stored))
	require.NotNil(t, stored.Synthesis)
	assert.True(t, stored.Synthesis.Failed)
	assert.Contains(t, stored.Synthesis.ExecutiveSummary, "Synthesis unavailable")
}

func TestRun_DecompositionCappedAtHalfBudget(t *testing.T) {
	script := baseScript()
	script[llm.SiteDecompose] = []string{
		`{"tasks": [
			{"query": "sub one"}, {"query": "sub two"}, {"query": "sub three"},
			{"query": "sub four"}, {"query": "sub five"}
		]}`,
	}
	fx := newEngineFixture(t, script)

	c := testConstraints() // MaxTasks = 4, so at most 2 initial tasks
	run, err := fx.engine.Run(context.Background(), "question", c)
	require.NoError(t, err)

	initial := 0
	for _, task := range run.Tasks {
		if task.ParentID == nil {
			initial++
		}
	}
	assert.Equal(t, 2, initial)
}

func TestLaunch_CompletesInBackground(t *testing.T) {
	fx := newEngineFixture(t, baseScript())

	run, done := fx.engine.Launch(context.Background(), "question", testConstraints())
	require.NotEmpty(t, run.RunID)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("research run did not finish")
	}

	_, err := os.Stat(filepath.Join(fx.dir, run.RunID, "research_data.json"))
	assert.NoError(t, err)
}
