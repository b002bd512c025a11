package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrianMills2718/OSINT-sub001/pkg/alert"
	"github.com/BrianMills2718/OSINT-sub001/pkg/config"
	"github.com/BrianMills2718/OSINT-sub001/pkg/executor"
	"github.com/BrianMills2718/OSINT-sub001/pkg/integration"
	"github.com/BrianMills2718/OSINT-sub001/pkg/llm"
	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
	"github.com/BrianMills2718/OSINT-sub001/pkg/runlog"
)

// scriptedCaller answers gateway calls from a per-site script.
type scriptedCaller struct {
	respond func(site llm.CallSite, prompt llm.Prompt) (string, error)
}

func (c *scriptedCaller) CompleteJSON(_ context.Context, site llm.CallSite, _ llm.Purpose, prompt llm.Prompt, out any) error {
	raw, err := c.respond(site, prompt)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), out)
}

// feedAdapter serves a mutable batch of items, standing in for an
// upstream source across monitor cycles.
type feedAdapter struct {
	id    string
	items *[]models.ResultItem
}

func (f *feedAdapter) Metadata() models.SourceMetadata {
	return models.SourceMetadata{ID: f.id, DisplayName: strings.ToUpper(f.id), Description: "feed"}
}

func (f *feedAdapter) IsRelevant(string) bool { return true }

func (f *feedAdapter) GenerateQuery(_ context.Context, question string) (*models.QueryParams, error) {
	return &models.QueryParams{SourceID: f.id, Fields: map[string]any{"q": question}}, nil
}

func (f *feedAdapter) ExecuteSearch(context.Context, *models.QueryParams, int) *models.QueryResult {
	items := make([]models.ResultItem, len(*f.items))
	copy(items, *f.items)
	return &models.QueryResult{SourceID: f.id, SourceDisplayName: strings.ToUpper(f.id), Success: true, Items: items}
}

type captureChannel struct {
	messages []alert.Message
}

func (c *captureChannel) Name() string { return "capture" }

func (c *captureChannel) Send(_ context.Context, msg alert.Message) error {
	c.messages = append(c.messages, msg)
	return nil
}

func alwaysRelevant(site llm.CallSite, _ llm.Prompt) (string, error) {
	if site == llm.SiteMonitorRelevance {
		return `{"score": 10, "reasoning": "direct match"}`, nil
	}
	return "", fmt.Errorf("unexpected call site %s", site)
}

type runnerFixture struct {
	runner  *Runner
	items   *[]models.ResultItem
	capture *captureChannel
	states  *StateStore
	log     *runlog.Logger
}

func newRunnerFixture(t *testing.T, respond func(llm.CallSite, llm.Prompt) (string, error)) *runnerFixture {
	return newRunnerFixtureLog(t, respond, io.Discard)
}

func newRunnerFixtureLog(t *testing.T, respond func(llm.CallSite, llm.Prompt) (string, error), w io.Writer) *runnerFixture {
	t.Helper()

	items := &[]models.ResultItem{}
	registry := integration.NewRegistry(integration.Deps{})
	require.NoError(t, registry.Register("feed", func(integration.Deps) integration.Integration {
		return &feedAdapter{id: "feed", items: items}
	}))

	exec := executor.New(registry, &config.ExecutorConfig{
		Concurrency:             4,
		RelevanceTimeoutSeconds: 5,
		QueryGenTimeoutSeconds:  5,
		TimeoutSeconds:          5,
	})

	states, err := NewStateStore(t.TempDir())
	require.NoError(t, err)

	capture := &captureChannel{}
	log := runlog.New(w)
	runner := NewRunner(exec, registry, &scriptedCaller{respond: respond},
		states, alert.NewDispatcher(capture), log)

	return &runnerFixture{runner: runner, items: items, capture: capture, states: states, log: log}
}

func intPtr(v int) *int { return &v }

func watchConfig() *models.MonitorConfig {
	return &models.MonitorConfig{
		Name:               "drone-watch",
		Keywords:           []string{"drone NOT hobbyist"},
		Sources:            []string{"feed"},
		Schedule:           "daily",
		RelevanceThreshold: intPtr(6),
		Enabled:            true,
	}
}

func TestRunOnce_DisabledMonitorRefuses(t *testing.T) {
	fx := newRunnerFixture(t, alwaysRelevant)
	cfg := watchConfig()
	cfg.Enabled = false

	_, err := fx.runner.RunOnce(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRunOnce_AlertsOnlyOnNewItemsAcrossRuns(t *testing.T) {
	fx := newRunnerFixture(t, alwaysRelevant)
	cfg := watchConfig()

	*fx.items = []models.ResultItem{
		{Title: "Drone swarm exercise announced by combat unit", URL: "https://example.com/1", SourceID: "feed",
			Description: "A battalion scheduled a live drone swarm exercise for the fall training cycle."},
		{Title: "Counter-drone contract awarded for base defense", URL: "https://example.com/2", SourceID: "feed",
			Description: "The award covers fixed-site counter-drone systems at three installations."},
	}

	first, err := fx.runner.RunOnce(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, first.NewMatches)
	assert.True(t, first.AlertSent)
	require.Len(t, fx.capture.messages, 1)

	// Second cycle: upstream returns the same two plus one new item.
	*fx.items = append(*fx.items, models.ResultItem{
		Title: "New drone procurement office stands up", URL: "https://example.com/3", SourceID: "feed",
		Description: "The service opened a dedicated procurement office for small drone programs.",
	})

	second, err := fx.runner.RunOnce(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, second.NewMatches, "previously seen items never re-alert")
	require.Len(t, fx.capture.messages, 2)
	assert.Contains(t, fx.capture.messages[1].Body, "https://example.com/3")
	assert.NotContains(t, fx.capture.messages[1].Body, "https://example.com/1")
}

func TestRunOnce_NoAlertWhenNothingNew(t *testing.T) {
	fx := newRunnerFixture(t, alwaysRelevant)
	cfg := watchConfig()

	*fx.items = []models.ResultItem{
		{Title: "Drone story", URL: "https://example.com/1", SourceID: "feed", Description: "drone coverage"},
	}

	_, err := fx.runner.RunOnce(context.Background(), cfg)
	require.NoError(t, err)

	third, err := fx.runner.RunOnce(context.Background(), cfg)
	require.NoError(t, err)
	assert.Zero(t, third.NewMatches)
	assert.False(t, third.AlertSent)
	require.Len(t, fx.capture.messages, 1, "no second delivery for a quiet cycle")
}

func TestRunOnce_ExcludedTermFilteredBeforeScoring(t *testing.T) {
	fx := newRunnerFixture(t, alwaysRelevant)
	cfg := watchConfig()

	*fx.items = []models.ResultItem{
		{Title: "Drone procurement update", URL: "https://example.com/keep", SourceID: "feed",
			Description: "Acquisition news."},
		{Title: "Best drones for the hobbyist pilot", URL: "https://example.com/drop", SourceID: "feed",
			Description: "Consumer gift guide."},
	}

	summary, err := fx.runner.RunOnce(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 1, summary.NewMatches)
	assert.Equal(t, "https://example.com/keep", summary.Items[0].Item.URL)
}

func TestRunOnce_ThresholdFiltersButStillCommits(t *testing.T) {
	respond := func(site llm.CallSite, prompt llm.Prompt) (string, error) {
		if site != llm.SiteMonitorRelevance {
			return "", fmt.Errorf("unexpected call site %s", site)
		}
		if strings.Contains(prompt.User, "weak match") {
			return `{"score": 2, "reasoning": "tangential"}`, nil
		}
		return `{"score": 9, "reasoning": "strong"}`, nil
	}
	fx := newRunnerFixture(t, respond)
	cfg := watchConfig()

	*fx.items = []models.ResultItem{
		{Title: "Drone program of record announced", URL: "https://example.com/strong", SourceID: "feed",
			Description: "Program news."},
		{Title: "weak match about drone adjacent topic", URL: "https://example.com/weak", SourceID: "feed",
			Description: "Barely related."},
	}

	first, err := fx.runner.RunOnce(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 1, first.NewMatches)
	assert.Equal(t, "https://example.com/strong", first.Items[0].Item.URL)

	// The low scorer's fingerprint was committed anyway: it does not
	// resurface as new on the next cycle.
	second, err := fx.runner.RunOnce(context.Background(), cfg)
	require.NoError(t, err)
	assert.Zero(t, second.NewMatches)

	st, err := fx.states.Load(cfg.Name)
	require.NoError(t, err)
	assert.Len(t, st.SeenFingerprints, 2)
}

func TestRunOnce_ScoringFailureDropsItemButCommits(t *testing.T) {
	respond := func(llm.CallSite, llm.Prompt) (string, error) {
		return "", models.NewSourceError(models.ErrKindLLMInvalidOutput, "", "schema violation")
	}
	fx := newRunnerFixture(t, respond)
	cfg := watchConfig()

	*fx.items = []models.ResultItem{
		{Title: "Drone story", URL: "https://example.com/1", SourceID: "feed", Description: "coverage"},
	}

	summary, err := fx.runner.RunOnce(context.Background(), cfg)
	require.NoError(t, err)
	assert.Zero(t, summary.NewMatches)
	assert.False(t, summary.AlertSent)

	st, err := fx.states.Load(cfg.Name)
	require.NoError(t, err)
	assert.Len(t, st.SeenFingerprints, 1)
}

func TestRunOnce_ZeroThresholdAlertsOnAnyScore(t *testing.T) {
	respond := func(site llm.CallSite, _ llm.Prompt) (string, error) {
		if site != llm.SiteMonitorRelevance {
			return "", fmt.Errorf("unexpected call site %s", site)
		}
		return `{"score": 0, "reasoning": "barely related"}`, nil
	}
	fx := newRunnerFixture(t, respond)
	cfg := watchConfig()
	cfg.RelevanceThreshold = intPtr(0)

	*fx.items = []models.ResultItem{
		{Title: "Drone mention in passing", URL: "https://example.com/1", SourceID: "feed", Description: "aside"},
	}

	summary, err := fx.runner.RunOnce(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NewMatches, "threshold zero keeps every scored item")
}

func TestRunOnce_NearDuplicateDropLogged(t *testing.T) {
	var buf bytes.Buffer
	fx := newRunnerFixtureLog(t, alwaysRelevant, &buf)
	cfg := watchConfig()

	*fx.items = []models.ResultItem{
		{Title: "Navy awards drone refueling contract to shipbuilder",
			Description: "The Navy awarded a multi-year drone refueling contract covering carrier air wings and shore facilities.",
			URL:         "https://example.com/original", SourceID: "feed"},
		{Title: "Navy awards drone refueling contract to shipbuilder",
			Description: "The Navy awarded a multi-year drone refueling contract covering carrier air wings and shore facilities. (Reuters)",
			URL:         "https://example.com/syndicated", SourceID: "feed"},
	}

	summary, err := fx.runner.RunOnce(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NewMatches, "near duplicates collapse to one alertable item")
	require.NoError(t, fx.log.Close())

	var perDrop []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var ev struct {
			EventType string         `json:"event_type"`
			Payload   map[string]any `json:"payload"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		if ev.EventType == "filter_decision" && ev.Payload["decision"] == "near_duplicate" {
			perDrop = append(perDrop, ev.Payload)
		}
	}

	require.Len(t, perDrop, 1, "one filter_decision per collapsed near-duplicate")
	drop := perDrop[0]
	assert.Equal(t, "https://example.com/syndicated", drop["dropped_url"])
	assert.Equal(t, "https://example.com/original", drop["kept_url"])
	sim, ok := drop["similarity"].(float64)
	require.True(t, ok, "similarity is recorded on the event")
	assert.GreaterOrEqual(t, sim, 0.85)
}

func TestRunOnce_RecordsSourceOutcomes(t *testing.T) {
	fx := newRunnerFixture(t, alwaysRelevant)
	cfg := watchConfig()

	*fx.items = []models.ResultItem{
		{Title: "Drone story", URL: "https://example.com/1", SourceID: "feed", Description: "coverage"},
	}

	summary, err := fx.runner.RunOnce(context.Background(), cfg)
	require.NoError(t, err)

	out := summary.SourceOutcomes["feed"]
	require.NotNil(t, out)
	assert.Equal(t, 1, out.Items)
	assert.False(t, out.Failed)
}
