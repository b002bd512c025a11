package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

func strategyMeta(strategies ...models.SearchStrategy) models.SourceMetadata {
	return models.SourceMetadata{
		ID:               "fb",
		DisplayName:      "Fallback Source",
		Description:      "test",
		SearchStrategies: strategies,
	}
}

func okResult(urls ...string) *models.QueryResult {
	items := make([]models.ResultItem, len(urls))
	for i, u := range urls {
		items[i] = models.ResultItem{URL: u, SourceID: "fb"}
	}
	return &models.QueryResult{SourceID: "fb", Success: true, Items: items}
}

func TestExecuteWithFallback_FirstStrategyWins(t *testing.T) {
	var tried []string
	a := &strategyAdapter{fakeAdapter: fakeAdapter{
		meta: strategyMeta(
			models.SearchStrategy{MethodName: "primary", RequiredParam: "keywords"},
			models.SearchStrategy{MethodName: "secondary"},
		),
		strategies: map[string]StrategyFunc{
			"primary": func(context.Context, *models.QueryParams, int) (*models.QueryResult, error) {
				tried = append(tried, "primary")
				return okResult("https://example.com/hit"), nil
			},
			"secondary": func(context.Context, *models.QueryParams, int) (*models.QueryResult, error) {
				tried = append(tried, "secondary")
				return okResult("https://example.com/other"), nil
			},
		},
	}}

	params := &models.QueryParams{SourceID: "fb", Fields: map[string]any{"keywords": "drone"}}
	qr := ExecuteWithFallback(context.Background(), a, params, 10)

	require.True(t, qr.Success)
	assert.Equal(t, []string{"primary"}, tried, "later strategies are not tried after a hit")
}

func TestExecuteWithFallback_SkipsStrategyMissingParam(t *testing.T) {
	var tried []string
	a := &strategyAdapter{fakeAdapter: fakeAdapter{
		meta: strategyMeta(
			models.SearchStrategy{MethodName: "needs_naics", RequiredParam: "naics_code"},
			models.SearchStrategy{MethodName: "keyword", RequiredParam: "keywords"},
		),
		strategies: map[string]StrategyFunc{
			"needs_naics": func(context.Context, *models.QueryParams, int) (*models.QueryResult, error) {
				tried = append(tried, "needs_naics")
				return okResult("x"), nil
			},
			"keyword": func(context.Context, *models.QueryParams, int) (*models.QueryResult, error) {
				tried = append(tried, "keyword")
				return okResult("https://example.com/kw"), nil
			},
		},
	}}

	params := &models.QueryParams{SourceID: "fb", Fields: map[string]any{"keywords": "drone"}}
	qr := ExecuteWithFallback(context.Background(), a, params, 10)

	require.True(t, qr.Success)
	assert.Equal(t, []string{"keyword"}, tried)
}

func TestExecuteWithFallback_EmptyResultsFallThrough(t *testing.T) {
	a := &strategyAdapter{fakeAdapter: fakeAdapter{
		meta: strategyMeta(
			models.SearchStrategy{MethodName: "empty"},
			models.SearchStrategy{MethodName: "full"},
		),
		strategies: map[string]StrategyFunc{
			"empty": func(context.Context, *models.QueryParams, int) (*models.QueryResult, error) {
				return okResult(), nil
			},
			"full": func(context.Context, *models.QueryParams, int) (*models.QueryResult, error) {
				return okResult("https://example.com/found"), nil
			},
		},
	}}

	qr := ExecuteWithFallback(context.Background(), a, &models.QueryParams{SourceID: "fb"}, 10)
	require.True(t, qr.Success)
	require.Len(t, qr.Items, 1)
	assert.Equal(t, "https://example.com/found", qr.Items[0].URL)
}

func TestExecuteWithFallback_AllExhaustedCompositeError(t *testing.T) {
	a := &strategyAdapter{fakeAdapter: fakeAdapter{
		meta: strategyMeta(
			models.SearchStrategy{MethodName: "broken"},
			models.SearchStrategy{MethodName: "empty"},
		),
		strategies: map[string]StrategyFunc{
			"broken": func(context.Context, *models.QueryParams, int) (*models.QueryResult, error) {
				return nil, errors.New("upstream exploded")
			},
			"empty": func(context.Context, *models.QueryParams, int) (*models.QueryResult, error) {
				return okResult(), nil
			},
		},
	}}

	qr := ExecuteWithFallback(context.Background(), a, &models.QueryParams{SourceID: "fb"}, 10)

	require.False(t, qr.Success)
	require.NotNil(t, qr.Error)
	assert.Contains(t, qr.Error.Message, "broken: upstream exploded")
	assert.Contains(t, qr.Error.Message, "empty: no results")
}

func TestExecuteWithFallback_NoStrategiesDelegates(t *testing.T) {
	a := &fakeAdapter{meta: models.SourceMetadata{ID: "fb", Description: "plain"}}
	qr := ExecuteWithFallback(context.Background(), a, &models.QueryParams{SourceID: "fb"}, 10)
	require.NotNil(t, qr)
	assert.True(t, qr.Success, "adapters without strategies use ExecuteSearch directly")
}

func TestExecuteWithFallback_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &strategyAdapter{fakeAdapter: fakeAdapter{
		meta: strategyMeta(
			models.SearchStrategy{MethodName: "first"},
			models.SearchStrategy{MethodName: "second"},
		),
		strategies: map[string]StrategyFunc{
			"first": func(context.Context, *models.QueryParams, int) (*models.QueryResult, error) {
				cancel()
				return okResult(), nil
			},
			"second": func(context.Context, *models.QueryParams, int) (*models.QueryResult, error) {
				t.Fatal("second strategy must not run after cancellation")
				return nil, nil
			},
		},
	}}

	qr := ExecuteWithFallback(ctx, a, &models.QueryParams{SourceID: "fb"}, 10)
	require.False(t, qr.Success)
	assert.Equal(t, models.ErrKindCancelled, qr.Error.Kind)
}
