package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

// fakeAdapter is a minimal Integration for registry tests.
type fakeAdapter struct {
	meta       models.SourceMetadata
	strategies map[string]StrategyFunc
}

func (f *fakeAdapter) Metadata() models.SourceMetadata { return f.meta }
func (f *fakeAdapter) IsRelevant(string) bool          { return true }

func (f *fakeAdapter) GenerateQuery(context.Context, string) (*models.QueryParams, error) {
	return &models.QueryParams{SourceID: f.meta.ID}, nil
}

func (f *fakeAdapter) ExecuteSearch(context.Context, *models.QueryParams, int) *models.QueryResult {
	return &models.QueryResult{SourceID: f.meta.ID, Success: true}
}

// strategyAdapter additionally implements StrategyProvider.
type strategyAdapter struct {
	fakeAdapter
}

func (s *strategyAdapter) StrategyMethods() map[string]StrategyFunc { return s.strategies }

func fakeFactory(id string) Factory {
	return func(Deps) Integration {
		return &fakeAdapter{meta: models.SourceMetadata{ID: id, Description: "a test source"}}
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry(Deps{})
	require.NoError(t, r.Register("alpha", fakeFactory("alpha")))
	require.NoError(t, r.Register("beta", fakeFactory("beta")))

	adapter, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", adapter.Metadata().ID)

	_, err = r.Get("missing")
	assert.Error(t, err)
}

func TestRegistry_GetReturnsFreshInstances(t *testing.T) {
	r := NewRegistry(Deps{})
	require.NoError(t, r.Register("alpha", fakeFactory("alpha")))

	a, _ := r.Get("alpha")
	b, _ := r.Get("alpha")
	assert.NotSame(t, a, b)
}

func TestRegistry_RejectsIDMismatch(t *testing.T) {
	r := NewRegistry(Deps{})
	err := r.Register("expected", fakeFactory("actual"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestRegistry_RejectsDuplicate(t *testing.T) {
	r := NewRegistry(Deps{})
	require.NoError(t, r.Register("alpha", fakeFactory("alpha")))
	err := r.Register("alpha", fakeFactory("alpha"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_RejectsNilFactory(t *testing.T) {
	r := NewRegistry(Deps{})
	assert.Error(t, r.Register("alpha", nil))
	assert.Error(t, r.Register("beta", func(Deps) Integration { return nil }))
}

func TestRegistry_ValidatesStrategyResolution(t *testing.T) {
	meta := models.SourceMetadata{
		ID:          "strat",
		Description: "source with strategies",
		SearchStrategies: []models.SearchStrategy{
			{MethodName: "keyword_search", Reliability: models.ReliabilityHigh, RequiredParam: "keywords"},
		},
	}

	t.Run("declared strategies must implement StrategyMethods", func(t *testing.T) {
		r := NewRegistry(Deps{})
		err := r.Register("strat", func(Deps) Integration {
			return &fakeAdapter{meta: meta}
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "StrategyMethods")
	})

	t.Run("every method name must resolve", func(t *testing.T) {
		r := NewRegistry(Deps{})
		err := r.Register("strat", func(Deps) Integration {
			return &strategyAdapter{fakeAdapter: fakeAdapter{
				meta:       meta,
				strategies: map[string]StrategyFunc{"other_search": nil},
			}}
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not resolve")
	})

	t.Run("resolving strategies register cleanly", func(t *testing.T) {
		r := NewRegistry(Deps{})
		err := r.Register("strat", func(Deps) Integration {
			return &strategyAdapter{fakeAdapter: fakeAdapter{
				meta: meta,
				strategies: map[string]StrategyFunc{
					"keyword_search": func(context.Context, *models.QueryParams, int) (*models.QueryResult, error) {
						return nil, nil
					},
				},
			}}
		})
		assert.NoError(t, err)
	})
}

func TestRegistry_ListAndIDsPreserveRegistrationOrder(t *testing.T) {
	r := NewRegistry(Deps{})
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, r.Register(id, fakeFactory(id)))
	}

	assert.Equal(t, []string{"c", "a", "b"}, r.IDs())

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[2].ID)
}

func TestRegistry_Metadata(t *testing.T) {
	r := NewRegistry(Deps{})
	require.NoError(t, r.Register("alpha", fakeFactory("alpha")))

	meta, ok := r.Metadata("alpha")
	assert.True(t, ok)
	assert.Equal(t, "alpha", meta.ID)

	_, ok = r.Metadata("missing")
	assert.False(t, ok)
}
