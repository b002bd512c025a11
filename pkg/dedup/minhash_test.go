package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

func TestSimilarity_IdenticalText(t *testing.T) {
	item := models.ResultItem{
		Title:       "Army awards cloud migration contract",
		Description: "The US Army awarded a five-year cloud migration contract to a mid-size integrator.",
	}
	a := NewSketch(item)
	b := NewSketch(item)
	assert.Equal(t, 1.0, Similarity(a, b))
}

func TestSimilarity_NearDuplicateAboveThreshold(t *testing.T) {
	a := NewSketch(models.ResultItem{
		Title:       "Army awards cloud migration contract to integrator",
		Description: "The US Army awarded a five-year cloud migration contract covering enterprise workloads and data center exit.",
	})
	// Same wire story with a trailing syndication marker.
	b := NewSketch(models.ResultItem{
		Title:       "Army awards cloud migration contract to integrator",
		Description: "The US Army awarded a five-year cloud migration contract covering enterprise workloads and data center exit. (Reuters)",
	})
	assert.GreaterOrEqual(t, Similarity(a, b), 0.85)
}

func TestSimilarity_UnrelatedBelowThreshold(t *testing.T) {
	a := NewSketch(models.ResultItem{
		Title:       "Army awards cloud migration contract",
		Description: "Five-year enterprise cloud migration award.",
	})
	b := NewSketch(models.ResultItem{
		Title:       "New aquarium opens downtown",
		Description: "The city aquarium opened its jellyfish wing to visitors this weekend.",
	})
	assert.Less(t, Similarity(a, b), 0.85)
}

func TestNewSketch_DeterministicAcrossCalls(t *testing.T) {
	item := models.ResultItem{Title: "stable", Description: "sketch parameters are seeded, not random"}
	assert.Equal(t, NewSketch(item), NewSketch(item))
}

func TestCollapseNearDuplicates_KeepsEarliestDated(t *testing.T) {
	items := []models.ResultItem{
		{
			Title:       "Pentagon announces new software factory initiative for tactical systems",
			Description: "The department described a new software factory initiative aimed at tactical edge systems and faster fielding.",
			Date:        "2026-03-10T00:00:00Z",
			URL:         "https://example.com/late",
		},
		{
			Title:       "Pentagon announces new software factory initiative for tactical systems",
			Description: "The department described a new software factory initiative aimed at tactical edge systems and faster fielding.",
			Date:        "2026-03-08T00:00:00Z",
			URL:         "https://example.com/early",
		},
	}

	out, drops := CollapseNearDuplicates(items, 0)
	require.Len(t, out, 1)
	assert.Equal(t, "https://example.com/early", out[0].URL)

	require.Len(t, drops, 1)
	assert.Equal(t, "https://example.com/early", drops[0].Kept.URL)
	assert.Equal(t, "https://example.com/late", drops[0].Dropped.URL)
	assert.GreaterOrEqual(t, drops[0].Similarity, 0.85)
}

func TestCollapseNearDuplicates_PreservesInputOrder(t *testing.T) {
	items := []models.ResultItem{
		{Title: "Distinct story about submarine maintenance backlogs", Description: "Shipyard capacity and deferred availabilities."},
		{Title: "Completely different piece on crop futures", Description: "Wheat and soybean futures moved on weather forecasts."},
		{Title: "A third unrelated article on transit funding", Description: "The regional transit authority approved its capital plan."},
	}

	out, drops := CollapseNearDuplicates(items, 0)
	require.Len(t, out, 3)
	assert.Empty(t, drops)
	for i := range items {
		assert.Equal(t, items[i].Title, out[i].Title)
	}
}

func TestCollapseNearDuplicates_SmallInputsPassThrough(t *testing.T) {
	none, drops := CollapseNearDuplicates(nil, 0)
	assert.Empty(t, none)
	assert.Empty(t, drops)

	one := []models.ResultItem{{Title: "only"}}
	kept, drops := CollapseNearDuplicates(one, 0)
	assert.Equal(t, one, kept)
	assert.Empty(t, drops)
}

func TestCollapseNearDuplicates_MissingDatesKeepFirstSeen(t *testing.T) {
	items := []models.ResultItem{
		{
			Title:       "Coast Guard icebreaker program review finds schedule risk",
			Description: "An oversight review of the icebreaker program found continued schedule risk and cost growth.",
			URL:         "https://example.com/first",
		},
		{
			Title:       "Coast Guard icebreaker program review finds schedule risk",
			Description: "An oversight review of the icebreaker program found continued schedule risk and cost growth.",
			URL:         "https://example.com/second",
		},
	}

	out, drops := CollapseNearDuplicates(items, 0)
	require.Len(t, out, 1)
	assert.Equal(t, "https://example.com/first", out[0].URL)
	require.Len(t, drops, 1)
	assert.Equal(t, "https://example.com/second", drops[0].Dropped.URL)
}
