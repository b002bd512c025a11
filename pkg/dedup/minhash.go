package dedup

import (
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

const (
	numPerms         = 128
	sketchChars      = 500
	shingleSize      = 4
	defaultThreshold = 0.85
)

// Sketch is a MinHash signature over the first sketchChars characters of
// an item's title+description. Estimated Jaccard similarity between two
// sketches approximates the shingle overlap of the underlying text.
type Sketch [numPerms]uint64

// Permutation parameters a*x+b over a 61-bit Mersenne prime, seeded
// deterministically so sketches are stable across processes.
const mersenne61 = (1 << 61) - 1

var permA, permB [numPerms]uint64

func init() {
	// xorshift from a fixed seed; parameters must be identical for every
	// process that compares sketches.
	state := uint64(0x9E3779B97F4A7C15)
	next := func() uint64 {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		return state
	}
	for i := 0; i < numPerms; i++ {
		permA[i] = next()%(mersenne61-1) + 1
		permB[i] = next() % mersenne61
	}
}

// NewSketch computes the MinHash signature of an item's text content.
func NewSketch(item models.ResultItem) Sketch {
	text := strings.ToLower(strings.TrimSpace(item.Title + " " + item.Description))
	if len(text) > sketchChars {
		text = text[:sketchChars]
	}

	var sk Sketch
	for i := range sk {
		sk[i] = math.MaxUint64
	}
	if len(text) < shingleSize {
		if text == "" {
			return sk
		}
		updateSketch(&sk, text)
		return sk
	}
	for i := 0; i+shingleSize <= len(text); i++ {
		updateSketch(&sk, text[i:i+shingleSize])
	}
	return sk
}

func updateSketch(sk *Sketch, shingle string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(shingle))
	base := h.Sum64() % mersenne61
	for i := 0; i < numPerms; i++ {
		v := (permA[i]*base + permB[i]) % mersenne61
		if v < sk[i] {
			sk[i] = v
		}
	}
}

// Similarity estimates Jaccard similarity between two sketches.
func Similarity(a, b Sketch) float64 {
	match := 0
	for i := range a {
		if a[i] == b[i] {
			match++
		}
	}
	return float64(match) / float64(numPerms)
}

// NearDupDrop records one collapsed near-duplicate: the item dropped, the
// cluster member kept in its place, and their estimated Jaccard similarity.
type NearDupDrop struct {
	Kept       models.ResultItem
	Dropped    models.ResultItem
	Similarity float64
}

// CollapseNearDuplicates clusters items whose sketch similarity meets
// the threshold and keeps the earliest-dated member of each cluster
// (first-seen on a date tie or missing dates). Pass threshold <= 0 for
// the default 0.85. Input order is preserved for the survivors; every
// collapse is reported so callers can log the filter decision.
func CollapseNearDuplicates(items []models.ResultItem, threshold float64) ([]models.ResultItem, []NearDupDrop) {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if len(items) < 2 {
		return items, nil
	}

	sketches := make([]Sketch, len(items))
	for i, it := range items {
		sketches[i] = NewSketch(it)
	}

	// Greedy single-pass clustering. Cohort sizes here are hundreds at
	// most, so the quadratic comparison is fine.
	clusterOf := make([]int, len(items))
	for i := range clusterOf {
		clusterOf[i] = -1
	}
	var clusters [][]int
	for i := range items {
		assigned := false
		for ci, members := range clusters {
			if Similarity(sketches[members[0]], sketches[i]) >= threshold {
				clusters[ci] = append(clusters[ci], i)
				clusterOf[i] = ci
				assigned = true
				break
			}
		}
		if !assigned {
			clusterOf[i] = len(clusters)
			clusters = append(clusters, []int{i})
		}
	}

	keep := make(map[int]bool, len(clusters))
	var drops []NearDupDrop
	for _, members := range clusters {
		best := members[0]
		bestDate := itemDate(items[best])
		for _, idx := range members[1:] {
			d := itemDate(items[idx])
			if !d.IsZero() && (bestDate.IsZero() || d.Before(bestDate)) {
				best, bestDate = idx, d
			}
		}
		keep[best] = true
		for _, idx := range members {
			if idx == best {
				continue
			}
			drops = append(drops, NearDupDrop{
				Kept:       items[best],
				Dropped:    items[idx],
				Similarity: Similarity(sketches[best], sketches[idx]),
			})
		}
	}

	out := make([]models.ResultItem, 0, len(keep))
	for i, it := range items {
		if keep[i] {
			out = append(out, it)
		}
	}
	return out, drops
}

func itemDate(item models.ResultItem) time.Time {
	if item.Date == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, item.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}
