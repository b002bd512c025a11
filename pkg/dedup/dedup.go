package dedup

import "github.com/BrianMills2718/OSINT-sub001/pkg/models"

// Outcome reports one deduplication pass.
type Outcome struct {
	// Retained are the survivors in input order: unseen, exact-unique,
	// and near-duplicate-collapsed.
	Retained []models.ResultItem

	// Processed holds the primary fingerprint of every input item,
	// including dropped ones. Callers persist all of them so a
	// once-seen item never re-alerts.
	Processed []string

	// NearDupDrops details each near-duplicate collapse (kept item,
	// dropped item, estimated similarity) for per-drop filter logging.
	NearDupDrops []NearDupDrop

	DroppedSeen    int
	DroppedExact   int
	DroppedNearDup int
}

// Deduplicate runs the full pipeline against a prior seen-set: exact
// fingerprint filtering first, then near-duplicate collapse on the
// survivors. The seen map is not modified. Running the pass twice with
// the same inputs and seen-set yields the same retained set.
func Deduplicate(items []models.ResultItem, seen map[string]bool, threshold float64) Outcome {
	out := Outcome{Processed: make([]string, 0, len(items))}

	inRun := make(map[string]bool, len(items))
	var fresh []models.ResultItem
	for _, it := range items {
		fp := Fingerprint(it)
		out.Processed = append(out.Processed, fp)
		if seen[fp] {
			out.DroppedSeen++
			continue
		}
		if inRun[fp] {
			out.DroppedExact++
			continue
		}
		inRun[fp] = true
		fresh = append(fresh, it)
	}

	out.Retained, out.NearDupDrops = CollapseNearDuplicates(fresh, threshold)
	out.DroppedNearDup = len(out.NearDupDrops)
	return out
}
