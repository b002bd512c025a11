package sources

import (
	"fmt"
	"strings"
	"time"

	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

// queryGenSchema builds a query-generation schema for one source. Every
// schema carries the not_applicable flag and reason so the model can
// surface "this source cannot help" instead of returning junk parameters.
// fieldProps is the JSON of the source-specific properties object.
func queryGenSchema(fieldProps string) string {
	return fmt.Sprintf(`{
		"type": "object",
		"required": ["not_applicable"],
		"properties": {
			"not_applicable": {"type": "boolean"},
			"reason": {"type": "string"},
			%s
		}
	}`, strings.TrimSpace(fieldProps))
}

// queryGenSystem is the shared preamble for query-generation prompts.
func queryGenSystem(displayName, guidance string) string {
	return fmt.Sprintf(
		"You translate research questions into search parameters for %s.\n"+
			"%s\n"+
			"If this source genuinely cannot help answer the question, set not_applicable to true and explain why in reason.",
		displayName, guidance)
}

// containsAny reports whether the lowercased question contains any of the
// given terms. Used by IsRelevant heuristics; cheap, no I/O.
func containsAny(question string, terms ...string) bool {
	q := strings.ToLower(question)
	for _, t := range terms {
		if strings.Contains(q, t) {
			return true
		}
	}
	return false
}

// validDate checks an LLM-produced date string is YYYY-MM-DD and not in
// the future. Empty is valid (field optional).
func validDate(s string) error {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("date %q is not YYYY-MM-DD", s)
	}
	if t.After(time.Now().Add(24 * time.Hour)) {
		return fmt.Errorf("date %q is in the future", s)
	}
	return nil
}

// withinLookback checks a from-date does not exceed the source's maximum
// lookback window.
func withinLookback(from string, maxLookback time.Duration) error {
	if from == "" || maxLookback <= 0 {
		return nil
	}
	t, err := time.Parse("2006-01-02", from)
	if err != nil {
		return fmt.Errorf("date %q is not YYYY-MM-DD", from)
	}
	if time.Since(t) > maxLookback {
		return fmt.Errorf("date %q exceeds the %v lookback window", from, maxLookback)
	}
	return nil
}

// invalidOutput is the fail-fast error for LLM output that violates
// source constraints. Per the contract there is no heuristic keyword
// fallback.
func invalidOutput(sourceID string, err error) error {
	return models.NewSourceError(models.ErrKindLLMInvalidOutput, sourceID,
		"generated query rejected: %v", err)
}

// clampItems enforces the limit invariant: no adapter may return more than
// limit items.
func clampItems(items []models.ResultItem, limit int) []models.ResultItem {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// toRFC3339 normalizes an upstream timestamp into RFC3339, passing
// through empty and already-valid values and giving up quietly on exotic
// formats (Date is allowed to be empty).
func toRFC3339(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"01/02/2006",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return ""
}
