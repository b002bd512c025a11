package monitor

import "strings"

// NormalizedKeyword is a monitor keyword prepared for one source. For
// sources with upstream boolean support the Query is passed through
// verbatim; otherwise operators are stripped to bare terms and NOT
// clauses become post-hoc exclusions applied to the returned items.
type NormalizedKeyword struct {
	Query    string
	Excluded []string
}

// NormalizeKeyword prepares a keyword expression for a source.
func NormalizeKeyword(keyword string, supportsBoolean bool) NormalizedKeyword {
	if supportsBoolean {
		return NormalizedKeyword{Query: keyword}
	}

	var (
		kept     []string
		excluded []string
		negate   bool
	)
	for _, tok := range tokenizeKeyword(keyword) {
		switch strings.ToUpper(tok) {
		case "AND", "OR":
			continue
		case "NOT":
			negate = true
			continue
		}
		if negate {
			excluded = append(excluded, strings.ToLower(tok))
			negate = false
			continue
		}
		kept = append(kept, tok)
	}
	return NormalizedKeyword{Query: strings.Join(kept, " "), Excluded: excluded}
}

// tokenizeKeyword splits on whitespace while keeping quoted phrases as
// single tokens, quotes removed.
func tokenizeKeyword(s string) []string {
	var (
		tokens  []string
		current strings.Builder
		quoted  bool
	)
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			if quoted {
				flush()
			}
			quoted = !quoted
		case !quoted && (r == ' ' || r == '\t'):
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// Matches reports whether an item's text passes the exclusion filter.
func (k NormalizedKeyword) Matches(text string) bool {
	if len(k.Excluded) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, term := range k.Excluded {
		if strings.Contains(lower, term) {
			return false
		}
	}
	return true
}
