// Package masking scrubs credential material from text before it is
// persisted. Credentials reach the process only through environment
// variables; the masker replaces their literal values, plus common secret
// shapes, with a fixed placeholder so they never land in logs or reports.
package masking

import (
	"regexp"
	"strings"
)

// MaskedValue replaces any matched credential.
const MaskedValue = "***MASKED***"

// builtinPatterns catch secret shapes regardless of configuration.
var builtinPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|authorization)(["'\s:=]+)([A-Za-z0-9_\-\.]{8,})`),
	regexp.MustCompile(`Bearer\s+[A-Za-z0-9_\-\.]+`),
}

// Masker replaces known credential values and secret-shaped substrings.
type Masker struct {
	values   []string
	patterns []*regexp.Regexp
}

// New creates a Masker that scrubs the given literal credential values.
// Empty and very short values are ignored: masking 1-3 character strings
// would mangle ordinary text.
func New(credentialValues []string) *Masker {
	m := &Masker{patterns: builtinPatterns}
	for _, v := range credentialValues {
		if len(v) >= 4 {
			m.values = append(m.values, v)
		}
	}
	return m
}

// Mask returns s with credential values and secret-shaped substrings
// replaced.
func (m *Masker) Mask(s string) string {
	if m == nil {
		return s
	}
	for _, v := range m.values {
		s = strings.ReplaceAll(s, v, MaskedValue)
	}
	for _, re := range m.patterns {
		s = re.ReplaceAllStringFunc(s, func(match string) string {
			sub := re.FindStringSubmatch(match)
			if len(sub) == 4 {
				return sub[1] + sub[2] + MaskedValue
			}
			return MaskedValue
		})
	}
	return s
}
