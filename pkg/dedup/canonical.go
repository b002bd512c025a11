// Package dedup implements exact and near-duplicate detection over
// result items: URL canonicalization, SHA-256 fingerprints, MinHash
// sketches, and the persistent per-monitor seen-set.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

// trackingParams are query parameters stripped during canonicalization.
// They identify campaigns, not content.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"gclid":        true,
	"fbclid":       true,
	"msclkid":      true,
	"mc_cid":       true,
	"mc_eid":       true,
	"ref":          true,
	"ref_src":      true,
	"igshid":       true,
}

// CanonicalURL normalizes a URL for fingerprinting: lowercase scheme and
// host, default ports removed, tracking parameters stripped, remaining
// query sorted, trailing slash on the path dropped. Idempotent; inputs
// that do not parse are returned trimmed but otherwise untouched.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	u.Host = host

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	q := u.Query()
	for k := range q {
		if trackingParams[strings.ToLower(k)] {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode() // Encode sorts keys.
	u.Fragment = ""

	return u.String()
}

// Fingerprint computes the primary fingerprint for an item: SHA-256 of
// the canonical URL when one is present, else SHA-256 of the lowercase
// title joined with the date.
func Fingerprint(item models.ResultItem) string {
	var material string
	if item.URL != "" {
		material = CanonicalURL(item.URL)
	} else {
		material = strings.ToLower(item.Title) + "|" + item.Date
	}
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}
