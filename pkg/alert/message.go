// Package alert renders monitor results into messages and delivers them
// over the configured channels. Delivery is fail-open: a channel error
// is logged and counted, never propagated into the monitor cycle.
package alert

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

// Message is a rendered alert ready for delivery.
type Message struct {
	Subject string
	Body    string
	Summary *models.AlertSummary
}

// Render produces one message per monitor run, items grouped by source
// display name with title, link, date, snippet, and the matched keyword
// plus score per item.
func Render(summary *models.AlertSummary, displayNames map[string]string) Message {
	subject := fmt.Sprintf("%s — %d new matches", summary.MonitorName, summary.NewMatches)

	groups := make(map[string][]models.ScoredItem)
	for _, si := range summary.Items {
		name := displayNames[si.Item.SourceID]
		if name == "" {
			name = si.Item.SourceID
		}
		groups[name] = append(groups[name], si)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "Monitor *%s* found %d new matches at %s.\n",
		summary.MonitorName, summary.NewMatches, summary.RunAt.Format("2006-01-02 15:04 MST"))
	for _, name := range names {
		fmt.Fprintf(&b, "\n*%s*\n", name)
		for _, si := range groups[name] {
			fmt.Fprintf(&b, "• <%s|%s>", si.Item.URL, si.Item.Title)
			if len(si.Item.Date) >= 10 {
				fmt.Fprintf(&b, " (%s)", si.Item.Date[:10])
			}
			fmt.Fprintf(&b, " — keyword %q, score %d/10\n", si.MatchedKeyword, si.Score)
			if si.Item.Description != "" {
				fmt.Fprintf(&b, "  %s\n", snippet(si.Item.Description, 200))
			}
		}
	}

	return Message{Subject: subject, Body: b.String(), Summary: summary}
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
