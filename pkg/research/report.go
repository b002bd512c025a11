package research

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

const topEntities = 15

// WriteReport renders report.md and research_data.json into the run
// directory, next to execution_log.jsonl. Both files are written via
// temp-then-rename.
func WriteReport(dir string, run *models.ResearchRun, s *Synthesis, displayNames map[string]string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}

	data, err := json.MarshalIndent(struct {
		Run       *models.ResearchRun `json:"run"`
		Synthesis *Synthesis          `json:"synthesis"`
	}{run, s}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run record: %w", err)
	}
	if err := atomicWrite(filepath.Join(dir, "research_data.json"), data); err != nil {
		return err
	}

	return atomicWrite(filepath.Join(dir, "report.md"), []byte(renderMarkdown(run, s, displayNames)))
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("committing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func renderMarkdown(run *models.ResearchRun, s *Synthesis, displayNames map[string]string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Research Report: %s\n\n", run.RootQuestion)
	fmt.Fprintf(&b, "Run `%s`, started %s, finished %s.\n\n",
		run.RunID, run.StartedAt.Format("2006-01-02 15:04 MST"), run.CompletedAt.Format("15:04 MST"))
	if run.Sensitive {
		fmt.Fprintf(&b, "> Sensitive topic detected (markers: %s). Relevance bar lowered; "+
			"expect sparse, indirect evidence.\n\n", strings.Join(run.SensitivityMarkers, ", "))
	}
	if len(run.CriticalFailures) > 0 {
		fmt.Fprintf(&b, "> **Degraded run**: critical source(s) failed: %s.\n\n",
			strings.Join(run.CriticalFailures, ", "))
	}

	b.WriteString("## Executive Summary\n\n")
	b.WriteString(s.ExecutiveSummary + "\n\n")

	if len(s.KeyFindings) > 0 {
		b.WriteString("## Key Findings\n\n")
		for _, f := range s.KeyFindings {
			fmt.Fprintf(&b, "- %s\n", f.Finding)
			for _, c := range f.Citations {
				if c.URL != "" {
					fmt.Fprintf(&b, "  - [%s](%s)\n", c.Title, c.URL)
				} else {
					fmt.Fprintf(&b, "  - %s\n", c.Title)
				}
			}
		}
		b.WriteString("\n")
	}

	if s.DetailedAnalysis != "" {
		b.WriteString("## Detailed Analysis\n\n")
		b.WriteString(s.DetailedAnalysis + "\n\n")
	}

	if len(s.Gaps) > 0 {
		b.WriteString("## Gaps\n\n")
		for _, g := range s.Gaps {
			fmt.Fprintf(&b, "- %s\n", g)
		}
		b.WriteString("\n")
	}

	writeEntityNetwork(&b, run)
	writeMethodology(&b, run, displayNames)

	return b.String()
}

type weightedEntity struct {
	name   string
	weight int
}

// writeEntityNetwork lists the top entities by total co-occurrence
// weight with their strongest neighbors.
func writeEntityNetwork(b *strings.Builder, run *models.ResearchRun) {
	if len(run.EntityNetwork) == 0 {
		return
	}
	ranked := make([]weightedEntity, 0, len(run.EntityNetwork))
	for name, neighbors := range run.EntityNetwork {
		total := 0
		for _, w := range neighbors {
			total += w
		}
		ranked = append(ranked, weightedEntity{name, total})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].weight != ranked[j].weight {
			return ranked[i].weight > ranked[j].weight
		}
		return ranked[i].name < ranked[j].name
	})
	if len(ranked) > topEntities {
		ranked = ranked[:topEntities]
	}

	b.WriteString("## Entity Network\n\n")
	for _, e := range ranked {
		neighbors := run.EntityNetwork[e.name]
		top := make([]weightedEntity, 0, len(neighbors))
		for n, w := range neighbors {
			top = append(top, weightedEntity{n, w})
		}
		sort.Slice(top, func(i, j int) bool {
			if top[i].weight != top[j].weight {
				return top[i].weight > top[j].weight
			}
			return top[i].name < top[j].name
		})
		var names []string
		for i, n := range top {
			if i == 3 {
				break
			}
			names = append(names, n.name)
		}
		fmt.Fprintf(b, "- **%s** (weight %d), co-occurs with: %s\n", e.name, e.weight, strings.Join(names, ", "))
	}
	b.WriteString("\n")
}

// writeMethodology renders the task tree and per-source outcomes:
// sources that produced evidence, came back empty, and failed.
func writeMethodology(b *strings.Builder, run *models.ResearchRun, displayNames map[string]string) {
	b.WriteString("## Sources Consulted and Methodology\n\n")

	b.WriteString("### Task Tree\n\n")
	for _, t := range run.Tasks {
		indent := ""
		if t.ParentID != nil {
			indent = "  "
		}
		fmt.Fprintf(b, "%s- Task %d [%s]: %q", indent, t.ID, t.Status, t.Query)
		if t.Attempt > 0 {
			fmt.Fprintf(b, " (%d retries)", t.Attempt)
		}
		if t.ReasonForFailure != "" {
			fmt.Fprintf(b, " - %s", t.ReasonForFailure)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	var productive, empty, failed []string
	ids := make([]string, 0, len(run.SourceOutcomes))
	for id := range run.SourceOutcomes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out := run.SourceOutcomes[id]
		name := displayNames[id]
		if name == "" {
			name = id
		}
		switch {
		case out.Failed:
			failed = append(failed, fmt.Sprintf("%s (%s)", name, out.ErrorKind))
		case out.Items > 0:
			productive = append(productive, fmt.Sprintf("%s (%d items)", name, out.Items))
		default:
			empty = append(empty, name)
		}
	}

	b.WriteString("### Source Outcomes\n\n")
	if len(productive) > 0 {
		fmt.Fprintf(b, "- Produced evidence: %s\n", strings.Join(productive, "; "))
	}
	if len(empty) > 0 {
		fmt.Fprintf(b, "- Consulted, no results: %s\n", strings.Join(empty, "; "))
	}
	if len(failed) > 0 {
		fmt.Fprintf(b, "- Failed: %s\n", strings.Join(failed, "; "))
	}
	b.WriteString("\n")
}
