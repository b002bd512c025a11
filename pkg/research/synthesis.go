package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/BrianMills2718/OSINT-sub001/pkg/llm"
	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
	"github.com/BrianMills2718/OSINT-sub001/pkg/runlog"
)

// Citation points at one evidence item by title and url.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// Finding is one synthesized key finding with its citations.
type Finding struct {
	Finding   string     `json:"finding"`
	Citations []Citation `json:"citations,omitempty"`
}

// Synthesis is the narrative output of a research run.
type Synthesis struct {
	ExecutiveSummary string    `json:"executive_summary"`
	KeyFindings      []Finding `json:"key_findings"`
	DetailedAnalysis string    `json:"detailed_analysis"`
	Gaps             []string  `json:"gaps,omitempty"`

	// Failed is set when the synthesis call itself failed; the report
	// then carries the raw evidence without narrative.
	Failed bool   `json:"failed,omitempty"`
	Error  string `json:"error,omitempty"`
}

const maxEvidenceInPrompt = 60

// synthesize produces the run narrative in a single gateway call. The
// model only sees evidence actually collected and is instructed to mark
// gaps rather than invent support. Citations naming evidence that is not
// in the run are stripped.
func (e *Engine) synthesize(ctx context.Context, run *models.ResearchRun, rl *runlog.RunLogger) *Synthesis {
	if len(run.Evidence) == 0 {
		return &Synthesis{
			ExecutiveSummary: "No evidence was found for this question across the consulted sources.",
			DetailedAnalysis: "Every executed task came back empty or off-topic. " +
				"See the sources-consulted section for per-source outcomes.",
			Gaps: []string{"no evidence found"},
		}
	}

	prompt := llm.Prompt{
		System: "You synthesize an investigative research report from collected evidence.\n" +
			"Produce: an executive summary of 3-5 sentences; key findings as bullet points, " +
			"each citing at least one evidence item by its exact title and url; a detailed " +
			"analysis with one or more paragraphs per completed line of inquiry; and a list " +
			"of gaps. Use ONLY the evidence provided. Where the evidence does not support a " +
			"conclusion, state \"no evidence found\" instead of speculating. Never invent " +
			"titles, urls, or facts.",
		User: e.synthesisContext(run),
	}

	var s Synthesis
	if err := e.gateway.CompleteJSON(ctx, llm.SiteSynthesis, llm.PurposeSynthesis, prompt, &s); err != nil {
		e.logger.Error("Synthesis failed", "run_id", run.RunID, "error", err)
		return &Synthesis{
			Failed: true,
			Error:  err.Error(),
			ExecutiveSummary: fmt.Sprintf("Synthesis unavailable (%d evidence items were collected). "+
				"The raw evidence and task record follow.", len(run.Evidence)),
		}
	}

	s.KeyFindings = dropUncitedEvidence(s.KeyFindings, run)
	rl.Event(runlog.EventRawResponse, map[string]any{
		"call_site":    string(llm.SiteSynthesis),
		"key_findings": len(s.KeyFindings),
		"excerpt":      runlog.Truncate(s.ExecutiveSummary),
	})
	return &s
}

// synthesisContext renders the run record for the synthesis prompt:
// question, task tree with outcomes, and the evidence index.
func (e *Engine) synthesisContext(run *models.ResearchRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research question: %s\n", run.RootQuestion)
	if run.Sensitive {
		b.WriteString("Note: the question touches a sensitive topic; public evidence is expected to be sparse and oblique.\n")
	}

	b.WriteString("\nTasks executed:\n")
	for _, t := range run.Tasks {
		fmt.Fprintf(&b, "- [%d] %q → %s", t.ID, t.Query, t.Status)
		if t.Attempt > 0 {
			fmt.Fprintf(&b, " (after %d retries)", t.Attempt)
		}
		if t.ReasonForFailure != "" {
			fmt.Fprintf(&b, ": %s", t.ReasonForFailure)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nEvidence:\n")
	for i, fp := range run.EvidenceOrder {
		if i == maxEvidenceInPrompt {
			fmt.Fprintf(&b, "... and %d more items\n", len(run.EvidenceOrder)-maxEvidenceInPrompt)
			break
		}
		rec := run.Evidence[fp]
		fmt.Fprintf(&b, "- %q (%s) url=%s date=%s: %s\n",
			rec.Item.Title, rec.Item.SourceID, rec.Item.URL, rec.Item.Date,
			llm.Truncate(rec.Item.Description, 200))
	}
	return b.String()
}

// dropUncitedEvidence removes citations that do not match any collected
// evidence item, and findings left with no citation at all.
func dropUncitedEvidence(findings []Finding, run *models.ResearchRun) []Finding {
	known := make(map[string]bool, len(run.Evidence))
	for _, rec := range run.Evidence {
		known[strings.ToLower(rec.Item.Title)] = true
		if rec.Item.URL != "" {
			known[rec.Item.URL] = true
		}
	}

	out := findings[:0]
	for _, f := range findings {
		kept := f.Citations[:0]
		for _, c := range f.Citations {
			if known[strings.ToLower(c.Title)] || (c.URL != "" && known[c.URL]) {
				kept = append(kept, c)
			}
		}
		f.Citations = kept
		if len(f.Citations) > 0 {
			out = append(out, f)
		}
	}
	return out
}
