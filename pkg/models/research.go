package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TaskStatus is the research task state machine. RUNNING leaves only into
// SUCCESS, FAILED, or RETRYING; RETRYING re-enters RUNNING with attempt+1;
// SUCCESS and FAILED are terminal.
type TaskStatus string

// Task statuses.
const (
	TaskStatusPending  TaskStatus = "PENDING"
	TaskStatusRunning  TaskStatus = "RUNNING"
	TaskStatusRetrying TaskStatus = "RETRYING"
	TaskStatusSuccess  TaskStatus = "SUCCESS"
	TaskStatusFailed   TaskStatus = "FAILED"
	TaskStatusAborted  TaskStatus = "ABORTED"
)

// Terminal reports whether the status can no longer change.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailed || s == TaskStatusAborted
}

// ResearchTask is one sub-question executed against an executor cohort.
type ResearchTask struct {
	ID       int        `json:"id"`
	Query    string     `json:"query"`
	ParentID *int       `json:"parent_id,omitempty"`
	Status   TaskStatus `json:"status"`
	Attempt  int        `json:"attempt"`

	SelectedSources []string       `json:"selected_sources,omitempty"`
	Results         []ResultItem   `json:"results,omitempty"`
	RelevanceScore  *int           `json:"relevance_score,omitempty"`
	Entities        map[string]int `json:"entities,omitempty"`

	StartedAt        time.Time `json:"started_at,omitempty"`
	CompletedAt      time.Time `json:"completed_at,omitempty"`
	ReasonForFailure string    `json:"reason_for_failure,omitempty"`
}

// Constraints bounds a research run.
type Constraints struct {
	MaxTasks             int           `json:"max_tasks"`
	MaxRetriesPerTask    int           `json:"max_retries_per_task"`
	MaxTime              time.Duration `json:"max_time"`
	MinResultsPerTask    int           `json:"min_results_per_task"`
	MaxConcurrentTasks   int           `json:"max_concurrent_tasks"`
	RelevanceThreshold   int           `json:"relevance_threshold"`
	MinSourceUtilization float64       `json:"min_source_utilization"`
	CriticalSources      []string      `json:"critical_sources,omitempty"`
}

// DefaultConstraints returns the documented defaults.
func DefaultConstraints() Constraints {
	return Constraints{
		MaxTasks:             10,
		MaxRetriesPerTask:    2,
		MaxTime:              60 * time.Minute,
		MinResultsPerTask:    3,
		MaxConcurrentTasks:   4,
		RelevanceThreshold:   3,
		MinSourceUtilization: 0.5,
	}
}

// EvidenceRecord is one entry of the run's global evidence index. Repeat
// matches of the same fingerprint increment Matches instead of re-inserting.
type EvidenceRecord struct {
	Item    ResultItem `json:"item"`
	Matches int        `json:"matches"`
	TaskID  int        `json:"task_id"`
}

// SourceOutcome summarizes a source's contribution for the "sources
// consulted" section: evidence, empty, or failed.
type SourceOutcome struct {
	SourceID   string    `json:"source_id"`
	Items      int       `json:"items"`
	Failed     bool      `json:"failed"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
	Rejections int       `json:"rejections,omitempty"`
}

// ResearchRun is the exclusive owner of its tasks and accumulated evidence.
// Only the run orchestrator mutates it; worker executions return results
// that the orchestrator merges.
type ResearchRun struct {
	RunID        string      `json:"run_id"`
	RootQuestion string      `json:"root_question"`
	Constraints  Constraints `json:"constraints"`

	Sensitive          bool     `json:"sensitive"`
	SensitivityMarkers []string `json:"sensitivity_markers,omitempty"`

	Tasks []*ResearchTask `json:"tasks"`

	// EvidenceOrder preserves insertion order (task completion order) over
	// the fingerprint-keyed Evidence map.
	Evidence      map[string]*EvidenceRecord `json:"evidence"`
	EvidenceOrder []string                   `json:"evidence_order"`

	// EntityNetwork maps entity → co-occurring entity → weight.
	EntityNetwork map[string]map[string]int `json:"entity_network"`

	SourceOutcomes map[string]*SourceOutcome `json:"source_outcomes"`

	StartedAt        time.Time `json:"started_at"`
	DeadlineAt       time.Time `json:"deadline_at"`
	CompletedAt      time.Time `json:"completed_at,omitempty"`
	TerminatedReason string    `json:"terminated_reason,omitempty"`

	CriticalFailures []string `json:"critical_failures,omitempty"`
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// NewRunID builds a human-sortable run id: timestamp plus a slug of the
// question.
func NewRunID(question string, now time.Time) string {
	slug := slugRe.ReplaceAllString(strings.ToLower(question), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 48 {
		slug = slug[:48]
		slug = strings.Trim(slug, "-")
	}
	if slug == "" {
		slug = "question"
	}
	return fmt.Sprintf("%s_%s", now.UTC().Format("20060102-150405"), slug)
}

// NewResearchRun initializes a run record with its deadline.
func NewResearchRun(question string, c Constraints, now time.Time) *ResearchRun {
	return &ResearchRun{
		RunID:          NewRunID(question, now),
		RootQuestion:   question,
		Constraints:    c,
		Evidence:       make(map[string]*EvidenceRecord),
		EntityNetwork:  make(map[string]map[string]int),
		SourceOutcomes: make(map[string]*SourceOutcome),
		StartedAt:      now,
		DeadlineAt:     now.Add(c.MaxTime),
	}
}

// AddEvidence inserts an item under its fingerprint, or bumps the match
// counter when already present. Returns true on first insertion.
func (r *ResearchRun) AddEvidence(fingerprint string, item ResultItem, taskID int) bool {
	if rec, ok := r.Evidence[fingerprint]; ok {
		rec.Matches++
		return false
	}
	r.Evidence[fingerprint] = &EvidenceRecord{Item: item, Matches: 1, TaskID: taskID}
	r.EvidenceOrder = append(r.EvidenceOrder, fingerprint)
	return true
}

// RecordSourceOutcome merges one query result into the run's per-source
// outcome table.
func (r *ResearchRun) RecordSourceOutcome(qr *QueryResult) {
	out, ok := r.SourceOutcomes[qr.SourceID]
	if !ok {
		out = &SourceOutcome{SourceID: qr.SourceID}
		r.SourceOutcomes[qr.SourceID] = out
	}
	if qr.Success {
		out.Items += len(qr.Items)
		return
	}
	out.Failed = true
	if qr.Error != nil {
		out.ErrorKind = qr.Error.Kind
	}
}

// EntityMention is one extracted entity together with the indexes of the
// result items it appeared in.
type EntityMention struct {
	Name        string `json:"name"`
	ItemIndexes []int  `json:"item_indexes,omitempty"`
}

// MergeEntities folds a task's entity mentions into the run-level network.
// Co-occurrence is counted per shared result item: a pair of entities gains
// one edge increment for every item that mentioned both. Entities that
// share a task but no item are not connected.
func (r *ResearchRun) MergeEntities(mentions []EntityMention) {
	byItem := make(map[int][]string)
	for _, m := range mentions {
		if _, ok := r.EntityNetwork[m.Name]; !ok {
			r.EntityNetwork[m.Name] = make(map[string]int)
		}
		for _, idx := range m.ItemIndexes {
			if !containsName(byItem[idx], m.Name) {
				byItem[idx] = append(byItem[idx], m.Name)
			}
		}
	}
	for _, names := range byItem {
		for _, a := range names {
			for _, b := range names {
				if a == b {
					continue
				}
				r.EntityNetwork[a][b]++
			}
		}
	}
}

func containsName(names []string, s string) bool {
	for _, n := range names {
		if n == s {
			return true
		}
	}
	return false
}
