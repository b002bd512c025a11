// Package runlog provides the append-only JSONL execution log. Every
// decision, call, and outcome in a run is emitted as one event per line,
// keyed by run id + task id + attempt.
//
// Events flow through a single writer goroutine, which gives a total order
// by emission time and preserves per-task program order. Non-critical
// events may be dropped under back-pressure (drop-oldest); run_start,
// run_complete, and task_complete are always retained.
package runlog

// EventType identifies the kind of execution-log event.
type EventType string

// Event types (non-exhaustive; callers may emit additional kinds).
const (
	EventRunStart              EventType = "run_start"
	EventRunComplete           EventType = "run_complete"
	EventTaskStart             EventType = "task_start"
	EventTaskComplete          EventType = "task_complete"
	EventSourceSelection       EventType = "source_selection"
	EventIntegrationRejected   EventType = "integration_rejected"
	EventAPICall               EventType = "api_call"
	EventRawResponse           EventType = "raw_response"
	EventRelevanceScoring      EventType = "relevance_scoring"
	EventFilterDecision        EventType = "filter_decision"
	EventCriticalSourceFailure EventType = "critical_source_failure"
	EventSensitivity           EventType = "sensitivity_classification"
	EventFollowupGenerated     EventType = "followup_generated"
	EventEntityExtraction      EventType = "entity_extraction"
	EventMonitorCycle          EventType = "monitor_cycle"
	EventAlertEmitted          EventType = "alert_emitted"
	EventScheduleSkipped       EventType = "schedule_skipped"
)

// critical events must never be dropped under back-pressure.
var critical = map[EventType]bool{
	EventRunStart:     true,
	EventRunComplete:  true,
	EventTaskComplete: true,
}

// Critical reports whether events of this type must be retained.
func (t EventType) Critical() bool { return critical[t] }

// RawResponseLimit caps the bytes of upstream body recorded in a
// raw_response event.
const RawResponseLimit = 4096

// Truncate clips a raw upstream body for logging.
func Truncate(s string) string {
	if len(s) <= RawResponseLimit {
		return s
	}
	return s[:RawResponseLimit] + "...[truncated]"
}
